package reconcile

import (
	"math/rand"
	"testing"
	"time"

	"github.com/EternisAI/silo-runners/internal/agents"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/EternisAI/silo-runners/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func jitAgent(id string, platformID int64, labels ...string) agents.Agent {
	return agents.Agent{
		ID:                  id,
		Name:                "agent-" + id,
		Labels:              labels,
		Status:              agents.StatusPending,
		Ephemeral:           true,
		IssuanceMode:        agents.ModeJIT,
		Owner:               "alice",
		PlatformAgentID:     ptr(platformID),
		Issued:              true,
		CredentialExpiresAt: now.Add(time.Hour),
		ProvisionedAt:       now.Add(-time.Minute),
	}
}

func regAgent(id string, status agents.Status, ephemeral bool) agents.Agent {
	return agents.Agent{
		ID:                  id,
		Name:                "agent-" + id,
		Labels:              []string{"self-hosted", "linux", "x64"},
		Status:              status,
		Ephemeral:           ephemeral,
		IssuanceMode:        agents.ModeRegistrationToken,
		Owner:               "alice",
		BootstrapSecretHash: "hash",
		Issued:              true,
		CredentialExpiresAt: now.Add(time.Hour),
		ProvisionedAt:       now.Add(-time.Minute),
	}
}

func onlyStep(t *testing.T, p Plan) Step {
	t.Helper()
	require.Len(t, p.Steps, 1)
	return p.Steps[0]
}

func TestPlan_LabelDriftIdleIsRemediated(t *testing.T) {
	a := jitAgent("a1", 10, "self-hosted", "linux", "x64", "alpha")
	up := []platform.Agent{{ID: 10, Name: a.Name, Labels: []string{"self-hosted", "linux", "x64", "beta"}, Online: true}}

	s := onlyStep(t, BuildPlan([]agents.Agent{a}, up, now, Options{}))
	require.NotNil(t, s.Transition)
	assert.Equal(t, agents.StatusDeleted, s.Transition.To)
	assert.Equal(t, ReasonLabelDrift, s.Transition.Reason)
	assert.Equal(t, int64(10), *s.DeleteUpstream)
	assert.True(t, s.Remediation)

	require.Len(t, s.Always.Security, 1)
	ev := s.Always.Security[0]
	assert.Equal(t, ledger.SecurityLabelDrift, ev.Kind)
	assert.Equal(t, ledger.SeverityHigh, ev.Severity)
	assert.Equal(t, []string{"self-hosted", "linux", "x64", "alpha"}, ev.OriginalLabels)
	assert.Equal(t, []string{"self-hosted", "linux", "x64", "beta"}, ev.ObservedLabels)
	assert.Equal(t, "deleted", ev.ActionTaken)
}

func TestPlan_LabelDriftBusyIsLoggedOnly(t *testing.T) {
	a := jitAgent("a1", 10, "self-hosted", "linux", "alpha")
	a.Status = agents.StatusActive
	a.RegisteredAt = ptr(now.Add(-time.Hour))
	up := []platform.Agent{{ID: 10, Name: a.Name, Labels: []string{"self-hosted", "linux", "beta"}, Online: true, Busy: true}}

	s := onlyStep(t, BuildPlan([]agents.Agent{a}, up, now, Options{}))
	assert.Nil(t, s.DeleteUpstream)
	require.NotNil(t, s.Transition)
	assert.Equal(t, agents.StatusActive, s.Transition.To)
	assert.Equal(t, []string{"self-hosted", "linux", "beta"}, s.Transition.DriftObservedLabels)
	require.Len(t, s.Always.Security, 1)
	assert.Equal(t, "logged", s.Always.Security[0].ActionTaken)
	assert.Empty(t, s.Entries.Audit)

	// The override remediates even while busy.
	s = onlyStep(t, BuildPlan([]agents.Agent{a}, up, now, Options{RemediateBusyDrift: true}))
	require.NotNil(t, s.DeleteUpstream)
	assert.Equal(t, agents.StatusDeleted, s.Transition.To)
}

func TestPlan_DriftEventOncePerObservation(t *testing.T) {
	a := jitAgent("a1", 10, "self-hosted", "alpha")
	a.Status = agents.StatusActive
	a.RegisteredAt = ptr(now.Add(-time.Hour))
	a.DriftObservedLabels = []string{"BETA", "self-hosted"}
	up := []platform.Agent{{ID: 10, Name: a.Name, Labels: []string{"self-hosted", "beta"}, Online: true, Busy: true}}

	p := BuildPlan([]agents.Agent{a}, up, now, Options{})
	assert.Empty(t, p.Steps)
	assert.Equal(t, 1, p.Unchanged)
}

func TestPlan_DriftIgnoresOrderAndCase(t *testing.T) {
	a := jitAgent("a1", 10, "self-hosted", "Linux", "x64")
	a.Status = agents.StatusActive
	a.RegisteredAt = ptr(now.Add(-time.Hour))
	up := []platform.Agent{{ID: 10, Name: a.Name, Labels: []string{"x64", "linux", "self-hosted"}, Online: true}}

	p := BuildPlan([]agents.Agent{a}, up, now, Options{})
	assert.Empty(t, p.Steps)
}

func TestPlan_NoDriftDetectionForRegistrationToken(t *testing.T) {
	a := regAgent("r1", agents.StatusActive, false)
	a.PlatformAgentID = ptr(int64(20))
	a.RegisteredAt = ptr(now.Add(-time.Hour))
	up := []platform.Agent{{ID: 20, Name: a.Name, Labels: []string{"gpu"}, Online: true}}

	p := BuildPlan([]agents.Agent{a}, up, now, Options{})
	assert.Empty(t, p.Steps)
}

func TestPlan_FirstSighting(t *testing.T) {
	a := regAgent("r1", agents.StatusPending, false)
	up := []platform.Agent{{ID: 77, Name: a.Name, Labels: a.Labels, Online: true}}

	s := onlyStep(t, BuildPlan([]agents.Agent{a}, up, now, Options{}))
	tr := s.Transition
	require.NotNil(t, tr)
	assert.Equal(t, agents.StatusPending, tr.From)
	assert.Equal(t, agents.StatusActive, tr.To)
	assert.Equal(t, int64(77), *tr.PlatformAgentID)
	assert.Equal(t, now, *tr.RegisteredAt)
	assert.True(t, tr.ClearSecret)
	assert.Equal(t, ReasonRegistered, tr.Reason)
	require.Len(t, s.Entries.Audit, 1)
	assert.Equal(t, ledger.KindReconcileTransition, s.Entries.Audit[0].Kind)
}

func TestPlan_OnlineOffline(t *testing.T) {
	a := regAgent("r1", agents.StatusActive, false)
	a.PlatformAgentID = ptr(int64(5))
	a.RegisteredAt = ptr(now.Add(-time.Hour))

	s := onlyStep(t, BuildPlan([]agents.Agent{a}, []platform.Agent{{ID: 5, Name: a.Name}}, now, Options{}))
	assert.Equal(t, agents.StatusOffline, s.Transition.To)
	assert.Equal(t, ReasonOffline, s.Transition.Reason)

	a.Status = agents.StatusOffline
	s = onlyStep(t, BuildPlan([]agents.Agent{a}, []platform.Agent{{ID: 5, Name: a.Name, Online: true}}, now, Options{}))
	assert.Equal(t, agents.StatusActive, s.Transition.To)
}

func TestPlan_Absent(t *testing.T) {
	expired := regAgent("exp", agents.StatusPending, false)
	expired.CredentialExpiresAt = now.Add(-time.Minute)

	waiting := regAgent("wait", agents.StatusPending, false)

	finished := regAgent("fin", agents.StatusActive, true)
	finished.RegisteredAt = ptr(now.Add(-time.Hour))
	finished.PlatformAgentID = ptr(int64(3))

	vanished := regAgent("van", agents.StatusOffline, false)
	vanished.RegisteredAt = ptr(now.Add(-time.Hour))
	vanished.PlatformAgentID = ptr(int64(4))

	jitGone := jitAgent("jit", 9, "self-hosted")

	p := BuildPlan([]agents.Agent{expired, waiting, finished, vanished, jitGone}, nil, now, Options{})
	assert.Equal(t, 1, p.Unchanged)

	reasons := map[string]string{}
	security := map[string]int{}
	for _, s := range p.Steps {
		require.NotNil(t, s.Transition)
		assert.Equal(t, agents.StatusDeleted, s.Transition.To)
		assert.True(t, s.Transition.ClearSecret)
		assert.Nil(t, s.DeleteUpstream)
		reasons[s.Agent.ID] = s.Transition.Reason
		security[s.Agent.ID] = len(s.Entries.Security)
	}
	assert.Equal(t, map[string]string{
		"exp": ReasonCredentialExpired,
		"fin": ReasonCompleted,
		"van": ReasonDisappeared,
		"jit": ReasonCompleted,
	}, reasons)
	assert.Equal(t, 1, security["van"])
	assert.Zero(t, security["fin"])
	assert.Zero(t, security["exp"])
}

func TestPlan_StaleReservations(t *testing.T) {
	fresh := regAgent("fresh", agents.StatusPending, false)
	fresh.Issued = false
	fresh.ProvisionedAt = now.Add(-time.Minute)

	stale := regAgent("stale", agents.StatusPending, false)
	stale.Issued = false
	stale.ProvisionedAt = now.Add(-time.Hour)

	orphan := jitAgent("orphan", 0)
	orphan.Issued = false
	orphan.PlatformAgentID = nil
	orphan.ProvisionedAt = now.Add(-time.Hour)

	up := []platform.Agent{{ID: 55, Name: orphan.Name}}
	p := BuildPlan([]agents.Agent{fresh, stale, orphan}, up, now, Options{ReservationTTL: 10 * time.Minute})
	assert.Equal(t, 1, p.Unchanged)
	require.Len(t, p.Steps, 2)

	for _, s := range p.Steps {
		assert.Equal(t, agents.StatusDeleted, s.Transition.To)
		assert.Equal(t, ReasonStaleReservation, s.Transition.Reason)
		switch s.Agent.ID {
		case "stale":
			assert.Nil(t, s.DeleteUpstream)
			assert.Empty(t, s.Always.Security)
		case "orphan":
			require.NotNil(t, s.DeleteUpstream)
			assert.Equal(t, int64(55), *s.DeleteUpstream)
			require.Len(t, s.Always.Security, 1)
			assert.Equal(t, ledger.SecurityOrphanedPlatformAgent, s.Always.Security[0].Kind)
			assert.Equal(t, ledger.SeverityHigh, s.Always.Security[0].Severity)
		}
	}
}

func TestPlan_FlaggedOrphanNotReported(t *testing.T) {
	orphan := jitAgent("orphan", 0)
	orphan.Issued = false
	orphan.PlatformAgentID = nil
	orphan.ProvisionedAt = now.Add(-time.Hour)

	up := []platform.Agent{{ID: 55, Name: orphan.Name, Labels: []string{"self-hosted"}}}
	opts := Options{ReservationTTL: 10 * time.Minute}

	s := onlyStep(t, BuildPlan([]agents.Agent{orphan}, up, now, opts))
	require.Len(t, s.Always.Security, 1)
	assert.Equal(t, []string{"self-hosted"}, s.Transition.DriftObservedLabels)

	orphan.DriftObservedLabels = []string{"self-hosted"}
	s = onlyStep(t, BuildPlan([]agents.Agent{orphan}, up, now, opts))
	require.NotNil(t, s.DeleteUpstream)
	assert.Equal(t, agents.StatusDeleted, s.Transition.To)
	assert.Empty(t, s.Always.Security)
}

func TestPlan_DeletedAgentsIgnored(t *testing.T) {
	a := regAgent("d", agents.StatusDeleted, false)
	p := BuildPlan([]agents.Agent{a}, []platform.Agent{{ID: 1, Name: a.Name, Online: true}}, now, Options{})
	assert.Empty(t, p.Steps)
	assert.Zero(t, p.Unchanged)
}

func TestPlan_OrderIndependent(t *testing.T) {
	local := []agents.Agent{
		jitAgent("a", 1, "self-hosted", "alpha"),
		regAgent("b", agents.StatusPending, false),
		regAgent("c", agents.StatusActive, true),
		jitAgent("d", 4, "self-hosted"),
	}
	local[2].PlatformAgentID = ptr(int64(3))
	local[2].RegisteredAt = ptr(now.Add(-time.Hour))
	upstream := []platform.Agent{
		{ID: 1, Name: "agent-a", Labels: []string{"self-hosted", "beta"}},
		{ID: 2, Name: "agent-b", Labels: []string{"self-hosted"}, Online: true},
		{ID: 4, Name: "agent-d", Labels: []string{"self-hosted"}, Online: true, Busy: true},
	}

	want := BuildPlan(local, upstream, now, Options{})
	rng := rand.New(rand.NewSource(1))
	for range 20 {
		l := append([]agents.Agent(nil), local...)
		u := append([]platform.Agent(nil), upstream...)
		rng.Shuffle(len(l), func(i, j int) { l[i], l[j] = l[j], l[i] })
		rng.Shuffle(len(u), func(i, j int) { u[i], u[j] = u[j], u[i] })
		assert.Equal(t, want, BuildPlan(l, u, now, Options{}))
	}
}
