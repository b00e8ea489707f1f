package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/EternisAI/silo-runners/internal/agents"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/EternisAI/silo-runners/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reservation(name, owner string, limit int) Reservation {
	return Reservation{
		Name:          name,
		Labels:        []string{"self-hosted", "linux", "x64"},
		Mode:          agents.ModeRegistrationToken,
		Owner:         owner,
		MaxConcurrent: limit,
	}
}

func issue(t *testing.T, s *Memory, name, owner string) *agents.Agent {
	t.Helper()
	a, err := s.ReserveAgent(context.Background(), reservation(name, owner, 100))
	require.NoError(t, err)
	a, err = s.FinalizeAgent(context.Background(), Finalization{AgentID: a.ID, Labels: a.Labels, SecretHash: "hash"}, ledger.Entries{})
	require.NoError(t, err)
	return a
}

func TestMemoryReserveQuota(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.ReserveAgent(ctx, reservation("a1", "alice", 2))
	require.NoError(t, err)
	_, err = s.ReserveAgent(ctx, reservation("a2", "alice", 2))
	require.NoError(t, err)

	_, err = s.ReserveAgent(ctx, reservation("a3", "alice", 2))
	require.ErrorIs(t, err, ErrQuotaExceeded)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 2, qe.Current)
	assert.Equal(t, 2, qe.Limit)
	assert.Equal(t, "user:alice", qe.OwnerKey)

	// Another owner has its own bucket.
	_, err = s.ReserveAgent(ctx, reservation("b1", "bob", 1))
	require.NoError(t, err)
}

func TestMemoryReserveZeroQuota(t *testing.T) {
	s := NewMemory()
	_, err := s.ReserveAgent(context.Background(), reservation("a1", "alice", 0))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestMemoryTeamQuotaSharedAcrossMembers(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	r := reservation("t1", "alice", 1)
	r.TeamID = "team-1"
	_, err := s.ReserveAgent(ctx, r)
	require.NoError(t, err)

	r = reservation("t2", "bob", 1)
	r.TeamID = "team-1"
	_, err = s.ReserveAgent(ctx, r)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// Personal bucket is separate from the team one.
	_, err = s.ReserveAgent(ctx, reservation("p1", "bob", 1))
	assert.NoError(t, err)
}

func TestMemoryReserveNameTaken(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	a := issue(t, s, "dup", "alice")
	_, err := s.ReserveAgent(ctx, reservation("dup", "bob", 5))
	assert.ErrorIs(t, err, ErrNameTaken)

	// Deleted agents release their name.
	_, err = s.MarkDeleted(ctx, a.ID, ledger.Entries{})
	require.NoError(t, err)
	_, err = s.ReserveAgent(ctx, reservation("dup", "bob", 5))
	assert.NoError(t, err)
}

func TestMemoryConcurrentReservationsRespectQuota(t *testing.T) {
	s := NewMemory()
	const limit = 3
	const callers = 50

	var wg sync.WaitGroup
	var ok, rejected atomic.Int32
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.ReserveAgent(context.Background(), reservation(fmt.Sprintf("r-%d", i), "alice", limit))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrQuotaExceeded):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(limit), ok.Load())
	assert.Equal(t, int32(callers-limit), rejected.Load())

	live, err := s.ListLiveAgents(context.Background())
	require.NoError(t, err)
	assert.Len(t, live, limit)
}

func TestMemoryConcurrentSameName(t *testing.T) {
	s := NewMemory()

	var wg sync.WaitGroup
	var ok atomic.Int32
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ReserveAgent(context.Background(), reservation("same", "alice", 100)); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load())
}

func TestMemoryFinalizeAndRelease(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	a, err := s.ReserveAgent(ctx, reservation("a1", "alice", 5))
	require.NoError(t, err)
	assert.False(t, a.Issued)
	assert.Equal(t, agents.StatusPending, a.Status)

	// Reservations are invisible to listings.
	list, err := s.ListAgents(ctx, agents.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	id := int64(42)
	entries := ledger.Entries{}
	entries.AddAudit(ledger.AuditEntry{Actor: "alice", AgentID: a.ID, Kind: ledger.KindProvision, Outcome: ledger.OutcomeSuccess})
	fin, err := s.FinalizeAgent(ctx, Finalization{AgentID: a.ID, Labels: a.Labels, PlatformAgentID: &id, SecretHash: "h"}, entries)
	require.NoError(t, err)
	assert.True(t, fin.Issued)
	require.NotNil(t, fin.PlatformAgentID)
	assert.Equal(t, int64(42), *fin.PlatformAgentID)

	// A second finalize has nothing to act on.
	_, err = s.FinalizeAgent(ctx, Finalization{AgentID: a.ID}, ledger.Entries{})
	assert.ErrorIs(t, err, ErrNotFound)

	// Releasing an issued agent leaves it in place.
	require.NoError(t, s.ReleaseReservation(ctx, a.ID, ledger.Entries{}))
	_, err = s.GetAgent(ctx, a.ID)
	assert.NoError(t, err)

	audit, err := s.ListAudit(ctx, ledger.AuditFilter{AgentID: a.ID})
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}

func TestMemoryReleaseFreesQuota(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	a, err := s.ReserveAgent(ctx, reservation("a1", "alice", 1))
	require.NoError(t, err)
	require.NoError(t, s.ReleaseReservation(ctx, a.ID, ledger.Entries{}))

	_, err = s.GetAgent(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ReserveAgent(ctx, reservation("a1", "alice", 1))
	assert.NoError(t, err)
}

func TestMemoryMarkDeleted(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	a := issue(t, s, "a1", "alice")

	del, err := s.MarkDeleted(ctx, a.ID, ledger.Entries{})
	require.NoError(t, err)
	assert.Equal(t, agents.StatusDeleted, del.Status)
	assert.NotNil(t, del.DeletedAt)
	assert.Empty(t, del.BootstrapSecretHash)

	_, err = s.MarkDeleted(ctx, a.ID, ledger.Entries{})
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListAgents(ctx, agents.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ListAgents(ctx, agents.Filter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryListAgentsVisibility(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	issue(t, s, "alice-1", "alice")
	issue(t, s, "bob-1", "bob")

	r := reservation("team-1", "bob", 5)
	r.TeamID = "t1"
	ta, err := s.ReserveAgent(ctx, r)
	require.NoError(t, err)
	_, err = s.FinalizeAgent(ctx, Finalization{AgentID: ta.ID, Labels: ta.Labels}, ledger.Entries{})
	require.NoError(t, err)

	list, err := s.ListAgents(ctx, agents.Filter{Owner: "alice"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListAgents(ctx, agents.Filter{Owner: "alice", TeamIDs: []string{"t1"}})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.ListAgents(ctx, agents.Filter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = s.ListAgents(ctx, agents.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryApplyChangesSkipsStale(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	a := issue(t, s, "a1", "alice")

	entry := func(reason string) ledger.Entries {
		e := ledger.Entries{}
		e.AddAudit(ledger.AuditEntry{Actor: ledger.SystemActor, AgentID: a.ID, Kind: ledger.KindReconcileTransition, Outcome: ledger.OutcomeSuccess, Payload: map[string]any{"reason": reason}})
		return e
	}
	extra := ledger.Entries{}
	extra.AddSecurity(ledger.SecurityEvent{Actor: ledger.SystemActor, Kind: ledger.SecurityOrphanedPlatformAgent, Severity: ledger.SeverityHigh})

	pid := int64(7)
	n, err := s.ApplyChanges(ctx, []Change{
		{Transition: agents.Transition{AgentID: a.ID, From: agents.StatusPending, To: agents.StatusActive, PlatformAgentID: &pid, ClearSecret: true}, Entries: entry("registered")},
		// Stale: the agent is no longer offline.
		{Transition: agents.Transition{AgentID: a.ID, From: agents.StatusOffline, To: agents.StatusDeleted}, Entries: entry("stale")},
	}, extra)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, agents.StatusActive, got.Status)
	assert.Empty(t, got.BootstrapSecretHash)
	require.NotNil(t, got.PlatformAgentID)
	assert.Equal(t, int64(7), *got.PlatformAgentID)

	audit, err := s.ListAudit(ctx, ledger.AuditFilter{Kind: ledger.KindReconcileTransition})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "registered", audit[0].Payload["reason"])

	sec, err := s.ListSecurityEvents(ctx, ledger.SecurityFilter{})
	require.NoError(t, err)
	assert.Len(t, sec, 1)
}

func TestMemoryApplyChangesNeverLeavesDeleted(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	a := issue(t, s, "a1", "alice")
	_, err := s.MarkDeleted(ctx, a.ID, ledger.Entries{})
	require.NoError(t, err)

	n, err := s.ApplyChanges(ctx, []Change{
		{Transition: agents.Transition{AgentID: a.ID, From: agents.StatusDeleted, To: agents.StatusActive}},
	}, ledger.Entries{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryFailOn(t *testing.T) {
	s := NewMemory()
	boom := errors.New("boom")
	s.FailOn("Record", boom)
	assert.ErrorIs(t, s.Record(context.Background(), ledger.Entries{}), boom)
	s.FailOn("Record", nil)
	assert.NoError(t, s.Record(context.Background(), ledger.Entries{}))
}

func TestMemoryPolicies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.GetUserPolicy(ctx, "alice")
	assert.ErrorIs(t, err, policy.ErrPolicyNotFound)

	p, err := s.UpsertUserPolicy(ctx, &policy.UserPolicy{Identity: "alice", AllowedLabels: []string{"docker"}, MaxConcurrentAgents: 2}, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, "admin", p.UpdatedBy)

	p, err = s.UpsertUserPolicy(ctx, &policy.UserPolicy{Identity: "alice", MaxConcurrentAgents: 3}, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Version)

	team, err := s.CreateTeam(ctx, &policy.Team{Name: "infra", MaxConcurrentAgents: 4, IsActive: true}, "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, team.ID)

	_, err = s.CreateTeam(ctx, &policy.Team{Name: "infra"}, "admin")
	assert.ErrorIs(t, err, ErrTeamExists)

	_, err = s.UpsertMembership(ctx, policy.Membership{TeamID: team.ID, UserID: "alice"}, "admin")
	require.NoError(t, err)

	teams, err := s.ActiveTeams(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "infra", teams[0].Name)

	require.NoError(t, s.RemoveMembership(ctx, team.ID, "alice", "admin"))
	teams, err = s.ActiveTeams(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, teams)
	assert.ErrorIs(t, s.RemoveMembership(ctx, team.ID, "alice", "admin"), ErrNotFound)

	audit, err := s.ListAudit(ctx, ledger.AuditFilter{Kind: ledger.KindPolicyChange, Actor: "admin"})
	require.NoError(t, err)
	assert.Len(t, audit, 5)
}
