package reconcile

import (
	"sort"
	"time"

	"github.com/EternisAI/silo-runners/internal/agents"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/EternisAI/silo-runners/internal/platform"
	"github.com/EternisAI/silo-runners/internal/policy"
)

const (
	ReasonRegistered        = "registered"
	ReasonOnline            = "online"
	ReasonOffline           = "offline"
	ReasonCompleted         = "completed"
	ReasonCredentialExpired = "credential_expired"
	ReasonDisappeared       = "unexpected_disappearance"
	ReasonLabelDrift        = "label_drift"
	ReasonStaleReservation  = "stale_reservation"
	ReasonOrphan            = "orphaned_platform_agent"
)

type Options struct {
	// ReservationTTL is how long an unissued reservation may exist before
	// it is considered abandoned.
	ReservationTTL time.Duration `mapstructure:"reservation_ttl"`
	// RemediateBusyDrift deletes drifted agents even while they run a job.
	RemediateBusyDrift bool `mapstructure:"remediate_busy_drift"`
}

// Step is everything one cycle decides about a single local agent.
type Step struct {
	Agent      agents.Agent
	Transition *agents.Transition
	// Entries are written only if Transition applies.
	Entries ledger.Entries
	// Always is written whether or not the transition applies.
	Always ledger.Entries
	// DeleteUpstream must succeed before Transition may be applied.
	DeleteUpstream *int64
	Remediation    bool
}

func (s *Step) deletes() bool {
	return s.Transition != nil && s.Transition.To == agents.StatusDeleted
}

type Plan struct {
	Steps     []Step
	Unchanged int
}

// BuildPlan compares local agents with the upstream listing. It has no side
// effects: the same inputs always produce the same plan, regardless of the
// order of either slice.
func BuildPlan(local []agents.Agent, upstream []platform.Agent, now time.Time, opts Options) Plan {
	byID := make(map[int64]*platform.Agent, len(upstream))
	byName := make(map[string]*platform.Agent, len(upstream))
	for i := range upstream {
		u := &upstream[i]
		byID[u.ID] = u
		// Lowest id wins so that duplicates resolve the same way every time.
		if prev, ok := byName[u.Name]; !ok || u.ID < prev.ID {
			byName[u.Name] = u
		}
	}

	sorted := make([]agents.Agent, len(local))
	copy(sorted, local)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var plan Plan
	for _, a := range sorted {
		if a.Status == agents.StatusDeleted {
			continue
		}

		var step *Step
		if !a.Issued {
			step = planReservation(a, byName[a.Name], now, opts)
		} else {
			var up *platform.Agent
			if a.PlatformAgentID != nil {
				up = byID[*a.PlatformAgentID]
			} else {
				up = byName[a.Name]
			}
			if up == nil {
				step = planAbsent(a, now)
			} else {
				step = planPresent(a, up, now, opts)
			}
		}

		if step == nil {
			plan.Unchanged++
			continue
		}
		plan.Steps = append(plan.Steps, *step)
	}
	return plan
}

// Values of SecurityEvent.ActionTaken written by the reconciler.
const (
	actionLogged       = "logged"
	actionDeleted      = "deleted"
	actionDeleteFailed = "delete_failed"
)

func planReservation(a agents.Agent, up *platform.Agent, now time.Time, opts Options) *Step {
	if now.Sub(a.ProvisionedAt) < opts.ReservationTTL {
		return nil
	}

	step := newTransition(a, agents.StatusDeleted, ReasonStaleReservation)
	if up != nil {
		id := up.ID
		step.DeleteUpstream = &id
		// The observed labels double as a marker so a runner that survives a
		// failed delete is reported once.
		if a.DriftObservedLabels != nil && policy.LabelsEqual(a.DriftObservedLabels, up.Labels) {
			return step
		}
		step.Transition.DriftObservedLabels = append([]string{}, up.Labels...)
		step.Always.AddSecurity(ledger.SecurityEvent{
			Actor:          ledger.SystemActor,
			AgentID:        a.ID,
			Kind:           ledger.SecurityOrphanedPlatformAgent,
			Severity:       ledger.SeverityHigh,
			OriginalLabels: a.Labels,
			ObservedLabels: up.Labels,
			ActionTaken:    actionDeleted,
			Payload: map[string]any{
				"name":              a.Name,
				"platform_agent_id": up.ID,
			},
		})
	}
	return step
}

func planAbsent(a agents.Agent, now time.Time) *Step {
	expired := a.CredentialExpired(now)
	sighted := a.RegisteredAt != nil || a.PlatformAgentID != nil

	switch {
	case a.Status == agents.StatusPending && !sighted && !expired:
		return nil
	case a.Ephemeral && (a.Status == agents.StatusActive || a.Status == agents.StatusOffline):
		return newTransition(a, agents.StatusDeleted, ReasonCompleted)
	case a.Status == agents.StatusPending && expired:
		return newTransition(a, agents.StatusDeleted, ReasonCredentialExpired)
	case !a.Ephemeral:
		step := newTransition(a, agents.StatusDeleted, ReasonDisappeared)
		step.Entries.AddSecurity(ledger.SecurityEvent{
			Actor:          ledger.SystemActor,
			AgentID:        a.ID,
			Kind:           ledger.SecurityUnexpectedDisappearance,
			Severity:       ledger.SeverityMedium,
			OriginalLabels: a.Labels,
			ActionTaken:    "marked_deleted",
			Payload: map[string]any{
				"name":            a.Name,
				"previous_status": string(a.Status),
			},
		})
		return step
	default:
		return newTransition(a, agents.StatusDeleted, ReasonCompleted)
	}
}

func planPresent(a agents.Agent, up *platform.Agent, now time.Time, opts Options) *Step {
	target, reason := agents.StatusOffline, ReasonOffline
	if up.Online {
		target, reason = agents.StatusActive, ReasonOnline
	}

	t := &agents.Transition{AgentID: a.ID, From: a.Status, To: target}
	changed := target != a.Status
	if a.PlatformAgentID == nil {
		id := up.ID
		t.PlatformAgentID = &id
		changed = true
	}
	if a.RegisteredAt == nil {
		ts := now
		t.RegisteredAt = &ts
		t.ClearSecret = true
		reason = ReasonRegistered
		changed = true
	}

	step := &Step{Agent: a}

	if a.IssuanceMode == agents.ModeJIT && !policy.LabelsEqual(a.Labels, up.Labels) {
		remediate := !up.Busy || opts.RemediateBusyDrift
		action := actionLogged
		if remediate {
			action = actionDeleted
		}

		if a.DriftObservedLabels == nil || !policy.LabelsEqual(a.DriftObservedLabels, up.Labels) {
			t.DriftObservedLabels = append([]string{}, up.Labels...)
			changed = true
			step.Always.AddSecurity(ledger.SecurityEvent{
				Actor:          ledger.SystemActor,
				AgentID:        a.ID,
				Kind:           ledger.SecurityLabelDrift,
				Severity:       ledger.SeverityHigh,
				OriginalLabels: a.Labels,
				ObservedLabels: up.Labels,
				ActionTaken:    action,
				Payload: map[string]any{
					"name":              a.Name,
					"platform_agent_id": up.ID,
					"busy":              up.Busy,
				},
			})
		}

		if remediate {
			id := up.ID
			step.DeleteUpstream = &id
			step.Remediation = true
			t.To = agents.StatusDeleted
			t.ClearSecret = true
			reason = ReasonLabelDrift
			changed = true
		}
	}

	if !changed {
		return nil
	}

	t.Reason = reason
	step.Transition = t
	if t.To != t.From {
		step.Entries.AddAudit(transitionAudit(a, t))
	}
	return step
}

func newTransition(a agents.Agent, to agents.Status, reason string) *Step {
	t := &agents.Transition{
		AgentID:     a.ID,
		From:        a.Status,
		To:          to,
		ClearSecret: to == agents.StatusDeleted,
		Reason:      reason,
	}
	step := &Step{Agent: a, Transition: t}
	step.Entries.AddAudit(transitionAudit(a, t))
	return step
}

func transitionAudit(a agents.Agent, t *agents.Transition) ledger.AuditEntry {
	return ledger.AuditEntry{
		Actor:   ledger.SystemActor,
		AgentID: a.ID,
		Kind:    ledger.KindReconcileTransition,
		Outcome: ledger.OutcomeSuccess,
		Payload: map[string]any{
			"name":   a.Name,
			"from":   string(t.From),
			"to":     string(t.To),
			"reason": t.Reason,
		},
	}
}
