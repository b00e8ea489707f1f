package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/EternisAI/silo-runners/internal/platform"
	"github.com/EternisAI/silo-runners/internal/store"
)

// Result summarises one reconciliation cycle. Updated and Deleted count
// planned transitions; Skipped counts those that lost a race with a
// concurrent writer and were not applied.
type Result struct {
	Updated    int
	Deleted    int
	Unchanged  int
	Remediated int
	Skipped    int
	Errors     int
	StartedAt  time.Time
	Duration   time.Duration
}

type Engine struct {
	store    store.AgentStore
	platform platform.Client
	opts     Options
	now      func() time.Time
}

func NewEngine(st store.AgentStore, client platform.Client, opts Options) *Engine {
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = 10 * time.Minute
	}
	return &Engine{
		store:    st,
		platform: client,
		opts:     opts,
		now:      time.Now,
	}
}

// RunCycle performs one full reconciliation. A failed upstream listing
// aborts the cycle before anything is written.
func (e *Engine) RunCycle(ctx context.Context) (*Result, error) {
	res := &Result{StartedAt: e.now()}
	defer func() { res.Duration = e.now().Sub(res.StartedAt) }()

	upstream, err := e.platform.ListAgents(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list upstream agents: %w", err)
	}

	local, err := e.store.ListLiveAgents(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load local agents: %w", err)
	}

	plan := BuildPlan(local, upstream, e.now(), e.opts)
	res.Unchanged = plan.Unchanged

	if err := e.executeDeletions(ctx, &plan, res); err != nil {
		return res, err
	}

	var changes []store.Change
	var extra ledger.Entries
	for _, s := range plan.Steps {
		extra.Audit = append(extra.Audit, s.Always.Audit...)
		extra.Security = append(extra.Security, s.Always.Security...)
		if s.Transition == nil {
			continue
		}
		changes = append(changes, store.Change{Transition: *s.Transition, Entries: s.Entries})
		switch {
		case s.deletes():
			res.Deleted++
		case s.Transition.To != s.Transition.From:
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	if len(changes) == 0 && extra.Empty() {
		return res, nil
	}

	applied, err := e.store.ApplyChanges(ctx, changes, extra)
	if err != nil {
		return res, fmt.Errorf("failed to apply reconciliation changes: %w", err)
	}
	res.Skipped = len(changes) - applied

	slog.Info("Reconciliation cycle applied",
		"updated", res.Updated,
		"deleted", res.Deleted,
		"remediated", res.Remediated,
		"skipped", res.Skipped,
		"errors", res.Errors)
	return res, nil
}

// executeDeletions removes agents upstream that the plan wants gone. A failed
// deletion demotes its step to a status-preserving update so the next cycle
// retries it. Cancellation is only honoured before the first deletion.
func (e *Engine) executeDeletions(ctx context.Context, plan *Plan, res *Result) error {
	started := false
	for i := range plan.Steps {
		s := &plan.Steps[i]
		if s.DeleteUpstream == nil {
			continue
		}
		if !started {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("cycle cancelled before remediation: %w", err)
			}
			started = true
		}

		err := e.platform.DeleteAgent(context.WithoutCancel(ctx), *s.DeleteUpstream)
		if err == nil || errors.Is(err, platform.ErrNotFound) {
			if s.Remediation {
				res.Remediated++
			}
			continue
		}

		res.Errors++
		slog.Error("Failed to delete agent upstream",
			"agent_id", s.Agent.ID,
			"platform_agent_id", *s.DeleteUpstream,
			"error", err)
		demote(s)
	}
	return nil
}

// demote keeps whatever the step learned about the agent but leaves its
// status alone. Security events already planned for the step still get
// written, recording that the deletion failed.
func demote(s *Step) {
	for i := range s.Always.Security {
		if s.Always.Security[i].ActionTaken == actionDeleted {
			s.Always.Security[i].ActionTaken = actionDeleteFailed
		}
	}

	t := s.Transition
	s.Entries = ledger.Entries{}
	if t == nil {
		return
	}
	if t.PlatformAgentID == nil && t.RegisteredAt == nil && t.DriftObservedLabels == nil {
		s.Transition = nil
		return
	}
	kept := *t
	kept.To = t.From
	kept.ClearSecret = t.RegisteredAt != nil
	s.Transition = &kept
}
