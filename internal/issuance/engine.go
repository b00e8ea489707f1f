package issuance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/EternisAI/silo-runners/internal/agents"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/EternisAI/silo-runners/internal/platform"
	"github.com/EternisAI/silo-runners/internal/policy"
	"github.com/EternisAI/silo-runners/internal/store"
)

// Caller is the verified identity on whose behalf an operation runs.
type Caller struct {
	Identity string
	IsAdmin  bool
}

type Request struct {
	Name          string
	NamePrefix    string
	Labels        []string
	Ephemeral     bool
	Mode          agents.IssuanceMode
	TeamID        string
	RunnerGroupID int64
	DisableUpdate bool
}

type Config struct {
	// PlatformURL is passed to the runner configuration command.
	PlatformURL          string        `mapstructure:"platform_url"`
	DefaultRunnerGroupID int64         `mapstructure:"default_runner_group_id"`
	WorkFolder           string        `mapstructure:"work_folder"`
	PlatformTimeout      time.Duration `mapstructure:"platform_timeout"`
	// JitValidity bounds how long an unused JIT config is considered live.
	JitValidity time.Duration `mapstructure:"jit_validity"`
}

func (c Config) withDefaults() Config {
	if c.WorkFolder == "" {
		c.WorkFolder = "_work"
	}
	if c.DefaultRunnerGroupID == 0 {
		c.DefaultRunnerGroupID = 1
	}
	if c.PlatformTimeout <= 0 {
		c.PlatformTimeout = 30 * time.Second
	}
	if c.JitValidity <= 0 {
		c.JitValidity = time.Hour
	}
	return c
}

// Store is the persistence the engine needs: agent rows plus team
// memberships for visibility checks.
type Store interface {
	store.AgentStore
	policy.Repository
}

// Observer receives the outcome of every provisioning attempt.
type Observer interface {
	ObserveProvision(mode agents.IssuanceMode, outcome ledger.Outcome, d time.Duration)
	ObserveDeprovision(outcome ledger.Outcome)
}

type nopObserver struct{}

func (nopObserver) ObserveProvision(agents.IssuanceMode, ledger.Outcome, time.Duration) {}
func (nopObserver) ObserveDeprovision(ledger.Outcome) {}

type Engine struct {
	store    Store
	resolver *policy.Resolver
	platform platform.Client
	cfg      Config
	observer Observer
	now      func() time.Time
	suffix   func() (string, error)
}

func NewEngine(st Store, resolver *policy.Resolver, client platform.Client, cfg Config, observer Observer) *Engine {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Engine{
		store:    st,
		resolver: resolver,
		platform: client,
		cfg:      cfg.withDefaults(),
		observer: observer,
		now:      time.Now,
		suffix:   randomSuffix,
	}
}

// issued is what the platform handed back for a reservation.
type issued struct {
	secret          string
	jitConfig       string
	platformAgentID *int64
	expiresAt       time.Time
}

// Provision issues a credential for a new agent. The returned descriptor is
// the only place the secret or JIT config ever appears.
func (e *Engine) Provision(ctx context.Context, caller Caller, req Request) (*agents.Descriptor, error) {
	start := e.now()
	if req.Mode == "" {
		req.Mode = agents.ModeRegistrationToken
	}
	if !req.Mode.Valid() {
		return nil, ErrInvalidMode
	}
	if req.Mode == agents.ModeJIT {
		req.Ephemeral = true
	}
	if req.RunnerGroupID == 0 {
		req.RunnerGroupID = e.cfg.DefaultRunnerGroupID
	}

	d, err := e.provision(ctx, caller, req)
	outcome := ledger.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrPlatform), errors.Is(err, ErrStore):
		outcome = ledger.OutcomeFailed
	default:
		outcome = ledger.OutcomeRejected
	}
	e.observer.ObserveProvision(req.Mode, outcome, e.now().Sub(start))
	return d, err
}

func (e *Engine) provision(ctx context.Context, caller Caller, req Request) (*agents.Descriptor, error) {
	name, err := e.resolveName(ctx, req)
	if err != nil {
		return nil, err
	}

	pol, err := e.resolver.Resolve(ctx, caller.Identity, req.TeamID)
	if err != nil {
		return nil, e.rejectPolicy(ctx, caller, name, req, err)
	}

	labels, err := policy.ValidateLabels(pol, req.Labels)
	if err != nil {
		return nil, e.rejectPolicy(ctx, caller, name, req, err)
	}

	reserved, err := e.store.ReserveAgent(ctx, store.Reservation{
		Name:          name,
		Labels:        labels,
		Ephemeral:     req.Ephemeral,
		Mode:          req.Mode,
		Owner:         caller.Identity,
		TeamID:        pol.TeamID,
		RunnerGroupID: req.RunnerGroupID,
		MaxConcurrent: pol.MaxConcurrentAgents,
	})
	if err != nil {
		var qe *store.QuotaExceededError
		switch {
		case errors.As(err, &qe):
			return nil, e.rejectQuota(ctx, caller, name, labels, qe)
		case errors.Is(err, store.ErrNameTaken):
			return nil, &NameConflictError{Name: name}
		default:
			return nil, &StoreError{Op: "reserve agent", Err: err}
		}
	}

	slog.Info("Agent reserved", "agent_id", reserved.ID, "name", name, "owner_key", reserved.OwnerKey())

	pctx, cancel := context.WithTimeout(ctx, e.cfg.PlatformTimeout)
	cred, err := e.issue(pctx, reserved)
	cancel()
	if err != nil {
		e.releaseAfterPlatformFailure(ctx, caller, reserved, err)
		return nil, &PlatformError{Op: "issue credential", Err: err}
	}

	secret := cred.secret
	if reserved.IssuanceMode == agents.ModeJIT {
		secret = cred.jitConfig
	}

	entries := ledger.Entries{}
	entries.AddAudit(ledger.AuditEntry{
		Actor:   caller.Identity,
		AgentID: reserved.ID,
		Kind:    ledger.KindProvision,
		Outcome: ledger.OutcomeSuccess,
		Payload: map[string]any{
			"name":            name,
			"labels":          labels,
			"ephemeral":       reserved.Ephemeral,
			"issuance_mode":   string(reserved.IssuanceMode),
			"team_id":         reserved.TeamID,
			"runner_group_id": reserved.RunnerGroupID,
			"policy_scope":    string(pol.Scope),
		},
	})

	final, err := e.store.FinalizeAgent(ctx, store.Finalization{
		AgentID:             reserved.ID,
		Labels:              labels,
		PlatformAgentID:     cred.platformAgentID,
		SecretHash:          HashSecret(secret),
		CredentialExpiresAt: cred.expiresAt,
	}, entries)
	if err != nil {
		e.compensate(ctx, caller, reserved, cred, err)
		return nil, &StoreError{Op: "finalize agent", Err: err}
	}

	slog.Info("Agent provisioned", "agent_id", final.ID, "name", final.Name, "mode", final.IssuanceMode, "owner", caller.Identity)

	d := final.Descriptor()
	d.RegistrationToken = cred.secret
	d.JitConfig = cred.jitConfig
	d.ConfigurationCommand = ConfigurationCommand(e.cfg.PlatformURL, d, req.DisableUpdate)
	return d, nil
}

func (e *Engine) issue(ctx context.Context, a *agents.Agent) (*issued, error) {
	if a.IssuanceMode == agents.ModeJIT {
		jit, err := e.platform.IssueJitConfig(ctx, platform.JitRequest{
			Name:          a.Name,
			Labels:        a.Labels,
			RunnerGroupID: a.RunnerGroupID,
			WorkFolder:    e.cfg.WorkFolder,
		})
		if err != nil {
			return nil, err
		}
		id := jit.AgentID
		return &issued{
			jitConfig:       jit.EncodedConfig,
			platformAgentID: &id,
			expiresAt:       e.now().Add(e.cfg.JitValidity),
		}, nil
	}

	tok, err := e.platform.IssueRegistrationToken(ctx)
	if err != nil {
		return nil, err
	}
	return &issued{secret: tok.Token, expiresAt: tok.ExpiresAt}, nil
}

func (e *Engine) releaseAfterPlatformFailure(ctx context.Context, caller Caller, a *agents.Agent, cause error) {
	slog.Error("Platform issuance failed", "agent_id", a.ID, "name", a.Name, "error", cause)

	entries := ledger.Entries{}
	entries.AddAudit(ledger.AuditEntry{
		Actor:   caller.Identity,
		AgentID: a.ID,
		Kind:    ledger.KindProvision,
		Outcome: ledger.OutcomeFailed,
		Payload: map[string]any{
			"name":      a.Name,
			"stage":     "platform",
			"error":     cause.Error(),
			"transient": platform.IsTransient(cause),
		},
	})
	if err := e.store.ReleaseReservation(context.WithoutCancel(ctx), a.ID, entries); err != nil {
		slog.Error("Failed to release reservation", "agent_id", a.ID, "error", err)
	}
}

// compensate undoes a successful platform call whose local record could not
// be finalized. Whatever cannot be undone upstream is recorded as an orphan.
func (e *Engine) compensate(ctx context.Context, caller Caller, a *agents.Agent, cred *issued, cause error) {
	ctx = context.WithoutCancel(ctx)
	slog.Error("Failed to finalize agent, compensating", "agent_id", a.ID, "name", a.Name, "error", cause)

	entries := ledger.Entries{}
	entries.AddAudit(ledger.AuditEntry{
		Actor:   caller.Identity,
		AgentID: a.ID,
		Kind:    ledger.KindProvision,
		Outcome: ledger.OutcomeFailed,
		Payload: map[string]any{"name": a.Name, "stage": "finalize", "error": cause.Error()},
	})

	if cred.platformAgentID != nil {
		dctx, cancel := context.WithTimeout(ctx, e.cfg.PlatformTimeout)
		err := e.platform.DeleteAgent(dctx, *cred.platformAgentID)
		cancel()
		if err != nil && !errors.Is(err, platform.ErrNotFound) {
			slog.Error("Failed to delete upstream agent during compensation", "agent_id", a.ID, "platform_agent_id", *cred.platformAgentID, "error", err)
			entries.AddSecurity(ledger.SecurityEvent{
				Actor:          caller.Identity,
				AgentID:        a.ID,
				Kind:           ledger.SecurityOrphanedPlatformAgent,
				Severity:       ledger.SeverityHigh,
				OriginalLabels: a.Labels,
				ActionTaken:    "none",
				Payload: map[string]any{
					"name":              a.Name,
					"platform_agent_id": *cred.platformAgentID,
					"error":             err.Error(),
				},
			})
		}
	}

	if err := e.store.ReleaseReservation(ctx, a.ID, entries); err != nil {
		slog.Error("Failed to release reservation after finalize failure", "agent_id", a.ID, "error", err)
		if rerr := e.store.Record(ctx, entries); rerr != nil {
			slog.Error("Failed to record compensation entries", "agent_id", a.ID, "error", rerr)
		}
	}
}

func (e *Engine) rejectPolicy(ctx context.Context, caller Caller, name string, req Request, cause error) error {
	var (
		pe  *policy.PolicyError
		nme *policy.NotAMemberError
		tre *policy.TeamRequiredError
	)
	if !errors.As(cause, &pe) && !errors.As(cause, &nme) && !errors.As(cause, &tre) {
		return &StoreError{Op: "resolve policy", Err: cause}
	}

	slog.Warn("Provision rejected by policy", "owner", caller.Identity, "name", name, "reason", cause)

	entries := ledger.Entries{}
	entries.AddAudit(ledger.AuditEntry{
		Actor:   caller.Identity,
		Kind:    ledger.KindProvision,
		Outcome: ledger.OutcomeRejected,
		Payload: map[string]any{
			"name":             name,
			"requested_labels": req.Labels,
			"team_id":          req.TeamID,
			"error":            cause.Error(),
		},
	})
	// Not selecting a team is a usage error, not a security signal.
	if tre == nil {
		payload := map[string]any{"name": name, "team_id": req.TeamID}
		if pe != nil {
			payload["invalid_label"] = pe.Label
		}
		entries.AddSecurity(ledger.SecurityEvent{
			Actor:          caller.Identity,
			Kind:           ledger.SecurityLabelPolicyViolation,
			Severity:       ledger.SeverityMedium,
			OriginalLabels: req.Labels,
			ActionTaken:    "rejected",
			Payload:        payload,
		})
	}

	if err := e.store.Record(ctx, entries); err != nil {
		return &StoreError{Op: "record policy rejection", Err: err}
	}
	return cause
}

func (e *Engine) rejectQuota(ctx context.Context, caller Caller, name string, labels []string, qe *store.QuotaExceededError) error {
	slog.Warn("Provision rejected by quota", "owner_key", qe.OwnerKey, "current", qe.Current, "limit", qe.Limit)

	entries := ledger.Entries{}
	entries.AddAudit(ledger.AuditEntry{
		Actor:   caller.Identity,
		Kind:    ledger.KindProvision,
		Outcome: ledger.OutcomeRejected,
		Payload: map[string]any{"name": name, "error": qe.Error()},
	})
	entries.AddSecurity(ledger.SecurityEvent{
		Actor:          caller.Identity,
		Kind:           ledger.SecurityQuotaExceeded,
		Severity:       ledger.SeverityLow,
		OriginalLabels: labels,
		ActionTaken:    "rejected",
		Payload: map[string]any{
			"name":          name,
			"owner_key":     qe.OwnerKey,
			"current_count": qe.Current,
			"limit":         qe.Limit,
		},
	})

	if err := e.store.Record(ctx, entries); err != nil {
		return &StoreError{Op: "record quota rejection", Err: err}
	}
	return &QuotaError{Current: qe.Current, Limit: qe.Limit}
}

// Deprovision removes an agent upstream and marks it deleted.
func (e *Engine) Deprovision(ctx context.Context, caller Caller, agentID string) error {
	err := e.deprovision(ctx, caller, agentID)
	switch {
	case err == nil:
		e.observer.ObserveDeprovision(ledger.OutcomeSuccess)
	case errors.Is(err, ErrNotFound):
		e.observer.ObserveDeprovision(ledger.OutcomeRejected)
	default:
		e.observer.ObserveDeprovision(ledger.OutcomeFailed)
	}
	return err
}

func (e *Engine) deprovision(ctx context.Context, caller Caller, agentID string) error {
	a, err := e.visibleAgent(ctx, caller, agentID)
	if err != nil {
		return err
	}
	if a.Status == agents.StatusDeleted {
		return &NotFoundError{AgentID: agentID}
	}

	platformID, err := e.upstreamID(ctx, a)
	if err != nil {
		return e.failDeprovision(ctx, caller, a, err)
	}
	if platformID != nil {
		pctx, cancel := context.WithTimeout(ctx, e.cfg.PlatformTimeout)
		err := e.platform.DeleteAgent(pctx, *platformID)
		cancel()
		if err != nil && !errors.Is(err, platform.ErrNotFound) {
			return e.failDeprovision(ctx, caller, a, err)
		}
	}

	entries := ledger.Entries{}
	entries.AddAudit(ledger.AuditEntry{
		Actor:   caller.Identity,
		AgentID: a.ID,
		Kind:    ledger.KindDeprovision,
		Outcome: ledger.OutcomeSuccess,
		Payload: map[string]any{"name": a.Name, "previous_status": string(a.Status)},
	})
	if _, err := e.store.MarkDeleted(ctx, a.ID, entries); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{AgentID: agentID}
		}
		return &StoreError{Op: "mark agent deleted", Err: err}
	}

	slog.Info("Agent deprovisioned", "agent_id", a.ID, "name", a.Name, "requested_by", caller.Identity)
	return nil
}

// upstreamID returns the platform id of a, looking the agent up by name when
// it registered after the last reconciliation.
func (e *Engine) upstreamID(ctx context.Context, a *agents.Agent) (*int64, error) {
	if a.PlatformAgentID != nil || a.IssuanceMode == agents.ModeJIT {
		return a.PlatformAgentID, nil
	}
	pctx, cancel := context.WithTimeout(ctx, e.cfg.PlatformTimeout)
	defer cancel()
	upstream, err := e.platform.ListAgents(pctx)
	if err != nil {
		return nil, err
	}
	for _, u := range upstream {
		if u.Name == a.Name {
			id := u.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (e *Engine) failDeprovision(ctx context.Context, caller Caller, a *agents.Agent, cause error) error {
	slog.Error("Failed to delete agent upstream", "agent_id", a.ID, "name", a.Name, "error", cause)
	entries := ledger.Entries{}
	entries.AddAudit(ledger.AuditEntry{
		Actor:   caller.Identity,
		AgentID: a.ID,
		Kind:    ledger.KindDeprovision,
		Outcome: ledger.OutcomeFailed,
		Payload: map[string]any{"name": a.Name, "error": cause.Error()},
	})
	if err := e.store.Record(ctx, entries); err != nil {
		slog.Error("Failed to record deprovision failure", "agent_id", a.ID, "error", err)
	}
	return &PlatformError{Op: "delete agent", Err: cause}
}

func (e *Engine) GetAgent(ctx context.Context, caller Caller, agentID string) (*agents.Descriptor, error) {
	a, err := e.visibleAgent(ctx, caller, agentID)
	if err != nil {
		return nil, err
	}
	return a.Descriptor(), nil
}

// ListAgents returns the agents the caller may see. Non-admins only see their
// own agents and those of their active teams.
func (e *Engine) ListAgents(ctx context.Context, caller Caller, f agents.Filter) ([]*agents.Descriptor, error) {
	if !caller.IsAdmin {
		teamIDs, err := e.teamIDs(ctx, caller.Identity)
		if err != nil {
			return nil, err
		}
		f.Owner = caller.Identity
		f.TeamIDs = teamIDs
	}

	list, err := e.store.ListAgents(ctx, f)
	if err != nil {
		return nil, &StoreError{Op: "list agents", Err: err}
	}
	out := make([]*agents.Descriptor, len(list))
	for i := range list {
		out[i] = list[i].Descriptor()
	}
	return out, nil
}

func (e *Engine) visibleAgent(ctx context.Context, caller Caller, agentID string) (*agents.Agent, error) {
	a, err := e.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{AgentID: agentID}
		}
		return nil, &StoreError{Op: "get agent", Err: err}
	}
	if !a.Issued {
		return nil, &NotFoundError{AgentID: agentID}
	}
	if caller.IsAdmin || a.Owner == caller.Identity {
		return a, nil
	}
	if a.TeamID != "" {
		teamIDs, err := e.teamIDs(ctx, caller.Identity)
		if err != nil {
			return nil, err
		}
		for _, id := range teamIDs {
			if id == a.TeamID {
				return a, nil
			}
		}
	}
	return nil, &NotFoundError{AgentID: agentID}
}

func (e *Engine) teamIDs(ctx context.Context, identity string) ([]string, error) {
	teams, err := e.store.ActiveTeams(ctx, identity)
	if err != nil {
		return nil, &StoreError{Op: "load team memberships", Err: err}
	}
	ids := make([]string, len(teams))
	for i, t := range teams {
		ids[i] = t.ID
	}
	return ids, nil
}
