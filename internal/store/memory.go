package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/EternisAI/silo-runners/internal/agents"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/EternisAI/silo-runners/internal/policy"
	"github.com/google/uuid"
)

// Memory is an in-memory Store for tests and single-process development.
// A single mutex makes every method atomic, which gives the same quota and
// name guarantees as the Postgres store within one process.
type Memory struct {
	mu           sync.Mutex
	agents       map[string]*agents.Agent
	userPolicies map[string]*policy.UserPolicy
	teams        map[string]*policy.Team
	members      map[string]map[string]*policy.Membership
	audit        []ledger.AuditEntry
	security     []ledger.SecurityEvent
	failures     map[string]error
	now          func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		agents:       make(map[string]*agents.Agent),
		userPolicies: make(map[string]*policy.UserPolicy),
		teams:        make(map[string]*policy.Team),
		members:      make(map[string]map[string]*policy.Membership),
		failures:     make(map[string]error),
		now:          time.Now,
	}
}

var _ Store = (*Memory)(nil)

// FailOn makes every later call of the named method return err. A nil err
// clears the failure.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// SetClock replaces the clock used for timestamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) ReserveAgent(_ context.Context, r Reservation) (*agents.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["ReserveAgent"]; err != nil {
		return nil, err
	}

	ownerKey := r.OwnerKey()
	count := 0
	for _, a := range m.agents {
		if a.Status == agents.StatusDeleted {
			continue
		}
		if a.Name == r.Name {
			return nil, ErrNameTaken
		}
		if a.OwnerKey() == ownerKey {
			count++
		}
	}
	if count >= r.MaxConcurrent {
		return nil, &QuotaExceededError{OwnerKey: ownerKey, Current: count, Limit: r.MaxConcurrent}
	}

	now := m.now()
	a := &agents.Agent{
		ID:            uuid.NewString(),
		Name:          r.Name,
		Labels:        slices.Clone(r.Labels),
		Status:        agents.StatusPending,
		Ephemeral:     r.Ephemeral,
		IssuanceMode:  r.Mode,
		Owner:         r.Owner,
		TeamID:        r.TeamID,
		RunnerGroupID: r.RunnerGroupID,
		ProvisionedAt: now,
		UpdatedAt:     now,
	}
	m.agents[a.ID] = a
	return cloneAgent(a), nil
}

func (m *Memory) FinalizeAgent(_ context.Context, f Finalization, entries ledger.Entries) (*agents.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["FinalizeAgent"]; err != nil {
		return nil, err
	}

	a, ok := m.agents[f.AgentID]
	if !ok || a.Issued || a.Status != agents.StatusPending {
		return nil, ErrNotFound
	}
	a.Issued = true
	a.Labels = slices.Clone(f.Labels)
	a.PlatformAgentID = cloneInt64(f.PlatformAgentID)
	a.BootstrapSecretHash = f.SecretHash
	a.CredentialExpiresAt = f.CredentialExpiresAt
	a.UpdatedAt = m.now()
	m.appendEntries(entries)
	return cloneAgent(a), nil
}

func (m *Memory) ReleaseReservation(_ context.Context, agentID string, entries ledger.Entries) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["ReleaseReservation"]; err != nil {
		return err
	}

	if a, ok := m.agents[agentID]; ok && !a.Issued {
		delete(m.agents, agentID)
	}
	m.appendEntries(entries)
	return nil
}

func (m *Memory) MarkDeleted(_ context.Context, agentID string, entries ledger.Entries) (*agents.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["MarkDeleted"]; err != nil {
		return nil, err
	}

	a, ok := m.agents[agentID]
	if !ok || a.Status == agents.StatusDeleted {
		return nil, ErrNotFound
	}
	now := m.now()
	a.Status = agents.StatusDeleted
	a.DeletedAt = &now
	a.BootstrapSecretHash = ""
	a.UpdatedAt = now
	m.appendEntries(entries)
	return cloneAgent(a), nil
}

func (m *Memory) GetAgent(_ context.Context, id string) (*agents.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAgent(a), nil
}

func (m *Memory) GetLiveAgentByName(_ context.Context, name string) (*agents.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.agents {
		if a.Name == name && a.Status != agents.StatusDeleted {
			return cloneAgent(a), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListAgents(_ context.Context, f agents.Filter) ([]agents.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []agents.Agent
	for _, a := range m.agents {
		if !a.Issued {
			continue
		}
		if f.Owner != "" && a.Owner != f.Owner && (a.TeamID == "" || !slices.Contains(f.TeamIDs, a.TeamID)) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.IncludeDeleted && a.Status == agents.StatusDeleted {
			continue
		}
		out = append(out, *cloneAgent(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProvisionedAt.Equal(out[j].ProvisionedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ProvisionedAt.After(out[j].ProvisionedAt)
	})
	return page(out, f.Offset, ledger.NormalizeLimit(f.Limit)), nil
}

func (m *Memory) ListLiveAgents(_ context.Context) ([]agents.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["ListLiveAgents"]; err != nil {
		return nil, err
	}

	out := []agents.Agent{}
	for _, a := range m.agents {
		if a.Status != agents.StatusDeleted {
			out = append(out, *cloneAgent(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProvisionedAt.Before(out[j].ProvisionedAt)
	})
	return out, nil
}

func (m *Memory) ApplyChanges(_ context.Context, changes []Change, extra ledger.Entries) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["ApplyChanges"]; err != nil {
		return 0, err
	}

	applied := 0
	now := m.now()
	for _, c := range changes {
		t := c.Transition
		a, ok := m.agents[t.AgentID]
		if !ok || a.Status != t.From {
			continue
		}
		if t.To != t.From && !agents.CanTransition(t.From, t.To) {
			continue
		}
		a.Status = t.To
		if t.PlatformAgentID != nil {
			a.PlatformAgentID = cloneInt64(t.PlatformAgentID)
		}
		if a.RegisteredAt == nil && t.RegisteredAt != nil {
			ts := *t.RegisteredAt
			a.RegisteredAt = &ts
		}
		if t.ClearSecret {
			a.BootstrapSecretHash = ""
		}
		if t.DriftObservedLabels != nil {
			a.DriftObservedLabels = slices.Clone(t.DriftObservedLabels)
		}
		if t.To == agents.StatusDeleted {
			a.DeletedAt = &now
		}
		a.UpdatedAt = now
		m.appendEntries(c.Entries)
		applied++
	}
	m.appendEntries(extra)
	return applied, nil
}

func (m *Memory) Record(_ context.Context, entries ledger.Entries) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["Record"]; err != nil {
		return err
	}
	m.appendEntries(entries)
	return nil
}

func (m *Memory) appendEntries(entries ledger.Entries) {
	now := m.now()
	for _, e := range entries.Audit {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		m.audit = append(m.audit, e)
	}
	for _, e := range entries.Security {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		m.security = append(m.security, e)
	}
}

func (m *Memory) ListAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f = f.Normalized()

	out := []ledger.AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		if f.Matches(&m.audit[i]) {
			out = append(out, m.audit[i])
		}
	}
	return page(out, f.Offset, f.Limit), nil
}

func (m *Memory) ListSecurityEvents(_ context.Context, f ledger.SecurityFilter) ([]ledger.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f = f.Normalized()

	out := []ledger.SecurityEvent{}
	for i := len(m.security) - 1; i >= 0; i-- {
		if f.Matches(&m.security[i]) {
			out = append(out, m.security[i])
		}
	}
	return page(out, f.Offset, f.Limit), nil
}

func (m *Memory) GetUserPolicy(_ context.Context, identity string) (*policy.UserPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.userPolicies[identity]
	if !ok {
		return nil, policy.ErrPolicyNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ActiveTeams(_ context.Context, identity string) ([]policy.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []policy.Team{}
	for teamID, members := range m.members {
		mem, ok := members[identity]
		if !ok || !mem.IsActive {
			continue
		}
		if t, ok := m.teams[teamID]; ok && t.IsActive {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) ListUserPolicies(_ context.Context) ([]policy.UserPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]policy.UserPolicy, 0, len(m.userPolicies))
	for _, p := range m.userPolicies {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (m *Memory) UpsertUserPolicy(_ context.Context, p *policy.UserPolicy, actor string) (*policy.UserPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cp := *p
	cp.UpdatedBy = actor
	cp.UpdatedAt = now
	if existing, ok := m.userPolicies[p.Identity]; ok {
		cp.Version = existing.Version + 1
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.Version = 1
		cp.CreatedAt = now
	}
	m.userPolicies[p.Identity] = &cp
	m.appendEntries(policyChange(actor, "user:"+p.Identity, map[string]any{
		"action":  "upsert_user_policy",
		"version": cp.Version,
	}))
	out := cp
	return &out, nil
}

func (m *Memory) DeleteUserPolicy(_ context.Context, identity string, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.userPolicies[identity]; !ok {
		return policy.ErrPolicyNotFound
	}
	delete(m.userPolicies, identity)
	m.appendEntries(policyChange(actor, "user:"+identity, map[string]any{"action": "delete_user_policy"}))
	return nil
}

func (m *Memory) CreateTeam(_ context.Context, t *policy.Team, actor string) (*policy.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.teams {
		if existing.Name == t.Name {
			return nil, ErrTeamExists
		}
	}
	now := m.now()
	cp := *t
	cp.ID = uuid.NewString()
	cp.Version = 1
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.teams[cp.ID] = &cp
	m.appendEntries(policyChange(actor, "team:"+cp.ID, map[string]any{"action": "create_team", "name": cp.Name}))
	out := cp
	return &out, nil
}

func (m *Memory) UpdateTeam(_ context.Context, t *policy.Team, actor string) (*policy.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.teams[t.ID]
	if !ok {
		return nil, policy.ErrTeamNotFound
	}
	for id, other := range m.teams {
		if id != t.ID && other.Name == t.Name {
			return nil, ErrTeamExists
		}
	}
	cp := *t
	cp.Version = existing.Version + 1
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = m.now()
	m.teams[t.ID] = &cp
	m.appendEntries(policyChange(actor, "team:"+t.ID, map[string]any{"action": "update_team", "version": cp.Version}))
	out := cp
	return &out, nil
}

func (m *Memory) GetTeam(_ context.Context, id string) (*policy.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, policy.ErrTeamNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) GetTeamByName(_ context.Context, name string) (*policy.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.teams {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, policy.ErrTeamNotFound
}

func (m *Memory) ListTeams(_ context.Context) ([]policy.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]policy.Team, 0, len(m.teams))
	for _, t := range m.teams {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpsertMembership(_ context.Context, mem policy.Membership, actor string) (*policy.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[mem.TeamID]; !ok {
		return nil, policy.ErrTeamNotFound
	}
	if mem.Role == "" {
		mem.Role = policy.RoleMember
	}
	members, ok := m.members[mem.TeamID]
	if !ok {
		members = make(map[string]*policy.Membership)
		m.members[mem.TeamID] = members
	}
	cp := mem
	cp.IsActive = true
	if existing, ok := members[mem.UserID]; ok {
		cp.JoinedAt = existing.JoinedAt
	} else {
		cp.JoinedAt = m.now()
	}
	members[mem.UserID] = &cp
	m.appendEntries(policyChange(actor, "team:"+mem.TeamID, map[string]any{
		"action": "add_member",
		"user":   mem.UserID,
		"role":   string(cp.Role),
	}))
	out := cp
	return &out, nil
}

func (m *Memory) RemoveMembership(_ context.Context, teamID, userID string, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[teamID]; !ok {
		return policy.ErrTeamNotFound
	}
	mem, ok := m.members[teamID][userID]
	if !ok || !mem.IsActive {
		return ErrNotFound
	}
	mem.IsActive = false
	m.appendEntries(policyChange(actor, "team:"+teamID, map[string]any{"action": "remove_member", "user": userID}))
	return nil
}

func (m *Memory) ListMembers(_ context.Context, teamID string) ([]policy.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[teamID]; !ok {
		return nil, policy.ErrTeamNotFound
	}
	out := []policy.Membership{}
	for _, mem := range m.members[teamID] {
		out = append(out, *mem)
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].UserID, out[j].UserID) < 0 })
	return out, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func cloneAgent(a *agents.Agent) *agents.Agent {
	cp := *a
	cp.Labels = slices.Clone(a.Labels)
	cp.DriftObservedLabels = slices.Clone(a.DriftObservedLabels)
	cp.PlatformAgentID = cloneInt64(a.PlatformAgentID)
	if a.RegisteredAt != nil {
		t := *a.RegisteredAt
		cp.RegisteredAt = &t
	}
	if a.DeletedAt != nil {
		t := *a.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
