package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EternisAI/silo-runners/internal/agents"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/EternisAI/silo-runners/internal/policy"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrNameTaken     = errors.New("agent name already in use")
	ErrQuotaExceeded = errors.New("agent quota exceeded")
	ErrTeamExists    = errors.New("team name already exists")
)

// QuotaExceededError is returned by ReserveAgent when the owner already holds
// Limit or more live agents.
type QuotaExceededError struct {
	OwnerKey string
	Current  int
	Limit    int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s holds %d of %d permitted agents", e.OwnerKey, e.Current, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Reservation claims a name and a quota slot before the platform is called.
type Reservation struct {
	Name          string
	Labels        []string
	Ephemeral     bool
	Mode          agents.IssuanceMode
	Owner         string
	TeamID        string
	RunnerGroupID int64
	MaxConcurrent int
}

func (r Reservation) OwnerKey() string {
	return agents.OwnerKey(r.Owner, r.TeamID)
}

// Finalization turns a reservation into an issued agent.
type Finalization struct {
	AgentID             string
	Labels              []string
	PlatformAgentID     *int64
	SecretHash          string
	CredentialExpiresAt time.Time
}

// Change is one reconciliation transition plus the ledger entries that
// describe it. The entries are only written if the transition applies.
type Change struct {
	Transition agents.Transition
	Entries    ledger.Entries
}

type AgentStore interface {
	// ReserveAgent atomically checks the owner's quota and inserts a
	// pending, unissued agent row.
	ReserveAgent(ctx context.Context, r Reservation) (*agents.Agent, error)
	FinalizeAgent(ctx context.Context, f Finalization, entries ledger.Entries) (*agents.Agent, error)
	ReleaseReservation(ctx context.Context, agentID string, entries ledger.Entries) error
	MarkDeleted(ctx context.Context, agentID string, entries ledger.Entries) (*agents.Agent, error)

	GetAgent(ctx context.Context, id string) (*agents.Agent, error)
	GetLiveAgentByName(ctx context.Context, name string) (*agents.Agent, error)
	ListAgents(ctx context.Context, f agents.Filter) ([]agents.Agent, error)
	// ListLiveAgents returns every non-deleted agent, reservations included.
	ListLiveAgents(ctx context.Context) ([]agents.Agent, error)

	// ApplyChanges applies all changes and extra entries in one transaction
	// and returns how many transitions took effect. A transition whose agent
	// is no longer in the expected state is skipped.
	ApplyChanges(ctx context.Context, changes []Change, extra ledger.Entries) (int, error)
	Record(ctx context.Context, entries ledger.Entries) error
}

type PolicyStore interface {
	policy.Repository

	ListUserPolicies(ctx context.Context) ([]policy.UserPolicy, error)
	UpsertUserPolicy(ctx context.Context, p *policy.UserPolicy, actor string) (*policy.UserPolicy, error)
	DeleteUserPolicy(ctx context.Context, identity string, actor string) error

	CreateTeam(ctx context.Context, t *policy.Team, actor string) (*policy.Team, error)
	UpdateTeam(ctx context.Context, t *policy.Team, actor string) (*policy.Team, error)
	GetTeam(ctx context.Context, id string) (*policy.Team, error)
	GetTeamByName(ctx context.Context, name string) (*policy.Team, error)
	ListTeams(ctx context.Context) ([]policy.Team, error)

	UpsertMembership(ctx context.Context, m policy.Membership, actor string) (*policy.Membership, error)
	RemoveMembership(ctx context.Context, teamID, userID string, actor string) error
	ListMembers(ctx context.Context, teamID string) ([]policy.Membership, error)
}

type Store interface {
	AgentStore
	PolicyStore
	ledger.Reader
}

func policyChange(actor, target string, payload map[string]any) ledger.Entries {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["target"] = target
	return ledger.Entries{Audit: []ledger.AuditEntry{{
		Actor:   actor,
		Kind:    ledger.KindPolicyChange,
		Outcome: ledger.OutcomeSuccess,
		Payload: payload,
	}}}
}
