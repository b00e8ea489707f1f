package agents

import (
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusOffline Status = "offline"
	StatusDeleted Status = "deleted"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDeleted
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusOffline, StatusDeleted:
		return true
	}
	return false
}

// CanTransition enforces the forward-only state machine:
// pending -> {active, offline} -> deleted, with active <-> offline allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusActive || to == StatusOffline || to == StatusDeleted
	case StatusActive:
		return to == StatusOffline || to == StatusDeleted
	case StatusOffline:
		return to == StatusActive || to == StatusDeleted
	}
	return false
}

type IssuanceMode string

const (
	ModeRegistrationToken IssuanceMode = "registration_token"
	ModeJIT               IssuanceMode = "jit"
)

func (m IssuanceMode) Valid() bool {
	return m == ModeRegistrationToken || m == ModeJIT
}

// Agent is the durable record of a provisioned runner.
type Agent struct {
	ID                  string
	Name                string
	Labels              []string
	Status              Status
	Ephemeral           bool
	IssuanceMode        IssuanceMode
	Owner               string
	TeamID              string
	RunnerGroupID       int64
	PlatformAgentID     *int64
	BootstrapSecretHash string
	Issued              bool
	DriftObservedLabels []string
	CredentialExpiresAt time.Time
	ProvisionedAt       time.Time
	RegisteredAt        *time.Time
	DeletedAt           *time.Time
	UpdatedAt           time.Time
}

// OwnerKey identifies the quota bucket the agent counts against.
func (a *Agent) OwnerKey() string {
	return OwnerKey(a.Owner, a.TeamID)
}

func OwnerKey(owner, teamID string) string {
	if teamID != "" {
		return "team:" + teamID
	}
	return "user:" + owner
}

func (a *Agent) CredentialExpired(now time.Time) bool {
	return !a.CredentialExpiresAt.IsZero() && now.After(a.CredentialExpiresAt)
}

// Descriptor is what callers see. Secret material is only populated on the
// provisioning response.
type Descriptor struct {
	ID                   string
	Name                 string
	Labels               []string
	Status               Status
	Ephemeral            bool
	IssuanceMode         IssuanceMode
	Owner                string
	TeamID               string
	RunnerGroupID        int64
	PlatformAgentID      *int64
	CredentialExpiresAt  time.Time
	ProvisionedAt        time.Time
	RegisteredAt         *time.Time
	DeletedAt            *time.Time
	RegistrationToken    string
	JitConfig            string
	ConfigurationCommand string
}

func (a *Agent) Descriptor() *Descriptor {
	return &Descriptor{
		ID:                  a.ID,
		Name:                a.Name,
		Labels:              append([]string(nil), a.Labels...),
		Status:              a.Status,
		Ephemeral:           a.Ephemeral,
		IssuanceMode:        a.IssuanceMode,
		Owner:               a.Owner,
		TeamID:              a.TeamID,
		RunnerGroupID:       a.RunnerGroupID,
		PlatformAgentID:     a.PlatformAgentID,
		CredentialExpiresAt: a.CredentialExpiresAt,
		ProvisionedAt:       a.ProvisionedAt,
		RegisteredAt:        a.RegisteredAt,
		DeletedAt:           a.DeletedAt,
	}
}

// Transition is a reconciliation-driven change to a single agent.
type Transition struct {
	AgentID             string
	From                Status
	To                  Status
	PlatformAgentID     *int64
	RegisteredAt        *time.Time
	ClearSecret         bool
	DriftObservedLabels []string
	Reason              string
}

// Filter narrows ListAgents. Empty fields match everything.
type Filter struct {
	Owner          string
	TeamIDs        []string
	Status         Status
	IncludeDeleted bool
	Limit          int
	Offset         int
}
