package policy

import (
	"regexp"
	"time"
)

// UserPolicy is the legacy per-identity policy used by callers without any
// team membership.
type UserPolicy struct {
	Identity             string
	AllowedLabels        []string
	AllowedLabelPatterns []string
	MaxConcurrentAgents  int
	Description          string
	UpdatedBy            string
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Team struct {
	ID                    string
	Name                  string
	Description           string
	RequiredLabels        []string
	OptionalLabelPatterns []string
	MaxConcurrentAgents   int
	IsActive              bool
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type Membership struct {
	TeamID   string
	UserID   string
	Role     Role
	IsActive bool
	JoinedAt time.Time
}

type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeTeam    Scope = "team"
	ScopeDefault Scope = "default"
)

// EffectivePolicy is the resolved, read-only view used to validate a single
// provisioning request.
type EffectivePolicy struct {
	Scope               Scope
	Subject             string
	TeamID              string
	TeamName            string
	MandatoryLabels     []string
	RequiredLabels      []string
	AllowedLabels       []string
	Patterns            []string
	MaxConcurrentAgents int
	Version             int64

	compiled []*regexp.Regexp
}

// OwnerKey is the quota bucket of the policy: the team when resolved under a
// team context, the caller otherwise.
func (p *EffectivePolicy) OwnerKey(caller string) string {
	if p.TeamID != "" {
		return "team:" + p.TeamID
	}
	return "user:" + caller
}

func (p *EffectivePolicy) matchers() []*regexp.Regexp {
	if p.compiled == nil && len(p.Patterns) > 0 {
		p.compiled = compileAll(p.Patterns)
	}
	return p.compiled
}

type TeamRef struct {
	ID   string
	Name string
}
