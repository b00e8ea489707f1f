package dto

import (
	"time"

	"github.com/EternisAI/silo-runners/internal/policy"
	"github.com/EternisAI/silo-runners/internal/reconcile"
)

type SyncResultResponse struct {
	Updated    int       `json:"updated"`
	Deleted    int       `json:"deleted"`
	Unchanged  int       `json:"unchanged"`
	Remediated int       `json:"remediated"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

type SyncStatusResponse struct {
	Running             bool                `json:"running"`
	Healthy             bool                `json:"healthy"`
	Cycles              int                 `json:"cycles"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	LastRunAt           *time.Time          `json:"last_run_at,omitempty"`
	LastError           string              `json:"last_error,omitempty"`
	LastResult          *SyncResultResponse `json:"last_result,omitempty"`
}

func NewSyncResultResponse(r *reconcile.Result) *SyncResultResponse {
	if r == nil {
		return nil
	}
	return &SyncResultResponse{
		Updated:    r.Updated,
		Deleted:    r.Deleted,
		Unchanged:  r.Unchanged,
		Remediated: r.Remediated,
		Skipped:    r.Skipped,
		Errors:     r.Errors,
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
	}
}

func NewSyncStatusResponse(s reconcile.Status, healthy bool) SyncStatusResponse {
	resp := SyncStatusResponse{
		Running:             s.Running,
		Healthy:             healthy,
		Cycles:              s.Cycles,
		ConsecutiveFailures: s.ConsecutiveFailures,
		LastError:           s.LastError,
		LastResult:          NewSyncResultResponse(s.LastResult),
	}
	if !s.LastRunAt.IsZero() {
		t := s.LastRunAt
		resp.LastRunAt = &t
	}
	return resp
}

type UserPolicyRequest struct {
	AllowedLabels        []string `json:"allowed_labels"`
	AllowedLabelPatterns []string `json:"allowed_label_patterns"`
	MaxConcurrentAgents  int      `json:"max_concurrent_agents" binding:"min=0"`
	Description          string   `json:"description"`
}

type UserPolicyResponse struct {
	Identity             string    `json:"identity"`
	AllowedLabels        []string  `json:"allowed_labels"`
	AllowedLabelPatterns []string  `json:"allowed_label_patterns"`
	MaxConcurrentAgents  int       `json:"max_concurrent_agents"`
	Description          string    `json:"description,omitempty"`
	UpdatedBy            string    `json:"updated_by"`
	Version              int64     `json:"version"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type ListUserPoliciesResponse struct {
	Policies []UserPolicyResponse `json:"policies"`
	Count    int                  `json:"count"`
}

func NewUserPolicyResponse(p *policy.UserPolicy) UserPolicyResponse {
	return UserPolicyResponse{
		Identity:             p.Identity,
		AllowedLabels:        nonNil(p.AllowedLabels),
		AllowedLabelPatterns: nonNil(p.AllowedLabelPatterns),
		MaxConcurrentAgents:  p.MaxConcurrentAgents,
		Description:          p.Description,
		UpdatedBy:            p.UpdatedBy,
		Version:              p.Version,
		UpdatedAt:            p.UpdatedAt,
	}
}

type TeamRequest struct {
	Name                  string   `json:"name" binding:"required"`
	Description           string   `json:"description"`
	RequiredLabels        []string `json:"required_labels"`
	OptionalLabelPatterns []string `json:"optional_label_patterns"`
	MaxConcurrentAgents   int      `json:"max_concurrent_agents" binding:"min=0"`
	IsActive              *bool    `json:"is_active"`
}

type TeamResponse struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Description           string    `json:"description,omitempty"`
	RequiredLabels        []string  `json:"required_labels"`
	OptionalLabelPatterns []string  `json:"optional_label_patterns"`
	MaxConcurrentAgents   int       `json:"max_concurrent_agents"`
	IsActive              bool      `json:"is_active"`
	Version               int64     `json:"version"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type ListTeamsResponse struct {
	Teams []TeamResponse `json:"teams"`
	Count int            `json:"count"`
}

func NewTeamResponse(t *policy.Team) TeamResponse {
	return TeamResponse{
		ID:                    t.ID,
		Name:                  t.Name,
		Description:           t.Description,
		RequiredLabels:        nonNil(t.RequiredLabels),
		OptionalLabelPatterns: nonNil(t.OptionalLabelPatterns),
		MaxConcurrentAgents:   t.MaxConcurrentAgents,
		IsActive:              t.IsActive,
		Version:               t.Version,
		UpdatedAt:             t.UpdatedAt,
	}
}

type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"omitempty,oneof=member admin"`
}

type MemberResponse struct {
	TeamID   string    `json:"team_id"`
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	IsActive bool      `json:"is_active"`
	JoinedAt time.Time `json:"joined_at"`
}

type ListMembersResponse struct {
	Members []MemberResponse `json:"members"`
	Count   int              `json:"count"`
}

func NewMemberResponse(m *policy.Membership) MemberResponse {
	return MemberResponse{
		TeamID:   m.TeamID,
		UserID:   m.UserID,
		Role:     string(m.Role),
		IsActive: m.IsActive,
		JoinedAt: m.JoinedAt,
	}
}

type IssueTokenRequest struct {
	Subject string `json:"subject" binding:"required"`
	Admin   bool   `json:"admin"`
}

type IssueTokenResponse struct {
	Token string `json:"token"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
