package store

import (
	"context"
	"fmt"

	"github.com/EternisAI/silo-runners/internal/db/sqlc"
	"github.com/EternisAI/silo-runners/internal/policy"
)

func (s *Postgres) GetUserPolicy(ctx context.Context, identity string) (*policy.UserPolicy, error) {
	row, err := s.queries.GetUserPolicy(ctx, identity)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return nil, policy.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get user policy: %w", err)
	}
	p := toUserPolicy(row)
	return &p, nil
}

func (s *Postgres) ActiveTeams(ctx context.Context, identity string) ([]policy.Team, error) {
	rows, err := s.queries.ListActiveTeamsForUser(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for user: %w", err)
	}
	return toTeams(rows), nil
}

func (s *Postgres) ListUserPolicies(ctx context.Context) ([]policy.UserPolicy, error) {
	rows, err := s.queries.ListUserPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list user policies: %w", err)
	}
	out := make([]policy.UserPolicy, len(rows))
	for i, r := range rows {
		out[i] = toUserPolicy(r)
	}
	return out, nil
}

func (s *Postgres) UpsertUserPolicy(ctx context.Context, p *policy.UserPolicy, actor string) (*policy.UserPolicy, error) {
	var row sqlc.UserPolicy
	err := s.inTx(ctx, func(q *sqlc.Queries) error {
		var err error
		row, err = q.UpsertUserPolicy(ctx, sqlc.UpsertUserPolicyParams{
			Identity:             p.Identity,
			AllowedLabels:        nonNil(p.AllowedLabels),
			AllowedLabelPatterns: nonNil(p.AllowedLabelPatterns),
			MaxConcurrentAgents:  int32(p.MaxConcurrentAgents),
			Description:          p.Description,
			UpdatedBy:            actor,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert user policy: %w", err)
		}
		return s.writeEntries(ctx, q, policyChange(actor, "user:"+p.Identity, map[string]any{
			"action":                 "upsert_user_policy",
			"allowed_labels":         p.AllowedLabels,
			"allowed_label_patterns": p.AllowedLabelPatterns,
			"max_concurrent_agents":  p.MaxConcurrentAgents,
			"version":                row.Version,
		}))
	})
	if err != nil {
		return nil, err
	}
	out := toUserPolicy(row)
	return &out, nil
}

func (s *Postgres) DeleteUserPolicy(ctx context.Context, identity string, actor string) error {
	return s.inTx(ctx, func(q *sqlc.Queries) error {
		n, err := q.DeleteUserPolicy(ctx, identity)
		if err != nil {
			return fmt.Errorf("failed to delete user policy: %w", err)
		}
		if n == 0 {
			return policy.ErrPolicyNotFound
		}
		return s.writeEntries(ctx, q, policyChange(actor, "user:"+identity, map[string]any{
			"action": "delete_user_policy",
		}))
	})
}

func (s *Postgres) CreateTeam(ctx context.Context, t *policy.Team, actor string) (*policy.Team, error) {
	var row sqlc.Team
	err := s.inTx(ctx, func(q *sqlc.Queries) error {
		var err error
		row, err = q.CreateTeam(ctx, sqlc.CreateTeamParams{
			Name:                  t.Name,
			Description:           t.Description,
			RequiredLabels:        nonNil(t.RequiredLabels),
			OptionalLabelPatterns: nonNil(t.OptionalLabelPatterns),
			MaxConcurrentAgents:   int32(t.MaxConcurrentAgents),
			IsActive:              t.IsActive,
		})
		if err != nil {
			if isUniqueViolation(err) {
				return ErrTeamExists
			}
			return fmt.Errorf("failed to create team: %w", err)
		}
		return s.writeEntries(ctx, q, policyChange(actor, "team:"+uuidString(row.ID), map[string]any{
			"action": "create_team",
			"name":   t.Name,
		}))
	})
	if err != nil {
		return nil, err
	}
	out := toTeam(row)
	return &out, nil
}

func (s *Postgres) UpdateTeam(ctx context.Context, t *policy.Team, actor string) (*policy.Team, error) {
	id, err := parseUUID(t.ID)
	if err != nil || !id.Valid {
		return nil, policy.ErrTeamNotFound
	}

	var row sqlc.Team
	err = s.inTx(ctx, func(q *sqlc.Queries) error {
		var err error
		row, err = q.UpdateTeam(ctx, sqlc.UpdateTeamParams{
			ID:                    id,
			Name:                  t.Name,
			Description:           t.Description,
			RequiredLabels:        nonNil(t.RequiredLabels),
			OptionalLabelPatterns: nonNil(t.OptionalLabelPatterns),
			MaxConcurrentAgents:   int32(t.MaxConcurrentAgents),
			IsActive:              t.IsActive,
		})
		if err != nil {
			if notFound(err) == ErrNotFound {
				return policy.ErrTeamNotFound
			}
			if isUniqueViolation(err) {
				return ErrTeamExists
			}
			return fmt.Errorf("failed to update team: %w", err)
		}
		return s.writeEntries(ctx, q, policyChange(actor, "team:"+t.ID, map[string]any{
			"action":    "update_team",
			"version":   row.Version,
			"is_active": row.IsActive,
		}))
	})
	if err != nil {
		return nil, err
	}
	out := toTeam(row)
	return &out, nil
}

func (s *Postgres) GetTeam(ctx context.Context, id string) (*policy.Team, error) {
	pid, err := parseUUID(id)
	if err != nil || !pid.Valid {
		return nil, policy.ErrTeamNotFound
	}
	row, err := s.queries.GetTeam(ctx, pid)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return nil, policy.ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	t := toTeam(row)
	return &t, nil
}

func (s *Postgres) GetTeamByName(ctx context.Context, name string) (*policy.Team, error) {
	row, err := s.queries.GetTeamByName(ctx, name)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return nil, policy.ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	t := toTeam(row)
	return &t, nil
}

func (s *Postgres) ListTeams(ctx context.Context) ([]policy.Team, error) {
	rows, err := s.queries.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return toTeams(rows), nil
}

func (s *Postgres) UpsertMembership(ctx context.Context, m policy.Membership, actor string) (*policy.Membership, error) {
	teamID, err := parseUUID(m.TeamID)
	if err != nil || !teamID.Valid {
		return nil, policy.ErrTeamNotFound
	}
	if m.Role == "" {
		m.Role = policy.RoleMember
	}

	var row sqlc.TeamMembership
	err = s.inTx(ctx, func(q *sqlc.Queries) error {
		if _, err := q.GetTeam(ctx, teamID); err != nil {
			if notFound(err) == ErrNotFound {
				return policy.ErrTeamNotFound
			}
			return fmt.Errorf("failed to get team: %w", err)
		}
		var err error
		row, err = q.UpsertTeamMembership(ctx, sqlc.UpsertTeamMembershipParams{
			TeamID: teamID,
			UserID: m.UserID,
			Role:   sqlc.MembershipRole(m.Role),
		})
		if err != nil {
			return fmt.Errorf("failed to upsert membership: %w", err)
		}
		return s.writeEntries(ctx, q, policyChange(actor, "team:"+m.TeamID, map[string]any{
			"action": "add_member",
			"user":   m.UserID,
			"role":   string(m.Role),
		}))
	})
	if err != nil {
		return nil, err
	}
	out := toMembership(row)
	return &out, nil
}

func (s *Postgres) RemoveMembership(ctx context.Context, teamID, userID string, actor string) error {
	tid, err := parseUUID(teamID)
	if err != nil || !tid.Valid {
		return policy.ErrTeamNotFound
	}
	return s.inTx(ctx, func(q *sqlc.Queries) error {
		n, err := q.DeactivateTeamMembership(ctx, sqlc.DeactivateTeamMembershipParams{TeamID: tid, UserID: userID})
		if err != nil {
			return fmt.Errorf("failed to remove membership: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return s.writeEntries(ctx, q, policyChange(actor, "team:"+teamID, map[string]any{
			"action": "remove_member",
			"user":   userID,
		}))
	})
}

func (s *Postgres) ListMembers(ctx context.Context, teamID string) ([]policy.Membership, error) {
	tid, err := parseUUID(teamID)
	if err != nil || !tid.Valid {
		return nil, policy.ErrTeamNotFound
	}
	rows, err := s.queries.ListTeamMembers(ctx, tid)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	out := make([]policy.Membership, len(rows))
	for i, r := range rows {
		out[i] = toMembership(r)
	}
	return out, nil
}

func toUserPolicy(r sqlc.UserPolicy) policy.UserPolicy {
	return policy.UserPolicy{
		Identity:             r.Identity,
		AllowedLabels:        r.AllowedLabels,
		AllowedLabelPatterns: r.AllowedLabelPatterns,
		MaxConcurrentAgents:  int(r.MaxConcurrentAgents),
		Description:          r.Description,
		UpdatedBy:            r.UpdatedBy,
		Version:              r.Version,
		CreatedAt:            r.CreatedAt.Time,
		UpdatedAt:            r.UpdatedAt.Time,
	}
}

func toTeams(rows []sqlc.Team) []policy.Team {
	out := make([]policy.Team, len(rows))
	for i, r := range rows {
		out[i] = toTeam(r)
	}
	return out
}

func toTeam(r sqlc.Team) policy.Team {
	return policy.Team{
		ID:                    uuidString(r.ID),
		Name:                  r.Name,
		Description:           r.Description,
		RequiredLabels:        r.RequiredLabels,
		OptionalLabelPatterns: r.OptionalLabelPatterns,
		MaxConcurrentAgents:   int(r.MaxConcurrentAgents),
		IsActive:              r.IsActive,
		Version:               r.Version,
		CreatedAt:             r.CreatedAt.Time,
		UpdatedAt:             r.UpdatedAt.Time,
	}
}

func toMembership(r sqlc.TeamMembership) policy.Membership {
	return policy.Membership{
		TeamID:   uuidString(r.TeamID),
		UserID:   r.UserID,
		Role:     policy.Role(r.Role),
		IsActive: r.IsActive,
		JoinedAt: r.JoinedAt.Time,
	}
}
