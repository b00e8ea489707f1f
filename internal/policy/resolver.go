package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Repository is the read side of policy storage the resolver needs.
type Repository interface {
	GetUserPolicy(ctx context.Context, identity string) (*UserPolicy, error)
	// ActiveTeams returns active teams in which identity holds an active
	// membership.
	ActiveTeams(ctx context.Context, identity string) ([]Team, error)
}

type Resolver struct {
	repo      Repository
	mandatory []string
	cache     *PatternCache
}

func NewResolver(repo Repository, mandatoryLabels []string) *Resolver {
	return &Resolver{
		repo:      repo,
		mandatory: append([]string(nil), mandatoryLabels...),
		cache:     NewPatternCache(),
	}
}

func (r *Resolver) MandatoryLabels() []string {
	return append([]string(nil), r.mandatory...)
}

// Resolve returns the policy that governs caller, optionally under teamID.
//
// A caller with any active team membership must name a team. Callers without
// teams fall back to their user policy, or to deny-by-default when none
// exists.
func (r *Resolver) Resolve(ctx context.Context, caller string, teamID string) (*EffectivePolicy, error) {
	teams, err := r.repo.ActiveTeams(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("failed to load team memberships: %w", err)
	}

	if teamID != "" {
		for _, t := range teams {
			if t.ID == teamID {
				return r.teamPolicy(t), nil
			}
		}
		return nil, &NotAMemberError{TeamID: teamID}
	}

	if len(teams) > 0 {
		refs := make([]TeamRef, len(teams))
		for i, t := range teams {
			refs[i] = TeamRef{ID: t.ID, Name: t.Name}
		}
		return nil, &TeamRequiredError{Teams: refs}
	}

	up, err := r.repo.GetUserPolicy(ctx, caller)
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) {
			slog.Debug("No user policy, denying by default", "identity", caller)
			return &EffectivePolicy{
				Scope:           ScopeDefault,
				Subject:         caller,
				MandatoryLabels: r.MandatoryLabels(),
			}, nil
		}
		return nil, fmt.Errorf("failed to load user policy: %w", err)
	}

	return &EffectivePolicy{
		Scope:               ScopeUser,
		Subject:             up.Identity,
		MandatoryLabels:     r.MandatoryLabels(),
		AllowedLabels:       append([]string(nil), up.AllowedLabels...),
		Patterns:            append([]string(nil), up.AllowedLabelPatterns...),
		MaxConcurrentAgents: up.MaxConcurrentAgents,
		Version:             up.Version,
		compiled:            r.cache.Get(ScopeUser, up.Identity, up.Version, up.AllowedLabelPatterns),
	}, nil
}

func (r *Resolver) teamPolicy(t Team) *EffectivePolicy {
	return &EffectivePolicy{
		Scope:               ScopeTeam,
		Subject:             t.ID,
		TeamID:              t.ID,
		TeamName:            t.Name,
		MandatoryLabels:     r.MandatoryLabels(),
		RequiredLabels:      append([]string(nil), t.RequiredLabels...),
		Patterns:            append([]string(nil), t.OptionalLabelPatterns...),
		MaxConcurrentAgents: t.MaxConcurrentAgents,
		Version:             t.Version,
		compiled:            r.cache.Get(ScopeTeam, t.ID, t.Version, t.OptionalLabelPatterns),
	}
}
