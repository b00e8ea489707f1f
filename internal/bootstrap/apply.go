package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/EternisAI/silo-runners/internal/policy"
	"github.com/EternisAI/silo-runners/internal/store"
)

// Result counts the writes Apply performed. Entries already matching the
// seed are left untouched, so a second Apply reports zero everywhere.
type Result struct {
	PoliciesWritten    int
	TeamsCreated       int
	TeamsUpdated       int
	MembershipsWritten int
}

// Apply upserts every policy, team and membership in the seed. Records that
// exist but are absent from the seed are never removed.
func Apply(ctx context.Context, st store.PolicyStore, seed *Seed) (Result, error) {
	var res Result

	existing, err := st.ListUserPolicies(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list user policies: %w", err)
	}
	current := make(map[string]policy.UserPolicy, len(existing))
	for _, p := range existing {
		current[p.Identity] = p
	}

	for _, ps := range seed.Policies {
		want := ps.userPolicy()
		if have, ok := current[want.Identity]; ok && samePolicy(&have, want) {
			continue
		}
		if _, err := st.UpsertUserPolicy(ctx, want, SeedActor); err != nil {
			return res, fmt.Errorf("failed to upsert policy %q: %w", want.Identity, err)
		}
		res.PoliciesWritten++
	}

	teams := seed.Teams
	if len(seed.Admins.Members) > 0 {
		teams = append([]TeamSeed{seed.Admins.team()}, teams...)
	}
	for _, ts := range teams {
		if err := applyTeam(ctx, st, ts, &res); err != nil {
			return res, err
		}
	}

	slog.Info("Bootstrap seed applied",
		"policies_written", res.PoliciesWritten,
		"teams_created", res.TeamsCreated,
		"teams_updated", res.TeamsUpdated,
		"memberships_written", res.MembershipsWritten)
	return res, nil
}

func applyTeam(ctx context.Context, st store.PolicyStore, ts TeamSeed, res *Result) error {
	want := ts.team()

	have, err := st.GetTeamByName(ctx, want.Name)
	switch {
	case errors.Is(err, policy.ErrTeamNotFound):
		created, err := st.CreateTeam(ctx, want, SeedActor)
		if err != nil {
			return fmt.Errorf("failed to create team %q: %w", want.Name, err)
		}
		have = created
		res.TeamsCreated++
	case err != nil:
		return fmt.Errorf("failed to get team %q: %w", want.Name, err)
	case !sameTeam(have, want):
		want.ID = have.ID
		updated, err := st.UpdateTeam(ctx, want, SeedActor)
		if err != nil {
			return fmt.Errorf("failed to update team %q: %w", want.Name, err)
		}
		have = updated
		res.TeamsUpdated++
	}

	members, err := st.ListMembers(ctx, have.ID)
	if err != nil {
		return fmt.Errorf("failed to list members of %q: %w", want.Name, err)
	}
	byUser := make(map[string]policy.Membership, len(members))
	for _, m := range members {
		byUser[m.UserID] = m
	}

	for _, ms := range ts.Members {
		role := ms.Role
		if role == "" {
			role = policy.RoleMember
		}
		if m, ok := byUser[ms.User]; ok && m.IsActive && m.Role == role {
			continue
		}
		if _, err := st.UpsertMembership(ctx, policy.Membership{TeamID: have.ID, UserID: ms.User, Role: role}, SeedActor); err != nil {
			return fmt.Errorf("failed to add %q to team %q: %w", ms.User, want.Name, err)
		}
		res.MembershipsWritten++
	}
	return nil
}

func samePolicy(a, b *policy.UserPolicy) bool {
	return slices.Equal(a.AllowedLabels, b.AllowedLabels) &&
		slices.Equal(a.AllowedLabelPatterns, b.AllowedLabelPatterns) &&
		a.MaxConcurrentAgents == b.MaxConcurrentAgents &&
		a.Description == b.Description
}

func sameTeam(a, b *policy.Team) bool {
	return a.Description == b.Description &&
		slices.Equal(a.RequiredLabels, b.RequiredLabels) &&
		slices.Equal(a.OptionalLabelPatterns, b.OptionalLabelPatterns) &&
		a.MaxConcurrentAgents == b.MaxConcurrentAgents &&
		a.IsActive == b.IsActive
}
