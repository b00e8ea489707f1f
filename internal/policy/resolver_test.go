package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetUserPolicy(ctx context.Context, identity string) (*UserPolicy, error) {
	args := m.Called(ctx, identity)
	p, _ := args.Get(0).(*UserPolicy)
	return p, args.Error(1)
}

func (m *mockRepo) ActiveTeams(ctx context.Context, identity string) ([]Team, error) {
	args := m.Called(ctx, identity)
	teams, _ := args.Get(0).([]Team)
	return teams, args.Error(1)
}

func TestResolve_UserPolicy(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ActiveTeams", mock.Anything, "alice").Return([]Team(nil), nil)
	repo.On("GetUserPolicy", mock.Anything, "alice").Return(&UserPolicy{
		Identity:             "alice",
		AllowedLabels:        []string{"docker"},
		AllowedLabelPatterns: []string{"team-.*"},
		MaxConcurrentAgents:  3,
		Version:              2,
	}, nil)

	r := NewResolver(repo, mandatory)
	p, err := r.Resolve(context.Background(), "alice", "")
	require.NoError(t, err)

	assert.Equal(t, ScopeUser, p.Scope)
	assert.Equal(t, 3, p.MaxConcurrentAgents)
	assert.Equal(t, "user:alice", p.OwnerKey("alice"))
	assert.Len(t, p.matchers(), 1)
	repo.AssertExpectations(t)
}

func TestResolve_DenyByDefault(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ActiveTeams", mock.Anything, "bob").Return([]Team(nil), nil)
	repo.On("GetUserPolicy", mock.Anything, "bob").Return(nil, ErrPolicyNotFound)

	p, err := NewResolver(repo, mandatory).Resolve(context.Background(), "bob", "")
	require.NoError(t, err)
	assert.Equal(t, ScopeDefault, p.Scope)
	assert.Zero(t, p.MaxConcurrentAgents)
	assert.Empty(t, p.AllowedLabels)
	assert.Empty(t, p.Patterns)
}

func TestResolve_TeamRequired(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ActiveTeams", mock.Anything, "carol").Return([]Team{
		{ID: "t1", Name: "ml", IsActive: true},
		{ID: "t2", Name: "web", IsActive: true},
	}, nil)

	_, err := NewResolver(repo, mandatory).Resolve(context.Background(), "carol", "")
	require.ErrorIs(t, err, ErrTeamRequired)

	var tr *TeamRequiredError
	require.True(t, errors.As(err, &tr))
	assert.Equal(t, []TeamRef{{ID: "t1", Name: "ml"}, {ID: "t2", Name: "web"}}, tr.Teams)
	repo.AssertNotCalled(t, "GetUserPolicy", mock.Anything, mock.Anything)
}

func TestResolve_NotAMember(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ActiveTeams", mock.Anything, "carol").Return([]Team{{ID: "t1", Name: "ml"}}, nil)

	_, err := NewResolver(repo, mandatory).Resolve(context.Background(), "carol", "t9")
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestResolve_Team(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ActiveTeams", mock.Anything, "carol").Return([]Team{{
		ID:                    "t1",
		Name:                  "ml",
		RequiredLabels:        []string{"team-ml"},
		OptionalLabelPatterns: []string{"gpu-.*"},
		MaxConcurrentAgents:   5,
		Version:               1,
	}}, nil)

	p, err := NewResolver(repo, mandatory).Resolve(context.Background(), "carol", "t1")
	require.NoError(t, err)
	assert.Equal(t, ScopeTeam, p.Scope)
	assert.Equal(t, "team:t1", p.OwnerKey("carol"))
	assert.Equal(t, []string{"team-ml"}, p.RequiredLabels)
	assert.Equal(t, 5, p.MaxConcurrentAgents)
}

func TestResolve_RepositoryError(t *testing.T) {
	repo := new(mockRepo)
	repo.On("ActiveTeams", mock.Anything, "dave").Return([]Team(nil), errors.New("connection refused"))

	_, err := NewResolver(repo, mandatory).Resolve(context.Background(), "dave", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load team memberships")
}

func TestPatternCache_RecompilesOnVersionChange(t *testing.T) {
	c := NewPatternCache()

	first := c.Get(ScopeUser, "alice", 1, []string{"a.*"})
	again := c.Get(ScopeUser, "alice", 1, []string{"ignored"})
	assert.Same(t, first[0], again[0])

	next := c.Get(ScopeUser, "alice", 2, []string{"b.*", "c"})
	assert.Len(t, next, 2)
	assert.True(t, next[0].MatchString("bbb"))
	assert.Equal(t, 1, c.Len())
}

func TestPatternCache_SkipsInvalid(t *testing.T) {
	c := NewPatternCache()
	compiled := c.Get(ScopeTeam, "t1", 1, []string{"(", "ok"})
	assert.Len(t, compiled, 1)
}

func TestValidateUserPolicy(t *testing.T) {
	assert.NoError(t, ValidateUserPolicy(&UserPolicy{Identity: "a", AllowedLabels: []string{"docker"}, AllowedLabelPatterns: []string{"x-.*"}}))
	assert.ErrorIs(t, ValidateUserPolicy(&UserPolicy{}), ErrInvalidPolicy)
	assert.ErrorIs(t, ValidateUserPolicy(&UserPolicy{Identity: "a", MaxConcurrentAgents: -1}), ErrInvalidPolicy)
	assert.ErrorIs(t, ValidateUserPolicy(&UserPolicy{Identity: "a", AllowedLabels: []string{"a,b"}}), ErrInvalidPolicy)
	assert.ErrorIs(t, ValidateUserPolicy(&UserPolicy{Identity: "a", AllowedLabelPatterns: []string{"("}}), ErrInvalidPolicy)
}

func TestValidateTeam(t *testing.T) {
	assert.NoError(t, ValidateTeam(&Team{Name: "ml", RequiredLabels: []string{"team-ml"}}))
	assert.ErrorIs(t, ValidateTeam(&Team{Name: " "}), ErrInvalidPolicy)
	assert.ErrorIs(t, ValidateTeam(&Team{Name: "ml", RequiredLabels: []string{""}}), ErrInvalidPolicy)
	assert.ErrorIs(t, ValidateRole("owner"), ErrInvalidPolicy)
	assert.NoError(t, ValidateRole(RoleAdmin))
}
