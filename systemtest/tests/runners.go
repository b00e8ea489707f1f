package tests

import (
	"net/http"
	"testing"

	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T, env *Env) {
	t.Run("missing api key", func(t *testing.T) {
		rr := doJSON(env.Router, "POST", "/api/v1/admin/tokens", dto.IssueTokenRequest{Subject: "alice"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown identity", func(t *testing.T) {
		rr := doJSON(env.Router, "POST", "/api/v1/admin/tokens", dto.IssueTokenRequest{Subject: "mallory"},
			map[string]string{"X-API-Key": env.APIKey})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("known identity", func(t *testing.T) {
		tok := tokenFor(t, env, "alice", false)
		rr := doJSONWithAuth(env.Router, "GET", "/api/v1/runners", nil, tok)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("non-admin cannot reach admin routes", func(t *testing.T) {
		tok := tokenFor(t, env, "alice", false)
		rr := doJSONWithAuth(env.Router, "GET", "/api/v1/admin/policies", nil, tok)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestUserPolicyProvisioning(t *testing.T, env *Env) {
	alice := tokenFor(t, env, "alice", false)

	t.Run("label outside policy", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "POST", "/api/v1/runners", dto.ProvisionRunnerRequest{Labels: []string{"gpu"}}, alice)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		body := decode[map[string]any](t, rr)
		assert.Equal(t, "gpu", body["label"])
	})

	var provisioned dto.ProvisionRunnerResponse
	t.Run("allowed labels", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "POST", "/api/v1/runners",
			dto.ProvisionRunnerRequest{Labels: []string{"docker", "team-x"}}, alice)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		provisioned = decode[dto.ProvisionRunnerResponse](t, rr)
		assert.Equal(t, []string{"self-hosted", "linux", "x64", "docker", "team-x"}, provisioned.Labels)
		assert.Equal(t, "pending", provisioned.Status)
		assert.Equal(t, "alice", provisioned.Owner)
		assert.NotEmpty(t, provisioned.RegistrationToken)
		assert.Contains(t, provisioned.ConfigurationCommand, "https://github.com/acme")
	})

	t.Run("quota exhausted", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "POST", "/api/v1/runners", dto.ProvisionRunnerRequest{Labels: []string{"docker"}}, alice)
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		body := decode[map[string]any](t, rr)
		assert.EqualValues(t, 1, body["current"])
		assert.EqualValues(t, 1, body["limit"])
	})

	t.Run("credential is not returned again", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "GET", "/api/v1/runners/"+provisioned.ID, nil, alice)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "registration_token")
	})

	t.Run("deprovision frees the slot", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "DELETE", "/api/v1/runners/"+provisioned.ID, nil, alice)
		require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

		rr = doJSONWithAuth(env.Router, "POST", "/api/v1/runners", dto.ProvisionRunnerRequest{Labels: []string{"docker"}, Mode: "jit"}, alice)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		resp := decode[dto.ProvisionRunnerResponse](t, rr)
		assert.NotEmpty(t, resp.JitConfig)
		assert.Empty(t, resp.RegistrationToken)
	})

	t.Run("other users cannot see the runner", func(t *testing.T) {
		bob := tokenFor(t, env, "bob", false)
		rr := doJSONWithAuth(env.Router, "GET", "/api/v1/runners/"+provisioned.ID, nil, bob)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestTeamProvisioning(t *testing.T, env *Env) {
	root := tokenFor(t, env, "root", true)
	bob := tokenFor(t, env, "bob", false)

	rr := doJSONWithAuth(env.Router, "GET", "/api/v1/admin/teams", nil, root)
	require.Equal(t, http.StatusOK, rr.Code)
	var infraID string
	for _, team := range decode[dto.ListTeamsResponse](t, rr).Teams {
		if team.Name == "infra" {
			infraID = team.ID
		}
	}
	require.NotEmpty(t, infraID)

	t.Run("team required", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "POST", "/api/v1/runners", dto.ProvisionRunnerRequest{}, bob)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Contains(t, rr.Body.String(), infraID)
	})

	t.Run("not a member", func(t *testing.T) {
		alice := tokenFor(t, env, "alice", false)
		rr := doJSONWithAuth(env.Router, "POST", "/api/v1/runners", dto.ProvisionRunnerRequest{TeamID: infraID}, alice)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		body := decode[map[string]any](t, rr)
		assert.Equal(t, infraID, body["team_id"])
	})

	t.Run("team labels applied", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "POST", "/api/v1/runners",
			dto.ProvisionRunnerRequest{TeamID: infraID, Labels: []string{"gpu-a100"}, Name: "infra-gpu-1", Mode: "jit"}, bob)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		resp := decode[dto.ProvisionRunnerResponse](t, rr)
		assert.Equal(t, []string{"self-hosted", "linux", "x64", "team-infra", "gpu-a100"}, resp.Labels)
		assert.Equal(t, infraID, resp.TeamID)
		assert.True(t, resp.Ephemeral)
		require.NotNil(t, resp.PlatformAgentID)
	})

	t.Run("name conflict", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "POST", "/api/v1/runners",
			dto.ProvisionRunnerRequest{TeamID: infraID, Name: "infra-gpu-1"}, bob)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}
