package tests

import (
	"net/http"
	"testing"

	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/EternisAI/silo-runners/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileLifecycle(t *testing.T, env *Env) {
	root := tokenFor(t, env, "root", true)
	bob := tokenFor(t, env, "bob", false)

	rr := doJSONWithAuth(env.Router, "GET", "/api/v1/runners", nil, bob)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[dto.ListRunnersResponse](t, rr)
	require.Len(t, list.Runners, 1)
	runner := list.Runners[0]
	require.NotNil(t, runner.PlatformAgentID)
	platformID := *runner.PlatformAgentID

	env.Platform.Update(platformID, func(a *platform.Agent) { a.Online = true })

	t.Run("online runner becomes active", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "POST", "/api/v1/admin/sync/trigger", nil, root)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.GreaterOrEqual(t, decode[dto.SyncResultResponse](t, rr).Updated, 1)

		rr = doJSONWithAuth(env.Router, "GET", "/api/v1/runners/"+runner.ID, nil, bob)
		require.Equal(t, http.StatusOK, rr.Code)
		got := decode[dto.RunnerResponse](t, rr)
		assert.Equal(t, "active", got.Status)
		require.NotNil(t, got.PlatformAgentID)
		assert.Equal(t, platformID, *got.PlatformAgentID)
	})

	t.Run("label drift is remediated", func(t *testing.T) {
		env.Platform.Update(platformID, func(a *platform.Agent) {
			a.Labels = append(a.Labels, "prod-deploy")
		})

		rr := doJSONWithAuth(env.Router, "POST", "/api/v1/admin/sync/trigger", nil, root)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, 1, decode[dto.SyncResultResponse](t, rr).Remediated)

		_, ok := env.Platform.Get(platformID)
		assert.False(t, ok)

		rr = doJSONWithAuth(env.Router, "GET", "/api/v1/admin/security-events?kind=label_drift", nil, root)
		require.Equal(t, http.StatusOK, rr.Code)
		events := decode[dto.ListSecurityEventsResponse](t, rr).Events
		require.Len(t, events, 1)
		assert.Equal(t, runner.ID, events[0].AgentID)
		assert.Contains(t, events[0].ObservedLabels, "prod-deploy")
	})

	t.Run("status reports healthy", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "GET", "/api/v1/admin/sync/status", nil, root)
		require.Equal(t, http.StatusOK, rr.Code)
		status := decode[dto.SyncStatusResponse](t, rr)
		assert.True(t, status.Healthy)
		assert.Equal(t, 2, status.Cycles)
		assert.Zero(t, status.ConsecutiveFailures)
	})
}
