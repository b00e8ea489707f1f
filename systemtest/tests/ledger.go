package tests

import (
	"net/http"
	"testing"

	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T, env *Env) {
	root := tokenFor(t, env, "root", true)

	t.Run("rejected provisions are audited", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "GET", "/api/v1/admin/audit?actor=alice&kind=provision&outcome=rejected", nil, root)
		require.Equal(t, http.StatusOK, rr.Code)
		entries := decode[dto.ListAuditResponse](t, rr).Entries
		assert.GreaterOrEqual(t, len(entries), 2)
		for _, e := range entries {
			assert.Equal(t, "alice", e.Actor)
			assert.Equal(t, "rejected", e.Outcome)
		}
	})

	t.Run("security events for rejections", func(t *testing.T) {
		for _, kind := range []string{"label_policy_violation", "quota_exceeded"} {
			rr := doJSONWithAuth(env.Router, "GET", "/api/v1/admin/security-events?actor=alice&kind="+kind, nil, root)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.NotEmpty(t, decode[dto.ListSecurityEventsResponse](t, rr).Events, kind)
		}
	})

	t.Run("bad time filter", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "GET", "/api/v1/admin/audit?since=yesterday", nil, root)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
