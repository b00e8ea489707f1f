package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/EternisAI/silo-runners/internal/platform/platformtest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Env is the running broker under test.
type Env struct {
	Router   *gin.Engine
	Platform *platformtest.Fake
	APIKey   string
}

func TestHealthCheck(t *testing.T, env *Env) {
	rr := doJSON(env.Router, "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

// tokenFor mints a bearer token through the admin token endpoint.
func tokenFor(t *testing.T, env *Env, subject string, admin bool) string {
	t.Helper()
	rr := doJSON(env.Router, "POST", "/api/v1/admin/tokens", dto.IssueTokenRequest{Subject: subject, Admin: admin},
		map[string]string{"X-API-Key": env.APIKey})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp dto.IssueTokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Token
}

func doJSON(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doJSONWithAuth(router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	return doJSON(router, method, path, body, map[string]string{"Authorization": "Bearer " + token})
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
