package platform

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGitHub(t *testing.T, h http.Handler) *GitHub {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewGitHub(GitHubConfig{APIURL: srv.URL, Org: "acme"}, StaticToken("pat"), srv.Client())
}

func TestGitHub_IssueRegistrationToken(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	gh := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orgs/acme/actions/runners/registration-token", r.URL.Path)
		assert.Equal(t, "Bearer pat", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "AABBCC", "expires_at": expires})
	}))

	tok, err := gh.IssueRegistrationToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AABBCC", tok.Token)
	assert.True(t, expires.Equal(tok.ExpiresAt))
}

func TestGitHub_IssueJitConfig(t *testing.T) {
	gh := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orgs/acme/actions/runners/generate-jitconfig", r.URL.Path)
		var body jitRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "runner-1", body.Name)
		assert.Equal(t, int64(1), body.RunnerGroupID)
		assert.Equal(t, []string{"self-hosted", "linux"}, body.Labels)
		assert.Equal(t, "_work", body.WorkFolder)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"runner":{"id":42},"encoded_jit_config":"blob"}`))
	}))

	cfg, err := gh.IssueJitConfig(context.Background(), JitRequest{
		Name:          "runner-1",
		Labels:        []string{"self-hosted", "linux"},
		RunnerGroupID: 1,
		WorkFolder:    "_work",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.AgentID)
	assert.Equal(t, "blob", cfg.EncodedConfig)
}

func TestGitHub_ListAgentsPaginates(t *testing.T) {
	const total = 130
	gh := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		start := (page - 1) * listPageSize
		end := min(start+listPageSize, total)
		runners := []map[string]any{}
		for i := start; i < end; i++ {
			runners = append(runners, map[string]any{
				"id":     i + 1,
				"name":   fmt.Sprintf("r-%d", i+1),
				"status": "online",
				"busy":   i%2 == 0,
				"labels": []map[string]any{{"name": "self-hosted"}},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"total_count": total, "runners": runners})
	}))

	agents, err := gh.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, total)
	assert.Equal(t, "r-1", agents[0].Name)
	assert.True(t, agents[0].Online)
	assert.True(t, agents[0].Busy)
	assert.Equal(t, []string{"self-hosted"}, agents[129].Labels)
}

func TestGitHub_ErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		headers   map[string]string
		body      string
		transient bool
		retry     time.Duration
	}{
		{name: "not found", status: 404, body: `{"message":"Not Found"}`},
		{name: "validation", status: 422, body: `{"message":"Validation Failed"}`},
		{name: "server error", status: 502, transient: true},
		{name: "too many requests", status: 429, headers: map[string]string{"Retry-After": "3"}, transient: true, retry: 3 * time.Second},
		{name: "secondary rate limit", status: 403, body: `{"message":"You have exceeded a secondary rate limit"}`, transient: true},
		{name: "forbidden", status: 403, body: `{"message":"Resource not accessible"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gh := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))

			err := gh.DeleteAgent(context.Background(), 7)
			require.Error(t, err)
			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.status, pe.StatusCode)
			assert.Equal(t, tc.transient, IsTransient(err))
			assert.Equal(t, tc.retry, RetryAfter(err))
			assert.Equal(t, tc.status == 404, errors.Is(err, ErrNotFound))
		})
	}
}

func TestGitHub_RepoScope(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	gh := NewGitHub(GitHubConfig{APIURL: srv.URL, Org: "acme", Repo: "api"}, StaticToken("pat"), srv.Client())
	require.NoError(t, gh.DeleteAgent(context.Background(), 9))
	assert.Equal(t, "/repos/acme/api/actions/runners/9", path.Load())
}

func TestAppTokenSource_CachesInstallationToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/app/installations/99/access_tokens", r.URL.Path)

		raw := r.Header.Get("Authorization")[len("Bearer "):]
		tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
		require.NoError(t, err)
		iss, _ := tok.Claims.GetIssuer()
		assert.Equal(t, "12", iss)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "ghs_abc", "expires_at": time.Now().Add(time.Hour)})
	}))
	defer srv.Close()

	src, err := NewAppTokenSource(12, 99, pemBytes, srv.URL, srv.Client())
	require.NoError(t, err)

	for range 3 {
		tok, err := src.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ghs_abc", tok)
	}
	assert.Equal(t, int32(1), calls.Load())
}
