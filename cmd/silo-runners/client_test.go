package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Do(t *testing.T) {
	t.Run("SendsTokenAndDecodesResponse", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "/api/v1/runners", r.URL.Path)
			assert.Equal(t, "online", r.URL.Query().Get("status"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(dto.ListRunnersResponse{
				Runners: []dto.RunnerResponse{{ID: "r1", Name: "alice-1"}},
				Count:   1,
			})
		}))
		defer srv.Close()

		c, err := newClient(srv.URL+"/", "tok")
		require.NoError(t, err)

		var resp dto.ListRunnersResponse
		err = c.do(context.Background(), http.MethodGet, "/api/v1/runners", url.Values{"status": {"online"}}, nil, &resp)
		require.NoError(t, err)
		require.Len(t, resp.Runners, 1)
		assert.Equal(t, "alice-1", resp.Runners[0].Name)
	})

	t.Run("PostsJSONBody", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var req dto.ProvisionRunnerRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"docker"}, req.Labels)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(dto.ProvisionRunnerResponse{
				RunnerResponse:       dto.RunnerResponse{ID: "r2"},
				ConfigurationCommand: "./config.sh",
			})
		}))
		defer srv.Close()

		c, err := newClient(srv.URL, "tok")
		require.NoError(t, err)

		var resp dto.ProvisionRunnerResponse
		err = c.do(context.Background(), http.MethodPost, "/api/v1/runners", nil, dto.ProvisionRunnerRequest{Labels: []string{"docker"}}, &resp)
		require.NoError(t, err)
		assert.Equal(t, "r2", resp.ID)
		assert.Equal(t, "./config.sh", resp.ConfigurationCommand)
	})

	t.Run("ErrorPayload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"quota exceeded","current":1,"limit":1}`))
		}))
		defer srv.Close()

		c, err := newClient(srv.URL, "tok")
		require.NoError(t, err)

		err = c.do(context.Background(), http.MethodPost, "/api/v1/runners", nil, dto.ProvisionRunnerRequest{}, nil)
		var apiErr *apiError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.EqualValues(t, 1, apiErr.Body["limit"])
		assert.Equal(t, "HTTP 429: quota exceeded", err.Error())
	})

	t.Run("NoContent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		c, err := newClient(srv.URL, "tok")
		require.NoError(t, err)
		assert.NoError(t, c.do(context.Background(), http.MethodDelete, "/api/v1/runners/r1", nil, nil, nil))
	})
}

func TestNewClient_RequiresServerAndToken(t *testing.T) {
	_, err := newClient("", "tok")
	assert.ErrorContains(t, err, "--server")
	_, err = newClient("http://x", "")
	assert.ErrorContains(t, err, "--token")
}
