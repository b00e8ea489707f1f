package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EternisAI/silo-runners/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger())
	api := r.Group("/", JWTAuth(secret))
	api.GET("/whoami", func(c *gin.Context) {
		id, _ := Identity(c)
		c.JSON(http.StatusOK, gin.H{"subject": id.Subject})
	})
	api.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/keyed", APIKeyAuth("k3y"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/rotating", APIKeyAuth("old-key, new-key"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/unkeyed", APIKeyAuth(" , "), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func bearer(t *testing.T, subject string, admin bool) string {
	t.Helper()
	token, err := auth.GenerateToken(auth.Config{Secret: secret}, subject, admin)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	r := setupRouter()

	w := do(r, "/whoami", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, "/whoami", map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, "/whoami", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, "/whoami", map[string]string{"Authorization": bearer(t, "alice", false)})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subject":"alice"}`, w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	r := setupRouter()

	w := do(r, "/admin", map[string]string{"Authorization": bearer(t, "alice", false)})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, "/admin", map[string]string{"Authorization": bearer(t, "root", true)})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	r := setupRouter()

	assert.Equal(t, http.StatusUnauthorized, do(r, "/keyed", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/keyed", map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/keyed", map[string]string{"X-API-Key": "k3y"}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, "/unkeyed", map[string]string{"X-API-Key": "k3y"}).Code)
}

func TestAPIKeyAuth_Rotation(t *testing.T) {
	r := setupRouter()

	assert.Equal(t, http.StatusNoContent, do(r, "/rotating", map[string]string{"X-API-Key": "old-key"}).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/rotating", map[string]string{"X-API-Key": "new-key"}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/rotating", map[string]string{"X-API-Key": "old-key, new-key"}).Code)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  BEARER   abc  ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}
