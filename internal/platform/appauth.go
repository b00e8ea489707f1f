package platform

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	appJWTLifetime     = 9 * time.Minute
	appJWTClockSkew    = 60 * time.Second
	installationMargin = 5 * time.Minute
)

// AppTokenSource exchanges a GitHub App private key for installation access
// tokens and caches each token until shortly before it expires.
type AppTokenSource struct {
	appID          int64
	installationID int64
	key            *rsa.PrivateKey
	apiURL         string
	http           *http.Client
	now            func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewAppTokenSource(appID, installationID int64, privateKeyPEM []byte, apiURL string, httpClient *http.Client) (*AppTokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse app private key: %w", err)
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AppTokenSource{
		appID:          appID,
		installationID: installationID,
		key:            key,
		apiURL:         strings.TrimRight(apiURL, "/"),
		http:           httpClient,
		now:            time.Now,
	}, nil
}

func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(installationMargin).Before(s.expiresAt) {
		return s.token, nil
	}

	appJWT, err := s.appJWT(now)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", s.apiURL, s.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build installation token request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+appJWT)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", &Error{Op: "create installation token", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return "", classify("create installation token", resp, errorMessage(msg), now)
	}

	var body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode installation token: %w", err)
	}

	s.token = body.Token
	s.expiresAt = body.ExpiresAt
	return s.token, nil
}

func (s *AppTokenSource) appJWT(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(s.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-appJWTClockSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign app jwt: %w", err)
	}
	return signed, nil
}
