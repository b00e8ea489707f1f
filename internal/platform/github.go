package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIURL    = "https://api.github.com"
	listPageSize     = 100
	maxErrorBodySize = 4 << 10
)

// TokenSource supplies the bearer credential for platform calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a personal access token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrUnauthorized
	}
	return string(t), nil
}

type GitHubConfig struct {
	APIURL string `mapstructure:"api_url"`
	// Org scopes runners to an organization. When Repo is also set runners
	// are scoped to Org/Repo instead.
	Org  string `mapstructure:"org"`
	Repo string `mapstructure:"repo"`
}

// GitHub talks to the GitHub Actions self-hosted runner API.
type GitHub struct {
	cfg    GitHubConfig
	tokens TokenSource
	http   *http.Client
	now    func() time.Time
}

func NewGitHub(cfg GitHubConfig, tokens TokenSource, httpClient *http.Client) *GitHub {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GitHub{
		cfg:    cfg,
		tokens: tokens,
		http:   httpClient,
		now:    time.Now,
	}
}

func (g *GitHub) runnersPath() string {
	if g.cfg.Repo != "" {
		return fmt.Sprintf("/repos/%s/%s/actions/runners", url.PathEscape(g.cfg.Org), url.PathEscape(g.cfg.Repo))
	}
	return fmt.Sprintf("/orgs/%s/actions/runners", url.PathEscape(g.cfg.Org))
}

type registrationTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (g *GitHub) IssueRegistrationToken(ctx context.Context) (*RegistrationToken, error) {
	var resp registrationTokenResponse
	if err := g.do(ctx, "issue registration token", http.MethodPost, g.runnersPath()+"/registration-token", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, &Error{Op: "issue registration token", Message: "empty token in response"}
	}
	return &RegistrationToken{Token: resp.Token, ExpiresAt: resp.ExpiresAt}, nil
}

type jitRequestBody struct {
	Name          string   `json:"name"`
	RunnerGroupID int64    `json:"runner_group_id"`
	Labels        []string `json:"labels"`
	WorkFolder    string   `json:"work_folder,omitempty"`
}

type jitResponse struct {
	Runner struct {
		ID int64 `json:"id"`
	} `json:"runner"`
	EncodedJitConfig string `json:"encoded_jit_config"`
}

func (g *GitHub) IssueJitConfig(ctx context.Context, req JitRequest) (*JitConfig, error) {
	body := jitRequestBody{
		Name:          req.Name,
		RunnerGroupID: req.RunnerGroupID,
		Labels:        req.Labels,
		WorkFolder:    req.WorkFolder,
	}
	var resp jitResponse
	if err := g.do(ctx, "generate jit config", http.MethodPost, g.runnersPath()+"/generate-jitconfig", body, &resp); err != nil {
		return nil, err
	}
	if resp.EncodedJitConfig == "" || resp.Runner.ID == 0 {
		return nil, &Error{Op: "generate jit config", Message: "incomplete response"}
	}
	return &JitConfig{AgentID: resp.Runner.ID, EncodedConfig: resp.EncodedJitConfig}, nil
}

type listRunnersResponse struct {
	TotalCount int `json:"total_count"`
	Runners    []struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
		Busy   bool   `json:"busy"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"runners"`
}

// ListAgents pages through every runner in scope.
func (g *GitHub) ListAgents(ctx context.Context) ([]Agent, error) {
	var out []Agent
	for page := 1; ; page++ {
		var resp listRunnersResponse
		path := fmt.Sprintf("%s?per_page=%d&page=%d", g.runnersPath(), listPageSize, page)
		if err := g.do(ctx, "list runners", http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Runners {
			labels := make([]string, len(r.Labels))
			for i, l := range r.Labels {
				labels[i] = l.Name
			}
			out = append(out, Agent{
				ID:     r.ID,
				Name:   r.Name,
				Labels: labels,
				Online: r.Status == "online",
				Busy:   r.Busy,
			})
		}
		if len(resp.Runners) < listPageSize || len(out) >= resp.TotalCount {
			break
		}
	}
	slog.Debug("Listed platform runners", "count", len(out))
	return out, nil
}

func (g *GitHub) DeleteAgent(ctx context.Context, agentID int64) error {
	return g.do(ctx, "delete runner", http.MethodDelete, fmt.Sprintf("%s/%d", g.runnersPath(), agentID), nil, nil)
}

func (g *GitHub) do(ctx context.Context, op, method, path string, in, out any) error {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return &Error{Op: op, Message: "failed to obtain credential", Err: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.APIURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &Error{Op: op, Err: err}
		}
		return &Error{Op: op, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return classify(op, resp, errorMessage(msg), g.now())
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}
