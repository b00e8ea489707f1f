package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// client talks to the broker's REST API with a bearer token.
type client struct {
	server string
	token  string
	http   *http.Client
}

// apiError is a non-2xx response. Body is the decoded error payload.
type apiError struct {
	StatusCode int
	Body       map[string]any
	Raw        string
}

func (e *apiError) Error() string {
	if msg, ok := e.Body["error"].(string); ok {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Raw))
}

// connectionFlags registers --server and --token on fs.
func connectionFlags(fs *pflag.FlagSet) (server, token *string) {
	server = fs.String("server", os.Getenv("SILO_RUNNERS_SERVER"), "Server URL (e.g., http://broker:8080)")
	token = fs.String("token", os.Getenv("SILO_RUNNERS_TOKEN"), "Bearer token")
	return server, token
}

func newClient(server, token string) (*client, error) {
	if server == "" {
		return nil, fmt.Errorf("--server is required")
	}
	if token == "" {
		return nil, fmt.Errorf("--token is required")
	}
	return &client{
		server: strings.TrimRight(server, "/"),
		token:  token,
		http:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		reqBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(reqBody)
	}

	u := c.server + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{StatusCode: resp.StatusCode, Raw: string(respBody)}
		_ = json.Unmarshal(respBody, &apiErr.Body)
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
