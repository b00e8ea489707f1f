package platform

import (
	"context"
	"time"
)

// Client is the upstream CI platform as seen by the broker. All calls are
// made with the platform master credential, which never leaves this package.
type Client interface {
	IssueRegistrationToken(ctx context.Context) (*RegistrationToken, error)
	IssueJitConfig(ctx context.Context, req JitRequest) (*JitConfig, error)
	ListAgents(ctx context.Context) ([]Agent, error)
	// DeleteAgent removes an agent upstream. A missing agent is reported as
	// ErrNotFound.
	DeleteAgent(ctx context.Context, agentID int64) error
}

type RegistrationToken struct {
	Token     string
	ExpiresAt time.Time
}

type JitRequest struct {
	Name          string
	Labels        []string
	RunnerGroupID int64
	WorkFolder    string
}

type JitConfig struct {
	AgentID       int64
	EncodedConfig string
}

// Agent is the upstream view of a registered runner.
type Agent struct {
	ID     int64
	Name   string
	Labels []string
	Online bool
	Busy   bool
}
