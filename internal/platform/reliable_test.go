package platform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedClient) next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *scriptedClient) IssueRegistrationToken(context.Context) (*RegistrationToken, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return &RegistrationToken{Token: "tok"}, nil
}

func (s *scriptedClient) IssueJitConfig(context.Context, JitRequest) (*JitConfig, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return &JitConfig{AgentID: 1, EncodedConfig: "blob"}, nil
}

func (s *scriptedClient) ListAgents(context.Context) ([]Agent, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return []Agent{{ID: 1, Name: "a"}}, nil
}

func (s *scriptedClient) DeleteAgent(context.Context, int64) error {
	return s.next()
}

type recordingObserver struct {
	mu  sync.Mutex
	ops []string
}

func (o *recordingObserver) ObservePlatformCall(op string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
}

func testReliableConfig() ReliableConfig {
	return ReliableConfig{
		MaxAttempts:     3,
		BaseDelay:       time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		CallTimeout:     time.Second,
		BreakerFailures: 100,
		BreakerTimeout:  time.Second,
	}
}

func TestReliable_RetriesTransient(t *testing.T) {
	inner := &scriptedClient{errs: []error{
		&Error{Op: "list", StatusCode: 502, Transient: true},
		&Error{Op: "list", StatusCode: 429, Transient: true, RetryAfter: time.Millisecond},
	}}
	obs := &recordingObserver{}
	r := NewReliable(inner, testReliableConfig(), obs)

	agents, err := r.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Len(t, agents, 1)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, []string{"list_agents"}, obs.ops)
}

func TestReliable_NonTransientNotRetried(t *testing.T) {
	inner := &scriptedClient{errs: []error{&Error{Op: "delete", StatusCode: 404}}}
	r := NewReliable(inner, testReliableConfig(), nil)

	err := r.DeleteAgent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, inner.calls)
}

func TestReliable_GivesUpAfterMaxAttempts(t *testing.T) {
	transient := &Error{Op: "issue", StatusCode: 503, Transient: true}
	inner := &scriptedClient{errs: []error{transient, transient, transient, transient}}
	r := NewReliable(inner, testReliableConfig(), nil)

	_, err := r.IssueRegistrationToken(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, inner.calls)
}

func TestReliable_BreakerOpens(t *testing.T) {
	cfg := testReliableConfig()
	cfg.MaxAttempts = 1
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Hour

	transient := &Error{Op: "list", StatusCode: 500, Transient: true}
	inner := &scriptedClient{errs: []error{transient, transient, transient}}
	r := NewReliable(inner, cfg, nil)

	for range 2 {
		_, err := r.ListAgents(context.Background())
		require.Error(t, err)
	}
	_, err := r.ListAgents(context.Background())
	require.Error(t, err)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "circuit open", pe.Message)
	assert.Equal(t, 2, inner.calls)
}

func TestReliable_NotFoundDoesNotTripBreaker(t *testing.T) {
	cfg := testReliableConfig()
	cfg.BreakerFailures = 1
	nf := &Error{Op: "delete", StatusCode: 404}
	inner := &scriptedClient{errs: []error{nf, nf, nf}}
	r := NewReliable(inner, cfg, nil)

	for range 3 {
		assert.ErrorIs(t, r.DeleteAgent(context.Background(), 1), ErrNotFound)
	}
	assert.Equal(t, 3, inner.calls)
}
