package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type ReliableConfig struct {
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	Burst           int           `mapstructure:"burst"`
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

func DefaultReliableConfig() ReliableConfig {
	return ReliableConfig{
		RatePerSecond:   10,
		Burst:           5,
		MaxAttempts:     4,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		CallTimeout:     15 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Observer receives the outcome of every wrapped call.
type Observer interface {
	ObservePlatformCall(op string, d time.Duration, err error)
}

// Reliable wraps a Client with a client-side rate limit, a circuit breaker
// and bounded retries of transient failures.
type Reliable struct {
	next     Client
	cfg      ReliableConfig
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker
	observer Observer
}

func NewReliable(next Client, cfg ReliableConfig, observer Observer) *Reliable {
	def := DefaultReliableConfig()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	failures := cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "platform",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only upstream health problems count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Platform circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	return &Reliable{
		next:     next,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, burst),
		cb:       cb,
		observer: observer,
	}
}

func (r *Reliable) IssueRegistrationToken(ctx context.Context) (*RegistrationToken, error) {
	var out *RegistrationToken
	err := r.call(ctx, "issue_registration_token", func(ctx context.Context) error {
		var err error
		out, err = r.next.IssueRegistrationToken(ctx)
		return err
	})
	return out, err
}

func (r *Reliable) IssueJitConfig(ctx context.Context, req JitRequest) (*JitConfig, error) {
	var out *JitConfig
	err := r.call(ctx, "issue_jit_config", func(ctx context.Context) error {
		var err error
		out, err = r.next.IssueJitConfig(ctx, req)
		return err
	})
	return out, err
}

func (r *Reliable) ListAgents(ctx context.Context) ([]Agent, error) {
	var out []Agent
	err := r.call(ctx, "list_agents", func(ctx context.Context) error {
		var err error
		out, err = r.next.ListAgents(ctx)
		return err
	})
	return out, err
}

func (r *Reliable) DeleteAgent(ctx context.Context, agentID int64) error {
	return r.call(ctx, "delete_agent", func(ctx context.Context) error {
		return r.next.DeleteAgent(ctx, agentID)
	})
}

func (r *Reliable) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := r.execute(ctx, op, fn)
	if r.observer != nil {
		r.observer.ObservePlatformCall(op, time.Since(start), err)
	}
	return err
}

func (r *Reliable) execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	retrier := retry.New(
		retry.Context(ctx),
		retry.Attempts(r.cfg.MaxAttempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsTransient),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			if d := RetryAfter(err); d > 0 {
				return min(d, r.cfg.MaxDelay)
			}
			d := r.cfg.BaseDelay << n
			if d <= 0 || d > r.cfg.MaxDelay {
				return r.cfg.MaxDelay
			}
			return d
		}),
	)

	return retrier.Do(func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("platform rate limiter: %w", err)
		}

		_, err := r.cb.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
			defer cancel()
			return nil, fn(callCtx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &Error{Op: op, Message: "circuit open", Err: err}
		}
		if err != nil && IsTransient(err) {
			slog.Debug("Transient platform error", "op", op, "error", err)
		}
		return err
	})
}
