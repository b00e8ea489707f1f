package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrCycleInProgress = errors.New("reconciliation cycle already in progress")
	ErrLockHeld        = errors.New("reconciliation lock held by another replica")
)

const (
	defaultInterval     = 120 * time.Second
	defaultCycleTimeout = 5 * time.Minute
	// unhealthyAfter consecutive failed cycles the reconciler reports itself
	// as not serving.
	unhealthyAfter = 3
)

type RunnerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
	RunOnStart   bool          `mapstructure:"run_on_start"`
}

// CycleObserver is notified after every attempted cycle.
type CycleObserver interface {
	ObserveCycle(res *Result, err error)
}

// Status is a snapshot of the runner for the admin API and health checks.
type Status struct {
	Running             bool
	LastResult          *Result
	LastError           string
	LastRunAt           time.Time
	ConsecutiveFailures int
	Cycles              int
}

// Runner drives the engine on a ticker and on demand. At most one cycle runs
// per process; the Locker extends that across replicas.
type Runner struct {
	engine   *Engine
	cfg      RunnerConfig
	locker   Locker
	observer CycleObserver

	cycleMu sync.Mutex
	mu      sync.RWMutex
	status  Status

	// rootCtx parents every scheduled cycle and is cancelled by Stop.
	rootCtx  context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewRunner(engine *Engine, cfg RunnerConfig, locker Locker, observer CycleObserver) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}
	if locker == nil {
		locker = noopLocker{}
	}
	rootCtx, cancel := context.WithCancel(context.Background())
	return &Runner{
		engine:   engine,
		cfg:      cfg,
		locker:   locker,
		observer: observer,
		rootCtx:  rootCtx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *Runner) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.loop()
}

// Stop cancels an in-flight scheduled cycle and waits for the loop to exit.
// Deletions already under way still finish. Safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		close(r.stopCh)
	})
	if r.started.Load() {
		<-r.doneCh
	}
}

func (r *Runner) loop() {
	defer close(r.doneCh)

	if r.cfg.RunOnStart {
		r.scheduled()
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.scheduled()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Runner) scheduled() {
	ctx, cancel := context.WithTimeout(r.rootCtx, r.cfg.CycleTimeout)
	defer cancel()

	_, err := r.Trigger(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrCycleInProgress), errors.Is(err, ErrLockHeld):
		slog.Debug("Skipping scheduled reconciliation", "reason", err)
	default:
		slog.Error("Reconciliation cycle failed", "error", err)
	}
}

// Trigger runs one cycle now and returns its result. It never queues: if a
// cycle is already running it returns ErrCycleInProgress immediately.
func (r *Runner) Trigger(ctx context.Context) (*Result, error) {
	if !r.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer r.cycleMu.Unlock()

	release, ok, err := r.locker.Acquire(ctx)
	if err != nil {
		r.finish(nil, err)
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	defer release()

	r.mu.Lock()
	r.status.Running = true
	r.mu.Unlock()

	res, err := r.engine.RunCycle(ctx)
	r.finish(res, err)
	return res, err
}

func (r *Runner) finish(res *Result, err error) {
	r.mu.Lock()
	r.status.Running = false
	r.status.Cycles++
	r.status.LastRunAt = time.Now()
	if res != nil {
		r.status.LastResult = res
	}
	if err != nil {
		r.status.LastError = err.Error()
		r.status.ConsecutiveFailures++
	} else {
		r.status.LastError = ""
		r.status.ConsecutiveFailures = 0
	}
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.ObserveCycle(res, err)
	}
}

func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.status
	if s.LastResult != nil {
		cp := *s.LastResult
		s.LastResult = &cp
	}
	return s
}

// Healthy reports false once several cycles in a row have failed.
func (r *Runner) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.ConsecutiveFailures < unhealthyAfter
}
