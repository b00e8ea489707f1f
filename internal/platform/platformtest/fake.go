// Package platformtest provides an in-memory platform for tests and local
// development.
package platformtest

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/EternisAI/silo-runners/internal/platform"
	"github.com/google/uuid"
)

// Fake is a platform.Client backed by a map. Error fields inject failures
// into the matching call.
type Fake struct {
	mu     sync.Mutex
	agents map[int64]*platform.Agent
	nextID int64

	IssueErr  error
	ListErr   error
	DeleteErr map[int64]error
	// Delay is applied to issuance calls, honouring ctx.
	Delay time.Duration

	IssueCalls  int
	ListCalls   int
	DeleteCalls []int64
}

func New() *Fake {
	return &Fake{
		agents:    make(map[int64]*platform.Agent),
		nextID:    1000,
		DeleteErr: make(map[int64]error),
	}
}

func (f *Fake) IssueRegistrationToken(ctx context.Context) (*platform.RegistrationToken, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.IssueCalls++
	if f.IssueErr != nil {
		return nil, f.IssueErr
	}
	return &platform.RegistrationToken{
		Token:     "REG" + uuid.NewString(),
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (f *Fake) IssueJitConfig(ctx context.Context, req platform.JitRequest) (*platform.JitConfig, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.IssueCalls++
	if f.IssueErr != nil {
		return nil, f.IssueErr
	}
	for _, a := range f.agents {
		if a.Name == req.Name {
			return nil, &platform.Error{Op: "generate jit config", StatusCode: http.StatusConflict, Message: "runner name already exists"}
		}
	}
	f.nextID++
	f.agents[f.nextID] = &platform.Agent{
		ID:     f.nextID,
		Name:   req.Name,
		Labels: slices.Clone(req.Labels),
	}
	return &platform.JitConfig{
		AgentID:       f.nextID,
		EncodedConfig: fmt.Sprintf("jit:%d:%s", f.nextID, req.Name),
	}, nil
}

func (f *Fake) ListAgents(context.Context) ([]platform.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]platform.Agent, 0, len(f.agents))
	for _, a := range f.agents {
		cp := *a
		cp.Labels = slices.Clone(a.Labels)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b platform.Agent) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (f *Fake) DeleteAgent(_ context.Context, agentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteCalls = append(f.DeleteCalls, agentID)
	if err := f.DeleteErr[agentID]; err != nil {
		return err
	}
	if _, ok := f.agents[agentID]; !ok {
		return &platform.Error{Op: "delete runner", StatusCode: http.StatusNotFound}
	}
	delete(f.agents, agentID)
	return nil
}

// Register simulates a runner registering itself with a registration token.
func (f *Fake) Register(name string, labels []string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.agents[f.nextID] = &platform.Agent{ID: f.nextID, Name: name, Labels: slices.Clone(labels), Online: true}
	return f.nextID
}

func (f *Fake) Put(a platform.Agent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := a
	cp.Labels = slices.Clone(a.Labels)
	f.agents[a.ID] = &cp
}

func (f *Fake) Update(id int64, fn func(a *platform.Agent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.agents[id]; ok {
		fn(a)
	}
}

func (f *Fake) Remove(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.agents, id)
}

func (f *Fake) Get(id int64) (platform.Agent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return platform.Agent{}, false
	}
	return *a, true
}

func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.agents)
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
