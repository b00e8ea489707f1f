package issuance

import (
	"errors"
	"fmt"

	"github.com/EternisAI/silo-runners/internal/platform"
)

var (
	ErrQuotaExceeded = errors.New("agent quota exceeded")
	ErrNameConflict  = errors.New("agent name conflict")
	ErrNotFound      = errors.New("agent not found")
	ErrPlatform      = errors.New("platform call failed")
	ErrStore         = errors.New("store operation failed")
	ErrInvalidMode   = errors.New("invalid issuance mode")
	ErrNameRequired  = errors.New("either a name or a name prefix is required")
)

type QuotaError struct {
	Current int
	Limit   int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("agent quota exceeded: %d of %d in use", e.Current, e.Limit)
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// NameConflictError is returned when the requested name is held by a live
// agent, or when no free name could be derived from Prefix.
type NameConflictError struct {
	Name   string
	Prefix string
}

func (e *NameConflictError) Error() string {
	if e.Prefix != "" {
		return fmt.Sprintf("could not find a free name for prefix %q after %d attempts", e.Prefix, maxNameAttempts)
	}
	return fmt.Sprintf("agent name %q is in use", e.Name)
}

func (e *NameConflictError) Is(target error) bool {
	return target == ErrNameConflict
}

// NotFoundError hides whether the agent is missing or simply not visible to
// the requester.
type NotFoundError struct {
	AgentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agent %s not found", e.AgentID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

func (e *PlatformError) Is(target error) bool {
	return target == ErrPlatform
}

// Transient reports whether the underlying platform failure may succeed on
// a later attempt.
func (e *PlatformError) Transient() bool {
	return platform.IsTransient(e.Err)
}

type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}
