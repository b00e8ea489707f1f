package ledger

import (
	"context"
	"time"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type AuditFilter struct {
	Actor   string
	AgentID string
	Kind    Kind
	Outcome Outcome
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}

type SecurityFilter struct {
	Actor    string
	AgentID  string
	Kind     SecurityKind
	Severity Severity
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// NormalizeLimit applies the default page size and the upper cap.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func (f AuditFilter) Normalized() AuditFilter {
	f.Limit = NormalizeLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f SecurityFilter) Normalized() SecurityFilter {
	f.Limit = NormalizeLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether e passes every set field of the filter.
func (f AuditFilter) Matches(e *AuditEntry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	return inRange(e.Timestamp, f.Since, f.Until)
}

func (f SecurityFilter) Matches(e *SecurityEvent) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	return inRange(e.Timestamp, f.Since, f.Until)
}

func inRange(ts time.Time, since, until *time.Time) bool {
	if since != nil && ts.Before(*since) {
		return false
	}
	if until != nil && ts.After(*until) {
		return false
	}
	return true
}

// Reader is the query side of the ledger.
type Reader interface {
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
	ListSecurityEvents(ctx context.Context, f SecurityFilter) ([]SecurityEvent, error)
}
