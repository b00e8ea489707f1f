package store

import (
	"context"
	"fmt"

	"github.com/EternisAI/silo-runners/internal/db/sqlc"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/jackc/pgx/v5/pgtype"
)

func (s *Postgres) ListAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	f = f.Normalized()
	agentID, err := parseUUID(f.AgentID)
	if err != nil {
		return []ledger.AuditEntry{}, nil
	}

	params := sqlc.ListAuditEntriesParams{
		Actor:     nullText(f.Actor),
		AgentID:   agentID,
		Kind:      nullText(string(f.Kind)),
		RowLimit:  int32(f.Limit),
		RowOffset: int32(f.Offset),
	}
	if f.Outcome != "" {
		params.Outcome = sqlc.NullAuditOutcome{AuditOutcome: sqlc.AuditOutcome(f.Outcome), Valid: true}
	}
	if f.Since != nil {
		params.Since = pgtype.Timestamptz{Time: *f.Since, Valid: true}
	}
	if f.Until != nil {
		params.Until = pgtype.Timestamptz{Time: *f.Until, Valid: true}
	}

	rows, err := s.queries.ListAuditEntries(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	out := make([]ledger.AuditEntry, len(rows))
	for i, r := range rows {
		out[i] = ledger.AuditEntry{
			ID:        uuidString(r.ID),
			Timestamp: r.Ts.Time,
			Actor:     r.Actor,
			AgentID:   uuidString(r.AgentID),
			Kind:      ledger.Kind(r.Kind),
			Outcome:   ledger.Outcome(r.Outcome),
			Payload:   unmarshalPayload(r.Payload),
		}
	}
	return out, nil
}

func (s *Postgres) ListSecurityEvents(ctx context.Context, f ledger.SecurityFilter) ([]ledger.SecurityEvent, error) {
	f = f.Normalized()
	agentID, err := parseUUID(f.AgentID)
	if err != nil {
		return []ledger.SecurityEvent{}, nil
	}

	params := sqlc.ListSecurityEventsParams{
		Actor:     nullText(f.Actor),
		AgentID:   agentID,
		Kind:      nullText(string(f.Kind)),
		RowLimit:  int32(f.Limit),
		RowOffset: int32(f.Offset),
	}
	if f.Severity != "" {
		params.Severity = sqlc.NullSecuritySeverity{SecuritySeverity: sqlc.SecuritySeverity(f.Severity), Valid: true}
	}
	if f.Since != nil {
		params.Since = pgtype.Timestamptz{Time: *f.Since, Valid: true}
	}
	if f.Until != nil {
		params.Until = pgtype.Timestamptz{Time: *f.Until, Valid: true}
	}

	rows, err := s.queries.ListSecurityEvents(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}

	out := make([]ledger.SecurityEvent, len(rows))
	for i, r := range rows {
		out[i] = ledger.SecurityEvent{
			ID:             uuidString(r.ID),
			Timestamp:      r.Ts.Time,
			Actor:          r.Actor,
			AgentID:        uuidString(r.AgentID),
			Kind:           ledger.SecurityKind(r.Kind),
			Severity:       ledger.Severity(r.Severity),
			OriginalLabels: r.OriginalLabels,
			ObservedLabels: r.ObservedLabels,
			ActionTaken:    r.ActionTaken,
			Payload:        unmarshalPayload(r.Payload),
		}
	}
	return out, nil
}
