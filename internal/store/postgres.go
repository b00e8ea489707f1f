package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/EternisAI/silo-runners/internal/db/sqlc"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Postgres is the durable Store. Quota and name uniqueness are enforced
// inside the database, so any number of replicas may share it.
type Postgres struct {
	pool    *pgxpool.Pool
	queries *sqlc.Queries
	now     func() time.Time
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool:    pool,
		queries: sqlc.New(pool),
		now:     time.Now,
	}
}

func (s *Postgres) inTx(ctx context.Context, fn func(q *sqlc.Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(s.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Postgres) Record(ctx context.Context, entries ledger.Entries) error {
	if entries.Empty() {
		return nil
	}
	return s.inTx(ctx, func(q *sqlc.Queries) error {
		return s.writeEntries(ctx, q, entries)
	})
}

func (s *Postgres) writeEntries(ctx context.Context, q *sqlc.Queries, entries ledger.Entries) error {
	for _, e := range entries.Audit {
		id, ts := entryIdentity(e.ID, e.Timestamp, s.now)
		payload, err := marshalPayload(e.Payload)
		if err != nil {
			return err
		}
		agentID, _ := parseUUID(e.AgentID)
		if err := q.InsertAuditEntry(ctx, sqlc.InsertAuditEntryParams{
			ID:      id,
			Ts:      ts,
			Actor:   e.Actor,
			AgentID: agentID,
			Kind:    string(e.Kind),
			Outcome: sqlc.AuditOutcome(e.Outcome),
			Payload: payload,
		}); err != nil {
			return fmt.Errorf("failed to write audit entry: %w", err)
		}
	}

	for _, e := range entries.Security {
		id, ts := entryIdentity(e.ID, e.Timestamp, s.now)
		payload, err := marshalPayload(e.Payload)
		if err != nil {
			return err
		}
		agentID, _ := parseUUID(e.AgentID)
		if err := q.InsertSecurityEvent(ctx, sqlc.InsertSecurityEventParams{
			ID:             id,
			Ts:             ts,
			Actor:          e.Actor,
			AgentID:        agentID,
			Kind:           string(e.Kind),
			Severity:       sqlc.SecuritySeverity(e.Severity),
			OriginalLabels: nonNil(e.OriginalLabels),
			ObservedLabels: nonNil(e.ObservedLabels),
			ActionTaken:    e.ActionTaken,
			Payload:        payload,
		}); err != nil {
			return fmt.Errorf("failed to write security event: %w", err)
		}
	}
	return nil
}

func entryIdentity(id string, ts time.Time, now func() time.Time) (pgtype.UUID, pgtype.Timestamptz) {
	pid, err := parseUUID(id)
	if err != nil || !pid.Valid {
		pid = pgtype.UUID{Bytes: uuid.New(), Valid: true}
	}
	if ts.IsZero() {
		ts = now()
	}
	return pid, pgtype.Timestamptz{Time: ts, Valid: true}
}

func marshalPayload(p map[string]any) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger payload: %w", err)
	}
	return data, nil
}

func unmarshalPayload(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"raw": string(data)}
	}
	return out
}

// parseUUID returns an invalid (NULL) UUID for the empty string.
func parseUUID(s string) (pgtype.UUID, error) {
	if s == "" {
		return pgtype.UUID{}, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return pgtype.UUID{Bytes: id, Valid: true}, nil
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

var _ Store = (*Postgres)(nil)
