package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EternisAI/silo-runners/internal/agents"
	"github.com/EternisAI/silo-runners/internal/db/sqlc"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func (s *Postgres) ReserveAgent(ctx context.Context, r Reservation) (*agents.Agent, error) {
	teamID, err := parseUUID(r.TeamID)
	if err != nil {
		return nil, err
	}
	ownerKey := r.OwnerKey()

	var row sqlc.Agent
	err = s.inTx(ctx, func(q *sqlc.Queries) error {
		// Serializes concurrent reservations for the same owner until commit.
		if err := q.LockOwnerKey(ctx, ownerKey); err != nil {
			return fmt.Errorf("failed to lock owner: %w", err)
		}

		count, err := q.CountLiveAgentsByOwnerKey(ctx, ownerKey)
		if err != nil {
			return fmt.Errorf("failed to count agents: %w", err)
		}
		if int(count) >= r.MaxConcurrent {
			return &QuotaExceededError{OwnerKey: ownerKey, Current: int(count), Limit: r.MaxConcurrent}
		}

		row, err = q.InsertAgentReservation(ctx, sqlc.InsertAgentReservationParams{
			ID:            pgtype.UUID{Bytes: uuid.New(), Valid: true},
			Name:          r.Name,
			Labels:        nonNil(r.Labels),
			Ephemeral:     r.Ephemeral,
			IssuanceMode:  sqlc.IssuanceMode(r.Mode),
			Owner:         r.Owner,
			TeamID:        teamID,
			OwnerKey:      ownerKey,
			RunnerGroupID: r.RunnerGroupID,
		})
		if err != nil {
			if isUniqueViolation(err) {
				return ErrNameTaken
			}
			return fmt.Errorf("failed to insert reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a := toAgent(row)
	return &a, nil
}

func (s *Postgres) FinalizeAgent(ctx context.Context, f Finalization, entries ledger.Entries) (*agents.Agent, error) {
	id, err := parseUUID(f.AgentID)
	if err != nil {
		return nil, err
	}

	params := sqlc.FinalizeAgentParams{
		ID:                  id,
		Labels:              nonNil(f.Labels),
		BootstrapSecretHash: nullText(f.SecretHash),
		CredentialExpiresAt: timestamptz(f.CredentialExpiresAt),
	}
	if f.PlatformAgentID != nil {
		params.PlatformAgentID = pgtype.Int8{Int64: *f.PlatformAgentID, Valid: true}
	}

	var row sqlc.Agent
	err = s.inTx(ctx, func(q *sqlc.Queries) error {
		var err error
		row, err = q.FinalizeAgent(ctx, params)
		if err != nil {
			return notFound(err)
		}
		return s.writeEntries(ctx, q, entries)
	})
	if err != nil {
		return nil, err
	}

	a := toAgent(row)
	return &a, nil
}

func (s *Postgres) ReleaseReservation(ctx context.Context, agentID string, entries ledger.Entries) error {
	id, err := parseUUID(agentID)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(q *sqlc.Queries) error {
		n, err := q.DeleteAgentReservation(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to release reservation: %w", err)
		}
		if n == 0 {
			slog.Warn("Reservation already gone", "agent_id", agentID)
		}
		return s.writeEntries(ctx, q, entries)
	})
}

func (s *Postgres) MarkDeleted(ctx context.Context, agentID string, entries ledger.Entries) (*agents.Agent, error) {
	id, err := parseUUID(agentID)
	if err != nil {
		return nil, ErrNotFound
	}

	var row sqlc.Agent
	err = s.inTx(ctx, func(q *sqlc.Queries) error {
		var err error
		row, err = q.MarkAgentDeleted(ctx, id)
		if err != nil {
			return notFound(err)
		}
		return s.writeEntries(ctx, q, entries)
	})
	if err != nil {
		return nil, err
	}

	a := toAgent(row)
	return &a, nil
}

func (s *Postgres) GetAgent(ctx context.Context, id string) (*agents.Agent, error) {
	pid, err := parseUUID(id)
	if err != nil || !pid.Valid {
		return nil, ErrNotFound
	}
	row, err := s.queries.GetAgentByID(ctx, pid)
	if err != nil {
		return nil, notFound(err)
	}
	a := toAgent(row)
	return &a, nil
}

func (s *Postgres) GetLiveAgentByName(ctx context.Context, name string) (*agents.Agent, error) {
	row, err := s.queries.GetLiveAgentByName(ctx, name)
	if err != nil {
		return nil, notFound(err)
	}
	a := toAgent(row)
	return &a, nil
}

func (s *Postgres) ListAgents(ctx context.Context, f agents.Filter) ([]agents.Agent, error) {
	params := sqlc.ListVisibleAgentsParams{
		Owner:          nullText(f.Owner),
		TeamIds:        []pgtype.UUID{},
		IncludeDeleted: f.IncludeDeleted,
		RowLimit:       int32(ledger.NormalizeLimit(f.Limit)),
		RowOffset:      int32(max(f.Offset, 0)),
	}
	for _, t := range f.TeamIDs {
		id, err := parseUUID(t)
		if err != nil || !id.Valid {
			continue
		}
		params.TeamIds = append(params.TeamIds, id)
	}
	if f.Status != "" {
		params.Status = sqlc.NullAgentStatus{AgentStatus: sqlc.AgentStatus(f.Status), Valid: true}
	}

	rows, err := s.queries.ListVisibleAgents(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return toAgents(rows), nil
}

func (s *Postgres) ListLiveAgents(ctx context.Context) ([]agents.Agent, error) {
	rows, err := s.queries.ListLiveAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list live agents: %w", err)
	}
	return toAgents(rows), nil
}

func (s *Postgres) ApplyChanges(ctx context.Context, changes []Change, extra ledger.Entries) (int, error) {
	applied := 0
	err := s.inTx(ctx, func(q *sqlc.Queries) error {
		applied = 0
		for _, c := range changes {
			t := c.Transition
			id, err := parseUUID(t.AgentID)
			if err != nil {
				return err
			}
			params := sqlc.ApplyAgentTransitionParams{
				ToStatus:            sqlc.AgentStatus(t.To),
				ClearSecret:         t.ClearSecret,
				DriftObservedLabels: t.DriftObservedLabels,
				ID:                  id,
				FromStatus:          sqlc.AgentStatus(t.From),
			}
			if t.PlatformAgentID != nil {
				params.PlatformAgentID = pgtype.Int8{Int64: *t.PlatformAgentID, Valid: true}
			}
			if t.RegisteredAt != nil {
				params.RegisteredAt = pgtype.Timestamptz{Time: *t.RegisteredAt, Valid: true}
			}

			n, err := q.ApplyAgentTransition(ctx, params)
			if err != nil {
				return fmt.Errorf("failed to apply transition for agent %s: %w", t.AgentID, err)
			}
			if n == 0 {
				slog.Info("Skipping stale transition", "agent_id", t.AgentID, "from", t.From, "to", t.To)
				continue
			}
			if err := s.writeEntries(ctx, q, c.Entries); err != nil {
				return err
			}
			applied++
		}
		return s.writeEntries(ctx, q, extra)
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

func toAgents(rows []sqlc.Agent) []agents.Agent {
	out := make([]agents.Agent, len(rows))
	for i, r := range rows {
		out[i] = toAgent(r)
	}
	return out
}

func toAgent(r sqlc.Agent) agents.Agent {
	a := agents.Agent{
		ID:                  uuidString(r.ID),
		Name:                r.Name,
		Labels:              r.Labels,
		Status:              agents.Status(r.Status),
		Ephemeral:           r.Ephemeral,
		IssuanceMode:        agents.IssuanceMode(r.IssuanceMode),
		Owner:               r.Owner,
		TeamID:              uuidString(r.TeamID),
		RunnerGroupID:       r.RunnerGroupID,
		BootstrapSecretHash: r.BootstrapSecretHash.String,
		Issued:              r.Issued,
		DriftObservedLabels: r.DriftObservedLabels,
		CredentialExpiresAt: r.CredentialExpiresAt.Time,
		ProvisionedAt:       r.ProvisionedAt.Time,
		RegisteredAt:        timePtr(r.RegisteredAt),
		DeletedAt:           timePtr(r.DeletedAt),
		UpdatedAt:           r.UpdatedAt.Time,
	}
	if r.PlatformAgentID.Valid {
		id := r.PlatformAgentID.Int64
		a.PlatformAgentID = &id
	}
	return a
}
