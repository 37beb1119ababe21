// File: internal/store/store.go
// Description: Optional PostgreSQL persistence for terminal sessions. The
// pipeline itself never touches the store; the command layer persists the
// finished session when a database URL is configured.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var _ schemas.Store = (*Store)(nil)

// Store provides a PostgreSQL implementation of the session store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// PersistSession saves a terminal session with its units and test outcomes
// in one transaction. Sessions are written once; re-persisting the same ID
// is a caller error surfaced by the unique constraint.
func (s *Store) PersistSession(ctx context.Context, session *schemas.Session) error {
	if session == nil {
		return fmt.Errorf("session must not be nil")
	}
	if !session.Status.Terminal() {
		return fmt.Errorf("refusing to persist non-terminal session %s (status %s)", session.ID, session.Status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	const insertSession = `
        INSERT INTO chisel_sessions (id, status, overall_plan, current_index, total_source_lines, processed_source_lines, started_at, finished_at, error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `
	if _, err := tx.Exec(ctx, insertSession,
		session.ID, string(session.Status), session.OverallPlan,
		session.CurrentIndex, session.TotalSourceLines, session.ProcessedSourceLines,
		session.StartedAt.UTC(), session.FinishedAt.UTC(), session.Err,
	); err != nil {
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}

	if len(session.Units) > 0 {
		if err := s.persistUnits(ctx, tx, session); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Session persisted.",
		zap.String("session_id", session.ID), zap.Int("units", len(session.Units)))
	return nil
}

func (s *Store) persistUnits(ctx context.Context, tx pgx.Tx, session *schemas.Session) error {
	unitRows := make([][]interface{}, len(session.Units))
	var outcomeRows [][]interface{}

	for i, u := range session.Units {
		mappings, err := json.Marshal(u.FieldMappings)
		if err != nil {
			return fmt.Errorf("failed to marshal field mappings for unit %s: %w", u.ID, err)
		}
		if len(mappings) == 0 || string(mappings) == "null" {
			mappings = json.RawMessage("{}")
		}

		unitRows[i] = []interface{}{
			u.ID, session.ID, i, u.Name, u.SourceText, u.CandidateText,
			u.TestScript, u.Summary, mappings,
			u.HealingAttempts, string(u.Status), u.Verified, u.Err,
		}

		for j, o := range u.TestResults {
			outcomeRows = append(outcomeRows, []interface{}{
				u.ID, j, o.Name, string(o.Status), o.Message, o.Duration.Milliseconds(),
			})
		}
	}

	copied, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"chisel_units"},
		[]string{"id", "session_id", "ord", "name", "source_text", "candidate_text", "test_script", "summary", "field_mappings", "healing_attempts", "status", "verified", "error"},
		pgx.CopyFromRows(unitRows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy units: %w", err)
	}
	if int(copied) != len(unitRows) {
		return fmt.Errorf("mismatch in copied units count: expected %d, got %d", len(unitRows), copied)
	}

	if len(outcomeRows) == 0 {
		return nil
	}

	copied, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"chisel_test_outcomes"},
		[]string{"unit_id", "ord", "name", "status", "message", "duration_ms"},
		pgx.CopyFromRows(outcomeRows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy test outcomes: %w", err)
	}
	if int(copied) != len(outcomeRows) {
		return fmt.Errorf("mismatch in copied outcomes count: expected %d, got %d", len(outcomeRows), copied)
	}
	return nil
}

// GetSession retrieves a persisted session with its units and outcomes.
func (s *Store) GetSession(ctx context.Context, id string) (*schemas.Session, error) {
	const sessionQuery = `
        SELECT id, status, overall_plan, current_index, total_source_lines, processed_source_lines, started_at, finished_at, error
        FROM chisel_sessions
        WHERE id = $1;
    `
	rows, err := s.pool.Query(ctx, sessionQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error during session row iteration: %w", err)
		}
		return nil, fmt.Errorf("session %s not found", id)
	}

	var session schemas.Session
	var statusStr string
	if err := rows.Scan(
		&session.ID, &statusStr, &session.OverallPlan,
		&session.CurrentIndex, &session.TotalSourceLines, &session.ProcessedSourceLines,
		&session.StartedAt, &session.FinishedAt, &session.Err,
	); err != nil {
		return nil, fmt.Errorf("failed to scan session row: %w", err)
	}
	session.Status = schemas.SessionStatus(statusStr)
	rows.Close()

	units, err := s.getUnits(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Units = units
	return &session, nil
}

func (s *Store) getUnits(ctx context.Context, sessionID string) ([]*schemas.Unit, error) {
	const unitsQuery = `
        SELECT id, name, source_text, candidate_text, test_script, summary, field_mappings, healing_attempts, status, verified, error
        FROM chisel_units
        WHERE session_id = $1
        ORDER BY ord ASC;
    `
	rows, err := s.pool.Query(ctx, unitsQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	var units []*schemas.Unit
	for rows.Next() {
		var u schemas.Unit
		var statusStr string
		var mappings []byte
		if err := rows.Scan(
			&u.ID, &u.Name, &u.SourceText, &u.CandidateText, &u.TestScript,
			&u.Summary, &mappings, &u.HealingAttempts, &statusStr, &u.Verified, &u.Err,
		); err != nil {
			return nil, fmt.Errorf("failed to scan unit row: %w", err)
		}
		u.Status = schemas.UnitStatus(statusStr)
		if len(mappings) > 0 && string(mappings) != "null" {
			if err := json.Unmarshal(mappings, &u.FieldMappings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal field mappings for unit %s: %w", u.ID, err)
			}
		}
		units = append(units, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during unit row iteration: %w", err)
	}
	rows.Close()

	// Outcomes are fetched after the unit cursor is drained so a single
	// pooled connection never has to serve two open result sets.
	for _, u := range units {
		outcomes, err := s.getOutcomes(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		u.TestResults = outcomes
	}
	return units, nil
}

func (s *Store) getOutcomes(ctx context.Context, unitID string) ([]schemas.TestOutcome, error) {
	const outcomesQuery = `
        SELECT name, status, message, duration_ms
        FROM chisel_test_outcomes
        WHERE unit_id = $1
        ORDER BY ord ASC;
    `
	rows, err := s.pool.Query(ctx, outcomesQuery, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query test outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []schemas.TestOutcome
	for rows.Next() {
		var o schemas.TestOutcome
		var statusStr string
		var durationMs int64
		if err := rows.Scan(&o.Name, &statusStr, &o.Message, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		o.Status = schemas.TestStatus(statusStr)
		o.Duration = time.Duration(durationMs) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during outcome row iteration: %w", err)
	}
	return outcomes, nil
}
