package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store persists registration conversation state.
type Store interface {
	// Ping checks the backend connection.
	Ping(ctx context.Context) error

	// GetState returns the state for a user, or nil, nil when absent or expired.
	GetState(ctx context.Context, telegramID int64) (*RegistrationState, error)

	// SaveState inserts or replaces the state and refreshes its expiry.
	SaveState(ctx context.Context, state *RegistrationState) error

	// DeleteState removes the state for a user. Deleting a missing state is not an error.
	DeleteState(ctx context.Context, telegramID int64) error

	// DeleteExpiredStates removes states that expired at or before now.
	DeleteExpiredStates(ctx context.Context, now time.Time) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error

	Close() error
}

// sqlxStore implements Store on SQLite.
type sqlxStore struct {
	db     *sqlx.DB
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx. The schema must already be migrated.
func NewStore(db *sqlx.DB, ttl time.Duration, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &sqlxStore{
		db:     db,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) GetState(ctx context.Context, telegramID int64) (*RegistrationState, error) {
	var row stateRow
	err := s.db.GetContext(ctx, &row,
		`SELECT telegram_id, step, full_name, expires_at, updated_at
		   FROM registration_states
		  WHERE telegram_id = ? AND expires_at > ?`,
		telegramID, s.now().Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load registration state", "telegram_id", telegramID, "error", err)
		return nil, fmt.Errorf("failed to get registration state for %d: %w", telegramID, err)
	}
	return row.toState(), nil
}

func (s *sqlxStore) SaveState(ctx context.Context, state *RegistrationState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil registration state")
	}
	if state.TelegramID == 0 {
		return fmt.Errorf("registration state must have a non-zero telegram_id")
	}
	if !state.Step.Valid() {
		return fmt.Errorf("registration state has unknown step %q", state.Step)
	}

	now := s.now()
	state.ExpiresAt = now.Add(s.ttl).UTC().Truncate(time.Second)

	row := stateRow{
		TelegramID: state.TelegramID,
		Step:       string(state.Step),
		FullName:   state.FullName,
		ExpiresAt:  state.ExpiresAt.Unix(),
		UpdatedAt:  now.Unix(),
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO registration_states (telegram_id, step, full_name, expires_at, updated_at)
		 VALUES (:telegram_id, :step, :full_name, :expires_at, :updated_at)
		 ON CONFLICT(telegram_id) DO UPDATE SET
		   step = excluded.step,
		   full_name = excluded.full_name,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		row)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save registration state", "telegram_id", state.TelegramID, "error", err)
		return fmt.Errorf("failed to save registration state: %w", err)
	}

	s.logger.DebugContext(ctx, "Saved registration state", "telegram_id", state.TelegramID, "step", state.Step)
	return nil
}

func (s *sqlxStore) DeleteState(ctx context.Context, telegramID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM registration_states WHERE telegram_id = ?`, telegramID); err != nil {
		return fmt.Errorf("failed to delete registration state for %d: %w", telegramID, err)
	}
	return nil
}

func (s *sqlxStore) DeleteExpiredStates(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registration_states WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired registration states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted registration states: %w", err)
	}
	return n, nil
}

// RunSQLMaintenance runs VACUUM followed by ANALYZE.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM cannot run inside a transaction.
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
			return err
		}
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		return fmt.Errorf("failed to execute ANALYZE: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed successfully.")
	return nil
}

func (s *sqlxStore) Close() error {
	return s.db.Close()
}
