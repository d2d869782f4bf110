// Package postgres implements the storage interfaces backed by
// PostgreSQL. The capacity reservation is a conditional increment on
// the pool counter row inside the same transaction as the signup
// insert, so a lost race on the last slot rolls back completely.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/launchwave/launchwave/internal/audit"
	"github.com/launchwave/launchwave/internal/domain/signup"
	"github.com/launchwave/launchwave/internal/storage"
)

// Store implements the storage interfaces using a database handle.
type Store struct {
	db *sql.DB
}

var _ storage.CapacityStore = (*Store)(nil)
var _ storage.SignupStore = (*Store)(nil)
var _ storage.WaveStore = (*Store)(nil)
var _ audit.Sink = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsurePools upserts the pool counter rows for the configured caps.
// Occupancy of existing rows is preserved.
func (s *Store) EnsurePools(ctx context.Context, pools []signup.Pool) error {
	for _, p := range pools {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO pool_counters (name, cap, occupancy)
			VALUES ($1, $2, 0)
			ON CONFLICT (name) DO UPDATE SET cap = EXCLUDED.cap
		`, string(p.Name), p.Cap)
		if err != nil {
			return err
		}
	}
	return nil
}

// --- CapacityStore ----------------------------------------------------------

func (s *Store) ReserveAndCreate(ctx context.Context, wanted []signup.PoolName, build storage.BuildFunc) (signup.Signup, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return signup.Signup{}, err
	}
	defer tx.Rollback()

	granted := make(map[signup.PoolName]bool, len(wanted))
	for _, name := range wanted {
		// Conditional increment: the row lock serializes concurrent
		// reservations, and the predicate keeps occupancy under cap.
		res, err := tx.ExecContext(ctx, `
			UPDATE pool_counters
			SET occupancy = occupancy + 1
			WHERE name = $1 AND occupancy < cap
		`, string(name))
		if err != nil {
			return signup.Signup{}, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return signup.Signup{}, err
		}
		granted[name] = rows > 0
	}

	row := build(granted)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO signups (id, email, is_creator, tester_requested, tester_granted, pool, tester_pool, wave_number, status, promoted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, row.ID, row.Email, row.IsCreator, row.TesterRequested, row.TesterGranted,
		string(row.Pool), string(row.TesterPool), toNullWave(row.Wave), string(row.Status),
		toNullTime(row.PromotedAt), row.CreatedAt, row.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return signup.Signup{}, storage.ErrDuplicateSignup
		}
		return signup.Signup{}, err
	}

	if err := tx.Commit(); err != nil {
		return signup.Signup{}, err
	}
	return row, nil
}

func (s *Store) ListPools(ctx context.Context) ([]storage.PoolStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, cap, occupancy
		FROM pool_counters
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []storage.PoolStatus
	for rows.Next() {
		var (
			name string
			ps   storage.PoolStatus
		)
		if err := rows.Scan(&name, &ps.Cap, &ps.Occupancy); err != nil {
			return nil, err
		}
		ps.Name = signup.PoolName(name)
		result = append(result, ps)
	}
	return result, rows.Err()
}

// --- SignupStore ------------------------------------------------------------

func (s *Store) CreateSignup(ctx context.Context, row signup.Signup) (signup.Signup, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	if row.Status == "" {
		row.Status = signup.StatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signups (id, email, is_creator, tester_requested, tester_granted, pool, tester_pool, wave_number, status, promoted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, row.ID, row.Email, row.IsCreator, row.TesterRequested, row.TesterGranted,
		string(row.Pool), string(row.TesterPool), toNullWave(row.Wave), string(row.Status),
		toNullTime(row.PromotedAt), row.CreatedAt, row.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return signup.Signup{}, storage.ErrDuplicateSignup
		}
		return signup.Signup{}, err
	}
	return row, nil
}

const signupColumns = `id, email, is_creator, tester_requested, tester_granted, pool, tester_pool, wave_number, status, promoted_at, created_at, updated_at`

func (s *Store) GetSignup(ctx context.Context, id string) (signup.Signup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+signupColumns+`
		FROM signups
		WHERE id = $1
	`, id)
	return scanSignup(row)
}

func (s *Store) GetSignupByEmail(ctx context.Context, email string) (signup.Signup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+signupColumns+`
		FROM signups
		WHERE email = $1
	`, email)
	return scanSignup(row)
}

// --- WaveStore --------------------------------------------------------------

func (s *Store) ListPendingByWave(ctx context.Context, wave, limit int) ([]signup.Signup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+signupColumns+`
		FROM signups
		WHERE wave_number = $1 AND status = $2
		ORDER BY created_at, id
		LIMIT $3
	`, wave, string(signup.StatusPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []signup.Signup
	for rows.Next() {
		su, err := scanSignup(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, su)
	}
	return result, rows.Err()
}

func (s *Store) TransitionWave(ctx context.Context, ids []string, fromWave, toWave int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	// Single statement: either the whole batch applies or none of it,
	// and rows already out of (fromWave, pending) are excluded by the
	// predicate rather than by any dedup bookkeeping.
	res, err := s.db.ExecContext(ctx, `
		UPDATE signups
		SET wave_number = $1, status = $2, promoted_at = $3, updated_at = $3
		WHERE id = ANY($4) AND wave_number = $5 AND status = $6
	`, toWave, string(signup.StatusActive), now, pq.Array(ids), fromWave, string(signup.StatusPending))
	if err != nil {
		return 0, err
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(moved), nil
}

func (s *Store) DeleteUnassigned(ctx context.Context, limit int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM signups
		WHERE id IN (
			SELECT id FROM signups
			WHERE wave_number IS NULL AND pool = '' AND tester_pool = ''
			ORDER BY created_at, id
			LIMIT $1
		)
	`, limit)
	if err != nil {
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

func (s *Store) GetWaveStatus(ctx context.Context, wave int) (signup.WaveStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $2),
		       COUNT(*) FILTER (WHERE status = $3),
		       MAX(promoted_at)
		FROM signups
		WHERE wave_number = $1
	`, wave, string(signup.StatusActive), string(signup.StatusPending))

	var (
		status       signup.WaveStatus
		lastPromoted sql.NullTime
	)
	if err := row.Scan(&status.TotalUsers, &status.ActiveUsers, &status.PendingUsers, &lastPromoted); err != nil {
		return signup.WaveStatus{}, err
	}
	status.Wave = wave
	if lastPromoted.Valid {
		status.LastPromotedAt = lastPromoted.Time.UTC()
	}
	return status, nil
}

// --- audit.Sink -------------------------------------------------------------

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor, action, target, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.Actor, entry.Action, entry.Target, metadataJSON, entry.Timestamp)
	return err
}

// Helpers ---------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignup(row rowScanner) (signup.Signup, error) {
	var (
		su         signup.Signup
		pool       string
		testerPool string
		status     string
		wave       sql.NullInt64
		promotedAt sql.NullTime
	)
	err := row.Scan(&su.ID, &su.Email, &su.IsCreator, &su.TesterRequested, &su.TesterGranted,
		&pool, &testerPool, &wave, &status, &promotedAt, &su.CreatedAt, &su.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return signup.Signup{}, storage.ErrNotFound
		}
		return signup.Signup{}, err
	}
	su.Pool = signup.PoolName(pool)
	su.TesterPool = signup.PoolName(testerPool)
	su.Status = signup.Status(status)
	if wave.Valid {
		su.Wave = int(wave.Int64)
	}
	if promotedAt.Valid {
		su.PromotedAt = promotedAt.Time.UTC()
	}
	return su, nil
}

func toNullWave(wave int) sql.NullInt64 {
	if wave <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(wave), Valid: true}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
