// Package sqlite persists the feature tracker in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/autodev/pkg/domain"
	"github.com/nstogner/autodev/pkg/features"
)

// Store implements features.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Verify interface compliance at compile time.
var _ features.Store = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs
// migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS features (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		priority INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		steps TEXT NOT NULL DEFAULT '[]',
		state TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_features_state_priority ON features(state, priority);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) CreateBulk(ctx context.Context, feats []domain.Feature) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var maxPriority int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(priority), 0) FROM features`).Scan(&maxPriority); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ids := make([]int64, 0, len(feats))
	for _, f := range feats {
		priority := f.Priority
		if priority == 0 {
			maxPriority++
			priority = maxPriority
		}
		steps, err := json.Marshal(f.Steps)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO features (priority, category, name, description, steps, state, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			priority, f.Category, f.Name, f.Description, string(steps),
			domain.FeatureStatePending, now, now)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.Feature, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, priority, category, name, description, steps, state, created_at, updated_at
		 FROM features WHERE id = ?`, id)
	return scanFeature(row)
}

func (s *Store) Stats(ctx context.Context) (domain.FeatureStats, error) {
	var stats domain.FeatureStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN state = 'passing' THEN 1 END),
			COUNT(CASE WHEN state = 'in_progress' THEN 1 END),
			COUNT(*)
		FROM features`).Scan(&stats.Passing, &stats.InProgress, &stats.Total)
	if err != nil {
		return domain.FeatureStats{}, err
	}
	return stats, nil
}

func (s *Store) NextPending(ctx context.Context) (*domain.Feature, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, priority, category, name, description, steps, state, created_at, updated_at
		 FROM features WHERE state = ? ORDER BY priority ASC, id ASC LIMIT 1`,
		domain.FeatureStatePending)
	f, err := scanFeature(row)
	if errors.Is(err, features.ErrNotFound) {
		return nil, features.ErrNoPending
	}
	return f, err
}

func (s *Store) ForRegression(ctx context.Context, limit int) ([]domain.Feature, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, priority, category, name, description, steps, state, created_at, updated_at
		 FROM features WHERE state = ? ORDER BY RANDOM() LIMIT ?`,
		domain.FeatureStatePassing, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feats []domain.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		feats = append(feats, *f)
	}
	return feats, rows.Err()
}

func (s *Store) MarkPassing(ctx context.Context, id int64) error {
	return s.setState(ctx, id, domain.FeatureStatePassing)
}

func (s *Store) MarkInProgress(ctx context.Context, id int64) error {
	return s.setState(ctx, id, domain.FeatureStateInProgress)
}

func (s *Store) setState(ctx context.Context, id int64, state string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE features SET state = ?, updated_at = ? WHERE id = ?`,
		state, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return features.ErrNotFound
	}
	return nil
}

func (s *Store) Skip(ctx context.Context, id int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var maxPriority int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(priority), 0) FROM features`).Scan(&maxPriority); err != nil {
		return 0, err
	}
	newPriority := maxPriority + 1

	res, err := tx.ExecContext(ctx,
		`UPDATE features SET priority = ?, state = ?, updated_at = ? WHERE id = ?`,
		newPriority, domain.FeatureStatePending, time.Now().UTC(), id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, features.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newPriority, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFeature(row scannable) (*domain.Feature, error) {
	var f domain.Feature
	var steps string
	err := row.Scan(&f.ID, &f.Priority, &f.Category, &f.Name, &f.Description,
		&steps, &f.State, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, features.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &f.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return &f, nil
}
