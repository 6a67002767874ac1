package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cdpcrawler/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository. dbPath may be ":memory:".
func New(dbPath string) (*Repository, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; an in-memory database also lives and dies with
	// its single connection.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		key TEXT PRIMARY KEY,
		raw_label TEXT NOT NULL,
		management_address TEXT,
		platform TEXT,
		capabilities TEXT,
		serial TEXT,
		model TEXT,
		version TEXT,
		device_type TEXT,
		status TEXT NOT NULL,
		discovered_from TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		sequence INTEGER NOT NULL DEFAULT 0,
		run_id TEXT,
		discovered_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		done INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		stopped INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status);
	CREATE INDEX IF NOT EXISTS idx_devices_sequence ON devices(sequence);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Get retrieves a single device by key
func (r *Repository) Get(ctx context.Context, key string) (*domain.DeviceRecord, error) {
	var row deviceRow
	err := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE key = ?`, key,
	).Scan(row.scanArgs()...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	return row.toDomain(), nil
}

// Upsert inserts or replaces a device
func (r *Repository) Upsert(ctx context.Context, rec *domain.DeviceRecord) error {
	_, err := r.db.ExecContext(ctx, upsertDeviceSQL, deviceInsertArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", rec.Key, err)
	}
	return nil
}

const upsertDeviceSQL = `
	INSERT INTO devices (` + deviceColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		raw_label = excluded.raw_label,
		management_address = excluded.management_address,
		platform = excluded.platform,
		capabilities = excluded.capabilities,
		serial = excluded.serial,
		model = excluded.model,
		version = excluded.version,
		device_type = excluded.device_type,
		status = excluded.status,
		discovered_from = excluded.discovered_from,
		attempts = excluded.attempts,
		last_error = excluded.last_error,
		sequence = excluded.sequence,
		run_id = excluded.run_id,
		updated_at = excluded.updated_at,
		completed_at = excluded.completed_at
`

// UpsertAll writes many devices in one transaction
func (r *Repository) UpsertAll(ctx context.Context, recs []*domain.DeviceRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertDeviceSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, deviceInsertArgs(rec)...); err != nil {
			return fmt.Errorf("failed to upsert device %s: %w", rec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByStatus returns devices in any of statuses, ordered by discovery
// sequence. No statuses means all devices.
func (r *Repository) ListByStatus(ctx context.Context, statuses ...domain.DeviceStatus) ([]*domain.DeviceRecord, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices`
	args := make([]interface{}, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY sequence, key`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []*domain.DeviceRecord
	for rows.Next() {
		var row deviceRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, row.toDomain())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

// Reset removes every device, for a crawl that must not resume
func (r *Repository) Reset(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM devices`); err != nil {
		return fmt.Errorf("failed to clear devices: %w", err)
	}
	return nil
}

// SaveRun inserts or updates a crawl run
func (r *Repository) SaveRun(ctx context.Context, run *domain.CrawlRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			done = excluded.done,
			failed = excluded.failed,
			stopped = excluded.stopped
	`, runInsertArgs(run)...)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// LatestRun returns the most recently started run
func (r *Repository) LatestRun(ctx context.Context) (*domain.CrawlRun, error) {
	var row runRow
	err := r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(row.scanArgs()...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no crawl run recorded: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return row.toDomain(), nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
