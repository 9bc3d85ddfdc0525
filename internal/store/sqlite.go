package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/bryonbaker/relay/internal/models"
)

// SQLiteStore implements Store using SQLite with the go-sqlite3 driver.
//
// Following the teacher's internal/database.SQLiteDB, the connection pool is
// capped at one open connection: WAL mode plus a single connection gives us
// implicit serialization of the read-then-conditional-write sequences every
// state transition below performs, without needing a row-versioning scheme.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// PRAGMAs required for correctness, and creates the notifications table and
// its indexes if they do not already exist.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.applyPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("sqlite store initialised", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) createSchema() error {
	const createTable = `
CREATE TABLE IF NOT EXISTS notifications (
    id              TEXT PRIMARY KEY,
    vendor_name     TEXT NOT NULL,
    target_url      TEXT NOT NULL,
    http_method     TEXT NOT NULL,
    headers_json    TEXT NOT NULL DEFAULT '{}',
    body            TEXT NOT NULL DEFAULT '',
    idempotency_key TEXT,
    status          TEXT NOT NULL,
    retry_count     INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL,
    next_retry_at   TEXT,
    attempts_json   TEXT NOT NULL DEFAULT '[]'
);`

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_idempotency_key
			ON notifications (idempotency_key)
			WHERE idempotency_key IS NOT NULL AND idempotency_key != '';`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_status_vendor
			ON notifications (status, vendor_name);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_status_next_retry
			ON notifications (status, next_retry_at);`,
	}

	if _, err := s.db.Exec(createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping() error { return s.db.Ping() }

// Insert persists a new notification, or returns the existing record if
// n.IdempotencyKey already resolves to one.
func (s *SQLiteStore) Insert(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if n.IdempotencyKey != "" {
		existing, err := s.FindByIdempotencyKey(ctx, n.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if err != ErrNotFound {
			return nil, err
		}
	}

	now := time.Now().UTC()
	n.ID = uuid.NewString()
	n.Status = models.StatusPending
	n.RetryCount = 0
	n.CreatedAt = now
	n.UpdatedAt = now
	n.NextRetryAt = nil
	n.Attempts = []models.DeliveryAttempt{}

	headersJSON, err := json.Marshal(n.Headers)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}
	attemptsJSON, err := json.Marshal(n.Attempts)
	if err != nil {
		return nil, fmt.Errorf("marshal attempts: %w", err)
	}

	const insert = `
INSERT INTO notifications (
    id, vendor_name, target_url, http_method, headers_json, body,
    idempotency_key, status, retry_count, created_at, updated_at,
    next_retry_at, attempts_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, insert,
		n.ID, n.VendorName, n.TargetURL, n.HTTPMethod, string(headersJSON), n.Body,
		nullableString(n.IdempotencyKey), n.Status, n.RetryCount,
		formatTime(n.CreatedAt), formatTime(n.UpdatedAt), nil, string(attemptsJSON),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			// Lost a race against a concurrent insert with the same
			// idempotency key; the other insert wins and both callers
			// observe the same row (spec.md §3 invariant 4).
			existing, findErr := s.FindByIdempotencyKey(ctx, n.IdempotencyKey)
			if findErr != nil {
				return nil, fmt.Errorf("insert notification: %w (and failed to resolve race: %v)", err, findErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	return n, nil
}

// FindByID retrieves a notification by its id.
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	return s.scanOne(ctx, selectColumns+" FROM notifications WHERE id = ?", id)
}

// FindByIdempotencyKey retrieves a notification by its idempotency key.
func (s *SQLiteStore) FindByIdempotencyKey(ctx context.Context, key string) (*models.Notification, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	return s.scanOne(ctx, selectColumns+" FROM notifications WHERE idempotency_key = ?", key)
}

// FindByStatus returns all notifications in the given status.
func (s *SQLiteStore) FindByStatus(ctx context.Context, status string) ([]*models.Notification, error) {
	return s.scanMany(ctx, selectColumns+" FROM notifications WHERE status = ? ORDER BY created_at ASC", status)
}

// FindByVendorNameAndStatus returns notifications matching both vendorName
// and status, backed by the {status, vendorName} index.
func (s *SQLiteStore) FindByVendorNameAndStatus(ctx context.Context, vendorName, status string) ([]*models.Notification, error) {
	return s.scanMany(ctx,
		selectColumns+" FROM notifications WHERE status = ? AND vendor_name = ? ORDER BY created_at ASC",
		status, vendorName)
}

// CountByStatus returns the number of notifications in the given status.
func (s *SQLiteStore) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications WHERE status = ?", status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count by status: %w", err)
	}
	return n, nil
}

// CountByVendorNameAndStatus returns the number of notifications matching
// both vendorName and status.
func (s *SQLiteStore) CountByVendorNameAndStatus(ctx context.Context, vendorName, status string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE status = ? AND vendor_name = ?", status, vendorName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count by vendor and status: %w", err)
	}
	return n, nil
}

// FindByStatusAndNextRetryAtBefore returns notifications in status whose
// next_retry_at is at or before t, backed by the {status, next_retry_at}
// index. Used by the sweeper (spec.md §4.8).
func (s *SQLiteStore) FindByStatusAndNextRetryAtBefore(ctx context.Context, status string, t time.Time) ([]*models.Notification, error) {
	return s.scanMany(ctx,
		selectColumns+` FROM notifications
			WHERE status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?
			ORDER BY next_retry_at ASC`,
		status, formatTime(t))
}

// MarkDelivered implements Store.MarkDelivered.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, id string, attempt models.DeliveryAttempt) (*models.Notification, error) {
	return s.transition(ctx, id, models.StatusPending, func(n *models.Notification) {
		n.Status = models.StatusDelivered
		n.NextRetryAt = nil
		n.Attempts = append(n.Attempts, attempt)
	})
}

// MarkFailed implements Store.MarkFailed.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, attempt models.DeliveryAttempt) (*models.Notification, error) {
	return s.transition(ctx, id, models.StatusPending, func(n *models.Notification) {
		n.Status = models.StatusFailed
		n.NextRetryAt = nil
		n.Attempts = append(n.Attempts, attempt)
	})
}

// ScheduleRetry implements Store.ScheduleRetry.
func (s *SQLiteStore) ScheduleRetry(ctx context.Context, id string, attempt models.DeliveryAttempt, nextRetryAt time.Time) (*models.Notification, error) {
	return s.transition(ctx, id, models.StatusPending, func(n *models.Notification) {
		n.Status = models.StatusPending
		n.RetryCount++
		nra := nextRetryAt
		n.NextRetryAt = &nra
		n.Attempts = append(n.Attempts, attempt)
	})
}

// CancelNotification implements Store.CancelNotification.
func (s *SQLiteStore) CancelNotification(ctx context.Context, id string) (*models.Notification, error) {
	return s.transition(ctx, id, models.StatusPending, func(n *models.Notification) {
		n.Status = models.StatusCancelled
		n.NextRetryAt = nil
	})
}

// ResetForRetry implements Store.ResetForRetry.
func (s *SQLiteStore) ResetForRetry(ctx context.Context, id string) (*models.Notification, error) {
	return s.transition(ctx, id, models.StatusFailed, func(n *models.Notification) {
		n.Status = models.StatusPending
		n.RetryCount = 0
		n.NextRetryAt = nil
	})
}

// transition performs a read-mutate-write sequence inside a transaction,
// only committing the mutation if the notification's current status equals
// requiredStatus. This is the precondition guard spec.md §5 requires for
// every state transition ("a delivery outcome updates the record only if
// current status is still PENDING").
func (s *SQLiteStore) transition(ctx context.Context, id, requiredStatus string, mutate func(*models.Notification)) (*models.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := s.scanOneTx(tx, selectColumns+" FROM notifications WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if n.Status != requiredStatus {
		return nil, ErrStateConflict
	}

	mutate(n)
	n.UpdatedAt = time.Now().UTC()

	headersJSON, err := json.Marshal(n.Headers)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}
	attemptsJSON, err := json.Marshal(n.Attempts)
	if err != nil {
		return nil, fmt.Errorf("marshal attempts: %w", err)
	}

	const update = `
UPDATE notifications SET
    status = ?, retry_count = ?, updated_at = ?, next_retry_at = ?, attempts_json = ?
WHERE id = ? AND status = ?`

	res, err := tx.ExecContext(ctx, update,
		n.Status, n.RetryCount, formatTime(n.UpdatedAt), nullableTime(n.NextRetryAt), string(attemptsJSON),
		id, requiredStatus,
	)
	if err != nil {
		return nil, fmt.Errorf("update notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race: another transition committed between our read
		// and write (e.g. a concurrent cancellation).
		return nil, ErrStateConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return n, nil
}

// DeleteOlderThan permanently removes terminal notifications last updated
// before cutoff.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	const del = `
DELETE FROM notifications
WHERE status IN (?, ?, ?) AND updated_at < ?`
	res, err := s.db.ExecContext(ctx, del,
		models.StatusDelivered, models.StatusFailed, models.StatusCancelled, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete older than: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA incremental_vacuum"); err != nil {
		s.logger.Warn("incremental vacuum failed", zap.Error(err))
	}

	return int(affected), nil
}

// DatabaseSizeBytes returns the current size of the store in bytes.
func (s *SQLiteStore) DatabaseSizeBytes(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("page_size: %w", err)
	}
	return pageCount * pageSize, nil
}

const selectColumns = `SELECT
    id, vendor_name, target_url, http_method, headers_json, body,
    idempotency_key, status, retry_count, created_at, updated_at,
    next_retry_at, attempts_json`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStore) scanOne(ctx context.Context, query string, args ...interface{}) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	return scanNotification(row)
}

func (s *SQLiteStore) scanOneTx(tx *sql.Tx, query string, args ...interface{}) (*models.Notification, error) {
	row := tx.QueryRow(query, args...)
	return scanNotification(row)
}

func (s *SQLiteStore) scanMany(ctx context.Context, query string, args ...interface{}) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var results []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var headersJSON, attemptsJSON, createdAt, updatedAt string
	var idempotencyKey, nextRetryAt sql.NullString

	err := row.Scan(
		&n.ID, &n.VendorName, &n.TargetURL, &n.HTTPMethod, &headersJSON, &n.Body,
		&idempotencyKey, &n.Status, &n.RetryCount, &createdAt, &updatedAt,
		&nextRetryAt, &attemptsJSON,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}

	n.IdempotencyKey = idempotencyKey.String

	if err := json.Unmarshal([]byte(headersJSON), &n.Headers); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	if err := json.Unmarshal([]byte(attemptsJSON), &n.Attempts); err != nil {
		return nil, fmt.Errorf("unmarshal attempts: %w", err)
	}

	n.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	n.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if nextRetryAt.Valid && nextRetryAt.String != "" {
		t, err := parseTime(nextRetryAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse next_retry_at: %w", err)
		}
		n.NextRetryAt = &t
	}

	return &n, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// isUniqueConstraintErr reports whether err is a SQLite UNIQUE constraint
// violation, matched on the driver's error string (mattn/go-sqlite3 does not
// expose a typed sentinel for this without a build-tag-gated import).
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
