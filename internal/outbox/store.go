package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pavemetrics/overwatch/pkg/models"
)

// StorageError signals a durable-storage fault. Unlike delivery failures,
// these are fatal to the calling operation and must reach the operator.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("outbox storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// Store persists queued operations in an embedded SQLite database.
// Insertion order is preserved via rowid.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the outbox database under dataPath.
func OpenStore(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, storageErr("mkdir", err)
	}

	dbPath := filepath.Join(dataPath, "outbox.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, storageErr("open", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, storageErr("init schema", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS outbox (
		id TEXT PRIMARY KEY,
		method TEXT NOT NULL,
		target TEXT NOT NULL,
		body BLOB,
		created_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Append persists a queued operation at the tail of the queue.
func (s *Store) Append(ctx context.Context, op models.QueuedOperation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (id, method, target, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		op.ID, string(op.Method), op.Target, []byte(op.Body), op.CreatedAt.UnixMilli())
	if err != nil {
		return storageErr("append", err)
	}
	return nil
}

// All returns every pending operation in insertion order.
func (s *Store) All(ctx context.Context) ([]models.QueuedOperation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, method, target, body, created_at FROM outbox ORDER BY rowid`)
	if err != nil {
		return nil, storageErr("list", err)
	}
	defer rows.Close()

	var ops []models.QueuedOperation
	for rows.Next() {
		var (
			op        models.QueuedOperation
			method    string
			body      []byte
			createdAt int64
		)
		if err := rows.Scan(&op.ID, &method, &op.Target, &body, &createdAt); err != nil {
			return nil, storageErr("scan", err)
		}
		op.Method = models.OperationMethod(method)
		op.Body = body
		op.CreatedAt = millisToTime(createdAt)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", err)
	}

	return ops, nil
}

// Remove deletes a delivered operation from the queue.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return storageErr("remove", err)
	}
	return nil
}

// Count returns the number of pending operations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
