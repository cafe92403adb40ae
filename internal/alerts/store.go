// Package alerts persists operational alerts so acknowledgements survive
// restarts. Alert IDs are rule identifiers; re-recording an existing
// alert is a no-op, and acknowledgement is one-way.
package alerts

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pavemetrics/overwatch/pkg/models"
)

// ErrNotFound is returned when an alert ID has never been recorded.
var ErrNotFound = errors.New("alert not found")

// Store is the sqlite-backed alert history.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the alert database under dataPath.
func OpenStore(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "alerts.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("opening alert database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS alerts (
		id             TEXT PRIMARY KEY,
		category       TEXT NOT NULL,
		severity       TEXT NOT NULL,
		message        TEXT NOT NULL,
		recommendation TEXT,
		created_at     INTEGER NOT NULL,
		acknowledged   INTEGER NOT NULL DEFAULT 0
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating alert schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record inserts new alerts. An ID that already exists is left untouched,
// including its acknowledged flag.
func (s *Store) Record(alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning alert insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO alerts
		(id, category, severity, message, recommendation, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing alert insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		if _, err := stmt.Exec(a.ID, string(a.Category), string(a.Severity),
			a.Message, a.Recommendation, a.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("inserting alert %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// Active returns unacknowledged alerts, highest severity first, newest
// first within a severity.
func (s *Store) Active() ([]models.Alert, error) {
	return s.query("WHERE acknowledged = 0")
}

// All returns the full alert history, acknowledged included.
func (s *Store) All() ([]models.Alert, error) {
	return s.query("")
}

func (s *Store) query(where string) ([]models.Alert, error) {
	rows, err := s.db.Query(`SELECT id, category, severity, message, recommendation, created_at, acknowledged
		FROM alerts ` + where + ` ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var category, severity string
		var createdAt int64
		if err := rows.Scan(&a.ID, &category, &severity, &a.Message,
			&a.Recommendation, &createdAt, &a.Acknowledged); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.Category = models.AlertCategory(category)
		a.Severity = models.AlertSeverity(severity)
		a.Timestamp = time.UnixMilli(createdAt).UTC()
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading alerts: %w", err)
	}

	// The query returns newest-first; the stable sort keeps that order
	// within a severity.
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity.Rank() > alerts[j].Severity.Rank()
	})
	return alerts, nil
}

// Acknowledge marks one alert as acknowledged. The transition is one-way;
// acknowledging an already-acknowledged alert is a no-op.
func (s *Store) Acknowledge(id string) error {
	res, err := s.db.Exec(`UPDATE alerts SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("acknowledging alert %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledging alert %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
