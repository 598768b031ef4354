// Package storage provides SQLite-backed persistence for fired alerts.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tickwatch/tickwatch/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database holding the alert history.
type Storage struct {
	db        *sql.DB
	maxAlerts int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/tickwatch/data.db.
func New(maxAlerts int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "tickwatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxAlerts: maxAlerts}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Column names match the pre-existing alert history table so the stored
// records stay readable by the tooling already pointed at it.
func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id           TEXT PRIMARY KEY,
			timestamp    INTEGER NOT NULL,
			symbol       TEXT NOT NULL,
			price        REAL NOT NULL,
			criteria_hit TEXT NOT NULL,
			user_id      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertAlert appends a fired alert and enforces the retention cap.
func (s *Storage) InsertAlert(alert *models.Alert) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO alerts (id, timestamp, symbol, price, criteria_hit, user_id)
		VALUES (?,?,?,?,?,?)`,
		alert.ID, alert.FiredAt.UnixNano(), alert.Symbol, alert.Price, alert.Criteria, "",
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	if s.maxAlerts > 0 {
		if _, err = tx.Exec(`
			DELETE FROM alerts WHERE id NOT IN (
				SELECT id FROM alerts ORDER BY timestamp DESC LIMIT ?
			)`, s.maxAlerts); err != nil {
			return fmt.Errorf("failed to enforce alert cap: %w", err)
		}
	}

	return tx.Commit()
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Storage) RecentAlerts(limit int) ([]models.Alert, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, symbol, price, criteria_hit
		FROM alerts ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		var firedAtNano int64
		if err := rows.Scan(&a.ID, &firedAtNano, &a.Symbol, &a.Price, &a.Criteria); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.FiredAt = time.Unix(0, firedAtNano)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// CountAlerts returns the number of persisted alerts.
func (s *Storage) CountAlerts() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// PruneBefore deletes alerts fired before t.
func (s *Storage) PruneBefore(t time.Time) error {
	if _, err := s.db.Exec(`DELETE FROM alerts WHERE timestamp < ?`, t.UnixNano()); err != nil {
		return fmt.Errorf("failed to prune alerts: %w", err)
	}
	return nil
}
