// Package cdr stores one call detail record per served FastAGI session.
package cdr

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"fastami/internal/config"
)

// Record is the detail record of one call.
type Record struct {
	ID          int64     `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	Uniqueid    string    `db:"uniqueid" json:"uniqueid"`
	Channel     string    `db:"channel" json:"channel"`
	CallerID    string    `db:"caller_id" json:"caller_id"`
	Context     string    `db:"context" json:"context"`
	Extension   string    `db:"extension" json:"extension"`
	Answered    bool      `db:"answered" json:"answered"`
	DTMF        *string   `db:"dtmf" json:"dtmf,omitempty"`
	Disposition string    `db:"disposition" json:"disposition"`
	Duration    int       `db:"duration" json:"duration"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Repository handles the CDR table operations.
type Repository struct {
	db *sql.DB
}

// NewRepository opens the connection pool and verifies connectivity.
func NewRepository(cfg config.CDRConfig) (*Repository, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts the record at session start and returns its id.
func (r *Repository) Create(rec *Record) (int64, error) {
	query := `
		INSERT INTO fastami_cdr
			(session_id, uniqueid, channel, caller_id, context, extension,
			 answered, disposition, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())
	`
	res, err := r.db.Exec(query,
		rec.SessionID, rec.Uniqueid, rec.Channel, rec.CallerID,
		rec.Context, rec.Extension, rec.Answered, rec.Disposition, rec.Duration,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create CDR: %w", err)
	}
	return res.LastInsertId()
}

// Finish updates the record when the session ends.
func (r *Repository) Finish(id int64, answered bool, dtmf *string, disposition string, duration int) error {
	query := `
		UPDATE fastami_cdr
		SET answered = ?, dtmf = ?, disposition = ?, duration = ?
		WHERE id = ?
	`
	if _, err := r.db.Exec(query, answered, dtmf, disposition, duration, id); err != nil {
		return fmt.Errorf("failed to update CDR %d: %w", id, err)
	}
	return nil
}

// ListRecent returns the latest records, newest first.
func (r *Repository) ListRecent(limit int) ([]Record, error) {
	query := `
		SELECT id, session_id, uniqueid, channel, caller_id, context,
		       extension, answered, dtmf, disposition, duration, created_at
		FROM fastami_cdr
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list CDRs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.Uniqueid, &rec.Channel,
			&rec.CallerID, &rec.Context, &rec.Extension, &rec.Answered,
			&rec.DTMF, &rec.Disposition, &rec.Duration, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan CDR: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
