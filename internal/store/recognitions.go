package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultHistoryLimit is used by RecentRecognitions when limit is not positive.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit caps a single RecentRecognitions call.
	MaxHistoryLimit = 500
)

// Recognition is one entry in the recognition history.
type Recognition struct {
	ID            string        `json:"id"`
	CreatedAt     time.Time     `json:"created_at"`
	MatchedRuleID string        `json:"matched_rule_id,omitempty"`
	Success       bool          `json:"success"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// RecordRecognition appends rec to the history, assigning an id and
// timestamp when missing. Returns the entry as stored.
func (s *Store) RecordRecognition(rec Recognition) (Recognition, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	var matched sql.NullString
	if rec.MatchedRuleID != "" {
		matched = sql.NullString{String: rec.MatchedRuleID, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO recognitions (id, created_at, matched_rule_id, success, elapsed_ms)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.Format(timeLayout), matched, rec.Success, rec.Elapsed.Milliseconds(),
	)
	if err != nil {
		return Recognition{}, fmt.Errorf("failed to record recognition: %w", err)
	}
	return rec, nil
}

// RecentRecognitions returns up to limit history entries, newest first.
func (s *Store) RecentRecognitions(limit int) ([]Recognition, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)
	rows, err := s.db.Query(`
		SELECT id, created_at, matched_rule_id, success, elapsed_ms
		FROM recognitions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Recognition, 0, limit)
	for rows.Next() {
		var (
			rec       Recognition
			createdAt string
			matched   sql.NullString
			elapsedMs int64
		)
		if err := rows.Scan(&rec.ID, &createdAt, &matched, &rec.Success, &elapsedMs); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("recognition %s: failed to parse created_at: %w", rec.ID, err)
		}
		rec.MatchedRuleID = matched.String
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}
