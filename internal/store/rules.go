package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/lens-match/internal/rules"
)

const ruleColumns = `id, name, kind, target, reference_embedding, similarity_threshold, feedback, created_at`

// SaveRule validates r and inserts or updates it.
//
// A rule without an id gets a new UUID. New rules are appended after every
// existing rule; updates keep their position. CreatedAt defaults to now for
// new rules and is never changed by an update. Returns the rule as stored.
func (s *Store) SaveRule(r rules.Rule) (rules.Rule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := r.Validate(); err != nil {
		return rules.Rule{}, err
	}
	r.Feedback = rules.NormalizeFeedback(r.Feedback)

	fb, err := json.Marshal(r.Feedback)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("failed to encode feedback: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return rules.Rule{}, err
	}
	defer tx.Rollback()

	var createdAt string
	err = tx.QueryRow("SELECT created_at FROM rules WHERE id = ?", r.ID).Scan(&createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now()
		}
		r.CreatedAt = r.CreatedAt.UTC()
		_, err = tx.Exec(`
			INSERT INTO rules (`+ruleColumns+`, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM rules))`,
			r.ID, r.Name, string(r.Kind), r.Target, encodeEmbedding(r.ReferenceEmbedding),
			r.SimilarityThreshold, string(fb), r.CreatedAt.Format(timeLayout),
		)
		if err != nil {
			return rules.Rule{}, fmt.Errorf("failed to insert rule %s: %w", r.ID, err)
		}
	case err != nil:
		return rules.Rule{}, err
	default:
		if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return rules.Rule{}, fmt.Errorf("failed to parse created_at for rule %s: %w", r.ID, err)
		}
		_, err = tx.Exec(`
			UPDATE rules SET name = ?, kind = ?, target = ?, reference_embedding = ?, similarity_threshold = ?, feedback = ?
			WHERE id = ?`,
			r.Name, string(r.Kind), r.Target, encodeEmbedding(r.ReferenceEmbedding),
			r.SimilarityThreshold, string(fb), r.ID,
		)
		if err != nil {
			return rules.Rule{}, fmt.Errorf("failed to update rule %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return rules.Rule{}, err
	}
	return r, nil
}

// GetRule returns the rule with the given id, or ErrNotFound.
func (s *Store) GetRule(id string) (rules.Rule, error) {
	row := s.db.QueryRow("SELECT "+ruleColumns+" FROM rules WHERE id = ?", id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rules.Rule{}, ErrNotFound
	}
	return r, err
}

// ListRules returns every rule in evaluation order.
//
// Rows that fail to decode (ErrCorruptRule) are logged and left out so one
// damaged record cannot take the whole rule set down with it.
func (s *Store) ListRules() ([]rules.Rule, error) {
	rows, err := s.db.Query("SELECT " + ruleColumns + " FROM rules ORDER BY position ASC, created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rs := []rules.Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if errors.Is(err, ErrCorruptRule) {
			s.logger.Warn("skipping unreadable rule", "rule", r.ID, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, rows.Err()
}

// DeleteRule removes the rule with the given id, or returns ErrNotFound.
func (s *Store) DeleteRule(id string) error {
	res, err := s.db.Exec("DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReorderRules moves the rules named in ids to the front of the evaluation
// order, in the order given. Rules not named keep their relative order after
// them. An unknown id returns ErrNotFound and changes nothing.
func (s *Store) ReorderRules(ids []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT id FROM rules ORDER BY position ASC, created_at ASC")
	if err != nil {
		return err
	}
	var current []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		current = append(current, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	known := make(map[string]bool, len(current))
	for _, id := range current {
		known[id] = true
	}
	moved := make(map[string]bool, len(ids))
	order := make([]string, 0, len(current))
	for _, id := range ids {
		if !known[id] {
			return fmt.Errorf("rule %s: %w", id, ErrNotFound)
		}
		if moved[id] {
			continue
		}
		moved[id] = true
		order = append(order, id)
	}
	for _, id := range current {
		if !moved[id] {
			order = append(order, id)
		}
	}

	for i, id := range order {
		if _, err := tx.Exec("UPDATE rules SET position = ? WHERE id = ?", i+1, id); err != nil {
			return fmt.Errorf("failed to reposition rule %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// SeedDefaults installs rules.DefaultRules when the store holds no rules.
// It returns the number of rules inserted.
func (s *Store) SeedDefaults() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM rules").Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	defaults := rules.DefaultRules()
	for _, r := range defaults {
		if _, err := s.SaveRule(r); err != nil {
			return 0, fmt.Errorf("failed to seed rule %s: %w", r.ID, err)
		}
	}
	return len(defaults), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRule decodes one row. On ErrCorruptRule the returned rule carries
// only its ID.
func scanRule(row rowScanner) (rules.Rule, error) {
	var (
		r         rules.Rule
		kind      string
		embedding []byte
		feedback  string
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.Name, &kind, &r.Target, &embedding, &r.SimilarityThreshold, &feedback, &createdAt); err != nil {
		return rules.Rule{}, err
	}
	r.Kind = rules.Kind(kind)
	corrupt := func(what string, err error) (rules.Rule, error) {
		return rules.Rule{ID: r.ID}, fmt.Errorf("rule %s: %w: %s: %w", r.ID, ErrCorruptRule, what, err)
	}

	var err error
	if r.ReferenceEmbedding, err = decodeEmbedding(embedding); err != nil {
		return corrupt("reference embedding", err)
	}
	if err := json.Unmarshal([]byte(feedback), &r.Feedback); err != nil {
		return corrupt("feedback", err)
	}
	if r.Feedback == nil {
		r.Feedback = []rules.Feedback{}
	}
	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return corrupt("created_at", err)
	}
	return r, nil
}
