package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeFormat is fixed-width so created_at sorts as text.
	historyTimeFormat = "2006-01-02T15:04:05.000000Z07:00"
)

// RuleHistoryEntry is one recorded rule or enablement transition.
type RuleHistoryEntry struct {
	ID        int64     `json:"id"`
	Instance  string    `json:"instance"`
	Event     string    `json:"event"`
	Rule      any       `json:"rule"`
	Previous  any       `json:"previous"`
	Scheduled bool      `json:"scheduled"`
	CreatedAt time.Time `json:"created_at"`
}

// RuleHistoryRepository stores and retrieves rule transitions.
//
// Implementations must be thread-safe and use UTC timestamps.
type RuleHistoryRepository interface {
	// RecordRuleChange appends an entry. CreatedAt defaults to now.
	RecordRuleChange(ctx context.Context, entry RuleHistoryEntry) error

	// GetHistory returns the newest entries for an instance first.
	// limit defaults to 50 and is capped at 200.
	GetHistory(ctx context.Context, instance string, limit int) ([]RuleHistoryEntry, error)

	// PruneHistory deletes entries older than olderThan and returns how
	// many were removed.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRuleHistoryRepository implements RuleHistoryRepository using SQLite.
//
// Rules are stored as JSON so numbers and strings read back as written.
type SQLiteRuleHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteRuleHistoryRepository creates a history repository.
func NewSQLiteRuleHistoryRepository(db *sql.DB) *SQLiteRuleHistoryRepository {
	return &SQLiteRuleHistoryRepository{db: db}
}

// RecordRuleChange inserts an entry.
func (r *SQLiteRuleHistoryRepository) RecordRuleChange(ctx context.Context, entry RuleHistoryEntry) error {
	if entry.Instance == "" {
		return fmt.Errorf("instance name is required")
	}
	if entry.Event == "" {
		return fmt.Errorf("event is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	rule, err := encodeRule(entry.Rule)
	if err != nil {
		return err
	}
	previous, err := encodeRule(entry.Previous)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO rule_history (instance, event, rule, previous, scheduled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Instance,
		entry.Event,
		rule,
		previous,
		entry.Scheduled,
		entry.CreatedAt.UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting rule history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries for an instance, newest first.
func (r *SQLiteRuleHistoryRepository) GetHistory(ctx context.Context, instance string, limit int) ([]RuleHistoryEntry, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, instance, event, rule, previous, scheduled, created_at
		 FROM rule_history
		 WHERE instance = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		instance,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying rule history: %w", err)
	}
	defer rows.Close()

	entries := make([]RuleHistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry          RuleHistoryEntry
			rule, previous sql.NullString
			createdAt      string
		)
		if err := rows.Scan(&entry.ID, &entry.Instance, &entry.Event, &rule, &previous, &entry.Scheduled, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning rule history: %w", err)
		}
		if entry.Rule, err = decodeRule(rule); err != nil {
			return nil, err
		}
		if entry.Previous, err = decodeRule(previous); err != nil {
			return nil, err
		}
		if entry.CreatedAt, err = time.Parse(historyTimeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rule history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes entries older than olderThan.
func (r *SQLiteRuleHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeFormat)
	result, err := r.db.ExecContext(ctx, "DELETE FROM rule_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting rule history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func encodeRule(rule any) (sql.NullString, error) {
	if rule == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(rule)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshalling rule: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeRule(s sql.NullString) (any, error) {
	if !s.Valid {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, fmt.Errorf("unmarshalling rule: %w", err)
	}
	return v, nil
}
