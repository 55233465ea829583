package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/danmuck/pumpctl/internal/pump"
)

// UserEntry is one audit record written alongside the change it describes.
type UserEntry struct {
	ID        int64
	Timestamp int64
	Action    pump.Action
	Source    pump.Source
	Note      string
	Values    []pump.ValueWithUnit
}

func insertUserEntry(ctx context.Context, tx *sql.Tx, e UserEntry) error {
	vals := e.Values
	if vals == nil {
		vals = []pump.ValueWithUnit{}
	}
	raw, err := json.Marshal(vals)
	if err != nil {
		return fmt.Errorf("marshal user entry values: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_entries (timestamp, action, source, note, vals)
		VALUES (?, ?, ?, ?, ?)`,
		e.Timestamp, string(e.Action), string(e.Source), e.Note, string(raw),
	); err != nil {
		return fmt.Errorf("insert user entry: %w", err)
	}
	return nil
}

// UserEntries returns the newest limit audit entries, newest first.
func (s *Store) UserEntries(ctx context.Context, limit int) ([]UserEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, action, source, note, vals FROM user_entries
		ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list user entries: %w", err)
	}
	defer rows.Close()

	var out []UserEntry
	for rows.Next() {
		var (
			e              UserEntry
			action, source string
			raw            string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &action, &source, &e.Note, &raw); err != nil {
			return nil, fmt.Errorf("scan user entry: %w", err)
		}
		e.Action, e.Source = pump.Action(action), pump.Source(source)
		if err := json.Unmarshal([]byte(raw), &e.Values); err != nil {
			return nil, fmt.Errorf("unmarshal user entry %d values: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
