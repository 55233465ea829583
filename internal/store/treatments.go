package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/danmuck/pumpctl/internal/pump"
)

// InsertCarbsIfNewByTimestamp inserts c unless valid carbs already exist at
// the same timestamp.
func (s *Store) InsertCarbsIfNewByTimestamp(ctx context.Context, c pump.Carbs) (Result, error) {
	return s.inTx(ctx, "insert carbs if new", func(tx *sql.Tx, res *Result) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM carbs WHERE timestamp = ? AND is_valid = 1 LIMIT 1`, c.Timestamp).Scan(&id)
		if ok, err := notFound(err); err != nil || ok {
			return err
		}
		r, err := tx.ExecContext(ctx, `
			INSERT INTO carbs (timestamp, amount, duration, temporary_id, pump_id, end_id, pump_type, pump_serial, is_valid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			c.Timestamp, c.Amount, c.Duration, nullInt(c.IDs.TemporaryID), nullInt(c.IDs.PumpID), nullInt(c.IDs.EndID),
			string(c.IDs.Origin.Type), c.IDs.Origin.Serial,
		)
		if err != nil {
			return fmt.Errorf("insert carbs: %w", err)
		}
		newID, err := lastID(r)
		if err != nil {
			return err
		}
		res.Inserted = append(res.Inserted, newID)
		return nil
	})
}

// InsertTherapyEventIfNewByTimestamp inserts e unless a valid therapy event
// of the same type exists at the same timestamp. entry is written only when
// a row is inserted.
func (s *Store) InsertTherapyEventIfNewByTimestamp(ctx context.Context, e pump.TherapyEvent, entry UserEntry) (Result, error) {
	return s.inTx(ctx, "insert therapy event if new", func(tx *sql.Tx, res *Result) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM therapy_events WHERE timestamp = ? AND type = ? AND is_valid = 1 LIMIT 1`,
			e.Timestamp, string(e.Type)).Scan(&id)
		if ok, err := notFound(err); err != nil || ok {
			return err
		}
		r, err := tx.ExecContext(ctx, `
			INSERT INTO therapy_events (timestamp, type, duration, note, entered_by, temporary_id, pump_id, end_id, pump_type, pump_serial, is_valid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			e.Timestamp, string(e.Type), e.Duration, e.Note, e.EnteredBy,
			nullInt(e.IDs.TemporaryID), nullInt(e.IDs.PumpID), nullInt(e.IDs.EndID),
			string(e.IDs.Origin.Type), e.IDs.Origin.Serial,
		)
		if err != nil {
			return fmt.Errorf("insert therapy event: %w", err)
		}
		newID, err := lastID(r)
		if err != nil {
			return err
		}
		res.Inserted = append(res.Inserted, newID)
		return insertUserEntry(ctx, tx, entry)
	})
}

// TherapyEvents lists valid therapy events with timestamp >= from.
func (s *Store) TherapyEvents(ctx context.Context, from int64) ([]pump.TherapyEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, type, duration, note, entered_by, pump_id, pump_type, pump_serial, is_valid
		FROM therapy_events WHERE timestamp >= ? AND is_valid = 1 ORDER BY timestamp, id`, from)
	if err != nil {
		return nil, fmt.Errorf("list therapy events: %w", err)
	}
	defer rows.Close()
	var out []pump.TherapyEvent
	for rows.Next() {
		var (
			e                pump.TherapyEvent
			eventType, pType string
			pumpID           sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &e.Duration, &e.Note, &e.EnteredBy, &pumpID, &pType, &e.IDs.Origin.Serial, &e.Valid); err != nil {
			return nil, fmt.Errorf("scan therapy event: %w", err)
		}
		e.Type = pump.TherapyEventType(eventType)
		e.IDs.Origin.Type = pump.Type(pType)
		e.IDs.PumpID = ptrInt(pumpID)
		out = append(out, e)
	}
	return out, rows.Err()
}
