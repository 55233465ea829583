package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/danmuck/pumpctl/internal/pump"
)

const bolusColumns = `id, timestamp, amount, type, temporary_id, pump_id, end_id, pump_type, pump_serial, is_valid`

func scanBolus(row rowScanner) (pump.Bolus, error) {
	var (
		b                   pump.Bolus
		bolusType, pumpType string
		tempID, pumpID, end sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.Timestamp, &b.Amount, &bolusType, &tempID, &pumpID, &end, &pumpType, &b.IDs.Origin.Serial, &b.Valid); err != nil {
		return pump.Bolus{}, err
	}
	b.Type = pump.BolusType(bolusType)
	b.IDs.Origin.Type = pump.Type(pumpType)
	b.IDs.TemporaryID, b.IDs.PumpID, b.IDs.EndID = ptrInt(tempID), ptrInt(pumpID), ptrInt(end)
	return b, nil
}

func insertBolus(ctx context.Context, tx *sql.Tx, b pump.Bolus) (int64, error) {
	r, err := tx.ExecContext(ctx, `
		INSERT INTO boluses (timestamp, amount, type, temporary_id, pump_id, end_id, pump_type, pump_serial, is_valid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		b.Timestamp, b.Amount, string(b.Type), nullInt(b.IDs.TemporaryID), nullInt(b.IDs.PumpID), nullInt(b.IDs.EndID),
		string(b.IDs.Origin.Type), b.IDs.Origin.Serial,
	)
	if err != nil {
		return 0, fmt.Errorf("insert bolus: %w", err)
	}
	return lastID(r)
}

func bolusByTemporaryID(ctx context.Context, tx *sql.Tx, tempID int64, origin pump.Origin) (pump.Bolus, bool, error) {
	b, err := scanBolus(tx.QueryRowContext(ctx, `SELECT `+bolusColumns+` FROM boluses
		WHERE temporary_id = ? AND pump_type = ? AND pump_serial = ? ORDER BY id LIMIT 1`,
		tempID, string(origin.Type), origin.Serial))
	ok, err := notFound(err)
	return b, ok, err
}

func bolusByPumpID(ctx context.Context, tx *sql.Tx, pumpID int64, origin pump.Origin) (pump.Bolus, bool, error) {
	b, err := scanBolus(tx.QueryRowContext(ctx, `SELECT `+bolusColumns+` FROM boluses
		WHERE pump_id = ? AND pump_type = ? AND pump_serial = ? ORDER BY id LIMIT 1`,
		pumpID, string(origin.Type), origin.Serial))
	ok, err := notFound(err)
	return b, ok, err
}

func updateBolus(ctx context.Context, tx *sql.Tx, b pump.Bolus) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE boluses SET timestamp = ?, amount = ?, type = ?, temporary_id = ?, pump_id = ?, end_id = ?, is_valid = ?
		WHERE id = ?`,
		b.Timestamp, b.Amount, string(b.Type), nullInt(b.IDs.TemporaryID), nullInt(b.IDs.PumpID), nullInt(b.IDs.EndID),
		boolInt(b.Valid), b.ID,
	)
	if err != nil {
		return fmt.Errorf("update bolus %d: %w", b.ID, err)
	}
	return nil
}

// InsertBolusWithTempID inserts b unless a bolus with its temporary id
// already exists for the same pump.
func (s *Store) InsertBolusWithTempID(ctx context.Context, b pump.Bolus) (Result, error) {
	return s.inTx(ctx, "insert bolus with temp id", func(tx *sql.Tx, res *Result) error {
		if b.IDs.TemporaryID == nil {
			return fmt.Errorf("temporary id required")
		}
		if _, ok, err := bolusByTemporaryID(ctx, tx, *b.IDs.TemporaryID, b.IDs.Origin); err != nil || ok {
			return err
		}
		id, err := insertBolus(ctx, tx, b)
		if err != nil {
			return err
		}
		res.Inserted = append(res.Inserted, id)
		return nil
	})
}

// SyncBolusWithTempID promotes the bolus recorded under b's temporary id
// with the pump's confirmed values. The stored type is kept unless
// typeOverride is set.
func (s *Store) SyncBolusWithTempID(ctx context.Context, b pump.Bolus, typeOverride *pump.BolusType) (Result, error) {
	return s.inTx(ctx, "sync bolus with temp id", func(tx *sql.Tx, res *Result) error {
		if b.IDs.TemporaryID == nil {
			return fmt.Errorf("temporary id required")
		}
		existing, ok, err := bolusByTemporaryID(ctx, tx, *b.IDs.TemporaryID, b.IDs.Origin)
		if err != nil || !ok {
			return err
		}
		existing.Timestamp = b.Timestamp
		existing.Amount = b.Amount
		if typeOverride != nil {
			existing.Type = *typeOverride
		}
		if b.IDs.PumpID != nil {
			existing.IDs.PumpID = b.IDs.PumpID
		}
		if err := updateBolus(ctx, tx, existing); err != nil {
			return err
		}
		res.Updated = append(res.Updated, existing.ID)
		return nil
	})
}

// SyncBolus upserts b by pump id. A known pump id is updated in place when
// its values changed.
func (s *Store) SyncBolus(ctx context.Context, b pump.Bolus, typeOverride *pump.BolusType) (Result, error) {
	return s.inTx(ctx, "sync bolus", func(tx *sql.Tx, res *Result) error {
		if b.IDs.PumpID == nil {
			return fmt.Errorf("pump id required")
		}
		existing, ok, err := bolusByPumpID(ctx, tx, *b.IDs.PumpID, b.IDs.Origin)
		if err != nil {
			return err
		}
		if !ok {
			id, err := insertBolus(ctx, tx, b)
			if err != nil {
				return err
			}
			res.Inserted = append(res.Inserted, id)
			return nil
		}
		changed := existing.Timestamp != b.Timestamp || existing.Amount != b.Amount
		existing.Timestamp, existing.Amount = b.Timestamp, b.Amount
		if typeOverride != nil && existing.Type != *typeOverride {
			existing.Type = *typeOverride
			changed = true
		}
		if !changed {
			return nil
		}
		if err := updateBolus(ctx, tx, existing); err != nil {
			return err
		}
		res.Updated = append(res.Updated, existing.ID)
		return nil
	})
}

// InvalidateBolus marks bolus id invalid and records entry.
func (s *Store) InvalidateBolus(ctx context.Context, id int64, entry UserEntry) (Result, error) {
	return s.invalidate(ctx, "invalidate bolus", "boluses", id, entry)
}

// NewestBolus returns the latest valid bolus.
func (s *Store) NewestBolus(ctx context.Context) (*pump.Bolus, error) {
	b, err := scanBolus(s.db.QueryRowContext(ctx, `SELECT `+bolusColumns+` FROM boluses
		WHERE is_valid = 1 ORDER BY timestamp DESC, id DESC LIMIT 1`))
	ok, err := notFound(err)
	if err != nil {
		return nil, fmt.Errorf("newest bolus: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// Boluses lists boluses of every validity with timestamp >= from.
func (s *Store) Boluses(ctx context.Context, from int64) ([]pump.Bolus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bolusColumns+` FROM boluses
		WHERE timestamp >= ? ORDER BY timestamp, id`, from)
	if err != nil {
		return nil, fmt.Errorf("list boluses: %w", err)
	}
	defer rows.Close()
	var out []pump.Bolus
	for rows.Next() {
		b, err := scanBolus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bolus: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// invalidate clears is_valid on table row id and writes the audit entry in
// the same transaction. An already invalid row is left alone.
func (s *Store) invalidate(ctx context.Context, op, table string, id int64, entry UserEntry) (Result, error) {
	return s.inTx(ctx, op, func(tx *sql.Tx, res *Result) error {
		r, err := tx.ExecContext(ctx, `UPDATE `+table+` SET is_valid = 0 WHERE id = ? AND is_valid = 1`, id)
		if err != nil {
			return fmt.Errorf("invalidate %s %d: %w", table, id, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		res.Invalidated = append(res.Invalidated, id)
		return insertUserEntry(ctx, tx, entry)
	})
}
