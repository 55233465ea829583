package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/danmuck/pumpctl/internal/pump"
)

const temporaryBasalColumns = `id, timestamp, duration, rate, is_absolute, type, temporary_id, pump_id, end_id, pump_type, pump_serial, is_valid`

func scanTemporaryBasal(row rowScanner) (pump.TemporaryBasal, error) {
	var (
		b                   pump.TemporaryBasal
		basalType, pumpType string
		tempID, pumpID, end sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.Timestamp, &b.Duration, &b.Rate, &b.IsAbsolute, &basalType,
		&tempID, &pumpID, &end, &pumpType, &b.IDs.Origin.Serial, &b.Valid); err != nil {
		return pump.TemporaryBasal{}, err
	}
	b.Type = pump.TemporaryBasalType(basalType)
	b.IDs.Origin.Type = pump.Type(pumpType)
	b.IDs.TemporaryID, b.IDs.PumpID, b.IDs.EndID = ptrInt(tempID), ptrInt(pumpID), ptrInt(end)
	return b, nil
}

func queryTemporaryBasal(ctx context.Context, q queryRower, where string, args ...any) (pump.TemporaryBasal, bool, error) {
	b, err := scanTemporaryBasal(q.QueryRowContext(ctx, `SELECT `+temporaryBasalColumns+` FROM temporary_basals WHERE `+where, args...))
	ok, err := notFound(err)
	return b, ok, err
}

func insertTemporaryBasal(ctx context.Context, tx *sql.Tx, b pump.TemporaryBasal) (int64, error) {
	r, err := tx.ExecContext(ctx, `
		INSERT INTO temporary_basals (timestamp, duration, rate, is_absolute, type, temporary_id, pump_id, end_id, pump_type, pump_serial, is_valid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		b.Timestamp, b.Duration, b.Rate, boolInt(b.IsAbsolute), string(b.Type),
		nullInt(b.IDs.TemporaryID), nullInt(b.IDs.PumpID), nullInt(b.IDs.EndID),
		string(b.IDs.Origin.Type), b.IDs.Origin.Serial,
	)
	if err != nil {
		return 0, fmt.Errorf("insert temporary basal: %w", err)
	}
	return lastID(r)
}

func updateTemporaryBasal(ctx context.Context, tx *sql.Tx, b pump.TemporaryBasal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE temporary_basals SET timestamp = ?, duration = ?, rate = ?, is_absolute = ?, type = ?,
			temporary_id = ?, pump_id = ?, end_id = ?, is_valid = ?
		WHERE id = ?`,
		b.Timestamp, b.Duration, b.Rate, boolInt(b.IsAbsolute), string(b.Type),
		nullInt(b.IDs.TemporaryID), nullInt(b.IDs.PumpID), nullInt(b.IDs.EndID), boolInt(b.Valid), b.ID,
	)
	if err != nil {
		return fmt.Errorf("update temporary basal %d: %w", b.ID, err)
	}
	return nil
}

func runningTemporaryBasal(ctx context.Context, tx *sql.Tx, ts int64, origin pump.Origin) (pump.TemporaryBasal, bool, error) {
	return queryTemporaryBasal(ctx, tx, `is_valid = 1 AND pump_type = ? AND pump_serial = ?
		AND timestamp <= ? AND timestamp + duration > ? ORDER BY timestamp DESC, id DESC LIMIT 1`,
		string(origin.Type), origin.Serial, ts, ts)
}

// cutRunningTemporaryBasal ends the basal running at ts for origin so a new
// one can start there.
func cutRunningTemporaryBasal(ctx context.Context, tx *sql.Tx, ts int64, origin pump.Origin, res *Result) error {
	running, ok, err := runningTemporaryBasal(ctx, tx, ts, origin)
	if err != nil || !ok {
		return err
	}
	running.Duration = ts - running.Timestamp
	if err := updateTemporaryBasal(ctx, tx, running); err != nil {
		return err
	}
	res.Updated = append(res.Updated, running.ID)
	return nil
}

// SyncTemporaryBasal upserts b by pump id. A new basal truncates the one
// running at its start.
func (s *Store) SyncTemporaryBasal(ctx context.Context, b pump.TemporaryBasal, typeOverride *pump.TemporaryBasalType) (Result, error) {
	return s.inTx(ctx, "sync temporary basal", func(tx *sql.Tx, res *Result) error {
		if b.IDs.PumpID == nil {
			return fmt.Errorf("pump id required")
		}
		existing, ok, err := queryTemporaryBasal(ctx, tx, `pump_id = ? AND pump_type = ? AND pump_serial = ? ORDER BY id LIMIT 1`,
			*b.IDs.PumpID, string(b.IDs.Origin.Type), b.IDs.Origin.Serial)
		if err != nil {
			return err
		}
		if ok {
			// a stopped basal only changes through invalidation
			if existing.IDs.EndID != nil {
				return nil
			}
			changed := existing.Timestamp != b.Timestamp || existing.Duration != b.Duration ||
				existing.Rate != b.Rate || existing.IsAbsolute != b.IsAbsolute
			existing.Timestamp, existing.Duration, existing.Rate, existing.IsAbsolute = b.Timestamp, b.Duration, b.Rate, b.IsAbsolute
			if typeOverride != nil && existing.Type != *typeOverride {
				existing.Type = *typeOverride
				changed = true
			}
			if !changed {
				return nil
			}
			if err := updateTemporaryBasal(ctx, tx, existing); err != nil {
				return err
			}
			res.Updated = append(res.Updated, existing.ID)
			return nil
		}
		if err := cutRunningTemporaryBasal(ctx, tx, b.Timestamp, b.IDs.Origin, res); err != nil {
			return err
		}
		id, err := insertTemporaryBasal(ctx, tx, b)
		if err != nil {
			return err
		}
		res.Inserted = append(res.Inserted, id)
		return nil
	})
}

// SyncCancelTemporaryBasal ends the open basal running at ts for origin and
// stamps it with endID. A basal already ended by the pump is left alone.
func (s *Store) SyncCancelTemporaryBasal(ctx context.Context, ts, endID int64, origin pump.Origin) (Result, error) {
	return s.inTx(ctx, "cancel temporary basal", func(tx *sql.Tx, res *Result) error {
		running, ok, err := runningTemporaryBasal(ctx, tx, ts, origin)
		if err != nil || !ok || running.IDs.EndID != nil {
			return err
		}
		running.Duration = ts - running.Timestamp
		running.IDs.EndID = pump.Int64(endID)
		if err := updateTemporaryBasal(ctx, tx, running); err != nil {
			return err
		}
		res.Updated = append(res.Updated, running.ID)
		return nil
	})
}

// InsertTemporaryBasalWithTempID inserts b unless its temporary id is known.
func (s *Store) InsertTemporaryBasalWithTempID(ctx context.Context, b pump.TemporaryBasal) (Result, error) {
	return s.inTx(ctx, "insert temporary basal with temp id", func(tx *sql.Tx, res *Result) error {
		if b.IDs.TemporaryID == nil {
			return fmt.Errorf("temporary id required")
		}
		_, ok, err := queryTemporaryBasal(ctx, tx, `temporary_id = ? AND pump_type = ? AND pump_serial = ? ORDER BY id LIMIT 1`,
			*b.IDs.TemporaryID, string(b.IDs.Origin.Type), b.IDs.Origin.Serial)
		if err != nil || ok {
			return err
		}
		if err := cutRunningTemporaryBasal(ctx, tx, b.Timestamp, b.IDs.Origin, res); err != nil {
			return err
		}
		id, err := insertTemporaryBasal(ctx, tx, b)
		if err != nil {
			return err
		}
		res.Inserted = append(res.Inserted, id)
		return nil
	})
}

// SyncTemporaryBasalWithTempID promotes the basal recorded under b's
// temporary id. The stored type is kept unless typeOverride is set.
func (s *Store) SyncTemporaryBasalWithTempID(ctx context.Context, b pump.TemporaryBasal, typeOverride *pump.TemporaryBasalType) (Result, error) {
	return s.inTx(ctx, "sync temporary basal with temp id", func(tx *sql.Tx, res *Result) error {
		if b.IDs.TemporaryID == nil {
			return fmt.Errorf("temporary id required")
		}
		existing, ok, err := queryTemporaryBasal(ctx, tx, `temporary_id = ? AND pump_type = ? AND pump_serial = ? ORDER BY id LIMIT 1`,
			*b.IDs.TemporaryID, string(b.IDs.Origin.Type), b.IDs.Origin.Serial)
		if err != nil || !ok {
			return err
		}
		existing.Timestamp, existing.Duration, existing.Rate, existing.IsAbsolute = b.Timestamp, b.Duration, b.Rate, b.IsAbsolute
		if typeOverride != nil {
			existing.Type = *typeOverride
		}
		if b.IDs.PumpID != nil {
			existing.IDs.PumpID = b.IDs.PumpID
		}
		if err := updateTemporaryBasal(ctx, tx, existing); err != nil {
			return err
		}
		res.Updated = append(res.Updated, existing.ID)
		return nil
	})
}

// InvalidateTemporaryBasal marks basal id invalid and records entry.
func (s *Store) InvalidateTemporaryBasal(ctx context.Context, id int64, entry UserEntry) (Result, error) {
	return s.invalidate(ctx, "invalidate temporary basal", "temporary_basals", id, entry)
}

// InvalidateTemporaryBasalWithPumpID marks the basal with pumpID from origin
// invalid. entry is written with the basal's start appended to its values.
func (s *Store) InvalidateTemporaryBasalWithPumpID(ctx context.Context, pumpID int64, origin pump.Origin, entry UserEntry) (Result, error) {
	return s.inTx(ctx, "invalidate temporary basal with pump id", func(tx *sql.Tx, res *Result) error {
		b, ok, err := queryTemporaryBasal(ctx, tx, `pump_id = ? AND pump_type = ? AND pump_serial = ? AND is_valid = 1 ORDER BY id LIMIT 1`,
			pumpID, string(origin.Type), origin.Serial)
		if err != nil || !ok {
			return err
		}
		b.Valid = false
		if err := updateTemporaryBasal(ctx, tx, b); err != nil {
			return err
		}
		res.Invalidated = append(res.Invalidated, b.ID)
		entry.Values = append(entry.Values, pump.TimestampValue(b.Timestamp))
		return insertUserEntry(ctx, tx, entry)
	})
}

// InvalidateTemporaryBasalWithTempID marks the basal recorded under tempID
// invalid. entry is written with the basal's start appended to its values.
func (s *Store) InvalidateTemporaryBasalWithTempID(ctx context.Context, tempID int64, entry UserEntry) (Result, error) {
	return s.inTx(ctx, "invalidate temporary basal with temp id", func(tx *sql.Tx, res *Result) error {
		b, ok, err := queryTemporaryBasal(ctx, tx, `temporary_id = ? AND is_valid = 1 ORDER BY id LIMIT 1`, tempID)
		if err != nil || !ok {
			return err
		}
		b.Valid = false
		if err := updateTemporaryBasal(ctx, tx, b); err != nil {
			return err
		}
		res.Invalidated = append(res.Invalidated, b.ID)
		entry.Values = append(entry.Values, pump.TimestampValue(b.Timestamp))
		return insertUserEntry(ctx, tx, entry)
	})
}

// TemporaryBasalActiveAt returns the valid basal covering ts, if any.
func (s *Store) TemporaryBasalActiveAt(ctx context.Context, ts int64) (*pump.TemporaryBasal, error) {
	b, ok, err := queryTemporaryBasal(ctx, s.db, `is_valid = 1 AND timestamp <= ? AND timestamp + duration > ?
		ORDER BY timestamp DESC, id DESC LIMIT 1`, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("temporary basal active at %d: %w", ts, err)
	}
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// TemporaryBasals lists basals of every validity with timestamp >= from.
func (s *Store) TemporaryBasals(ctx context.Context, from int64) ([]pump.TemporaryBasal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+temporaryBasalColumns+` FROM temporary_basals
		WHERE timestamp >= ? ORDER BY timestamp, id`, from)
	if err != nil {
		return nil, fmt.Errorf("list temporary basals: %w", err)
	}
	defer rows.Close()
	var out []pump.TemporaryBasal
	for rows.Next() {
		b, err := scanTemporaryBasal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan temporary basal: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
