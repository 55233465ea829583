package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/danmuck/pumpctl/internal/pump"
)

const extendedBolusColumns = `id, timestamp, duration, amount, is_emulating_temp_basal, temporary_id, pump_id, end_id, pump_type, pump_serial, is_valid`

func scanExtendedBolus(row rowScanner) (pump.ExtendedBolus, error) {
	var (
		e                   pump.ExtendedBolus
		pumpType            string
		tempID, pumpID, end sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.Timestamp, &e.Duration, &e.Amount, &e.IsEmulatingTempBasal,
		&tempID, &pumpID, &end, &pumpType, &e.IDs.Origin.Serial, &e.Valid); err != nil {
		return pump.ExtendedBolus{}, err
	}
	e.IDs.Origin.Type = pump.Type(pumpType)
	e.IDs.TemporaryID, e.IDs.PumpID, e.IDs.EndID = ptrInt(tempID), ptrInt(pumpID), ptrInt(end)
	return e, nil
}

func queryExtendedBolus(ctx context.Context, q queryRower, where string, args ...any) (pump.ExtendedBolus, bool, error) {
	e, err := scanExtendedBolus(q.QueryRowContext(ctx, `SELECT `+extendedBolusColumns+` FROM extended_boluses WHERE `+where, args...))
	ok, err := notFound(err)
	return e, ok, err
}

func updateExtendedBolus(ctx context.Context, tx *sql.Tx, e pump.ExtendedBolus) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE extended_boluses SET timestamp = ?, duration = ?, amount = ?, is_emulating_temp_basal = ?,
			temporary_id = ?, pump_id = ?, end_id = ?, is_valid = ?
		WHERE id = ?`,
		e.Timestamp, e.Duration, e.Amount, boolInt(e.IsEmulatingTempBasal),
		nullInt(e.IDs.TemporaryID), nullInt(e.IDs.PumpID), nullInt(e.IDs.EndID), boolInt(e.Valid), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update extended bolus %d: %w", e.ID, err)
	}
	return nil
}

func runningExtendedBolus(ctx context.Context, tx *sql.Tx, ts int64, origin pump.Origin) (pump.ExtendedBolus, bool, error) {
	return queryExtendedBolus(ctx, tx, `is_valid = 1 AND pump_type = ? AND pump_serial = ?
		AND timestamp <= ? AND timestamp + duration > ? ORDER BY timestamp DESC, id DESC LIMIT 1`,
		string(origin.Type), origin.Serial, ts, ts)
}

// truncateExtendedBolus ends e at ts and scales its amount to the part that
// was delivered.
func truncateExtendedBolus(e *pump.ExtendedBolus, ts int64) {
	if e.Duration > 0 {
		e.Amount *= float64(ts-e.Timestamp) / float64(e.Duration)
	}
	e.Duration = ts - e.Timestamp
}

// SyncExtendedBolus upserts e by pump id. A new extended bolus truncates the
// one running at its start.
func (s *Store) SyncExtendedBolus(ctx context.Context, e pump.ExtendedBolus) (Result, error) {
	return s.inTx(ctx, "sync extended bolus", func(tx *sql.Tx, res *Result) error {
		if e.IDs.PumpID == nil {
			return fmt.Errorf("pump id required")
		}
		existing, ok, err := queryExtendedBolus(ctx, tx, `pump_id = ? AND pump_type = ? AND pump_serial = ? ORDER BY id LIMIT 1`,
			*e.IDs.PumpID, string(e.IDs.Origin.Type), e.IDs.Origin.Serial)
		if err != nil {
			return err
		}
		if ok {
			if existing.IDs.EndID != nil {
				return nil
			}
			if existing.Timestamp == e.Timestamp && existing.Duration == e.Duration &&
				existing.Amount == e.Amount && existing.IsEmulatingTempBasal == e.IsEmulatingTempBasal {
				return nil
			}
			existing.Timestamp, existing.Duration, existing.Amount, existing.IsEmulatingTempBasal =
				e.Timestamp, e.Duration, e.Amount, e.IsEmulatingTempBasal
			if err := updateExtendedBolus(ctx, tx, existing); err != nil {
				return err
			}
			res.Updated = append(res.Updated, existing.ID)
			return nil
		}

		running, ok, err := runningExtendedBolus(ctx, tx, e.Timestamp, e.IDs.Origin)
		if err != nil {
			return err
		}
		if ok {
			truncateExtendedBolus(&running, e.Timestamp)
			if err := updateExtendedBolus(ctx, tx, running); err != nil {
				return err
			}
			res.Updated = append(res.Updated, running.ID)
		}

		r, err := tx.ExecContext(ctx, `
			INSERT INTO extended_boluses (timestamp, duration, amount, is_emulating_temp_basal, temporary_id, pump_id, end_id, pump_type, pump_serial, is_valid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			e.Timestamp, e.Duration, e.Amount, boolInt(e.IsEmulatingTempBasal),
			nullInt(e.IDs.TemporaryID), nullInt(e.IDs.PumpID), nullInt(e.IDs.EndID),
			string(e.IDs.Origin.Type), e.IDs.Origin.Serial,
		)
		if err != nil {
			return fmt.Errorf("insert extended bolus: %w", err)
		}
		id, err := lastID(r)
		if err != nil {
			return err
		}
		res.Inserted = append(res.Inserted, id)
		return nil
	})
}

// SyncCancelExtendedBolus ends the open extended bolus running at ts for
// origin, scaling its amount, and stamps it with endID.
func (s *Store) SyncCancelExtendedBolus(ctx context.Context, ts, endID int64, origin pump.Origin) (Result, error) {
	return s.inTx(ctx, "cancel extended bolus", func(tx *sql.Tx, res *Result) error {
		running, ok, err := runningExtendedBolus(ctx, tx, ts, origin)
		if err != nil || !ok || running.IDs.EndID != nil {
			return err
		}
		truncateExtendedBolus(&running, ts)
		running.IDs.EndID = pump.Int64(endID)
		if err := updateExtendedBolus(ctx, tx, running); err != nil {
			return err
		}
		res.Updated = append(res.Updated, running.ID)
		return nil
	})
}

// InvalidateExtendedBolus marks extended bolus id invalid and records entry.
func (s *Store) InvalidateExtendedBolus(ctx context.Context, id int64, entry UserEntry) (Result, error) {
	return s.invalidate(ctx, "invalidate extended bolus", "extended_boluses", id, entry)
}

// ExtendedBolusActiveAt returns the valid extended bolus covering ts, if any.
func (s *Store) ExtendedBolusActiveAt(ctx context.Context, ts int64) (*pump.ExtendedBolus, error) {
	e, ok, err := queryExtendedBolus(ctx, s.db, `is_valid = 1 AND timestamp <= ? AND timestamp + duration > ?
		ORDER BY timestamp DESC, id DESC LIMIT 1`, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("extended bolus active at %d: %w", ts, err)
	}
	if !ok {
		return nil, nil
	}
	return &e, nil
}
