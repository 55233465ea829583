package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/danmuck/pumpctl/internal/pump"
)

var dayMillis = (24 * time.Hour).Milliseconds()

// DayStart is the UTC midnight of ts in epoch milliseconds.
func DayStart(ts int64) int64 {
	return ts - ((ts%dayMillis)+dayMillis)%dayMillis
}

func scanTotalDailyDose(row rowScanner) (pump.TotalDailyDose, error) {
	var (
		d                   pump.TotalDailyDose
		pumpType            string
		tempID, pumpID, end sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.Timestamp, &d.Bolus, &d.Basal, &d.Total,
		&tempID, &pumpID, &end, &pumpType, &d.IDs.Origin.Serial, &d.Valid); err != nil {
		return pump.TotalDailyDose{}, err
	}
	d.IDs.Origin.Type = pump.Type(pumpType)
	d.IDs.TemporaryID, d.IDs.PumpID, d.IDs.EndID = ptrInt(tempID), ptrInt(pumpID), ptrInt(end)
	return d, nil
}

const totalDailyDoseColumns = `id, timestamp, bolus, basal, total, temporary_id, pump_id, end_id, pump_type, pump_serial, is_valid`

func queryTotalDailyDose(ctx context.Context, q queryRower, where string, args ...any) (pump.TotalDailyDose, bool, error) {
	d, err := scanTotalDailyDose(q.QueryRowContext(ctx, `SELECT `+totalDailyDoseColumns+` FROM total_daily_doses WHERE `+where, args...))
	ok, err := notFound(err)
	return d, ok, err
}

func equalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SyncTotalDailyDose upserts d by pump id and by UTC day. A pump id that is
// not stored yet attaches to the day's existing total, if any.
func (s *Store) SyncTotalDailyDose(ctx context.Context, d pump.TotalDailyDose) (Result, error) {
	return s.inTx(ctx, "sync total daily dose", func(tx *sql.Tx, res *Result) error {
		var (
			existing pump.TotalDailyDose
			ok       bool
			err      error
		)
		if d.IDs.PumpID != nil {
			existing, ok, err = queryTotalDailyDose(ctx, tx, `pump_id = ? AND pump_type = ? AND pump_serial = ? AND is_valid = 1 ORDER BY id LIMIT 1`,
				*d.IDs.PumpID, string(d.IDs.Origin.Type), d.IDs.Origin.Serial)
			if err != nil {
				return err
			}
		}
		if !ok {
			day := DayStart(d.Timestamp)
			existing, ok, err = queryTotalDailyDose(ctx, tx, `timestamp >= ? AND timestamp < ? AND pump_type = ? AND pump_serial = ? AND is_valid = 1 ORDER BY id LIMIT 1`,
				day, day+dayMillis, string(d.IDs.Origin.Type), d.IDs.Origin.Serial)
			if err != nil {
				return err
			}
		}
		if ok {
			pumpID := existing.IDs.PumpID
			if d.IDs.PumpID != nil {
				pumpID = d.IDs.PumpID
			}
			if existing.Bolus == d.Bolus && existing.Basal == d.Basal && existing.Total == d.Total &&
				equalID(existing.IDs.PumpID, pumpID) {
				return nil
			}
			if _, err := tx.ExecContext(ctx, `UPDATE total_daily_doses SET bolus = ?, basal = ?, total = ?, pump_id = ? WHERE id = ?`,
				d.Bolus, d.Basal, d.Total, nullInt(pumpID), existing.ID); err != nil {
				return fmt.Errorf("update total daily dose %d: %w", existing.ID, err)
			}
			res.Updated = append(res.Updated, existing.ID)
			return nil
		}
		r, err := tx.ExecContext(ctx, `
			INSERT INTO total_daily_doses (timestamp, bolus, basal, total, temporary_id, pump_id, end_id, pump_type, pump_serial, is_valid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			d.Timestamp, d.Bolus, d.Basal, d.Total,
			nullInt(d.IDs.TemporaryID), nullInt(d.IDs.PumpID), nullInt(d.IDs.EndID),
			string(d.IDs.Origin.Type), d.IDs.Origin.Serial,
		)
		if err != nil {
			return fmt.Errorf("insert total daily dose: %w", err)
		}
		id, err := lastID(r)
		if err != nil {
			return err
		}
		res.Inserted = append(res.Inserted, id)
		return nil
	})
}

// TotalDailyDoses lists valid daily totals with timestamp >= from.
func (s *Store) TotalDailyDoses(ctx context.Context, from int64) ([]pump.TotalDailyDose, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+totalDailyDoseColumns+` FROM total_daily_doses
		WHERE timestamp >= ? AND is_valid = 1 ORDER BY timestamp, id`, from)
	if err != nil {
		return nil, fmt.Errorf("list total daily doses: %w", err)
	}
	defer rows.Close()
	var out []pump.TotalDailyDose
	for rows.Next() {
		d, err := scanTotalDailyDose(rows)
		if err != nil {
			return nil, fmt.Errorf("scan total daily dose: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
