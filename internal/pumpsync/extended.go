package pumpsync

import (
	"context"

	"github.com/danmuck/pumpctl/internal/pump"
)

// SyncExtendedBolusWithPumpID records an extended bolus read from pump
// history, truncating any extended bolus still running at its start.
func (s *Sync) SyncExtendedBolusWithPumpID(ctx context.Context, timestamp int64, amount float64, duration int64, isEmulatingTempBasal bool, pumpID int64, origin pump.Origin) (bool, error) {
	return s.record("sync_extended_bolus_with_pump_id", func() (bool, error) {
		if ok, err := s.confirm(timestamp, origin); !ok || err != nil {
			return false, err
		}
		res, err := s.store.SyncExtendedBolus(ctx, pump.ExtendedBolus{
			Timestamp:            timestamp,
			Duration:             duration,
			Amount:               amount,
			IsEmulatingTempBasal: isEmulatingTempBasal,
			IDs:                  pump.IDs{PumpID: pump.Int64(pumpID), Origin: origin},
		})
		if err != nil {
			return false, err
		}
		logResult("extended_bolus", res)
		return len(res.Inserted) > 0, nil
	})
}

// SyncStopExtendedBolusWithPumpID ends the extended bolus running at
// timestamp; its amount shrinks to what was delivered.
func (s *Sync) SyncStopExtendedBolusWithPumpID(ctx context.Context, timestamp, endPumpID int64, origin pump.Origin) (bool, error) {
	return s.record("sync_stop_extended_bolus_with_pump_id", func() (bool, error) {
		if ok, err := s.confirm(timestamp, origin); !ok || err != nil {
			return false, err
		}
		res, err := s.store.SyncCancelExtendedBolus(ctx, timestamp, endPumpID, origin)
		if err != nil {
			return false, err
		}
		logResult("extended_bolus", res)
		return len(res.Updated) > 0, nil
	})
}

// InvalidateExtendedBolus marks extended bolus id unusable, audited as
// removed by source at timestamp.
func (s *Sync) InvalidateExtendedBolus(ctx context.Context, id int64, source pump.Source, timestamp int64) (bool, error) {
	return s.record("invalidate_extended_bolus", func() (bool, error) {
		res, err := s.store.InvalidateExtendedBolus(ctx, id, removalEntry(s.now(), pump.ActionExtendedBolusRemoved, source, timestamp))
		if err != nil {
			return false, err
		}
		logResult("extended_bolus", res)
		return len(res.Invalidated) > 0, nil
	})
}
