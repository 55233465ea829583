package pumpsync

import (
	"context"

	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/danmuck/pumpctl/internal/store"
)

// SyncTemporaryBasalWithPumpID records a temporary basal read from pump
// history, truncating any basal still running at its start. typeOverride
// nil records NORMAL for new rows and keeps the type of known rows.
func (s *Sync) SyncTemporaryBasalWithPumpID(ctx context.Context, timestamp int64, rate float64, duration int64, isAbsolute bool, typeOverride *pump.TemporaryBasalType, pumpID int64, origin pump.Origin) (bool, error) {
	return s.record("sync_temporary_basal_with_pump_id", func() (bool, error) {
		if ok, err := s.confirm(timestamp, origin); !ok || err != nil {
			return false, err
		}
		b := pump.TemporaryBasal{
			Timestamp:  timestamp,
			Duration:   duration,
			Rate:       rate,
			IsAbsolute: isAbsolute,
			Type:       pump.TBRNormal,
			IDs:        pump.IDs{PumpID: pump.Int64(pumpID), Origin: origin},
		}
		if typeOverride != nil {
			b.Type = *typeOverride
		}
		res, err := s.store.SyncTemporaryBasal(ctx, b, typeOverride)
		if err != nil {
			return false, err
		}
		logResult("temporary_basal", res)
		return len(res.Inserted) > 0, nil
	})
}

// SyncStopTemporaryBasalWithPumpID ends the basal running at timestamp.
func (s *Sync) SyncStopTemporaryBasalWithPumpID(ctx context.Context, timestamp, endPumpID int64, origin pump.Origin) (bool, error) {
	return s.record("sync_stop_temporary_basal_with_pump_id", func() (bool, error) {
		if ok, err := s.confirm(timestamp, origin); !ok || err != nil {
			return false, err
		}
		res, err := s.store.SyncCancelTemporaryBasal(ctx, timestamp, endPumpID, origin)
		if err != nil {
			return false, err
		}
		logResult("temporary_basal", res)
		return len(res.Updated) > 0, nil
	})
}

// AddTemporaryBasalWithTempID records a basal the controller started before
// the pump confirmed it.
func (s *Sync) AddTemporaryBasalWithTempID(ctx context.Context, timestamp int64, rate float64, duration int64, isAbsolute bool, tempID int64, basalType pump.TemporaryBasalType, origin pump.Origin) (bool, error) {
	return s.record("add_temporary_basal_with_temp_id", func() (bool, error) {
		if ok, err := s.confirm(timestamp, origin); !ok || err != nil {
			return false, err
		}
		res, err := s.store.InsertTemporaryBasalWithTempID(ctx, pump.TemporaryBasal{
			Timestamp:  timestamp,
			Duration:   duration,
			Rate:       rate,
			IsAbsolute: isAbsolute,
			Type:       basalType,
			IDs:        pump.IDs{TemporaryID: pump.Int64(tempID), Origin: origin},
		})
		if err != nil {
			return false, err
		}
		logResult("temporary_basal", res)
		return len(res.Inserted) > 0, nil
	})
}

// SyncTemporaryBasalWithTempID promotes a temp-id basal with the pump's
// values. typeOverride nil keeps the recorded type.
func (s *Sync) SyncTemporaryBasalWithTempID(ctx context.Context, timestamp int64, rate float64, duration int64, isAbsolute bool, tempID int64, typeOverride *pump.TemporaryBasalType, pumpID *int64, origin pump.Origin) (bool, error) {
	return s.record("sync_temporary_basal_with_temp_id", func() (bool, error) {
		if ok, err := s.confirm(timestamp, origin); !ok || err != nil {
			return false, err
		}
		res, err := s.store.SyncTemporaryBasalWithTempID(ctx, pump.TemporaryBasal{
			Timestamp:  timestamp,
			Duration:   duration,
			Rate:       rate,
			IsAbsolute: isAbsolute,
			Type:       pump.TBRNormal,
			IDs:        pump.IDs{TemporaryID: pump.Int64(tempID), PumpID: pumpID, Origin: origin},
		}, typeOverride)
		if err != nil {
			return false, err
		}
		logResult("temporary_basal", res)
		return len(res.Updated) > 0, nil
	})
}

// InvalidateTemporaryBasal marks basal id unusable, audited as removed by
// source at timestamp.
func (s *Sync) InvalidateTemporaryBasal(ctx context.Context, id int64, source pump.Source, timestamp int64) (bool, error) {
	return s.record("invalidate_temporary_basal", func() (bool, error) {
		res, err := s.store.InvalidateTemporaryBasal(ctx, id, removalEntry(s.now(), pump.ActionTempBasalRemoved, source, timestamp))
		if err != nil {
			return false, err
		}
		logResult("temporary_basal", res)
		return len(res.Invalidated) > 0, nil
	})
}

// InvalidateTemporaryBasalWithPumpID marks the basal the pump knows as
// pumpID unusable.
func (s *Sync) InvalidateTemporaryBasalWithPumpID(ctx context.Context, pumpID int64, origin pump.Origin) (bool, error) {
	return s.record("invalidate_temporary_basal_with_pump_id", func() (bool, error) {
		res, err := s.store.InvalidateTemporaryBasalWithPumpID(ctx, pumpID, origin, auditEntry(s.now(), pump.ActionTempBasalRemoved, origin.Type.Source()))
		if err != nil {
			return false, err
		}
		logResult("temporary_basal", res)
		return len(res.Invalidated) > 0, nil
	})
}

// InvalidateTemporaryBasalWithTempID marks the basal recorded under tempID
// unusable, for a start the pump never confirmed.
func (s *Sync) InvalidateTemporaryBasalWithTempID(ctx context.Context, tempID int64) (bool, error) {
	return s.record("invalidate_temporary_basal_with_temp_id", func() (bool, error) {
		res, err := s.store.InvalidateTemporaryBasalWithTempID(ctx, tempID, auditEntry(s.now(), pump.ActionTempBasalRemoved, pump.SourcePump))
		if err != nil {
			return false, err
		}
		logResult("temporary_basal", res)
		return len(res.Invalidated) > 0, nil
	})
}

func auditEntry(now int64, action pump.Action, source pump.Source) store.UserEntry {
	return store.UserEntry{Timestamp: now, Action: action, Source: source}
}
