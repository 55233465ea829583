package pumpsync

import (
	"context"

	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/danmuck/pumpctl/internal/store"
)

// AddBolusWithTempID records a bolus the controller asked for before the
// pump has confirmed it.
func (s *Sync) AddBolusWithTempID(ctx context.Context, timestamp int64, amount float64, tempID int64, bolusType pump.BolusType, origin pump.Origin) (bool, error) {
	return s.record("add_bolus_with_temp_id", func() (bool, error) {
		if ok, err := s.confirm(timestamp, origin); !ok || err != nil {
			return false, err
		}
		res, err := s.store.InsertBolusWithTempID(ctx, pump.Bolus{
			Timestamp: timestamp,
			Amount:    amount,
			Type:      bolusType,
			IDs:       pump.IDs{TemporaryID: pump.Int64(tempID), Origin: origin},
		})
		if err != nil {
			return false, err
		}
		logResult("bolus", res)
		return len(res.Inserted) > 0, nil
	})
}

// SyncBolusWithTempID promotes a temp-id bolus with the pump's values.
// typeOverride nil keeps the recorded type.
func (s *Sync) SyncBolusWithTempID(ctx context.Context, timestamp int64, amount float64, tempID int64, typeOverride *pump.BolusType, pumpID *int64, origin pump.Origin) (bool, error) {
	return s.record("sync_bolus_with_temp_id", func() (bool, error) {
		if ok, err := s.confirm(timestamp, origin); !ok || err != nil {
			return false, err
		}
		res, err := s.store.SyncBolusWithTempID(ctx, pump.Bolus{
			Timestamp: timestamp,
			Amount:    amount,
			Type:      pump.BolusNormal,
			IDs:       pump.IDs{TemporaryID: pump.Int64(tempID), PumpID: pumpID, Origin: origin},
		}, typeOverride)
		if err != nil {
			return false, err
		}
		logResult("bolus", res)
		return len(res.Updated) > 0, nil
	})
}

// SyncBolusWithPumpID records a bolus read from pump history. It reports
// true only when a new row was inserted.
func (s *Sync) SyncBolusWithPumpID(ctx context.Context, timestamp int64, amount float64, typeOverride *pump.BolusType, pumpID int64, origin pump.Origin) (bool, error) {
	return s.record("sync_bolus_with_pump_id", func() (bool, error) {
		if ok, err := s.confirm(timestamp, origin); !ok || err != nil {
			return false, err
		}
		b := pump.Bolus{
			Timestamp: timestamp,
			Amount:    amount,
			Type:      pump.BolusNormal,
			IDs:       pump.IDs{PumpID: pump.Int64(pumpID), Origin: origin},
		}
		if typeOverride != nil {
			b.Type = *typeOverride
		}
		res, err := s.store.SyncBolus(ctx, b, typeOverride)
		if err != nil {
			return false, err
		}
		logResult("bolus", res)
		return len(res.Inserted) > 0, nil
	})
}

// SyncCarbsWithTimestamp records carbs entered on the pump unless carbs
// already exist at timestamp.
func (s *Sync) SyncCarbsWithTimestamp(ctx context.Context, timestamp int64, amount float64, pumpID *int64, origin pump.Origin) (bool, error) {
	return s.record("sync_carbs_with_timestamp", func() (bool, error) {
		if ok, err := s.confirm(timestamp, origin); !ok || err != nil {
			return false, err
		}
		res, err := s.store.InsertCarbsIfNewByTimestamp(ctx, pump.Carbs{
			Timestamp: timestamp,
			Amount:    amount,
			IDs:       pump.IDs{PumpID: pumpID, Origin: origin},
		})
		if err != nil {
			return false, err
		}
		logResult("carbs", res)
		return len(res.Inserted) > 0, nil
	})
}

// InsertTherapyEventIfNewWithTimestamp records a site, cartridge or battery
// change unless one of the same type exists at timestamp.
func (s *Sync) InsertTherapyEventIfNewWithTimestamp(ctx context.Context, timestamp int64, eventType pump.TherapyEventType, note string, pumpID *int64, origin pump.Origin) (bool, error) {
	return s.record("insert_therapy_event", func() (bool, error) {
		if ok, err := s.confirm(timestamp, origin); !ok || err != nil {
			return false, err
		}
		res, err := s.store.InsertTherapyEventIfNewByTimestamp(ctx, pump.TherapyEvent{
			Timestamp: timestamp,
			Type:      eventType,
			Note:      note,
			EnteredBy: EnteredBy,
			IDs:       pump.IDs{PumpID: pumpID, Origin: origin},
		}, store.UserEntry{
			Timestamp: timestamp,
			Action:    pump.ActionCareportal,
			Source:    origin.Type.Source(),
			Note:      note,
			Values:    []pump.ValueWithUnit{pump.TimestampValue(timestamp), pump.TherapyEventTypeValue(eventType)},
		})
		if err != nil {
			return false, err
		}
		logResult("therapy_event", res)
		return len(res.Inserted) > 0, nil
	})
}

// InsertAnnouncement records a pump error message as an announcement
// stamped now. Failures are logged, never returned.
func (s *Sync) InsertAnnouncement(ctx context.Context, message string, pumpID *int64, origin pump.Origin) {
	_, _ = s.record("insert_announcement", func() (bool, error) {
		now := s.now()
		if ok, err := s.confirm(now, origin); !ok || err != nil {
			return false, err
		}
		res, err := s.store.InsertTherapyEventIfNewByTimestamp(ctx, pump.TherapyEvent{
			Timestamp: now,
			Type:      pump.TherapyAnnouncement,
			Note:      message,
			EnteredBy: EnteredBy,
			IDs:       pump.IDs{PumpID: pumpID, Origin: origin},
		}, store.UserEntry{
			Timestamp: now,
			Action:    pump.ActionTreatment,
			Source:    pump.SourcePump,
			Note:      message,
		})
		if err != nil {
			return false, err
		}
		logResult("announcement", res)
		return len(res.Inserted) > 0, nil
	})
}

// InvalidateBolus marks bolus id unusable and audits it as removed by
// source at timestamp.
func (s *Sync) InvalidateBolus(ctx context.Context, id int64, source pump.Source, timestamp int64) (bool, error) {
	return s.record("invalidate_bolus", func() (bool, error) {
		res, err := s.store.InvalidateBolus(ctx, id, removalEntry(s.now(), pump.ActionBolusRemoved, source, timestamp))
		if err != nil {
			return false, err
		}
		logResult("bolus", res)
		return len(res.Invalidated) > 0, nil
	})
}

// CreateOrUpdateTotalDailyDose records the pump's daily totals. Old history from a
// different pump is expected here, so rejections never raise an alert.
func (s *Sync) CreateOrUpdateTotalDailyDose(ctx context.Context, timestamp int64, bolus, basal, total float64, pumpID *int64, origin pump.Origin) (bool, error) {
	return s.record("create_or_update_total_daily_dose", func() (bool, error) {
		if ok, err := s.guard.ConfirmActive(timestamp, origin, false); !ok || err != nil {
			return false, err
		}
		res, err := s.store.SyncTotalDailyDose(ctx, pump.TotalDailyDose{
			Timestamp: timestamp,
			Bolus:     bolus,
			Basal:     basal,
			Total:     total,
			IDs:       pump.IDs{PumpID: pumpID, Origin: origin},
		})
		if err != nil {
			return false, err
		}
		logResult("total_daily_dose", res)
		return len(res.Inserted) > 0, nil
	})
}

func removalEntry(now int64, action pump.Action, source pump.Source, timestamp int64) store.UserEntry {
	e := auditEntry(now, action, source)
	e.Values = []pump.ValueWithUnit{pump.TimestampValue(timestamp)}
	return e
}
