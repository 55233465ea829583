package pumpsync

import (
	"context"
	"fmt"

	"github.com/danmuck/pumpctl/internal/prefs"
	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/rs/zerolog/log"
)

// ExpectedPumpState reports what the log says the pump is doing now: the
// newest bolus and the basal and extended bolus running at this instant.
func (s *Sync) ExpectedPumpState(ctx context.Context) (pump.State, error) {
	now := s.now()
	var state pump.State

	bolus, err := s.store.NewestBolus(ctx)
	if err != nil {
		return pump.State{}, fmt.Errorf("expected pump state: %w", err)
	}
	if bolus != nil {
		state.Bolus = &pump.BolusState{Timestamp: bolus.Timestamp, Amount: bolus.Amount}
	}

	tb, err := s.store.TemporaryBasalActiveAt(ctx, now)
	if err != nil {
		return pump.State{}, fmt.Errorf("expected pump state: %w", err)
	}
	if tb != nil {
		origin := tb.IDs.Origin
		if origin.Type == pump.TypeUnknown {
			origin.Type = pump.TypeUser
		}
		state.TemporaryBasal = &pump.TemporaryBasalState{
			ID:         tb.ID,
			Timestamp:  tb.Timestamp,
			Duration:   tb.Duration,
			Rate:       tb.Rate,
			IsAbsolute: tb.IsAbsolute,
			Type:       tb.Type,
			PumpID:     tb.IDs.PumpID,
			Origin:     origin,
		}
	}

	eb, err := s.store.ExtendedBolusActiveAt(ctx, now)
	if err != nil {
		return pump.State{}, fmt.Errorf("expected pump state: %w", err)
	}
	if eb != nil {
		origin := eb.IDs.Origin
		if origin.Type == pump.TypeUnknown {
			origin.Type = pump.TypeUser
		}
		state.ExtendedBolus = &pump.ExtendedBolusState{
			Timestamp: eb.Timestamp,
			Duration:  eb.Duration,
			Amount:    eb.Amount,
			Rate:      eb.Rate(),
			Origin:    origin,
		}
	}

	if id, ok := s.guard.Active(); ok {
		state.SerialNumber = id.Serial
	}
	return state, nil
}

// VerifyPumpIdentification reports whether origin is the active pump.
func (s *Sync) VerifyPumpIdentification(origin pump.Origin) bool {
	return s.guard.Verify(origin)
}

// ConnectNewPump forgets the active pump so the next event registers a new
// one. With endRunning, the running basal and extended bolus are stopped
// now first, under the pump that started them.
func (s *Sync) ConnectNewPump(ctx context.Context, endRunning bool) error {
	if endRunning {
		state, err := s.ExpectedPumpState(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		if tb := state.TemporaryBasal; tb != nil {
			if _, err := s.SyncStopTemporaryBasalWithPumpID(ctx, now, now, tb.Origin); err != nil {
				return err
			}
		}
		if eb := state.ExtendedBolus; eb != nil {
			if _, err := s.SyncStopExtendedBolusWithPumpID(ctx, now, now, eb.Origin); err != nil {
				return err
			}
		}
	}
	if err := s.guard.Clear(); err != nil {
		return err
	}
	log.Info().
		Bool("end_running", endRunning).
		Strs("cleared", []string{prefs.KeyActivePumpType, prefs.KeyActivePumpSerialNumber, prefs.KeyActivePumpChangeTimestamp}).
		Msg("connect new pump")
	return nil
}
