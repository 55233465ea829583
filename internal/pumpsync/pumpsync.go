// Package pumpsync reconciles pump-reported events into the event log.
//
// Every insert, update or stop first asks the identity guard whether the
// data may be recorded. Rejections are answered with false and no error;
// errors are reserved for store failures.
package pumpsync

import (
	"context"
	"time"

	"github.com/danmuck/pumpctl/internal/observability"
	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/danmuck/pumpctl/internal/store"
	"github.com/rs/zerolog/log"
)

// Store is the durable event log.
type Store interface {
	InsertBolusWithTempID(ctx context.Context, b pump.Bolus) (store.Result, error)
	SyncBolusWithTempID(ctx context.Context, b pump.Bolus, typeOverride *pump.BolusType) (store.Result, error)
	SyncBolus(ctx context.Context, b pump.Bolus, typeOverride *pump.BolusType) (store.Result, error)
	InvalidateBolus(ctx context.Context, id int64, entry store.UserEntry) (store.Result, error)
	NewestBolus(ctx context.Context) (*pump.Bolus, error)

	InsertCarbsIfNewByTimestamp(ctx context.Context, c pump.Carbs) (store.Result, error)
	InsertTherapyEventIfNewByTimestamp(ctx context.Context, e pump.TherapyEvent, entry store.UserEntry) (store.Result, error)

	SyncTemporaryBasal(ctx context.Context, b pump.TemporaryBasal, typeOverride *pump.TemporaryBasalType) (store.Result, error)
	SyncCancelTemporaryBasal(ctx context.Context, ts, endID int64, origin pump.Origin) (store.Result, error)
	InsertTemporaryBasalWithTempID(ctx context.Context, b pump.TemporaryBasal) (store.Result, error)
	SyncTemporaryBasalWithTempID(ctx context.Context, b pump.TemporaryBasal, typeOverride *pump.TemporaryBasalType) (store.Result, error)
	InvalidateTemporaryBasal(ctx context.Context, id int64, entry store.UserEntry) (store.Result, error)
	InvalidateTemporaryBasalWithPumpID(ctx context.Context, pumpID int64, origin pump.Origin, entry store.UserEntry) (store.Result, error)
	InvalidateTemporaryBasalWithTempID(ctx context.Context, tempID int64, entry store.UserEntry) (store.Result, error)
	TemporaryBasalActiveAt(ctx context.Context, ts int64) (*pump.TemporaryBasal, error)

	SyncExtendedBolus(ctx context.Context, e pump.ExtendedBolus) (store.Result, error)
	SyncCancelExtendedBolus(ctx context.Context, ts, endID int64, origin pump.Origin) (store.Result, error)
	InvalidateExtendedBolus(ctx context.Context, id int64, entry store.UserEntry) (store.Result, error)
	ExtendedBolusActiveAt(ctx context.Context, ts int64) (*pump.ExtendedBolus, error)

	SyncTotalDailyDose(ctx context.Context, d pump.TotalDailyDose) (store.Result, error)
}

// Guard gates data by pump identity.
type Guard interface {
	ConfirmActive(timestamp int64, origin pump.Origin, notifyOnMismatch bool) (bool, error)
	Verify(origin pump.Origin) bool
	Active() (pump.Identity, bool)
	Clear() error
}

// EnteredBy stamps therapy events this layer creates.
const EnteredBy = "pumpctl"

type Options struct {
	Store Store
	Guard Guard
	Clock pump.Clock
}

// Sync is the reconciliation layer. It is safe for concurrent use; the
// store and guard serialize their own state.
type Sync struct {
	store Store
	guard Guard
	clock pump.Clock
}

func New(opts Options) *Sync {
	s := &Sync{store: opts.Store, guard: opts.Guard, clock: opts.Clock}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

func (s *Sync) now() int64 { return pump.Millis(s.clock()) }

// confirm runs the guard with notifications on.
func (s *Sync) confirm(ts int64, origin pump.Origin) (bool, error) {
	return s.guard.ConfirmActive(ts, origin, true)
}

// record wraps one operation with metrics and error logging.
func (s *Sync) record(op string, fn func() (bool, error)) (bool, error) {
	start := time.Now()
	ok, err := fn()
	outcome := "accepted"
	switch {
	case err != nil:
		outcome = "error"
		log.Error().Err(err).Str("op", op).Msg("pump sync failed")
	case !ok:
		outcome = "rejected"
	}
	observability.RecordSync(op, outcome, time.Since(start))
	return ok, err
}

func logResult(kind string, res store.Result) {
	for _, id := range res.Inserted {
		log.Debug().Str("kind", kind).Int64("id", id).Msg("inserted")
	}
	for _, id := range res.Updated {
		log.Debug().Str("kind", kind).Int64("id", id).Msg("updated")
	}
	for _, id := range res.Invalidated {
		log.Debug().Str("kind", kind).Int64("id", id).Msg("invalidated")
	}
}
