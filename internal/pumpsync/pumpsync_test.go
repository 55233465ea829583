package pumpsync

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/pumpctl/internal/guard"
	"github.com/danmuck/pumpctl/internal/notify"
	"github.com/danmuck/pumpctl/internal/prefs"
	"github.com/danmuck/pumpctl/internal/pump"
	"github.com/danmuck/pumpctl/internal/store"
	"github.com/danmuck/pumpctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	t0     int64 = 1_700_000_000_000
	minute int64 = 60_000
)

var (
	insight = pump.Origin{Type: pump.TypeAccuChekInsight, Serial: "SN-1"}
	other   = pump.Origin{Type: pump.TypeAccuChekInsight, Serial: "SN-2"}
)

type notifications struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (n *notifications) Publish(x notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, x)
}

func (n *notifications) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.items)
}

type fixture struct {
	sync   *Sync
	store  *store.Store
	guard  *guard.Guard
	notes  *notifications
	nowMs  int64
	setNow func(int64)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	testlog.Start(t)
	st, err := store.Open(filepath.Join(t.TempDir(), "pump.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{store: st, notes: &notifications{}, nowMs: t0}
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return time.UnixMilli(f.nowMs)
	}
	f.setNow = func(ms int64) {
		mu.Lock()
		defer mu.Unlock()
		f.nowMs = ms
	}
	f.guard = guard.New(guard.Options{Prefs: prefs.NewMemory(), Notifier: f.notes, Clock: clock})
	f.sync = New(Options{Store: st, Guard: f.guard, Clock: clock})
	return f
}

func TestBolusTempIDPromotionYieldsOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.sync.AddBolusWithTempID(ctx, t0, 3, 1001, pump.BolusNormal, insight)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.sync.AddBolusWithTempID(ctx, t0, 3, 1001, pump.BolusNormal, insight)
	require.NoError(t, err)
	assert.False(t, ok, "duplicate temp id is a no-op")

	ok, err = f.sync.SyncBolusWithTempID(ctx, t0, 2.9, 1001, nil, pump.Int64(88), insight)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.sync.SyncBolusWithPumpID(ctx, t0, 2.9, nil, 88, insight)
	require.NoError(t, err)
	assert.False(t, ok, "pump id already reconciled")

	all, err := f.store.Boluses(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(88), *all[0].IDs.PumpID)
}

func TestGuardRejectionWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.sync.SyncBolusWithPumpID(ctx, t0, 1, nil, 1, insight)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.sync.SyncBolusWithPumpID(ctx, t0+minute, 1, nil, 2, other)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.notes.count(), "cross-pump data raises one alert")

	ok, err = f.sync.SyncBolusWithPumpID(ctx, t0-minute, 1, nil, 3, insight)
	require.NoError(t, err)
	assert.False(t, ok, "history before registration is ignored")

	all, err := f.store.Boluses(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTotalDailyDoseNeverNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.sync.CreateOrUpdateTotalDailyDose(ctx, t0, 10, 12, 22, nil, insight)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.sync.CreateOrUpdateTotalDailyDose(ctx, t0+minute, 10, 12, 22, nil, other)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, f.notes.count())

	ok, err = f.sync.CreateOrUpdateTotalDailyDose(ctx, t0+minute, 11, 12, 23, nil, insight)
	require.NoError(t, err)
	assert.False(t, ok, "same day updates, no insert")
}

func TestStopTemporaryBasalClosesSameRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.sync.SyncTemporaryBasalWithPumpID(ctx, t0, 150, 60*minute, false, nil, 10, insight)
	require.NoError(t, err)
	require.True(t, ok)
	running, err := f.store.TemporaryBasalActiveAt(ctx, t0+minute)
	require.NoError(t, err)
	require.NotNil(t, running)

	stop := t0 + 10*minute
	ok, err = f.sync.SyncStopTemporaryBasalWithPumpID(ctx, stop, 11, insight)
	require.NoError(t, err)
	assert.True(t, ok)

	active, err := f.store.TemporaryBasalActiveAt(ctx, stop+1)
	require.NoError(t, err)
	assert.Nil(t, active)

	all, err := f.store.TemporaryBasals(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, running.ID, all[0].ID)
	assert.Equal(t, int64(11), *all[0].IDs.EndID)
}

func TestHistoryReplayKeepsStoppedRecordsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stop := t0 + 10*minute
	for pass := 0; pass < 2; pass++ {
		_, err := f.sync.SyncTemporaryBasalWithPumpID(ctx, t0, 150, 60*minute, false, nil, 10, insight)
		require.NoError(t, err)
		_, err = f.sync.SyncStopTemporaryBasalWithPumpID(ctx, stop, 11, insight)
		require.NoError(t, err)
		_, err = f.sync.SyncExtendedBolusWithPumpID(ctx, t0, 3, 60*minute, false, 20, insight)
		require.NoError(t, err)
		_, err = f.sync.SyncStopExtendedBolusWithPumpID(ctx, stop, 21, insight)
		require.NoError(t, err)
	}

	f.setNow(stop + minute)
	state, err := f.sync.ExpectedPumpState(ctx)
	require.NoError(t, err)
	assert.Nil(t, state.TemporaryBasal)
	assert.Nil(t, state.ExtendedBolus)

	basals, err := f.store.TemporaryBasals(ctx, 0)
	require.NoError(t, err)
	require.Len(t, basals, 1)
	assert.Equal(t, 10*minute, basals[0].Duration)
	assert.Equal(t, int64(11), *basals[0].IDs.EndID)
}

func TestTotalDailyDoseFromHistoryMergesWithToday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.sync.CreateOrUpdateTotalDailyDose(ctx, t0, 4, 6, 10, nil, insight)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.sync.CreateOrUpdateTotalDailyDose(ctx, t0+minute, 5, 7, 12, pump.Int64(42), insight)
	require.NoError(t, err)
	assert.False(t, ok, "joins the existing day row")

	all, err := f.store.TotalDailyDoses(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].IDs.PumpID)
	assert.Equal(t, int64(42), *all[0].IDs.PumpID)
	assert.Equal(t, 12.0, all[0].Total)
}

func TestTemporaryBasalTempIDFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.sync.AddTemporaryBasalWithTempID(ctx, t0, 0, 30*minute, false, 5, pump.TBREmulatedPumpSuspend, insight)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.sync.SyncTemporaryBasalWithTempID(ctx, t0, 0, 30*minute, false, 5, nil, pump.Int64(500), insight)
	require.NoError(t, err)
	require.True(t, ok)

	all, err := f.store.TemporaryBasals(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, pump.TBREmulatedPumpSuspend, all[0].Type, "promotion keeps the type")

	ok, err = f.sync.InvalidateTemporaryBasalWithPumpID(ctx, 500, insight)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.sync.InvalidateTemporaryBasalWithTempID(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok, "already invalid")
}

func TestInvalidationsAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.SyncBolusWithPumpID(ctx, t0, 1, nil, 1, insight)
	require.NoError(t, err)
	_, err = f.sync.SyncTemporaryBasalWithPumpID(ctx, t0, 120, 30*minute, false, nil, 2, insight)
	require.NoError(t, err)
	_, err = f.sync.SyncExtendedBolusWithPumpID(ctx, t0, 2, 60*minute, false, 3, insight)
	require.NoError(t, err)

	state, err := f.sync.ExpectedPumpState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.TemporaryBasal)
	require.NotNil(t, state.ExtendedBolus)
	require.NotNil(t, state.Bolus)

	newest, err := f.store.NewestBolus(ctx)
	require.NoError(t, err)

	ok, err := f.sync.InvalidateBolus(ctx, newest.ID, pump.SourceUser, t0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.sync.InvalidateTemporaryBasal(ctx, state.TemporaryBasal.ID, pump.SourceUser, t0)
	require.NoError(t, err)
	assert.True(t, ok)
	eb, err := f.store.ExtendedBolusActiveAt(ctx, t0)
	require.NoError(t, err)
	ok, err = f.sync.InvalidateExtendedBolus(ctx, eb.ID, pump.SourceUser, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := f.store.UserEntries(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	state, err = f.sync.ExpectedPumpState(ctx)
	require.NoError(t, err)
	assert.Nil(t, state.TemporaryBasal)
	assert.Nil(t, state.ExtendedBolus)
	assert.Nil(t, state.Bolus)
	assert.Equal(t, "SN-1", state.SerialNumber)
}

func TestTherapyEventsAndAnnouncements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.sync.InsertTherapyEventIfNewWithTimestamp(ctx, t0, pump.TherapyCannulaChange, "", pump.Int64(7), insight)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.sync.InsertTherapyEventIfNewWithTimestamp(ctx, t0, pump.TherapyCannulaChange, "", pump.Int64(7), insight)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.sync.SyncCarbsWithTimestamp(ctx, t0, 45, nil, insight)
	require.NoError(t, err)
	assert.True(t, ok)

	f.sync.InsertAnnouncement(ctx, "occlusion detected", nil, insight)
	events, err := f.store.TherapyEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, pump.TherapyAnnouncement, events[1].Type)
	assert.Equal(t, "occlusion detected", events[1].Note)
}

func TestConnectNewPumpEndsRunningAndClears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.SyncTemporaryBasalWithPumpID(ctx, t0, 150, 60*minute, false, nil, 1, insight)
	require.NoError(t, err)
	_, err = f.sync.SyncExtendedBolusWithPumpID(ctx, t0, 3, 60*minute, false, 2, insight)
	require.NoError(t, err)

	f.setNow(t0 + 20*minute)
	require.NoError(t, f.sync.ConnectNewPump(ctx, true))

	_, ok := f.guard.Active()
	assert.False(t, ok, "identity cleared")

	tb, err := f.store.TemporaryBasalActiveAt(ctx, t0+20*minute+1)
	require.NoError(t, err)
	assert.Nil(t, tb)
	eb, err := f.store.ExtendedBolusActiveAt(ctx, t0+20*minute+1)
	require.NoError(t, err)
	assert.Nil(t, eb)

	all, err := f.store.TemporaryBasals(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, t0+20*minute, *all[0].IDs.EndID)

	ok, err = f.sync.SyncBolusWithPumpID(ctx, t0+20*minute, 1, nil, 9, other)
	require.NoError(t, err)
	assert.True(t, ok, "new pump registers after connect")
	assert.True(t, f.sync.VerifyPumpIdentification(other))
	assert.False(t, f.sync.VerifyPumpIdentification(insight))
}

func TestConnectNewPumpWithoutEndingKeepsRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.SyncTemporaryBasalWithPumpID(ctx, t0, 150, 60*minute, false, nil, 1, insight)
	require.NoError(t, err)
	require.NoError(t, f.sync.ConnectNewPump(ctx, false))

	tb, err := f.store.TemporaryBasalActiveAt(ctx, t0+minute)
	require.NoError(t, err)
	assert.NotNil(t, tb)
}

type failingStore struct {
	Store
}

var errDisk = errors.New("disk full")

func (failingStore) SyncBolus(context.Context, pump.Bolus, *pump.BolusType) (store.Result, error) {
	return store.Result{}, errDisk
}

func TestStoreErrorsPropagate(t *testing.T) {
	testlog.Start(t)
	now := time.UnixMilli(t0)
	g := guard.New(guard.Options{Prefs: prefs.NewMemory(), Clock: func() time.Time { return now }})
	s := New(Options{Store: failingStore{}, Guard: g, Clock: func() time.Time { return now }})

	ok, err := s.SyncBolusWithPumpID(context.Background(), t0, 1, nil, 1, insight)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errDisk)
}
