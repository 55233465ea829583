package app

import (
	"fmt"
	"time"

	"github.com/danmuck/pumpctl/internal/protocol/bytebuf"
)

// HistoryEventType tags one record of the pump history log.
type HistoryEventType uint16

const (
	EventBolusDelivered       HistoryEventType = 0x0001
	EventTBRStarted           HistoryEventType = 0x0002
	EventTBREnded             HistoryEventType = 0x0003
	EventOperatingModeChanged HistoryEventType = 0x0004
	EventCartridgeInserted    HistoryEventType = 0x0005
	EventCannulaFilled        HistoryEventType = 0x0006
	EventBatteryInserted      HistoryEventType = 0x0007
	EventDailyTotal           HistoryEventType = 0x0008
)

// EventMeta is common to every history record. Position is the pump's own
// monotonically increasing record number and serves as the pump id.
type EventMeta struct {
	Position uint32
	Time     time.Time
}

func (m EventMeta) Meta() EventMeta { return m }

func (m *EventMeta) setMeta(v EventMeta) { *m = v }

// HistoryEvent is one decoded history record.
type HistoryEvent interface {
	Meta() EventMeta
	Type() HistoryEventType
	setMeta(EventMeta)
	decodeBody(r *bytebuf.Reader) error
	encodeBody(w *bytebuf.Writer)
}

// BolusDeliveredEvent records a finished bolus. Extended and multiwave
// boluses carry the extended part and its duration.
type BolusDeliveredEvent struct {
	EventMeta
	BolusID   uint16
	BolusType BolusType
	Immediate float64
	Extended  float64
	Duration  time.Duration
}

func (*BolusDeliveredEvent) Type() HistoryEventType { return EventBolusDelivered }

func (e *BolusDeliveredEvent) decodeBody(r *bytebuf.Reader) error {
	var err error
	if e.BolusID, err = r.Uint16(); err != nil {
		return err
	}
	t, err := r.Uint16()
	if err != nil {
		return err
	}
	if e.BolusType, err = parseBolusType(t); err != nil {
		return err
	}
	immediate, err := r.Uint16()
	if err != nil {
		return err
	}
	extended, err := r.Uint16()
	if err != nil {
		return err
	}
	minutes, err := r.Uint16()
	if err != nil {
		return err
	}
	e.Immediate = unitsFromCenti(uint32(immediate))
	e.Extended = unitsFromCenti(uint32(extended))
	e.Duration = time.Duration(minutes) * time.Minute
	return nil
}

func (e *BolusDeliveredEvent) encodeBody(w *bytebuf.Writer) {
	w.Uint16(e.BolusID).
		Uint16(uint16(e.BolusType)).
		Uint16(uint16(centiFromUnits(e.Immediate))).
		Uint16(uint16(centiFromUnits(e.Extended))).
		Uint16(uint16(e.Duration / time.Minute))
}

// TBRStartedEvent records a temporary basal start.
type TBRStartedEvent struct {
	EventMeta
	Percentage uint16
	Duration   time.Duration
}

func (*TBRStartedEvent) Type() HistoryEventType { return EventTBRStarted }

func (e *TBRStartedEvent) decodeBody(r *bytebuf.Reader) error {
	p, d, err := readPercentDuration(r)
	e.Percentage, e.Duration = p, d
	return err
}

func (e *TBRStartedEvent) encodeBody(w *bytebuf.Writer) {
	w.Uint16(e.Percentage).Uint16(uint16(e.Duration / time.Minute))
}

// TBREndedEvent records a temporary basal end with its actual duration.
type TBREndedEvent struct {
	EventMeta
	Percentage uint16
	Duration   time.Duration
}

func (*TBREndedEvent) Type() HistoryEventType { return EventTBREnded }

func (e *TBREndedEvent) decodeBody(r *bytebuf.Reader) error {
	p, d, err := readPercentDuration(r)
	e.Percentage, e.Duration = p, d
	return err
}

func (e *TBREndedEvent) encodeBody(w *bytebuf.Writer) {
	w.Uint16(e.Percentage).Uint16(uint16(e.Duration / time.Minute))
}

func readPercentDuration(r *bytebuf.Reader) (uint16, time.Duration, error) {
	p, err := r.Uint16()
	if err != nil {
		return 0, 0, err
	}
	minutes, err := r.Uint16()
	if err != nil {
		return 0, 0, err
	}
	return p, time.Duration(minutes) * time.Minute, nil
}

// OperatingModeChangedEvent records a start/stop/pause of delivery.
type OperatingModeChangedEvent struct {
	EventMeta
	Old OperatingMode
	New OperatingMode
}

func (*OperatingModeChangedEvent) Type() HistoryEventType { return EventOperatingModeChanged }

func (e *OperatingModeChangedEvent) decodeBody(r *bytebuf.Reader) error {
	oldMode, err := r.Uint16()
	if err != nil {
		return err
	}
	newMode, err := r.Uint16()
	if err != nil {
		return err
	}
	if e.Old, err = parseOperatingMode(oldMode); err != nil {
		return err
	}
	e.New, err = parseOperatingMode(newMode)
	return err
}

func (e *OperatingModeChangedEvent) encodeBody(w *bytebuf.Writer) {
	w.Uint16(uint16(e.Old)).Uint16(uint16(e.New))
}

// CartridgeInsertedEvent records a new insulin cartridge.
type CartridgeInsertedEvent struct {
	EventMeta
	Amount float64
}

func (*CartridgeInsertedEvent) Type() HistoryEventType { return EventCartridgeInserted }

func (e *CartridgeInsertedEvent) decodeBody(r *bytebuf.Reader) error {
	v, err := r.Uint16()
	e.Amount = unitsFromCenti(uint32(v))
	return err
}

func (e *CartridgeInsertedEvent) encodeBody(w *bytebuf.Writer) {
	w.Uint16(uint16(centiFromUnits(e.Amount)))
}

// CannulaFilledEvent records a cannula prime.
type CannulaFilledEvent struct {
	EventMeta
	Amount float64
}

func (*CannulaFilledEvent) Type() HistoryEventType { return EventCannulaFilled }

func (e *CannulaFilledEvent) decodeBody(r *bytebuf.Reader) error {
	v, err := r.Uint16()
	e.Amount = unitsFromCenti(uint32(v))
	return err
}

func (e *CannulaFilledEvent) encodeBody(w *bytebuf.Writer) {
	w.Uint16(uint16(centiFromUnits(e.Amount)))
}

// BatteryInsertedEvent records a battery change.
type BatteryInsertedEvent struct {
	EventMeta
}

func (*BatteryInsertedEvent) Type() HistoryEventType        { return EventBatteryInserted }
func (*BatteryInsertedEvent) decodeBody(*bytebuf.Reader) error { return nil }
func (*BatteryInsertedEvent) encodeBody(*bytebuf.Writer)       {}

// DailyTotalEvent records the insulin delivered on Day.
type DailyTotalEvent struct {
	EventMeta
	Day   time.Time
	Basal float64
	Bolus float64
}

func (*DailyTotalEvent) Type() HistoryEventType { return EventDailyTotal }

func (e *DailyTotalEvent) decodeBody(r *bytebuf.Reader) error {
	year, err := r.Uint16()
	if err != nil {
		return err
	}
	month, err := r.Uint8()
	if err != nil {
		return err
	}
	day, err := r.Uint8()
	if err != nil {
		return err
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return fmt.Errorf("app: invalid daily total date %04d-%02d-%02d", year, month, day)
	}
	basal, err := r.Uint32()
	if err != nil {
		return err
	}
	bolus, err := r.Uint32()
	if err != nil {
		return err
	}
	e.Day = time.Date(int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
	e.Basal = unitsFromCenti(basal)
	e.Bolus = unitsFromCenti(bolus)
	return nil
}

func (e *DailyTotalEvent) encodeBody(w *bytebuf.Writer) {
	d := e.Day.UTC()
	w.Uint16(uint16(d.Year())).
		Uint8(uint8(d.Month())).
		Uint8(uint8(d.Day())).
		Uint32(centiFromUnits(e.Basal)).
		Uint32(centiFromUnits(e.Bolus))
}

func newHistoryEvent(t HistoryEventType) (HistoryEvent, error) {
	switch t {
	case EventBolusDelivered:
		return &BolusDeliveredEvent{}, nil
	case EventTBRStarted:
		return &TBRStartedEvent{}, nil
	case EventTBREnded:
		return &TBREndedEvent{}, nil
	case EventOperatingModeChanged:
		return &OperatingModeChangedEvent{}, nil
	case EventCartridgeInserted:
		return &CartridgeInsertedEvent{}, nil
	case EventCannulaFilled:
		return &CannulaFilledEvent{}, nil
	case EventBatteryInserted:
		return &BatteryInsertedEvent{}, nil
	case EventDailyTotal:
		return &DailyTotalEvent{}, nil
	default:
		return nil, fmt.Errorf("app: unknown history event type 0x%04X", uint16(t))
	}
}
