package app

import (
	"fmt"
	"time"

	"github.com/danmuck/pumpctl/internal/protocol/bytebuf"
)

// GetDateTimeMessage reads the pump clock.
type GetDateTimeMessage struct {
	Time time.Time
}

func (*GetDateTimeMessage) Kind() Kind              { return KindGetDateTime }
func (*GetDateTimeMessage) Encode() ([]byte, error) { return nil, nil }

func (m *GetDateTimeMessage) Decode(payload []byte) error {
	t, err := readDateTime(bytebuf.NewReader(payload))
	if err != nil {
		return err
	}
	m.Time = t
	return nil
}

func (m *GetDateTimeMessage) EncodeResponse() ([]byte, error) {
	w := bytebuf.NewWriter(dateTimeLen)
	writeDateTime(w, m.Time)
	return w.Finish(), nil
}

// OperatingMode is the pump run state.
type OperatingMode uint16

const (
	OperatingModeStopped OperatingMode = 0x001F
	OperatingModeStarted OperatingMode = 0x00E3
	OperatingModePaused  OperatingMode = 0x009C
)

func (m OperatingMode) String() string {
	switch m {
	case OperatingModeStopped:
		return "stopped"
	case OperatingModeStarted:
		return "started"
	case OperatingModePaused:
		return "paused"
	default:
		return fmt.Sprintf("operating_mode(0x%04X)", uint16(m))
	}
}

func parseOperatingMode(v uint16) (OperatingMode, error) {
	switch m := OperatingMode(v); m {
	case OperatingModeStopped, OperatingModeStarted, OperatingModePaused:
		return m, nil
	default:
		return 0, fmt.Errorf("app: unknown operating mode 0x%04X", v)
	}
}

// GetOperatingModeMessage reads the pump run state.
type GetOperatingModeMessage struct {
	Mode OperatingMode
}

func (*GetOperatingModeMessage) Kind() Kind              { return KindGetOperatingMode }
func (*GetOperatingModeMessage) Encode() ([]byte, error) { return nil, nil }

func (m *GetOperatingModeMessage) Decode(payload []byte) error {
	v, err := bytebuf.NewReader(payload).Uint16()
	if err != nil {
		return err
	}
	m.Mode, err = parseOperatingMode(v)
	return err
}

func (m *GetOperatingModeMessage) EncodeResponse() ([]byte, error) {
	return bytebuf.NewWriter(2).Uint16(uint16(m.Mode)).Finish(), nil
}

// GetActiveTBRMessage reads the running temporary basal rate. A percentage
// of 100 means no TBR is running.
type GetActiveTBRMessage struct {
	Percentage       uint16
	InitialDuration  time.Duration
	RemainingMinutes uint16
}

// Active reports whether a temporary basal is running.
func (m *GetActiveTBRMessage) Active() bool {
	return m.Percentage != 100
}

func (*GetActiveTBRMessage) Kind() Kind              { return KindGetActiveTBR }
func (*GetActiveTBRMessage) Encode() ([]byte, error) { return nil, nil }

func (m *GetActiveTBRMessage) Decode(payload []byte) error {
	r := bytebuf.NewReader(payload)
	var err error
	if m.Percentage, err = r.Uint16(); err != nil {
		return err
	}
	if m.RemainingMinutes, err = r.Uint16(); err != nil {
		return err
	}
	initial, err := r.Uint16()
	if err != nil {
		return err
	}
	m.InitialDuration = time.Duration(initial) * time.Minute
	return nil
}

func (m *GetActiveTBRMessage) EncodeResponse() ([]byte, error) {
	return bytebuf.NewWriter(6).
		Uint16(m.Percentage).
		Uint16(m.RemainingMinutes).
		Uint16(uint16(m.InitialDuration / time.Minute)).
		Finish(), nil
}

// GetTotalDailyDoseMessage reads today's delivered insulin totals.
type GetTotalDailyDoseMessage struct {
	Bolus float64
	Basal float64
	Total float64
}

func (*GetTotalDailyDoseMessage) Kind() Kind              { return KindGetTotalDailyDose }
func (*GetTotalDailyDoseMessage) Encode() ([]byte, error) { return nil, nil }

func (m *GetTotalDailyDoseMessage) Decode(payload []byte) error {
	r := bytebuf.NewReader(payload)
	bolus, err := r.Uint32()
	if err != nil {
		return err
	}
	basal, err := r.Uint32()
	if err != nil {
		return err
	}
	total, err := r.Uint32()
	if err != nil {
		return err
	}
	m.Bolus, m.Basal, m.Total = unitsFromCenti(bolus), unitsFromCenti(basal), unitsFromCenti(total)
	return nil
}

func (m *GetTotalDailyDoseMessage) EncodeResponse() ([]byte, error) {
	return bytebuf.NewWriter(12).
		Uint32(centiFromUnits(m.Bolus)).
		Uint32(centiFromUnits(m.Basal)).
		Uint32(centiFromUnits(m.Total)).
		Finish(), nil
}

// GetBatteryStatusMessage reads the battery charge.
type GetBatteryStatusMessage struct {
	Percent   uint8
	Millivolt uint16
}

func (*GetBatteryStatusMessage) Kind() Kind              { return KindGetBatteryStatus }
func (*GetBatteryStatusMessage) Encode() ([]byte, error) { return nil, nil }

func (m *GetBatteryStatusMessage) Decode(payload []byte) error {
	r := bytebuf.NewReader(payload)
	var err error
	if m.Percent, err = r.Uint8(); err != nil {
		return err
	}
	if m.Percent > 100 {
		return fmt.Errorf("app: battery percent %d out of range", m.Percent)
	}
	m.Millivolt, err = r.Uint16()
	return err
}

func (m *GetBatteryStatusMessage) EncodeResponse() ([]byte, error) {
	return bytebuf.NewWriter(3).Uint8(m.Percent).Uint16(m.Millivolt).Finish(), nil
}
