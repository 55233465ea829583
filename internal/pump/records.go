package pump

import "fmt"

type BolusType string

const (
	BolusNormal  BolusType = "NORMAL"
	BolusSMB     BolusType = "SMB"
	BolusPriming BolusType = "PRIMING"
)

type Bolus struct {
	ID        int64
	Timestamp int64
	Amount    float64
	Type      BolusType
	IDs       IDs
	Valid     bool
}

type Carbs struct {
	ID        int64
	Timestamp int64
	Amount    float64
	Duration  int64
	IDs       IDs
	Valid     bool
}

type TherapyEventType string

const (
	TherapyAnnouncement  TherapyEventType = "ANNOUNCEMENT"
	TherapyNote          TherapyEventType = "NOTE"
	TherapyCannulaChange TherapyEventType = "CANNULA_CHANGE"
	TherapyInsulinChange TherapyEventType = "INSULIN_CHANGE"
	TherapyBatteryChange TherapyEventType = "PUMP_BATTERY_CHANGE"
	TherapyPumpStop      TherapyEventType = "PUMP_STOP"
	TherapyPumpStart     TherapyEventType = "PUMP_START"
	TherapyOcclusion     TherapyEventType = "OCCLUSION"
)

type TherapyEvent struct {
	ID        int64
	Timestamp int64
	Type      TherapyEventType
	Duration  int64
	Note      string
	EnteredBy string
	IDs       IDs
	Valid     bool
}

type TemporaryBasalType string

const (
	TBRNormal              TemporaryBasalType = "NORMAL"
	TBREmulatedPumpSuspend TemporaryBasalType = "EMULATED_PUMP_SUSPEND"
	TBRPumpSuspend         TemporaryBasalType = "PUMP_SUSPEND"
	TBRSuperbolus          TemporaryBasalType = "SUPERBOLUS"
	TBRFakeExtended        TemporaryBasalType = "FAKE_EXTENDED"
)

// ParseTemporaryBasalType accepts the stored names.
func ParseTemporaryBasalType(raw string) (TemporaryBasalType, error) {
	switch t := TemporaryBasalType(raw); t {
	case TBRNormal, TBREmulatedPumpSuspend, TBRPumpSuspend, TBRSuperbolus, TBRFakeExtended:
		return t, nil
	default:
		return "", fmt.Errorf("pump: unknown temporary basal type %q", raw)
	}
}

// TemporaryBasal is a rate override. Rate is U/h when IsAbsolute, otherwise
// a percentage of the profile rate.
type TemporaryBasal struct {
	ID         int64
	Timestamp  int64
	Duration   int64
	Rate       float64
	IsAbsolute bool
	Type       TemporaryBasalType
	IDs        IDs
	Valid      bool
}

// End is the exclusive end of the basal in epoch milliseconds.
func (b TemporaryBasal) End() int64 { return b.Timestamp + b.Duration }

// ActiveAt reports whether the basal covers ts.
func (b TemporaryBasal) ActiveAt(ts int64) bool {
	return b.Valid && b.Timestamp <= ts && ts < b.End()
}

type ExtendedBolus struct {
	ID                   int64
	Timestamp            int64
	Duration             int64
	Amount               float64
	IsEmulatingTempBasal bool
	IDs                  IDs
	Valid                bool
}

func (e ExtendedBolus) End() int64 { return e.Timestamp + e.Duration }

func (e ExtendedBolus) ActiveAt(ts int64) bool {
	return e.Valid && e.Timestamp <= ts && ts < e.End()
}

// Rate is the delivery rate in U/h.
func (e ExtendedBolus) Rate() float64 {
	if e.Duration <= 0 {
		return 0
	}
	return e.Amount * float64(3600000) / float64(e.Duration)
}

type TotalDailyDose struct {
	ID        int64
	Timestamp int64
	Bolus     float64
	Basal     float64
	Total     float64
	IDs       IDs
	Valid     bool
}
