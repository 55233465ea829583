package pump

// State is what the controller expects the pump to be doing right now.
type State struct {
	TemporaryBasal *TemporaryBasalState `json:"temporary_basal,omitempty"`
	ExtendedBolus  *ExtendedBolusState  `json:"extended_bolus,omitempty"`
	Bolus          *BolusState          `json:"bolus,omitempty"`
	SerialNumber   string               `json:"serial_number"`
}

type TemporaryBasalState struct {
	ID         int64              `json:"id"`
	Timestamp  int64              `json:"timestamp"`
	Duration   int64              `json:"duration"`
	Rate       float64            `json:"rate"`
	IsAbsolute bool               `json:"is_absolute"`
	Type       TemporaryBasalType `json:"type"`
	PumpID     *int64             `json:"pump_id,omitempty"`
	Origin     Origin             `json:"origin"`
}

type ExtendedBolusState struct {
	Timestamp int64   `json:"timestamp"`
	Duration  int64   `json:"duration"`
	Amount    float64 `json:"amount"`
	Rate      float64 `json:"rate"`
	Origin    Origin  `json:"origin"`
}

type BolusState struct {
	Timestamp int64   `json:"timestamp"`
	Amount    float64 `json:"amount"`
}
