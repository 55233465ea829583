package pump

import "strconv"

// Source names who caused an audited change.
type Source string

const (
	SourcePump        Source = "Pump"
	SourceInsight     Source = "Insight"
	SourceCombo       Source = "Combo"
	SourceDana        Source = "Dana"
	SourceOmnipod     Source = "Omnipod"
	SourceMedtrum     Source = "Medtrum"
	SourceVirtualPump Source = "VirtualPump"
	SourceUser        Source = "User"
	SourceTreatments  Source = "Treatments"
)

// Action is the audited change.
type Action string

const (
	ActionCareportal           Action = "CAREPORTAL"
	ActionTreatment            Action = "TREATMENT"
	ActionTempBasalRemoved     Action = "TEMP_BASAL_REMOVED"
	ActionBolusRemoved         Action = "BOLUS_REMOVED"
	ActionExtendedBolusRemoved Action = "EXTENDED_BOLUS_REMOVED"
)

// ValueWithUnit is one typed value attached to an audit entry.
type ValueWithUnit struct {
	Unit  string `json:"unit"`
	Value string `json:"value"`
}

func TimestampValue(ms int64) ValueWithUnit {
	return ValueWithUnit{Unit: "timestamp", Value: strconv.FormatInt(ms, 10)}
}

func TherapyEventTypeValue(t TherapyEventType) ValueWithUnit {
	return ValueWithUnit{Unit: "te_type", Value: string(t)}
}

func InsulinValue(units float64) ValueWithUnit {
	return ValueWithUnit{Unit: "U", Value: strconv.FormatFloat(units, 'f', 2, 64)}
}
