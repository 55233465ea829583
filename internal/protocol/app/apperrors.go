package app

import "fmt"

// ErrorKind is a device fault the pump reports in the frame header.
type ErrorKind uint8

const (
	ErrorUnknown ErrorKind = iota
	ErrorPumpStopped
	ErrorPumpBusy
	ErrorRunModeNotAllowed
	ErrorServiceAlreadyActivated
	ErrorServiceNotActivated
	ErrorServiceIncompatible
	ErrorServiceCommandNotAvailable
	ErrorCommandExecutionFailed
	ErrorInvalidPayloadLength
	ErrorInvalidParameter
	ErrorInvalidDateParameter
	ErrorInvalidTimeParameter
	ErrorBolusAmountNotInRange
	ErrorBolusDurationNotInRange
	ErrorBolusTypeAndParameterMismatch
	ErrorBolusLagTimeFeatureDisabled
	ErrorMaximumNumberOfBolusTypeAlreadyRunning
	ErrorNoSuchBolusToCancel
	ErrorNoActiveTBRToCancel
	ErrorNoActiveTBRToChange
	ErrorInvalidTBRFactor
	ErrorInvalidTBRDuration
	ErrorTooManyMessages
	ErrorNotReferenced
	ErrorReadingHistoryAlreadyStarted
	ErrorReadingHistoryNotStarted
)

var errorKindNames = map[ErrorKind]string{
	ErrorUnknown:                                "unknown",
	ErrorPumpStopped:                            "pump_stopped",
	ErrorPumpBusy:                               "pump_busy",
	ErrorRunModeNotAllowed:                      "run_mode_not_allowed",
	ErrorServiceAlreadyActivated:                "service_already_activated",
	ErrorServiceNotActivated:                    "service_not_activated",
	ErrorServiceIncompatible:                    "service_incompatible",
	ErrorServiceCommandNotAvailable:             "service_command_not_available",
	ErrorCommandExecutionFailed:                 "command_execution_failed",
	ErrorInvalidPayloadLength:                   "invalid_payload_length",
	ErrorInvalidParameter:                       "invalid_parameter",
	ErrorInvalidDateParameter:                   "invalid_date_parameter",
	ErrorInvalidTimeParameter:                   "invalid_time_parameter",
	ErrorBolusAmountNotInRange:                  "bolus_amount_not_in_range",
	ErrorBolusDurationNotInRange:                "bolus_duration_not_in_range",
	ErrorBolusTypeAndParameterMismatch:          "bolus_type_and_parameter_mismatch",
	ErrorBolusLagTimeFeatureDisabled:            "bolus_lag_time_feature_disabled",
	ErrorMaximumNumberOfBolusTypeAlreadyRunning: "maximum_number_of_bolus_type_already_running",
	ErrorNoSuchBolusToCancel:                    "no_such_bolus_to_cancel",
	ErrorNoActiveTBRToCancel:                    "no_active_tbr_to_cancel",
	ErrorNoActiveTBRToChange:                    "no_active_tbr_to_change",
	ErrorInvalidTBRFactor:                       "invalid_tbr_factor",
	ErrorInvalidTBRDuration:                     "invalid_tbr_duration",
	ErrorTooManyMessages:                        "too_many_messages",
	ErrorNotReferenced:                          "not_referenced",
	ErrorReadingHistoryAlreadyStarted:           "reading_history_already_started",
	ErrorReadingHistoryNotStarted:               "reading_history_not_started",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error_kind(%d)", uint8(k))
}

// errorCodes maps the header error code to its kind.
var errorCodes = map[uint16]ErrorKind{
	0xF003: ErrorServiceCommandNotAvailable,
	0xF005: ErrorServiceIncompatible,
	0xF006: ErrorServiceAlreadyActivated,
	0xF009: ErrorServiceNotActivated,
	0xF00A: ErrorTooManyMessages,
	0xF00C: ErrorInvalidPayloadLength,
	0xF00F: ErrorPumpBusy,
	0xF033: ErrorCommandExecutionFailed,
	0xF035: ErrorNotReferenced,
	0xF03A: ErrorInvalidParameter,
	0xF03C: ErrorInvalidDateParameter,
	0xF03F: ErrorInvalidTimeParameter,
	0xF050: ErrorRunModeNotAllowed,
	0xF50C: ErrorPumpStopped,
	0xF504: ErrorBolusAmountNotInRange,
	0xF50F: ErrorBolusDurationNotInRange,
	0xF533: ErrorBolusTypeAndParameterMismatch,
	0xF530: ErrorBolusLagTimeFeatureDisabled,
	0xF53C: ErrorMaximumNumberOfBolusTypeAlreadyRunning,
	0xF540: ErrorNoSuchBolusToCancel,
	0xF55A: ErrorNoActiveTBRToCancel,
	0xF55C: ErrorNoActiveTBRToChange,
	0xF563: ErrorInvalidTBRFactor,
	0xF565: ErrorInvalidTBRDuration,
	0xF5A0: ErrorReadingHistoryAlreadyStarted,
	0xF5A3: ErrorReadingHistoryNotStarted,
}

// LookupErrorCode maps a header error code to its kind.
func LookupErrorCode(code uint16) (ErrorKind, bool) {
	k, ok := errorCodes[code]
	return k, ok
}

// DeviceError is a known fault reported by the pump.
type DeviceError struct {
	Kind ErrorKind
	Code uint16
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("app: device error %s (0x%04X)", e.Kind, e.Code)
}

// UnknownErrorCodeError is a nonzero error code absent from the table.
type UnknownErrorCodeError struct {
	Code uint16
}

func (e *UnknownErrorCodeError) Error() string {
	return fmt.Sprintf("app: unknown error code 0x%04X", e.Code)
}

func errorForCode(code uint16) error {
	kind, ok := LookupErrorCode(code)
	if !ok {
		return &UnknownErrorCodeError{Code: code}
	}
	return &DeviceError{Kind: kind, Code: code}
}
