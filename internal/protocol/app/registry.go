package app

import "fmt"

// Variant declares one registered message type.
type Variant struct {
	Name        string
	Kind        Kind
	Command     Command
	Service     Service
	Priority    Priority
	InboundCRC  bool
	OutboundCRC bool
	New         func() Message
}

var variants = []Variant{
	{Name: "connect", Kind: KindConnect, Command: CmdConnect, Service: ServiceConnection, Priority: PriorityNormal,
		New: func() Message { return &ConnectMessage{} }},
	{Name: "disconnect", Kind: KindDisconnect, Command: CmdDisconnect, Service: ServiceConnection, Priority: PriorityNormal,
		New: func() Message { return &DisconnectMessage{} }},
	{Name: "activate_service", Kind: KindActivateService, Command: CmdActivateService, Service: ServiceConnection, Priority: PriorityNormal,
		New: func() Message { return &ActivateServiceMessage{} }},
	{Name: "get_date_time", Kind: KindGetDateTime, Command: CmdGetDateTime, Service: ServiceStatus, Priority: PriorityNormal, InboundCRC: true,
		New: func() Message { return &GetDateTimeMessage{} }},
	{Name: "get_operating_mode", Kind: KindGetOperatingMode, Command: CmdGetOperatingMode, Service: ServiceStatus, Priority: PriorityNormal, InboundCRC: true,
		New: func() Message { return &GetOperatingModeMessage{} }},
	{Name: "get_active_tbr", Kind: KindGetActiveTBR, Command: CmdGetActiveTBR, Service: ServiceStatus, Priority: PriorityNormal, InboundCRC: true,
		New: func() Message { return &GetActiveTBRMessage{} }},
	{Name: "get_total_daily_dose", Kind: KindGetTotalDailyDose, Command: CmdGetTotalDailyDose, Service: ServiceStatus, Priority: PriorityNormal, InboundCRC: true,
		New: func() Message { return &GetTotalDailyDoseMessage{} }},
	{Name: "get_battery_status", Kind: KindGetBatteryStatus, Command: CmdGetBatteryStatus, Service: ServiceStatus, Priority: PriorityNormal, InboundCRC: true,
		New: func() Message { return &GetBatteryStatusMessage{} }},
	{Name: "set_tbr", Kind: KindSetTBR, Command: CmdSetTBR, Service: ServiceRemoteControl, Priority: PriorityHigher, OutboundCRC: true,
		New: func() Message { return &SetTBRMessage{} }},
	{Name: "cancel_tbr", Kind: KindCancelTBR, Command: CmdCancelTBR, Service: ServiceRemoteControl, Priority: PriorityHigher, OutboundCRC: true,
		New: func() Message { return &CancelTBRMessage{} }},
	{Name: "deliver_bolus", Kind: KindDeliverBolus, Command: CmdDeliverBolus, Service: ServiceRemoteControl, Priority: PriorityHigher, InboundCRC: true, OutboundCRC: true,
		New: func() Message { return &DeliverBolusMessage{} }},
	{Name: "cancel_bolus", Kind: KindCancelBolus, Command: CmdCancelBolus, Service: ServiceRemoteControl, Priority: PriorityHighest, InboundCRC: true, OutboundCRC: true,
		New: func() Message { return &CancelBolusMessage{} }},
	{Name: "start_reading_history", Kind: KindStartReadingHistory, Command: CmdStartReadingHistory, Service: ServiceHistory, Priority: PriorityNormal, OutboundCRC: true,
		New: func() Message { return &StartReadingHistoryMessage{} }},
	{Name: "read_history_events", Kind: KindReadHistoryEvents, Command: CmdReadHistoryEvents, Service: ServiceHistory, Priority: PriorityNormal, InboundCRC: true,
		New: func() Message { return &ReadHistoryEventsMessage{} }},
	{Name: "stop_reading_history", Kind: KindStopReadingHistory, Command: CmdStopReadingHistory, Service: ServiceHistory, Priority: PriorityNormal,
		New: func() Message { return &StopReadingHistoryMessage{} }},
}

var (
	byCommand   map[Command]Variant
	byKind      map[Kind]Variant
	byName      map[string]Variant
	serviceByID map[uint8]Service
)

func init() {
	byCommand = make(map[Command]Variant, len(variants))
	byKind = make(map[Kind]Variant, len(variants))
	byName = make(map[string]Variant, len(variants))
	serviceByID = make(map[uint8]Service, len(services))
	for _, s := range services {
		if _, dup := serviceByID[s.ID]; dup {
			panic(fmt.Sprintf("app: duplicate service id 0x%02X", s.ID))
		}
		serviceByID[s.ID] = s
	}
	for _, v := range variants {
		if _, dup := byCommand[v.Command]; dup {
			panic(fmt.Sprintf("app: duplicate command id 0x%04X", uint16(v.Command)))
		}
		if _, dup := byKind[v.Kind]; dup {
			panic(fmt.Sprintf("app: duplicate message kind %d", v.Kind))
		}
		if _, ok := serviceByID[v.Service.ID]; !ok {
			panic(fmt.Sprintf("app: variant %s uses unregistered service 0x%02X", v.Name, v.Service.ID))
		}
		byCommand[v.Command] = v
		byKind[v.Kind] = v
		byName[v.Name] = v
	}
}

// LookupCommand returns the variant registered under id.
func LookupCommand(id Command) (Variant, bool) {
	v, ok := byCommand[id]
	return v, ok
}

// LookupKind returns the variant registered for kind.
func LookupKind(kind Kind) (Variant, bool) {
	v, ok := byKind[kind]
	return v, ok
}

// CommandOf resolves the command id for a message kind.
func CommandOf(kind Kind) (Command, bool) {
	v, ok := byKind[kind]
	return v.Command, ok
}

// LookupName returns the variant registered under its snake_case name.
func LookupName(name string) (Variant, bool) {
	v, ok := byName[name]
	return v, ok
}

// LookupService returns the service registered under id.
func LookupService(id uint8) (Service, bool) {
	s, ok := serviceByID[id]
	return s, ok
}

// Variants returns the registered variants in declaration order.
func Variants() []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants)
	return out
}
