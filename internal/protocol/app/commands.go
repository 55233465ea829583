package app

// Command is the numeric command id carried in the frame header.
type Command uint16

const (
	CmdConnect             Command = 0xF00B
	CmdDisconnect          Command = 0x0014
	CmdActivateService     Command = 0x7137
	CmdGetDateTime         Command = 0xE300
	CmdGetOperatingMode    Command = 0xFC00
	CmdGetActiveTBR        Command = 0x183F
	CmdGetTotalDailyDose   Command = 0xC01F
	CmdGetBatteryStatus    Command = 0xA61F
	CmdSetTBR              Command = 0xC518
	CmdCancelTBR           Command = 0x3BFF
	CmdDeliverBolus        Command = 0x0318
	CmdCancelBolus         Command = 0x3CE3
	CmdStartReadingHistory Command = 0x3C54
	CmdReadHistoryEvents   Command = 0xA857
	CmdStopReadingHistory  Command = 0x6A56
)
