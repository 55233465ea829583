package app

// Service is one pump-side service a command belongs to.
type Service struct {
	ID           uint8
	Name         string
	VersionMajor uint8
	VersionMinor uint8
	// Activated services need ActivateService before their commands are
	// accepted by the pump.
	NeedsActivation bool
}

var (
	ServiceConnection    = Service{ID: 0x00, Name: "connection", VersionMajor: 1, VersionMinor: 0}
	ServiceStatus        = Service{ID: 0x0F, Name: "status", VersionMajor: 1, VersionMinor: 0}
	ServiceParameter     = Service{ID: 0x33, Name: "parameter", VersionMajor: 1, VersionMinor: 0, NeedsActivation: true}
	ServiceHistory       = Service{ID: 0x3C, Name: "history", VersionMajor: 2, VersionMinor: 0, NeedsActivation: true}
	ServiceConfiguration = Service{ID: 0x55, Name: "configuration", VersionMajor: 1, VersionMinor: 0, NeedsActivation: true}
	ServiceRemoteControl = Service{ID: 0x66, Name: "remote_control", VersionMajor: 1, VersionMinor: 0, NeedsActivation: true}
)

var services = []Service{
	ServiceConnection,
	ServiceStatus,
	ServiceParameter,
	ServiceHistory,
	ServiceConfiguration,
	ServiceRemoteControl,
}
