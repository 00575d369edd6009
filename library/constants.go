package library

const (
	VirtualMachineType         string = "VirtualMachine"
	PowerStatePath             string = "runtime.powerState"
	GuestOperationsReadyPath   string = "guest.guestOperationsReady"
	GuestOperationsFileManager string = "fileManager"
)

var DefaultConfigurationVariables = ConfigurationVariables{
	ReadyTimeoutSec: 0,
	KeepAliveMin:    10,
}
