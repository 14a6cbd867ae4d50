// Package ljm describes the vendor library used to talk to LabJack data
// acquisition devices. Registers are addressed by Modbus name, e.g. AIN0,
// DAC1, DIO4 or SERIAL_NUMBER.
package ljm

// Handle identifies an open device
type Handle int

// Register data types as reported by NameToAddress
const (
	Uint16  = 0
	Uint32  = 1
	Int32   = 2
	Float32 = 3
)

// Any matches the first device of any type, connection or identifier
const Any = "ANY"

// Library is the LJM call surface. Implementations must make Close unblock a
// pending StreamRead, which then fails.
type Library interface {
	OpenS(deviceType, connectionType, identifier string) (Handle, error)
	Close(h Handle) error

	ReadName(h Handle, name string) (float64, error)
	WriteName(h Handle, name string, value float64) error
	WriteNames(h Handle, names []string, values []float64) error

	NameToAddress(name string) (address, typ int, err error)
	NamesToAddresses(names []string) (addresses, types []int, err error)

	// StreamStart returns the scan rate the device will actually use
	StreamStart(h Handle, scansPerRead int, scanList []int, scanRate float64) (float64, error)
	// StreamRead blocks until scansPerRead scans are buffered. data holds
	// scansPerRead*len(scanList) values, channel interleaved.
	StreamRead(h Handle) (data []float64, deviceBacklog, hostBacklog int, err error)
	StreamStop(h Handle) error
}
