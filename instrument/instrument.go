// Package instrument translates domain operations into SCPI ASCII commands
// for bench instruments and parses their replies.
//
// Two driver families are provided: [Keithley2461], a source-measure unit
// reached over a raw TCP socket or a VISA TCPIP resource, and [RigolDP711], a
// programmable DC power supply reached over RS-232 or a VISA ASRL resource.
// Both satisfy the [PowerSupply] interface; the Keithley additionally
// satisfies [SourceMeter], which extends it with four-quantity measurement
// and compliance control.
//
// New instrument kinds plug in by implementing these interfaces; nothing in
// the surrounding layers names a concrete driver type.
package instrument

// Kind tags a driver with its device class.
type Kind string

const (
	KindSourceMeter Kind = "source-meter"
	KindPowerSupply Kind = "power-supply"
	KindUnknown     Kind = "unknown"
)

// Instrument is the capability set common to every driver.
type Instrument interface {
	// Connect opens the transport and verifies the device identity.
	// Connecting an already-connected instrument is a no-op.
	Connect() error
	// Disconnect closes the transport. Disconnecting twice is a no-op.
	Disconnect() error
	// Reset issues *RST followed by *CLS.
	Reset() error
	// Identity returns the cached *IDN? reply, querying the device if the
	// cache is empty.
	Identity() (string, error)
	// Connected reports whether the transport is open.
	Connected() bool
	// CheckErrors drains the instrument's error queue and returns the
	// collected fault strings. An empty slice means the queue was clean.
	CheckErrors() ([]string, error)
	// Name returns the driver's human-readable name.
	Name() string
	// Kind returns the device class tag.
	Kind() Kind
}

// PowerSupply is the operation set shared by DC supplies and source-measure
// units. Source levels and compliance limits accept either a float64 in base
// units or an engineering-prefixed string such as "500mV"; drivers normalize
// through the unit package before transmission.
type PowerSupply interface {
	Instrument

	// SetVoltage programs the output voltage level. For a SourceMeter the
	// limit is the current compliance; a nil limit leaves it unchanged.
	SetVoltage(level any, limit any) error
	// SetCurrent programs the output current level with an optional voltage
	// compliance limit.
	SetCurrent(level any, limit any) error
	// SetSourceFunction selects "VOLT" or "CURR" sourcing.
	SetSourceFunction(fn string) error

	OutputOn() error
	OutputOff() error
	// OutputState reports whether the output stage is enabled.
	OutputState() (bool, error)

	MeasureVoltage() (float64, error)
	MeasureCurrent() (float64, error)
}

// SourceMeter extends PowerSupply with four-quantity measurement and explicit
// compliance control.
type SourceMeter interface {
	PowerSupply

	MeasureResistance() (float64, error)
	MeasurePower() (float64, error)

	// MeasureAll reads voltage, current, resistance and power in a single
	// combined query, halving round trips versus one query per quantity. If
	// the batched reply does not contain the expected field count the driver
	// falls back to four individual queries rather than returning partial
	// data.
	MeasureAll() (Measurement, error)

	// SetCompliance programs a safety ceiling: parameter "current" limits the
	// current while sourcing voltage, "voltage" the reverse.
	SetCompliance(value any, parameter string) error
}
