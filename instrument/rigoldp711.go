package instrument

import (
	"fmt"
	"strings"

	"github.com/arloliu/go-scpi/transport"
)

// Rigol DP711 ratings. Levels beyond these are rejected before transmission;
// the supply would clamp them anyway, but silently programming a clamped
// value hides caller bugs.
const (
	DP711MaxVoltage = 30.0  // V
	DP711MaxCurrent = 5.0   // A
	DP711MaxPower   = 150.0 // W

	// DP711DefaultBaudRate is the factory serial configuration (8N1).
	DP711DefaultBaudRate = 9600
)

// RigolDP711 drives a Rigol DP711 programmable linear DC power supply over
// RS-232 or a VISA ASRL resource.
type RigolDP711 struct {
	scpiBase
}

var _ PowerSupply = (*RigolDP711)(nil)

// NewRigolDP711 creates a driver bound to the given transport. The transport
// is not opened until Connect.
func NewRigolDP711(tr transport.Transport, opts ...Option) *RigolDP711 {
	o := applyOptions(opts)

	return &RigolDP711{
		scpiBase: scpiBase{
			tr:       tr,
			logger:   o.logger.With("instrument", "rigoldp711"),
			name:     "Rigol DP711",
			idMarker: []string{"DP711", "RIGOL"},
		},
	}
}

func (r *RigolDP711) Name() string { return r.name }

func (r *RigolDP711) Kind() Kind { return KindPowerSupply }

// Connect opens the transport and verifies the identity contains "DP711" or
// "RIGOL". An identity mismatch closes the transport again.
func (r *RigolDP711) Connect() error {
	if r.tr.Connected() {
		return nil
	}

	if err := r.tr.Open(); err != nil {
		return err
	}

	if err := r.verifyIdentity(); err != nil {
		_ = r.tr.Close()
		return err
	}

	if err := r.send("*CLS"); err != nil {
		_ = r.tr.Close()
		return err
	}

	r.logger.Info("connected", "endpoint", r.tr.Endpoint(), "identity", r.identity)

	return nil
}

// Disconnect forces the output off before closing the transport, so a
// dropped control session never leaves the supply sourcing.
func (r *RigolDP711) Disconnect() error {
	if !r.tr.Connected() {
		return nil
	}

	if err := r.OutputOff(); err != nil {
		r.logger.Warn("output off before disconnect failed", "error", err)
	}

	err := r.tr.Close()
	r.identity = ""
	r.logger.Info("disconnected", "endpoint", r.tr.Endpoint())

	return err
}

func (r *RigolDP711) Reset() error {
	if err := r.send("*RST"); err != nil {
		return err
	}

	return r.send("*CLS")
}

func (r *RigolDP711) Identity() (string, error) { return r.cachedIdentity() }

func (r *RigolDP711) Connected() bool { return r.tr.Connected() }

func (r *RigolDP711) CheckErrors() ([]string, error) { return r.drainErrorQueue() }

// SetSourceFunction is accepted for interface compatibility; the DP711 is a
// fixed voltage source, so only "VOLT" is valid.
func (r *RigolDP711) SetSourceFunction(fn string) error {
	switch strings.ToUpper(fn) {
	case "VOLT", "VOLTAGE":
		return nil
	default:
		return fmt.Errorf("%w: DP711 cannot source %q", ErrInvalidFunction, fn)
	}
}

// SetVoltage programs the output voltage. The limit, when non-nil, programs
// the current ceiling of the channel.
func (r *RigolDP711) SetVoltage(level any, limit any) error {
	v, err := normalizeLevel(level)
	if err != nil {
		return err
	}
	if v < 0 || v > DP711MaxVoltage {
		return fmt.Errorf("%w: %gV exceeds DP711 rating %gV", ErrValueOutOfRange, v, DP711MaxVoltage)
	}

	if err := r.send(fmt.Sprintf(":SOUR:VOLT %.3f", v)); err != nil {
		return err
	}

	if limit == nil {
		return nil
	}

	return r.SetCurrent(limit, nil)
}

// SetCurrent programs the output current ceiling. The limit argument is
// ignored; a plain supply has no voltage compliance distinct from its
// voltage setting.
func (r *RigolDP711) SetCurrent(level any, _ any) error {
	v, err := normalizeLevel(level)
	if err != nil {
		return err
	}
	if v < 0 || v > DP711MaxCurrent {
		return fmt.Errorf("%w: %gA exceeds DP711 rating %gA", ErrValueOutOfRange, v, DP711MaxCurrent)
	}

	return r.send(fmt.Sprintf(":SOUR:CURR %.3f", v))
}

// Apply programs voltage and current in one command.
func (r *RigolDP711) Apply(voltage, current float64) error {
	if voltage < 0 || voltage > DP711MaxVoltage {
		return fmt.Errorf("%w: %gV exceeds DP711 rating %gV", ErrValueOutOfRange, voltage, DP711MaxVoltage)
	}
	if current < 0 || current > DP711MaxCurrent {
		return fmt.Errorf("%w: %gA exceeds DP711 rating %gA", ErrValueOutOfRange, current, DP711MaxCurrent)
	}
	if voltage*current > DP711MaxPower {
		return fmt.Errorf("%w: %gW exceeds DP711 rating %gW", ErrValueOutOfRange, voltage*current, DP711MaxPower)
	}

	return r.send(fmt.Sprintf(":APPL CH1,%.3f,%.3f", voltage, current))
}

func (r *RigolDP711) OutputOn() error { return r.send(":OUTP CH1,ON") }

func (r *RigolDP711) OutputOff() error { return r.send(":OUTP CH1,OFF") }

func (r *RigolDP711) OutputState() (bool, error) {
	resp, err := r.query(":OUTP? CH1")
	if err != nil {
		return false, err
	}

	switch strings.ToUpper(resp) {
	case "ON", "1":
		return true, nil
	case "OFF", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: output state %q", ErrMalformedResponse, resp)
	}
}

func (r *RigolDP711) MeasureVoltage() (float64, error) { return r.queryFloat(":MEAS:VOLT?") }

func (r *RigolDP711) MeasureCurrent() (float64, error) { return r.queryFloat(":MEAS:CURR?") }

func (r *RigolDP711) MeasurePower() (float64, error) { return r.queryFloat(":MEAS:POW?") }

// MeasureAll reads voltage, current and power in one :MEAS:ALL? round trip,
// deriving resistance. A malformed batched reply falls back to individual
// queries.
func (r *RigolDP711) MeasureAll() (Measurement, error) {
	resp, err := r.query(":MEAS:ALL?")
	if err != nil {
		return Measurement{}, err
	}

	fields, perr := parseNumericFields(resp)
	if perr != nil || len(fields) != 3 {
		r.logger.Warn("batched measure reply malformed, falling back to individual queries",
			"resp", resp, "fields", len(fields))

		return r.measureAllIndividual()
	}

	return Measurement{
		Voltage:    fields[0],
		Current:    fields[1],
		Resistance: deriveResistance(fields[0], fields[1]),
		Power:      fields[2],
	}, nil
}

func (r *RigolDP711) measureAllIndividual() (Measurement, error) {
	v, err := r.MeasureVoltage()
	if err != nil {
		return Measurement{}, err
	}

	i, err := r.MeasureCurrent()
	if err != nil {
		return Measurement{}, err
	}

	return Measurement{Voltage: v, Current: i, Resistance: deriveResistance(v, i), Power: v * i}, nil
}

// SetOverVoltageProtection programs and arms the OVP level.
func (r *RigolDP711) SetOverVoltageProtection(level float64, enabled bool) error {
	if level < 0 || level > DP711MaxVoltage+1 {
		return fmt.Errorf("%w: OVP level %gV", ErrValueOutOfRange, level)
	}

	if err := r.send(fmt.Sprintf(":SOUR:VOLT:PROT:LEV %.3f", level)); err != nil {
		return err
	}

	return r.send(":SOUR:VOLT:PROT:STAT " + onOff(enabled))
}

// SetOverCurrentProtection programs and arms the OCP level.
func (r *RigolDP711) SetOverCurrentProtection(level float64, enabled bool) error {
	if level < 0 || level > DP711MaxCurrent+0.5 {
		return fmt.Errorf("%w: OCP level %gA", ErrValueOutOfRange, level)
	}

	if err := r.send(fmt.Sprintf(":SOUR:CURR:PROT:LEV %.3f", level)); err != nil {
		return err
	}

	return r.send(":SOUR:CURR:PROT:STAT " + onOff(enabled))
}

// ClearProtection resets a tripped protection latch.
func (r *RigolDP711) ClearProtection() error {
	return r.send(":OUTP:PROT:CLE")
}

func onOff(b bool) string {
	if b {
		return "ON"
	}

	return "OFF"
}
