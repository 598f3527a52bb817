package instrument

import (
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/go-scpi/transport"
)

// Keithley2461DefaultPort is the LXI raw-socket port of the 2461.
const Keithley2461DefaultPort = 5025

// measureAllQuery reads all four quantities in one round trip. The reply is
// parsed positionally; semicolons separate the chained query replies.
const measureAllQuery = ":MEAS:VOLT?;:MEAS:CURR?;:MEAS:RES?;:MEAS:POW?"

// Keithley2461 drives a Keithley 2461 source-measure unit over a TCP socket
// or a VISA TCPIP resource.
type Keithley2461 struct {
	scpiBase
}

var _ SourceMeter = (*Keithley2461)(nil)

// NewKeithley2461 creates a driver bound to the given transport. The
// transport is not opened until Connect.
func NewKeithley2461(tr transport.Transport, opts ...Option) *Keithley2461 {
	o := applyOptions(opts)

	return &Keithley2461{
		scpiBase: scpiBase{
			tr:       tr,
			logger:   o.logger.With("instrument", "keithley2461"),
			name:     "Keithley 2461",
			idMarker: []string{"2461"},
		},
	}
}

func (k *Keithley2461) Name() string { return k.name }

func (k *Keithley2461) Kind() Kind { return KindSourceMeter }

// Connect opens the transport, clears stale status, and verifies the device
// identity contains "2461". An identity mismatch closes the transport again.
func (k *Keithley2461) Connect() error {
	if k.tr.Connected() {
		return nil
	}

	if err := k.tr.Open(); err != nil {
		return err
	}

	if err := k.send("*CLS"); err != nil {
		_ = k.tr.Close()
		return err
	}

	if err := k.verifyIdentity(); err != nil {
		_ = k.tr.Close()
		return err
	}

	if faults, err := k.drainErrorQueue(); err == nil && len(faults) > 0 {
		k.logger.Warn("instrument reported faults after connect", "faults", faults)
	}

	k.logger.Info("connected", "endpoint", k.tr.Endpoint(), "identity", k.identity)

	return nil
}

func (k *Keithley2461) Disconnect() error {
	if !k.tr.Connected() {
		return nil
	}

	err := k.tr.Close()
	k.identity = ""
	k.logger.Info("disconnected", "endpoint", k.tr.Endpoint())

	return err
}

// Reset issues *RST and clears the status registers. The 2461 needs a moment
// to settle after a reset before it accepts further commands.
func (k *Keithley2461) Reset() error {
	if err := k.send("*RST"); err != nil {
		return err
	}
	time.Sleep(time.Second)

	return k.send("*CLS")
}

func (k *Keithley2461) Identity() (string, error) { return k.cachedIdentity() }

func (k *Keithley2461) Connected() bool { return k.tr.Connected() }

func (k *Keithley2461) CheckErrors() ([]string, error) { return k.drainErrorQueue() }

// SetSourceFunction selects voltage or current sourcing.
func (k *Keithley2461) SetSourceFunction(fn string) error {
	switch strings.ToUpper(fn) {
	case "VOLT", "VOLTAGE":
		return k.send(":SOUR:FUNC VOLT")
	case "CURR", "CURRENT":
		return k.send(":SOUR:FUNC CURR")
	default:
		return fmt.Errorf("%w: source function %q", ErrInvalidFunction, fn)
	}
}

// SetVoltage programs the source voltage with an optional current compliance
// limit. Both values accept a float64 or an engineering-prefixed string.
func (k *Keithley2461) SetVoltage(level any, limit any) error {
	v, err := normalizeLevel(level)
	if err != nil {
		return err
	}

	if err := k.send(":SOUR:VOLT " + formatLevel(v)); err != nil {
		return err
	}

	if limit == nil {
		return nil
	}

	lim, err := normalizeLevel(limit)
	if err != nil {
		return err
	}

	return k.send(":SOUR:VOLT:ILIM " + formatLevel(lim))
}

// SetCurrent programs the source current with an optional voltage compliance
// limit.
func (k *Keithley2461) SetCurrent(level any, limit any) error {
	v, err := normalizeLevel(level)
	if err != nil {
		return err
	}

	if err := k.send(":SOUR:CURR " + formatLevel(v)); err != nil {
		return err
	}

	if limit == nil {
		return nil
	}

	lim, err := normalizeLevel(limit)
	if err != nil {
		return err
	}

	return k.send(":SOUR:CURR:VLIM " + formatLevel(lim))
}

// SetCompliance programs the compliance ceiling for the given parameter:
// "current" limits current while sourcing voltage, "voltage" the reverse.
func (k *Keithley2461) SetCompliance(value any, parameter string) error {
	v, err := normalizeLevel(value)
	if err != nil {
		return err
	}

	switch strings.ToLower(parameter) {
	case "current":
		return k.send(":SOUR:VOLT:ILIM " + formatLevel(v))
	case "voltage":
		return k.send(":SOUR:CURR:VLIM " + formatLevel(v))
	default:
		return fmt.Errorf("%w: compliance parameter %q", ErrInvalidFunction, parameter)
	}
}

func (k *Keithley2461) OutputOn() error { return k.send(":OUTP ON") }

func (k *Keithley2461) OutputOff() error { return k.send(":OUTP OFF") }

func (k *Keithley2461) OutputState() (bool, error) {
	resp, err := k.query(":OUTP?")
	if err != nil {
		return false, err
	}

	switch strings.ToUpper(resp) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	default:
		return false, fmt.Errorf("%w: output state %q", ErrMalformedResponse, resp)
	}
}

func (k *Keithley2461) MeasureVoltage() (float64, error) { return k.queryFloat(":MEAS:VOLT?") }

func (k *Keithley2461) MeasureCurrent() (float64, error) { return k.queryFloat(":MEAS:CURR?") }

func (k *Keithley2461) MeasureResistance() (float64, error) { return k.queryFloat(":MEAS:RES?") }

func (k *Keithley2461) MeasurePower() (float64, error) { return k.queryFloat(":MEAS:POW?") }

// MeasureAll reads all four quantities in a single combined query. When the
// batched reply does not parse to exactly four numeric fields the driver
// falls back to four individual queries rather than returning partial data.
func (k *Keithley2461) MeasureAll() (Measurement, error) {
	resp, err := k.query(measureAllQuery)
	if err != nil {
		return Measurement{}, err
	}

	fields, perr := parseNumericFields(resp)
	if perr != nil || len(fields) != 4 {
		k.logger.Warn("batched measure reply malformed, falling back to individual queries",
			"resp", resp, "fields", len(fields))

		return k.measureAllIndividual()
	}

	return Measurement{
		Voltage:    fields[0],
		Current:    fields[1],
		Resistance: fields[2],
		Power:      fields[3],
	}, nil
}

func (k *Keithley2461) measureAllIndividual() (Measurement, error) {
	var m Measurement
	var err error

	if m.Voltage, err = k.MeasureVoltage(); err != nil {
		return Measurement{}, err
	}
	if m.Current, err = k.MeasureCurrent(); err != nil {
		return Measurement{}, err
	}
	if m.Resistance, err = k.MeasureResistance(); err != nil {
		return Measurement{}, err
	}
	if m.Power, err = k.MeasurePower(); err != nil {
		return Measurement{}, err
	}

	return m, nil
}

// Beep sounds the front-panel beeper.
func (k *Keithley2461) Beep(frequencyHz float64, duration time.Duration) error {
	return k.send(fmt.Sprintf(":SYST:BEEP %g, %g", frequencyHz, duration.Seconds()))
}

// SetMeasurementSpeed programs the integration time in power-line cycles.
// Smaller values are faster but noisier; the 2461 accepts 0.01 to 10.
func (k *Keithley2461) SetMeasurementSpeed(nplc float64) error {
	if nplc < 0.01 || nplc > 10 {
		return fmt.Errorf("%w: NPLC %g not in [0.01, 10]", ErrValueOutOfRange, nplc)
	}

	if err := k.send(fmt.Sprintf(":SENS:VOLT:NPLC %g", nplc)); err != nil {
		return err
	}

	return k.send(fmt.Sprintf(":SENS:CURR:NPLC %g", nplc))
}

// SetAutoRange enables or disables autoranging on both source and sense.
func (k *Keithley2461) SetAutoRange(enabled bool) error {
	state := "OFF"
	if enabled {
		state = "ON"
	}

	for _, cmd := range []string{
		":SENS:VOLT:RANG:AUTO ", ":SENS:CURR:RANG:AUTO ",
		":SOUR:VOLT:RANG:AUTO ", ":SOUR:CURR:RANG:AUTO ",
	} {
		if err := k.send(cmd + state); err != nil {
			return err
		}
	}

	return nil
}

// SetMeasureFunction selects the sense function: voltage, current,
// resistance, or power.
func (k *Keithley2461) SetMeasureFunction(fn string) error {
	scpi, ok := map[string]string{
		"voltage": "VOLT", "current": "CURR", "resistance": "RES", "power": "POW",
	}[strings.ToLower(fn)]
	if !ok {
		return fmt.Errorf("%w: measure function %q", ErrInvalidFunction, fn)
	}

	return k.send(fmt.Sprintf(":SENS:FUNC %q", scpi))
}
