package instrument

import (
	"math"
	"time"
)

// Measurement is one four-quantity reading from a source-measure unit.
type Measurement struct {
	Voltage    float64
	Current    float64
	Resistance float64
	Power      float64
}

// Sample is a single timestamped measurement attributed to an instrument.
//
// A Sample is immutable once created; it is copied, never shared mutably,
// across goroutine boundaries. Construct samples with NewSample so the
// derived quantities are always populated.
type Sample struct {
	Timestamp    time.Time
	InstrumentID string
	Voltage      float64
	Current      float64
	Resistance   float64
	Power        float64
	Metadata     map[string]string
}

// deriveResistance computes V/I, returning +Inf for an open circuit.
func deriveResistance(voltage, current float64) float64 {
	if current == 0 {
		return math.Inf(1)
	}

	return voltage / current
}

// NewMeasurement builds a Measurement from a raw voltage/current pair,
// deriving resistance and power.
func NewMeasurement(voltage, current float64) Measurement {
	return Measurement{
		Voltage:    voltage,
		Current:    current,
		Resistance: deriveResistance(voltage, current),
		Power:      voltage * current,
	}
}

// NewSample builds a Sample from a raw voltage/current pair, deriving
// resistance (V/I, +Inf when the current is zero) and power (V*I).
func NewSample(instrumentID string, voltage, current float64) Sample {
	resistance := deriveResistance(voltage, current)

	return Sample{
		Timestamp:    time.Now(),
		InstrumentID: instrumentID,
		Voltage:      voltage,
		Current:      current,
		Resistance:   resistance,
		Power:        voltage * current,
	}
}

// NewSampleFull builds a Sample from a complete four-quantity measurement.
func NewSampleFull(instrumentID string, m Measurement) Sample {
	return Sample{
		Timestamp:    time.Now(),
		InstrumentID: instrumentID,
		Voltage:      m.Voltage,
		Current:      m.Current,
		Resistance:   m.Resistance,
		Power:        m.Power,
	}
}

// WithMetadata returns a copy of the sample with the given key set. The
// receiver is left untouched.
func (s Sample) WithMetadata(key, value string) Sample {
	md := make(map[string]string, len(s.Metadata)+1)
	for k, v := range s.Metadata {
		md[k] = v
	}
	md[key] = value
	s.Metadata = md

	return s
}
