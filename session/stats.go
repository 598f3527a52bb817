package session

import (
	"math"
	"time"

	"github.com/arloliu/go-scpi/instrument"
)

// QuantityStats summarizes one measured quantity over a session.
type QuantityStats struct {
	Count int     `json:"count" yaml:"count"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
}

// InstrumentStats summarizes the samples one instrument contributed.
type InstrumentStats struct {
	Samples    int           `json:"samples" yaml:"samples"`
	Voltage    QuantityStats `json:"voltage" yaml:"voltage"`
	Current    QuantityStats `json:"current" yaml:"current"`
	Power      QuantityStats `json:"power" yaml:"power"`
	Resistance QuantityStats `json:"resistance" yaml:"resistance"`
}

// Stats is the session summary returned by End. The quantity fields cover
// every sample; Instruments breaks the same summaries down per instrument ID.
type Stats struct {
	Samples     int                        `json:"samples" yaml:"samples"`
	Anomalies   int                        `json:"anomalies" yaml:"anomalies"`
	Duration    time.Duration              `json:"duration" yaml:"duration"`
	Voltage     QuantityStats              `json:"voltage" yaml:"voltage"`
	Current     QuantityStats              `json:"current" yaml:"current"`
	Power       QuantityStats              `json:"power" yaml:"power"`
	Resistance  QuantityStats              `json:"resistance" yaml:"resistance"`
	Instruments map[string]InstrumentStats `json:"instruments,omitempty" yaml:"instruments,omitempty"`
}

// accumulator folds samples into running quantity summaries. Not safe for
// concurrent use; the owning session serializes access.
type accumulator struct {
	count int
	start time.Time

	voltage    quantityAcc
	current    quantityAcc
	power      quantityAcc
	resistance quantityAcc

	perInstrument map[string]*instrumentAcc
}

type instrumentAcc struct {
	count      int
	voltage    quantityAcc
	current    quantityAcc
	power      quantityAcc
	resistance quantityAcc
}

type quantityAcc struct {
	count int
	sum   float64
	min   float64
	max   float64
}

// add folds one value; non-finite values (open-circuit resistance) are
// skipped so a single +Inf does not poison the mean.
func (a *quantityAcc) add(v float64) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return
	}

	if a.count == 0 || v < a.min {
		a.min = v
	}
	if a.count == 0 || v > a.max {
		a.max = v
	}
	a.count++
	a.sum += v
}

func (a *quantityAcc) stats() QuantityStats {
	s := QuantityStats{Count: a.count, Min: a.min, Max: a.max}
	if a.count > 0 {
		s.Mean = a.sum / float64(a.count)
	}

	return s
}

func newAccumulator() *accumulator {
	return &accumulator{
		start:         time.Now(),
		perInstrument: make(map[string]*instrumentAcc),
	}
}

func (a *accumulator) add(s instrument.Sample) {
	a.count++
	a.voltage.add(s.Voltage)
	a.current.add(s.Current)
	a.power.add(s.Power)
	a.resistance.add(s.Resistance)

	ia := a.perInstrument[s.InstrumentID]
	if ia == nil {
		ia = &instrumentAcc{}
		a.perInstrument[s.InstrumentID] = ia
	}
	ia.count++
	ia.voltage.add(s.Voltage)
	ia.current.add(s.Current)
	ia.power.add(s.Power)
	ia.resistance.add(s.Resistance)
}

func (a *accumulator) stats(anomalies int) Stats {
	st := Stats{
		Samples:    a.count,
		Anomalies:  anomalies,
		Duration:   time.Since(a.start),
		Voltage:    a.voltage.stats(),
		Current:    a.current.stats(),
		Power:      a.power.stats(),
		Resistance: a.resistance.stats(),
	}

	if len(a.perInstrument) > 0 {
		st.Instruments = make(map[string]InstrumentStats, len(a.perInstrument))
		for id, ia := range a.perInstrument {
			st.Instruments[id] = InstrumentStats{
				Samples:    ia.count,
				Voltage:    ia.voltage.stats(),
				Current:    ia.current.stats(),
				Power:      ia.power.stats(),
				Resistance: ia.resistance.stats(),
			}
		}
	}

	return st
}
