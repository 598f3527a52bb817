package worker

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/arloliu/go-scpi/instrument"
)

// Strategy supplies the acquisition pattern of a measurement task: what to
// program on the instrument before each reading and when the stream ends.
type Strategy interface {
	// Setup validates parameters and programs the initial instrument state.
	Setup(e *Engine, inst instrument.PowerSupply) error
	// Step acquires one sample. Returning false ends the stream naturally.
	Step(e *Engine, inst instrument.PowerSupply) (bool, error)
	// Cleanup restores the instrument to a safe state. It runs on every exit
	// path, including failures, so the output stage is never left energized.
	Cleanup(e *Engine, inst instrument.PowerSupply)
}

// MeasureTask adapts a Strategy to the engine Runner contract for one
// instrument.
type MeasureTask struct {
	inst     instrument.PowerSupply
	strategy Strategy
}

// NewMeasureTask returns a runner driving inst with the given strategy.
func NewMeasureTask(inst instrument.PowerSupply, strategy Strategy) *MeasureTask {
	return &MeasureTask{inst: inst, strategy: strategy}
}

// Setup rejects a disconnected instrument before the strategy touches it;
// connecting is the connect task's job, not a measurement side effect.
func (t *MeasureTask) Setup(e *Engine) error {
	if !t.inst.Connected() {
		return fmt.Errorf("%w: %s", instrument.ErrNotConnected, t.inst.Name())
	}

	return t.strategy.Setup(e, t.inst)
}

func (t *MeasureTask) ExecuteOnce(e *Engine) (bool, error) {
	return t.strategy.Step(e, t.inst)
}

func (t *MeasureTask) Cleanup(e *Engine) {
	t.strategy.Cleanup(e, t.inst)
}

// measureAller is satisfied by drivers with a combined four-quantity query;
// both shipped drivers implement it.
type measureAller interface {
	MeasureAll() (instrument.Measurement, error)
}

// acquire reads one full measurement, preferring the combined query and
// falling back to individual voltage/current reads with derived resistance
// and power.
func acquire(inst instrument.PowerSupply) (instrument.Measurement, error) {
	if ma, ok := inst.(measureAller); ok {
		return ma.MeasureAll()
	}

	v, err := inst.MeasureVoltage()
	if err != nil {
		return instrument.Measurement{}, err
	}
	i, err := inst.MeasureCurrent()
	if err != nil {
		return instrument.Measurement{}, err
	}

	return instrument.NewMeasurement(v, i), nil
}

// ContinuousStrategy samples the instrument at a fixed interval until the
// optional count budget is spent or the task is stopped.
type ContinuousStrategy struct {
	// Interval is the pause between readings. The instrument round-trip time
	// is not subtracted, so the effective period is interval plus I/O.
	Interval time.Duration
	// MaxCount bounds the number of samples; zero or negative means
	// unbounded.
	MaxCount int

	taken int
}

func (s *ContinuousStrategy) Setup(e *Engine, inst instrument.PowerSupply) error {
	if s.Interval <= 0 {
		s.Interval = time.Second
	}
	s.taken = 0

	return nil
}

func (s *ContinuousStrategy) Step(e *Engine, inst instrument.PowerSupply) (bool, error) {
	m, err := acquire(inst)
	if err != nil {
		return false, fmt.Errorf("measure %s: %w", inst.Name(), err)
	}

	e.EmitEvent(Event{Type: EventResult, Sample: instrument.NewSampleFull(inst.Name(), m)})

	s.taken++
	if s.MaxCount > 0 {
		e.EmitProgress(s.taken * 100 / s.MaxCount)
		if s.taken >= s.MaxCount {
			return false, nil
		}
	} else {
		e.EmitProgress(-1)
	}

	if !sleepInterruptible(e, s.Interval) {
		return false, nil
	}

	return true, nil
}

// Cleanup leaves the output stage as the caller configured it; passive
// monitoring must not switch a supply off under its load.
func (s *ContinuousStrategy) Cleanup(e *Engine, inst instrument.PowerSupply) {}

// SweepPlan parameterizes a linear source sweep.
type SweepPlan struct {
	// Function selects the swept source quantity, "VOLT" or "CURR".
	Function string
	// Start, Stop and Step define the level ramp in base units. Step sign
	// must agree with the sweep direction.
	Start float64
	Stop  float64
	Step  float64
	// PointDelay is the settling time between programming a level and
	// reading it back.
	PointDelay time.Duration
	// Compliance is the limit on the complementary quantity, a float64 in
	// base units or an engineering string such as "100mA". Nil leaves the
	// programmed limit unchanged.
	Compliance any
}

// SweepStrategy steps the source level through a SweepPlan, measuring at
// each point. The output is switched on at setup and unconditionally
// switched off at cleanup, whatever path ended the sweep.
type SweepStrategy struct {
	Plan SweepPlan

	levels []float64
	next   int
}

func (s *SweepStrategy) Setup(e *Engine, inst instrument.PowerSupply) error {
	levels, err := sweepLevels(s.Plan.Start, s.Plan.Stop, s.Plan.Step)
	if err != nil {
		return err
	}
	s.levels = levels
	s.next = 0

	fn := s.Plan.Function
	if fn == "" {
		fn = "VOLT"
	}
	if err := inst.SetSourceFunction(fn); err != nil {
		return fmt.Errorf("set source function: %w", err)
	}

	if err := s.setLevel(inst, s.levels[0]); err != nil {
		return err
	}

	if err := inst.OutputOn(); err != nil {
		return fmt.Errorf("output on: %w", err)
	}

	return nil
}

func (s *SweepStrategy) Step(e *Engine, inst instrument.PowerSupply) (bool, error) {
	level := s.levels[s.next]

	if err := s.setLevel(inst, level); err != nil {
		return false, err
	}

	if s.Plan.PointDelay > 0 {
		if !sleepInterruptible(e, s.Plan.PointDelay) {
			return false, nil
		}
	}

	m, err := acquire(inst)
	if err != nil {
		return false, fmt.Errorf("measure at %g: %w", level, err)
	}

	sample := instrument.NewSampleFull(inst.Name(), m).
		WithMetadata("sweep_level", strconv.FormatFloat(level, 'g', -1, 64))
	e.EmitEvent(Event{Type: EventResult, Sample: sample})

	s.next++
	e.EmitProgress(s.next * 100 / len(s.levels))

	return s.next < len(s.levels), nil
}

// Cleanup forces the output off. The sweep energized the device under test,
// so this runs even after a mid-sweep failure.
func (s *SweepStrategy) Cleanup(e *Engine, inst instrument.PowerSupply) {
	if err := inst.OutputOff(); err != nil {
		e.logWarn("failed to switch output off after sweep", err)
	}
}

func (s *SweepStrategy) setLevel(inst instrument.PowerSupply, level float64) error {
	var err error
	if s.Plan.Function == "CURR" {
		err = inst.SetCurrent(level, s.Plan.Compliance)
	} else {
		err = inst.SetVoltage(level, s.Plan.Compliance)
	}
	if err != nil {
		return fmt.Errorf("set level %g: %w", level, err)
	}

	return nil
}

// sweepLevels expands start/stop/step into the point list. The step is added
// until the running level passes stop plus one extra step, matching the
// half-open ramp generators common on instrument front panels; a final point
// that overshoots is clamped to stop so the device is never driven past the
// requested endpoint.
func sweepLevels(start, stop, step float64) ([]float64, error) {
	if step == 0 {
		return nil, fmt.Errorf("%w: sweep step must be non-zero", instrument.ErrValueOutOfRange)
	}
	if (stop-start)*step < 0 {
		return nil, fmt.Errorf("%w: sweep step sign does not reach stop", instrument.ErrValueOutOfRange)
	}

	span := stop + step - start
	n := int(math.Ceil(span / step))
	if n < 1 {
		n = 1
	}

	levels := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		level := start + float64(i)*step
		if (step > 0 && level > stop) || (step < 0 && level < stop) {
			level = stop
		}
		levels = append(levels, level)
	}

	return levels, nil
}

// sleepInterruptible waits d in short slices, returning false when a stop
// request arrived during the wait.
func sleepInterruptible(e *Engine, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if e.StopRequested() {
			return false
		}

		slice := pausePoll
		if rem := time.Until(deadline); rem < slice {
			slice = rem
		}
		time.Sleep(slice)
	}

	return !e.StopRequested()
}

// logWarn lets strategies use the engine logger without widening their
// interface.
func (e *Engine) logWarn(msg string, err error) {
	e.logger.Warn(msg, "error", err)
}
