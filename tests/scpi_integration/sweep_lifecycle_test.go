// Package scpiintegration contains integration tests that exercise the full
// acquisition stack over real TCP: VISA resource parsing, identification,
// driver connect, a sweep engine, and session recording against a simulated
// instrument.
//
// The simulator is a raw TCP peer speaking newline-framed SCPI, so these tests
// cover the same wire path a physical Keithley 2461 would use on port 5025.
package scpiintegration

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-scpi/buffer"
	"github.com/arloliu/go-scpi/device"
	"github.com/arloliu/go-scpi/instrument"
	"github.com/arloliu/go-scpi/session"
	"github.com/arloliu/go-scpi/transport"
	"github.com/arloliu/go-scpi/worker"
)

const simIdentity = "KEITHLEY INSTRUMENTS,MODEL 2461,04123456,1.7.12b"

// smuSimulator emulates the SCPI surface of a 2461 that the sweep path
// touches. It serves connections sequentially; identification and the driver
// connect each dial the listener once.
type smuSimulator struct {
	ln net.Listener

	mu       sync.Mutex
	commands []string
	level    float64 // last programmed :SOUR:VOLT level
	loadOhms float64
}

func startSimulator(t *testing.T) *smuSimulator {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	sim := &smuSimulator{ln: ln, loadOhms: 1000}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			sim.serve(conn)
		}
	}()

	return sim
}

func (s *smuSimulator) serve(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		s.record(line)

		if reply := s.reply(line); reply != "" {
			if _, err := conn.Write([]byte(reply + "\n")); err != nil {
				return
			}
		}
	}
}

func (s *smuSimulator) reply(cmd string) string {
	switch cmd {
	case "*IDN?":
		return simIdentity
	case ":SYST:ERR?":
		return `0,"No error"`
	case "*OPC?":
		return "1"
	case ":OUTP?":
		return "1"
	case ":MEAS:VOLT?;:MEAS:CURR?;:MEAS:RES?;:MEAS:POW?":
		s.mu.Lock()
		v := s.level
		r := s.loadOhms
		s.mu.Unlock()

		i := v / r
		return fmt.Sprintf("%g;%g;%g;%g", v, i, r, v*i)
	}

	if strings.HasPrefix(cmd, ":SOUR:VOLT ") {
		if v, err := strconv.ParseFloat(strings.TrimPrefix(cmd, ":SOUR:VOLT "), 64); err == nil {
			s.mu.Lock()
			s.level = v
			s.mu.Unlock()
		}
	}

	// Commands and unknown queries produce no reply; the driver never chains
	// an unknown query, so silence here cannot deadlock the test.
	return ""
}

func (s *smuSimulator) record(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
}

func (s *smuSimulator) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.commands...)
}

func (s *smuSimulator) resource() string {
	addr := s.ln.Addr().(*net.TCPAddr)

	return transport.FormatSocketResource("127.0.0.1", addr.Port)
}

// connectSimulated runs the production bring-up path: parse the VISA resource,
// identify the device, build the matching driver and connect it.
func connectSimulated(t *testing.T, sim *smuSimulator) instrument.PowerSupply {
	t.Helper()

	tr, err := transport.ParseResource(sim.resource(), 0, 2*time.Second)
	require.NoError(t, err)

	info, err := device.Identify(tr)
	require.NoError(t, err)
	assert.Equal(t, "2461", info.Model)
	assert.Equal(t, instrument.KindSourceMeter, info.Kind)

	drv, err := device.NewDriver(info, tr)
	require.NoError(t, err)
	require.NoError(t, drv.Connect())

	supply, ok := drv.(instrument.PowerSupply)
	require.True(t, ok)

	return supply
}

func TestSweepLifecycleOverTCP(t *testing.T) {
	sim := startSimulator(t)
	supply := connectSimulated(t, sim)
	defer supply.Disconnect()

	pool := buffer.NewPool(buffer.WithCapacity(100))
	mgr := session.NewManager(session.WithBufferPool(pool))

	task := worker.NewMeasureTask(supply, &worker.SweepStrategy{
		Plan: worker.SweepPlan{
			Function:   "VOLT",
			Start:      0,
			Stop:       2,
			Step:       1,
			Compliance: "100mA",
		},
	})
	e := worker.NewEngine("sweep", task)

	require.NoError(t, mgr.Start("integration-sweep"))
	require.NoError(t, e.Start())

	var samples []instrument.Sample
	for ev := range e.Events() {
		if ev.Type == worker.EventResult {
			samples = append(samples, ev.Sample)
			require.NoError(t, mgr.Record(ev.Sample))
		}
		if ev.Type == worker.EventError {
			t.Fatalf("unexpected task error: %v", ev.Err)
		}
	}

	require.Equal(t, worker.Completed, e.Status())
	require.Len(t, samples, 3)

	// Samples follow the programmed ramp through the simulated 1k load.
	assert.InDelta(t, 0.0, samples[0].Voltage, 1e-9)
	assert.InDelta(t, 1.0, samples[1].Voltage, 1e-9)
	assert.InDelta(t, 2.0, samples[2].Voltage, 1e-9)
	assert.InDelta(t, 0.002, samples[2].Current, 1e-9)

	stats, err := mgr.End()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Samples)
	assert.InDelta(t, 1.0, stats.Voltage.Mean, 1e-9)

	ring := pool.Get(samples[0].InstrumentID)
	require.NotNil(t, ring)
	assert.Equal(t, 3, ring.Len())

	sent := sim.sent()
	assert.Contains(t, sent, ":SOUR:FUNC VOLT")
	assert.Contains(t, sent, ":SOUR:VOLT:ILIM 0.1")
	assert.Contains(t, sent, ":OUTP ON")
	assert.Equal(t, ":OUTP OFF", sent[len(sent)-1], "output must be switched off after the sweep")
}

func TestContinuousMonitorStopOverTCP(t *testing.T) {
	sim := startSimulator(t)
	supply := connectSimulated(t, sim)
	defer supply.Disconnect()

	e := worker.NewEngine("monitor", worker.NewMeasureTask(supply, &worker.ContinuousStrategy{
		Interval: 10 * time.Millisecond,
	}))
	require.NoError(t, e.Start())

	var results int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range e.Events() {
			if ev.Type == worker.EventResult {
				results++
			}
		}
	}()

	// Let a few readings through, then stop; an unbounded monitor only ends
	// on request.
	time.Sleep(100 * time.Millisecond)
	e.Stop()
	<-done

	assert.Equal(t, worker.Idle, e.Status())
	assert.Greater(t, results, 1)

	// Passive monitoring must not have touched the output stage.
	assert.NotContains(t, sim.sent(), ":OUTP OFF")
}
