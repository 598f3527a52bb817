package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arloliu/go-scpi/device"
	"github.com/arloliu/go-scpi/instrument"
	"github.com/arloliu/go-scpi/session"
	"github.com/arloliu/go-scpi/transport"
	"github.com/arloliu/go-scpi/worker"
)

// openSupply identifies the instrument at the resource and connects its
// driver. The caller owns the returned instrument and must Disconnect it.
func openSupply(resource string, baud int) (instrument.PowerSupply, error) {
	tr, err := transport.ParseResource(resource, baudRate(baud), ioTimeout())
	if err != nil {
		return nil, err
	}

	info, err := device.Identify(tr)
	if err != nil {
		return nil, err
	}

	drv, err := device.NewDriver(info, tr)
	if err != nil {
		return nil, err
	}

	supply, ok := drv.(instrument.PowerSupply)
	if !ok {
		return nil, fmt.Errorf("%s does not support source operations", info.Model)
	}

	if err := drv.Connect(); err != nil {
		return nil, err
	}

	fmt.Fprintf(os.Stderr, "connected: %s\n", info.Identity)

	return supply, nil
}

// newSessionManager builds a session manager writing CSV to the output path,
// or to stdout for "-"/"" targets.
func newSessionManager(output string) (*session.Manager, error) {
	var w *os.File
	switch output {
	case "", "-":
		w = os.Stdout
	default:
		f, err := os.Create(output)
		if err != nil {
			return nil, fmt.Errorf("create output %s: %w", output, err)
		}
		w = f
	}

	sink, err := session.NewCSVSink(w)
	if err != nil {
		return nil, err
	}

	return session.NewManager(
		session.WithSinks(sink),
		session.WithFlushInterval(cfg.GetDuration("session.flush_interval", 0)),
		session.WithAnomalyDetection(
			cfg.GetInt("session.anomaly.window", 0),
			cfg.GetFloat("session.anomaly.threshold", 0),
		),
		session.WithAnomalyFunc(func(s instrument.Sample, quantity string, score float64) {
			fmt.Fprintf(os.Stderr, "anomaly: %s %s z=%.1f\n", s.InstrumentID, quantity, score)
		}),
	), nil
}

// runEngine starts the engine, records result samples into the session, and
// stops cleanly on SIGINT/SIGTERM. It returns an error when the task failed.
func runEngine(e *worker.Engine, mgr *session.Manager) error {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)

	go func() {
		<-sigc
		fmt.Fprintln(os.Stderr, "stopping...")
		e.Stop()
	}()

	serveMetrics(e, mgr)

	if err := mgr.Start(e.Name()); err != nil {
		return err
	}
	if err := e.Start(); err != nil {
		return err
	}

	var taskErr error
	for ev := range e.Events() {
		switch ev.Type {
		case worker.EventResult:
			if err := mgr.Record(ev.Sample); err != nil {
				return err
			}
		case worker.EventError:
			taskErr = ev.Err
		}
	}

	stats, err := mgr.End()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "samples=%d anomalies=%d duration=%s avgV=%.4f avgI=%.6f\n",
		stats.Samples, stats.Anomalies, stats.Duration.Round(time.Millisecond),
		stats.Voltage.Mean, stats.Current.Mean)

	return taskErr
}
