package session

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/arloliu/go-scpi/instrument"
)

// Sink persists session samples. Implementations are written to from the
// session goroutine only; they do not need to be concurrency-safe.
type Sink interface {
	// Write persists one sample.
	Write(s instrument.Sample) error
	// Flush pushes buffered rows to the backing store.
	Flush() error
	// Close flushes and releases the sink. A closed sink rejects writes.
	Close() error
}

// csvHeader is the column layout shared by the CSV sink and the exporters.
var csvHeader = []string{"timestamp", "instrument", "voltage", "current", "resistance", "power"}

// CSVSink streams samples as CSV rows with a leading header.
type CSVSink struct {
	w      *csv.Writer
	closer io.Closer
	closed bool
}

// NewCSVSink writes CSV to w, emitting the header immediately. When w is
// also an io.Closer it is closed with the sink.
func NewCSVSink(w io.Writer) (*CSVSink, error) {
	s := &CSVSink{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}

	if err := s.w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	return s, nil
}

func (s *CSVSink) Write(sample instrument.Sample) error {
	if s.closed {
		return ErrSessionClosed
	}

	row := []string{
		sample.Timestamp.Format(time.RFC3339Nano),
		sample.InstrumentID,
		strconv.FormatFloat(sample.Voltage, 'g', -1, 64),
		strconv.FormatFloat(sample.Current, 'g', -1, 64),
		strconv.FormatFloat(sample.Resistance, 'g', -1, 64),
		strconv.FormatFloat(sample.Power, 'g', -1, 64),
	}

	return s.w.Write(row)
}

func (s *CSVSink) Flush() error {
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}

	return err
}

// JSONLSink streams samples as one JSON object per line.
type JSONLSink struct {
	enc    *json.Encoder
	closer io.Closer
	closed bool
}

// jsonSample is the wire form of one sample row.
type jsonSample struct {
	Timestamp  time.Time         `json:"ts"`
	Instrument string            `json:"instrument"`
	Voltage    float64           `json:"voltage"`
	Current    float64           `json:"current"`
	Resistance float64           `json:"resistance,omitempty"`
	Power      float64           `json:"power,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// NewJSONLSink writes JSON lines to w. When w is also an io.Closer it is
// closed with the sink.
func NewJSONLSink(w io.Writer) *JSONLSink {
	s := &JSONLSink{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}

	return s
}

func (s *JSONLSink) Write(sample instrument.Sample) error {
	if s.closed {
		return ErrSessionClosed
	}

	return s.enc.Encode(jsonSample{
		Timestamp:  sample.Timestamp,
		Instrument: sample.InstrumentID,
		Voltage:    sample.Voltage,
		Current:    sample.Current,
		Resistance: finiteOrZero(sample.Resistance),
		Power:      sample.Power,
		Metadata:   sample.Metadata,
	})
}

// finiteOrZero drops the open-circuit +Inf resistance, which JSON cannot
// encode; omitempty then elides the field.
func finiteOrZero(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}

	return v
}

func (s *JSONLSink) Flush() error { return nil }

func (s *JSONLSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.closer != nil {
		return s.closer.Close()
	}

	return nil
}
