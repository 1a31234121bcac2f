package telemetry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"go.bug.st/serial"
	"go.uber.org/multierr"
)

// CSVSink writes one header line then one row per sample.
type CSVSink struct {
	w      *csv.Writer
	c      io.Closer
	header bool
}

// NewCSVSink writes to w. If w is an io.Closer, Close closes it.
func NewCSVSink(w io.Writer) *CSVSink {
	s := &CSVSink{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// OpenCSV creates (or truncates) a CSV file.
func OpenCSV(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry csv: %w", err)
	}
	return NewCSVSink(f), nil
}

// OpenSerial streams CSV rows over a serial port, for a host-side grapher.
func OpenSerial(device string, baud int) (*CSVSink, error) {
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("telemetry serial %s: %w", device, err)
	}
	return NewCSVSink(port), nil
}

// Write appends a row and flushes it.
func (s *CSVSink) Write(smp Sample) error {
	if !s.header {
		if err := s.w.Write(Header()); err != nil {
			return err
		}
		s.header = true
	}
	if err := s.w.Write(smp.Row()); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the underlying writer.
func (s *CSVSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.c != nil {
		err = multierr.Append(err, s.c.Close())
	}
	return err
}
