package train

import (
	"errors"
	"log"
)

// NopSink discards every value.
type NopSink struct{}

// AddScalar implements Sink.
func (NopSink) AddScalar(string, float64, int) error { return nil }

// Close implements Sink.
func (NopSink) Close() error { return nil }

// LogSink writes scalars to the standard logger.
type LogSink struct {
	RunID string
}

// AddScalar implements Sink.
func (s *LogSink) AddScalar(series string, value float64, step int) error {
	if s.RunID != "" {
		log.Printf("[%s] %s step=%d value=%.6g", s.RunID, series, step, value)
		return nil
	}
	log.Printf("%s step=%d value=%.6g", series, step, value)
	return nil
}

// Close implements Sink.
func (s *LogSink) Close() error { return nil }

// MultiSink fans values out to several sinks. Every sink sees every value;
// errors are joined.
type MultiSink []Sink

// AddScalar implements Sink.
func (m MultiSink) AddScalar(series string, value float64, step int) error {
	var errs []error
	for _, s := range m {
		if err := s.AddScalar(series, value, step); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
