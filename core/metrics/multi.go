package metrics

import (
	"errors"
	"io"
)

// MultiSink fans records out to several sinks. Optional recorders are only
// forwarded to sinks implementing them.
type MultiSink struct {
	Sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordEventCreated forwards to all sinks, returning the first error.
func (m *MultiSink) RecordEventCreated(ev EventCreated) error {
	for _, s := range m.Sinks {
		if err := s.RecordEventCreated(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordEventAcked(ev EventAcked) error {
	for _, s := range m.Sinks {
		if err := s.RecordEventAcked(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordRejected(op, reason string) error {
	for _, s := range m.Sinks {
		if r, ok := s.(RejectionRecorder); ok {
			if err := r.RecordRejected(op, reason); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordDropped(n int) error {
	for _, s := range m.Sinks {
		if r, ok := s.(DeliveryRecorder); ok {
			if err := r.RecordDropped(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordSessions(n int) error {
	for _, s := range m.Sinks {
		if r, ok := s.(SessionRecorder); ok {
			if err := r.RecordSessions(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordDuplicate() error {
	for _, s := range m.Sinks {
		if r, ok := s.(DuplicateRecorder); ok {
			if err := r.RecordDuplicate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
