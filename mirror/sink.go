package mirror

import (
	"github.com/vinayprograms/kvmirror/logging"
)

// ErrorSink receives every recoverable failure an engine observes.
// Errors are *errors.Error values from the kvmirror errors package.
type ErrorSink func(error)

// LogSink reports failures as ERROR lines on l.
func LogSink(l *logging.Logger) ErrorSink {
	return l.Failure
}

// MultiSink fans a failure out to several sinks. Nil sinks are skipped.
func MultiSink(sinks ...ErrorSink) ErrorSink {
	return func(err error) {
		for _, s := range sinks {
			if s != nil {
				s(err)
			}
		}
	}
}

// DiscardSink drops failures.
func DiscardSink(error) {}
