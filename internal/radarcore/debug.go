package radarcore

import (
	"io"
	"log"
)

var (
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams for the radarcore
// package. Pass nil for any writer to disable that stream. The core has no
// default sink; callers must wire one explicitly to see any output.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger("[radarcore] ", ops)
	diagLogger = newLogger("[radarcore] ", diag)
	traceLogger = newLogger("[radarcore] ", trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// opsf logs an actionable condition (non-monotonic timestamp, odometry
// underdetermined, config refusal).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// diagf logs a day-to-day diagnostic (liveness transition, snapshot
// replacement, settings reload).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// tracef logs high-frequency per-frame telemetry.
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
