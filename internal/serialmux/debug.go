package serialmux

import (
	"io"
	"log"
)

// debugLogger is a package-level logger for debug output. It is disabled by
// default and can be enabled by calling SetDebugLogger.
var debugLogger *log.Logger

// SetDebugLogger enables debug logging to the given writer. Pass nil to
// disable debug logging.
func SetDebugLogger(w io.Writer) {
	if w == nil {
		debugLogger = nil
		return
	}
	debugLogger = log.New(w, "", log.LstdFlags|log.Lmicroseconds)
}

func debugf(format string, args ...interface{}) {
	if debugLogger != nil {
		debugLogger.Printf(format, args...)
	}
}
