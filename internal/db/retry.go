package db

import (
	"strings"
	"time"
)

// isSQLiteBusy reports whether err is a transient SQLITE_BUSY failure.
// The driver surfaces these as strings rather than typed errors.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn up to five times with exponential backoff while
// it keeps failing busy. WAL plus the busy_timeout pragma handles most
// contention; this covers the writer racing a long tailsql read.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 5
	backoff := 10 * time.Millisecond
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil || !isSQLiteBusy(err) {
			return err
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return err
}
