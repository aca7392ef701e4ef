package config

import (
	"log"
	"sync/atomic"
)

var debug atomic.Bool

// SetDebug switches Debugf output on or off. serve calls it with IsDebug().
func SetDebug(on bool) { debug.Store(on) }

// Debugf logs only when LOG_LEVEL=debug.
func Debugf(format string, args ...interface{}) {
	if debug.Load() {
		log.Printf("[debug] "+format, args...)
	}
}
