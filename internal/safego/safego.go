// Package safego provides a panic-recovering goroutine launcher for
// fire-and-forget background work.
package safego

import "log/slog"

// Go launches fn in a new goroutine. If fn panics, the panic is recovered
// and logged rather than crashing the process. Use it for background work
// whose loss matters less than the process staying up — in this codebase
// primarily asynchronous audit-record shipping, where an unrecovered panic
// would otherwise either kill the server or silently stop delivery forever.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
