//go:build !cirrus_nolog

package syscall

// LoggingEnabled reports whether program logging is compiled in. Build with
// -tags cirrus_nolog to remove every log call and its compute cost.
const LoggingEnabled = true
