//go:build cirrus_nolog

package syscall

// LoggingEnabled reports whether program logging is compiled in.
const LoggingEnabled = false
