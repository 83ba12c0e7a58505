// Package log provides structured logging for the region store using
// zerolog.
//
// Call Init once at process startup to configure the global Logger, then
// acquire a component-scoped child logger with WithComponent (and, where
// useful, WithRegion/WithTxn/WithStream) and hold onto it rather than
// logging through the package-level Logger directly.
package log
