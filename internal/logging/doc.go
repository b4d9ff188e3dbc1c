// Package logging assembles structured slog loggers and formatting helpers used
// across facewatch.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes helpers so pipeline code can tag log lines with the
// entry being processed, the pipeline stage, and the cycle correlation ID.
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same keys.
package logging
