// Package daemon owns the long-running facewatch process lifecycle.
//
// A Daemon holds an exclusive flock on the pipeline root for as long as it
// runs, so two monitors can never drain the same work queue or append to the
// same ledger. Scheduling and per-entry processing live in the pipeline
// package; this package only starts, stops, and reports on the loop.
package daemon
