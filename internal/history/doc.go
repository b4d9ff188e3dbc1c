// Package history records transformer attempts in SQLite.
//
// Each launch of the external tool becomes one row. The pipeline consults the
// per-entry summary to bound retries of staged entries that keep failing, and
// the CLI renders recent attempts and aggregate counts.
package history
