// Package pipeline runs the poll cycle: drain the work queue, then discover
// new source entries, normalize, stage, stabilize and transform them.
//
// Every per-entry failure is converted into a log line and, for discovered
// entries, a ledger record so the loop always reaches its sleep step. Only
// entries that vanish before they can be measured stay eligible for a later
// cycle. Staged entries whose transformer runs keep failing are bounded by
// the retry policy backed by the attempt history. Attempt outcomes are
// published to the optional Notifier once recorded.
package pipeline
