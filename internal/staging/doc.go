// Package staging copies source entries into the work queue and maintains
// that directory.
//
// Copies land under a hidden partial name and are renamed into place once
// complete, so the queue never exposes a truncated entry. CleanStale removes
// partials left behind by an interrupted run.
package staging
