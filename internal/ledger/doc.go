// Package ledger persists the processed-set: the append-only log of source
// identifiers the pipeline has already handled.
//
// The log is plain text, one identifier per line, and is only ever appended
// to. Each Record call fsyncs before returning so an identifier that was
// reported as recorded survives a crash. Identifiers are compared in Unicode
// NFC form so decomposed directory listings match composed log lines.
package ledger
