// Package transformer launches the external face-swap tool for one staged
// entry at a time.
//
// The tool is treated as an opaque process: it receives a fixed argument
// template, its exit code decides the outcome, and its combined output is
// appended to a per-invocation log file rather than parsed.
package transformer
