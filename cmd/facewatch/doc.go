// Command facewatch runs the face-swap monitor and inspects its state.
//
// `facewatch run` starts the poll loop in the foreground (or a single cycle
// with --once). The remaining subcommands read the work queue, the processed
// ledger, and the attempt history directly from the pipeline root, so they
// work whether or not a monitor is running.
package main
