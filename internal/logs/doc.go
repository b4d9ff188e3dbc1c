// Package logs reads facewatch log files for the CLI.
//
// Tail returns the last lines of a file or everything appended after a byte
// offset, optionally waiting for new output. LatestToolLog locates the most
// recent transformer log written for a staged entry.
package logs
