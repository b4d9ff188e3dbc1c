// Package preflight provides readiness checks for the transformer and the
// filesystem paths facewatch depends on.
//
// These checks run in two contexts:
//   - daemonrun calls RunAll at startup. With preflight.strict enabled, a
//     failed required check aborts startup; otherwise each failure is logged
//     and the loop starts anyway.
//   - The CLI "facewatch status" command renders the same results.
//
// The source directory check is advisory: the source may live on a volume
// that is mounted later, and discovery already tolerates its absence.
package preflight
