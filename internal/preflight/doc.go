// Package preflight checks that a data directory can hold and persist an
// index before, or after, vexus writes to it.
//
// The package validates:
//   - Write permissions in the data directory
//   - Free disk space for a temp+rename save of the current snapshot
//   - That the index snapshot header is readable and matches the configured dimension
//   - That the tag mapping loads and agrees with the snapshot's vector count
//   - That no temp file from an interrupted save was left behind
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{DataDir: dir, Paths: paths})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
