// Package completion infers that the guest has finished an operation by
// watching an output file until its size stops changing.
//
// This is a heuristic. A guest that pauses mid-write for longer than
// Interval*Threshold produces a false positive, and a filesystem driver that
// flushes in irregular bursts can produce a false negative (timeout). Callers
// must treat ErrNotCompleted as "the operation did not finish in time", not as
// evidence of a particular guest-side failure.
package completion
