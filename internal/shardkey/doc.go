// Package shardkey implements the totally ordered, type-tagged shard key
// values used throughout shardmap to identify rows and row ranges, together
// with the half-open shard ranges built from them.
//
// # Overview
//
// A Key wraps one of a fixed set of scalar types (32/64-bit integers, GUIDs,
// bounded binary strings, timestamps, durations, and timestamps-with-offset)
// behind a single normalized byte representation. The normalization is
// designed so that ordinary lexicographic comparison of the normalized bytes
// always agrees with the natural ordering of the wrapped type, which lets
// the rest of the system (the mapping directory, the cache, the wire codec)
// treat every key type uniformly as a byte string with a total order.
//
// Two values outside the normal value space are represented directly in the
// byte encoding rather than as a separate sentinel type:
//
//	nil        []byte  -> positive infinity (the type's maximum, unrepresentable)
//	non-nil []byte{}    -> negative infinity (the type's minimum)
//
// This mirrors the wire format: GSM/LSM store absent bytes for "no upper
// bound" and empty bytes for "no lower bound", so normalization and wire
// encoding share the same representation with no translation step.
//
// # Ranges
//
// A Range is a half-open interval [Low, High) over keys of one Kind. Ranges
// never wrap and never include their High endpoint; the shard map invariant
// that mappings do not overlap is expressed entirely in terms of Range
// comparisons (see the coordinator and model packages).
package shardkey
