// Package mapper implements component F, the routing engine: the
// OpenConnectionForKey state machine that reconciles the mapping cache
// against the GSM and LSM before handing a caller an LSM connection scoped
// to the shard owning a key, plus the lock-ownership controller (component
// G), which shares the mapper's GSM access but has no LSM component of its
// own.
package mapper
