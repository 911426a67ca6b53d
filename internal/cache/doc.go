// Package cache implements component C, the mapper's process-local mapping
// cache: a lookup-by-key cache over (shard_map_id, shard_key) with
// advisory TTL staleness, sharded internally by shard map id so that
// lookups and evictions in one shard map never contend with another (the
// same lock-contention goal github.com/Voskan/arena-cache solves by
// splitting a cache into independent shards).
//
// TTL here is advisory only, per spec §4.C: an expired entry is never
// dropped by a background sweep, only marked stale on Lookup, which the
// mapper (internal/mapper) treats as a hint to revalidate against the GSM
// rather than a reason to discard the entry outright.
package cache
