package model

import "github.com/dreamware/shardmap/internal/shardkey"

// Key and Range are re-exported aliases so callers that work with the
// mapping directory rarely need to import shardkey directly.
type (
	Key   = shardkey.Key
	Range = shardkey.Range
)
