package mapper

import (
	"github.com/dreamware/shardmap/internal/errs"
	"github.com/dreamware/shardmap/internal/model"
)

// categoryFor picks the error taxonomy category for a shard map of the
// given kind, matching spec §4.H's ListShardMap/RangeShardMap split.
// MapKindNone has no mapper instance, so a lookup against one can only
// ever be a caller bug; categorize it as General rather than inventing a
// third mapper category.
func categoryFor(kind model.MapKind) errs.Category {
	switch kind {
	case model.MapKindList:
		return errs.CategoryListShardMap
	case model.MapKindRange:
		return errs.CategoryRangeShardMap
	default:
		return errs.CategoryGeneral
	}
}

// isTransportFailure reports whether err is the connection/transport
// failure kind spec §4.F's stale-on-transport-error branch reacts to, as
// opposed to a store-level result (MappingDoesNotExist, MappingIsOffline)
// that the state machine handles separately.
func isTransportFailure(err error) bool {
	return errs.Is(err, errs.CodeMappingsKillConnectionFailure)
}
