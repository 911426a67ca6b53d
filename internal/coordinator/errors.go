package coordinator

import (
	"github.com/dreamware/shardmap/internal/errs"
	"github.com/dreamware/shardmap/internal/store"
)

// resultCodeToErrsCode is the store-result-code to domain-error-code table
// (spec §4.H/§4.E.6): each store.ResultCode maps to exactly one errs.Code.
// The category varies by call site (which ShardMapManager entry point was
// in progress), so it is supplied separately by asDomainError's caller.
var resultCodeToErrsCode = map[store.ResultCode]errs.Code{
	store.ResultShardMapDoesNotExist:       errs.CodeShardMapDoesNotExist,
	store.ResultShardMapAlreadyExists:      errs.CodeShardMapAlreadyExists,
	store.ResultShardAlreadyExists:         errs.CodeShardAlreadyExists,
	store.ResultShardLocationAlreadyExists: errs.CodeShardLocationAlreadyExists,
	store.ResultShardDoesNotExist:          errs.CodeShardDoesNotExist,
	store.ResultShardVersionMismatch:       errs.CodeShardVersionMismatch,
	store.ResultShardHasMappings:           errs.CodeShardHasMappings,
	store.ResultMappingDoesNotExist:        errs.CodeMappingDoesNotExist,
	store.ResultMappingRangeAlreadyMapped:  errs.CodeMappingRangeAlreadyMapped,
	store.ResultMappingPointAlreadyMapped:  errs.CodeMappingPointAlreadyMapped,
	store.ResultMappingIsAlreadyLocked:     errs.CodeMappingIsAlreadyLocked,
	store.ResultMappingLockOwnerIDDoesNotMatch: errs.CodeMappingLockOwnerIdDoesNotMatch,
	store.ResultMappingIsNotOffline:            errs.CodeMappingIsNotOffline,
	store.ResultMappingIsOffline:               errs.CodeMappingIsOffline,
	store.ResultShardPendingOperation:          errs.CodeMappingsKillConnectionFailure,
	store.ResultGlobalStoreVersionMismatch:     errs.CodeGlobalStoreVersionMismatch,
	store.ResultLocalStoreVersionMismatch:      errs.CodeLocalStoreVersionMismatch,
}

// asDomainError converts a non-Success ResultCode produced while category
// was in progress into the *errs.Error a ShardMapManager caller sees.
// context is a short identifier (a shard location, a mapping id) folded
// into the error's message.
func asDomainError(category errs.Category, code store.ResultCode, context string) *errs.Error {
	domainCode, ok := resultCodeToErrsCode[code]
	if !ok {
		domainCode = errs.CodeUnexpectedError
	}
	return errs.New(category, domainCode, context)
}

// asTransportError wraps a connection/transport failure (the LSM or GSM
// itself being unreachable) as errs.CodeMappingsKillConnectionFailure, the
// one code retry.DefaultTransient treats as worth retrying.
func asTransportError(category errs.Category, context string, cause error) *errs.Error {
	return errs.Wrap(category, errs.CodeMappingsKillConnectionFailure, context, cause)
}
