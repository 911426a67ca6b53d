// Package errs implements the shardmap error taxonomy: every error the
// library raises is a (Category, Code, Context) triple, matching the
// store-result-code-to-domain-error mapping described in the operation
// coordinator's error handling design. Call sites construct an *Error with
// New or Wrap; callers distinguish error conditions with Is or errors.As,
// never by matching message strings.
package errs

import "fmt"

// Category groups codes by the subsystem that raised them.
type Category int

const (
	CategoryUnspecified Category = iota
	CategoryShardMap
	CategoryShardMapManager
	CategoryListShardMap
	CategoryRangeShardMap
	CategoryRecovery
	CategoryValidation
	CategoryGeneral
)

func (c Category) String() string {
	switch c {
	case CategoryShardMap:
		return "ShardMap"
	case CategoryShardMapManager:
		return "ShardMapManager"
	case CategoryListShardMap:
		return "ListShardMap"
	case CategoryRangeShardMap:
		return "RangeShardMap"
	case CategoryRecovery:
		return "Recovery"
	case CategoryValidation:
		return "Validation"
	case CategoryGeneral:
		return "General"
	default:
		return "Unspecified"
	}
}

// Code enumerates the fixed set of domain error codes. Every store-result
// code the coordinator observes maps to exactly one Code; see
// resultCodeToErrsCode in internal/coordinator/errors.go (the Category is
// chosen per call site).
type Code int

const (
	CodeUnspecified Code = iota
	CodeShardMapDoesNotExist
	CodeShardMapAlreadyExists
	CodeShardAlreadyExists
	CodeShardLocationAlreadyExists
	CodeShardDoesNotExist
	CodeShardVersionMismatch
	CodeShardHasMappings
	CodeMappingDoesNotExist
	CodeMappingRangeAlreadyMapped
	CodeMappingPointAlreadyMapped
	CodeMappingNotFoundForKey
	CodeMappingIsAlreadyLocked
	CodeMappingLockOwnerIdDoesNotMatch
	CodeMappingIsNotOffline
	CodeMappingIsOffline
	CodeMappingsKillConnectionFailure
	CodeGlobalStoreVersionMismatch
	CodeLocalStoreVersionMismatch
	CodeUnexpectedError
)

func (c Code) String() string {
	switch c {
	case CodeShardMapDoesNotExist:
		return "ShardMapDoesNotExist"
	case CodeShardMapAlreadyExists:
		return "ShardMapAlreadyExists"
	case CodeShardAlreadyExists:
		return "ShardAlreadyExists"
	case CodeShardLocationAlreadyExists:
		return "ShardLocationAlreadyExists"
	case CodeShardDoesNotExist:
		return "ShardDoesNotExist"
	case CodeShardVersionMismatch:
		return "ShardVersionMismatch"
	case CodeShardHasMappings:
		return "ShardHasMappings"
	case CodeMappingDoesNotExist:
		return "MappingDoesNotExist"
	case CodeMappingRangeAlreadyMapped:
		return "MappingRangeAlreadyMapped"
	case CodeMappingPointAlreadyMapped:
		return "MappingPointAlreadyMapped"
	case CodeMappingNotFoundForKey:
		return "MappingNotFoundForKey"
	case CodeMappingIsAlreadyLocked:
		return "MappingIsAlreadyLocked"
	case CodeMappingLockOwnerIdDoesNotMatch:
		return "MappingLockOwnerIdDoesNotMatch"
	case CodeMappingIsNotOffline:
		return "MappingIsNotOffline"
	case CodeMappingIsOffline:
		return "MappingIsOffline"
	case CodeMappingsKillConnectionFailure:
		return "MappingsKillConnectionFailure"
	case CodeGlobalStoreVersionMismatch:
		return "GlobalStoreVersionMismatch"
	case CodeLocalStoreVersionMismatch:
		return "LocalStoreVersionMismatch"
	case CodeUnexpectedError:
		return "UnexpectedError"
	default:
		return "Unspecified"
	}
}

// Error is the concrete error type every shardmap call site raises.
// Context is a short human-readable detail (a mapping id, a shard
// location, ...); it is not part of error identity -- use Is/errors.As to
// distinguish error conditions, never Error()'s message text.
type Error struct {
	Category Category
	Code     Code
	Context  string
	cause    error
}

// New constructs an Error with no wrapped cause, used for purely local
// validation failures raised without contacting the store.
func New(category Category, code Code, context string) *Error {
	return &Error{Category: category, Code: code, Context: context}
}

// Wrap constructs an Error that preserves cause via Unwrap, used when a
// domain error is derived from a lower-level store or transport failure.
func Wrap(category Category, code Code, context string, cause error) *Error {
	return &Error{Category: category, Code: code, Context: context, cause: cause}
}

func (e *Error) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("shardmap: %s/%s", e.Category, e.Code)
	}
	return fmt.Sprintf("shardmap: %s/%s: %s", e.Category, e.Code, e.Context)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether err is a *Error carrying the given code. It follows
// the wrapped-error chain, so it matches through retry/undo wrapping too.
func Is(err error, code Code) bool {
	for err != nil {
		if se, ok := err.(*Error); ok {
			if se.Code == code {
				return true
			}
			err = se.cause
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
