package store

import "github.com/google/uuid"

// NewRequest builds the common envelope shared by every request: the
// current wire version, an operation id, and the undo flag. Callers then
// append the operation-specific Steps.
func NewRequest(opCode OpCode, operationID uuid.UUID, undo bool, version Version, steps ...Step) Request {
	return Request{
		Version:       version,
		OperationID:   operationID,
		OperationCode: opCode,
		Undo:          undo,
		Steps:         steps,
	}
}

// GSMRequest builds a request carrying the current GSM wire version.
func GSMRequest(opCode OpCode, operationID uuid.UUID, undo bool, steps ...Step) Request {
	return NewRequest(opCode, operationID, undo, CurrentGSMVersion, steps...)
}

// LSMRequest builds a request carrying the current LSM wire version.
func LSMRequest(opCode OpCode, operationID uuid.UUID, undo bool, steps ...Step) Request {
	return NewRequest(opCode, operationID, undo, CurrentLSMVersion, steps...)
}
