package coordinator

// State tracks how far one Do attempt has progressed through the
// four-phase protocol, matching spec §4.E.1's state variable. Ordinal
// order matters: maxStateToUndoEntry compares states by ordinal to pick
// the undo entry point.
type State int

const (
	StateStart State = iota
	StateGlobalPreLocalExecute
	StateGlobalPreLocalCommit
	StateLocalSourceExecute
	StateLocalSourceCommit
	StateLocalTargetExecute
	StateLocalTargetCommit
	StateGlobalPostLocalExecute
	StateGlobalPostLocalCommit
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateGlobalPreLocalExecute:
		return "GlobalPreLocalExecute"
	case StateGlobalPreLocalCommit:
		return "GlobalPreLocalCommit"
	case StateLocalSourceExecute:
		return "LocalSourceExecute"
	case StateLocalSourceCommit:
		return "LocalSourceCommit"
	case StateLocalTargetExecute:
		return "LocalTargetExecute"
	case StateLocalTargetCommit:
		return "LocalTargetCommit"
	case StateGlobalPostLocalExecute:
		return "GlobalPostLocalExecute"
	case StateGlobalPostLocalCommit:
		return "GlobalPostLocalCommit"
	default:
		return "End"
	}
}

// UndoEntryPoint names where Undo re-enters the reverse protocol, a
// function of the max State a Do attempt reached (spec §4.E.2's table).
type UndoEntryPoint int

const (
	// UndoEnd means no undo work is needed: the GSM pending log entry was
	// never committed, so nothing durable exists to revert.
	UndoEnd UndoEntryPoint = iota
	// UndoFromGlobalPostLocal means only the GSM side needs unwinding
	// (revert the GSM-pre-local mutations and remove the pending log
	// entry); no LSM mutation was ever committed.
	UndoFromGlobalPostLocal
	// UndoFromLocalSource means the source LSM mutation committed and
	// must be reverted, then the GSM side unwound.
	UndoFromLocalSource
	// UndoFromLocalTarget means both the source and target LSM mutations
	// committed and must be reverted (target first), then the GSM side
	// unwound.
	UndoFromLocalTarget
)

// maxStateToUndoEntry implements spec §4.E.2's do → undo entry-point
// table: the undo entry point is a function of the maximum State a Do
// attempt reached, not the state at the moment it failed.
func maxStateToUndoEntry(maxState State) UndoEntryPoint {
	switch {
	case maxState <= StateGlobalPreLocalExecute:
		return UndoEnd
	case maxState <= StateLocalSourceExecute:
		return UndoFromGlobalPostLocal
	case maxState <= StateLocalTargetExecute:
		return UndoFromLocalSource
	default: // up to and including StateGlobalPostLocalCommit
		return UndoFromLocalTarget
	}
}
