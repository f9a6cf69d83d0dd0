package session

// InteractionKind enumerates the UI-facing interaction states.
type InteractionKind int

const (
	// InteractionIdle is the default state.
	InteractionIdle InteractionKind = iota
	// InteractionEditing means one session's title is being edited.
	InteractionEditing
	// InteractionConfirmingDelete means deletion of one session is
	// awaiting confirmation.
	InteractionConfirmingDelete
	// InteractionMultiSelecting means a set of sessions is selected
	// for a bulk operation.
	InteractionMultiSelecting
)

// InteractionState is an explicit state machine for session-facing
// interaction, replacing ad hoc boolean flags. At most one session ID
// is referenced while editing or confirming; a set is referenced
// while multi-selecting.
type InteractionState struct {
	Kind      InteractionKind
	SessionID string
	Selected  map[string]bool
}

// Idle returns the idle state.
func Idle() InteractionState {
	return InteractionState{Kind: InteractionIdle}
}

// Editing returns the state for editing one session's title.
func Editing(sessionID string) InteractionState {
	return InteractionState{Kind: InteractionEditing, SessionID: sessionID}
}

// ConfirmingDelete returns the state awaiting delete confirmation.
func ConfirmingDelete(sessionID string) InteractionState {
	return InteractionState{Kind: InteractionConfirmingDelete, SessionID: sessionID}
}

// MultiSelecting returns the state with the given selection set.
func MultiSelecting(ids ...string) InteractionState {
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	return InteractionState{Kind: InteractionMultiSelecting, Selected: selected}
}
