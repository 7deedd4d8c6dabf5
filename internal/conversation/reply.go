package conversation

// ReplyType names the outbound action a transition asks for.
type ReplyType string

const (
	ReplyText             ReplyType = "TEXT"
	ReplyMainMenu         ReplyType = "MAIN_MENU"
	ReplyMoreServicesMenu ReplyType = "MORE_SERVICES_MENU"
	ReplySendLocation     ReplyType = "SEND_LOCATION"
	ReplyCallQuickBook    ReplyType = "CALL_QUICKBOOK"
	ReplyHandoff          ReplyType = "HANDOFF"
	ReplyInternalNotify   ReplyType = "INTERNAL_NOTIFY"
)

// Valid reports whether r is a declared reply type.
func (r ReplyType) Valid() bool {
	switch r {
	case ReplyText, ReplyMainMenu, ReplyMoreServicesMenu, ReplySendLocation,
		ReplyCallQuickBook, ReplyHandoff, ReplyInternalNotify:
		return true
	}
	return false
}

// Transition is the engine's description of one turn. It carries no I/O;
// the dispatcher turns it into effects.
type Transition struct {
	Reply      ReplyType
	ReplyText  string
	NotifyText string
	NewState   State
	Context    Context
}

// SessionContext is the context to persist. Reaching START ends any flow, so
// the stored context is empty there even when Context still carries the
// booking slots the dispatcher needs.
func (t Transition) SessionContext() Context {
	if t.NewState == StateStart {
		return Context{}
	}
	return t.Context.Clone()
}
