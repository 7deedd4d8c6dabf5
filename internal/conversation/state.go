package conversation

import "strings"

// State is a step of the chat flow. The set is closed; ParseState rejects
// anything not declared here.
type State string

const (
	StateStart                State = "START"
	StateReportWaitingInput   State = "REPORT_WAITING_INPUT"
	StateBookingTestSelection State = "BOOKING_TEST_SELECTION"
	StateBookingArea          State = "BOOKING_AREA"
	StateBookingDate          State = "BOOKING_DATE"
	StateBookingSlot          State = "BOOKING_SLOT"
	StateMoreServices         State = "MORE_SERVICES"
	StateFeedbackWaiting      State = "FEEDBACK_WAITING"
	StateHumanHandover        State = "HUMAN_HANDOVER"
)

// AllStates lists every declared state in flow order.
func AllStates() []State {
	return []State{
		StateStart,
		StateReportWaitingInput,
		StateBookingTestSelection,
		StateBookingArea,
		StateBookingDate,
		StateBookingSlot,
		StateMoreServices,
		StateFeedbackWaiting,
		StateHumanHandover,
	}
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	switch s {
	case StateStart, StateReportWaitingInput, StateBookingTestSelection, StateBookingArea,
		StateBookingDate, StateBookingSlot, StateMoreServices, StateFeedbackWaiting, StateHumanHandover:
		return true
	}
	return false
}

// ParseState maps a stored value back to a State.
func ParseState(raw string) (State, bool) {
	s := State(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// Status is the lifecycle of a chat session.
type Status string

const (
	// StatusActive is the only status in which the engine runs.
	StatusActive Status = "active"
	// StatusHandoff freezes automated replies until an operator resolves the chat.
	StatusHandoff Status = "handoff"
	// StatusCompleted is terminal.
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusHandoff, StatusCompleted:
		return true
	}
	return false
}

// Inbound tokens carried by menu buttons and list rows. Free text is compared
// after upper-casing, so a user typing "main menu" does not match MAIN_MENU.
const (
	TokenMainMenu       = "MAIN_MENU"
	TokenMoreServices   = "MORE_SERVICES"
	TokenRequestReports = "REQUEST_REPORTS"
	TokenBookHomeVisit  = "BOOK_HOME_VISIT"
	TokenTalkExecutive  = "TALK_EXECUTIVE"
	TokenLabTimings     = "LAB_TIMINGS"
	TokenSendLocation   = "SEND_LOCATION"
	TokenFeedback       = "FEEDBACK"
)
