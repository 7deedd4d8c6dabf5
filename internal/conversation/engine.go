package conversation

import (
	"fmt"
	"strings"
)

// Engine maps (state, context, input, phone) to a Transition. It is
// deterministic and never performs I/O.
type Engine struct {
	prompts Prompts
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithPrompts overrides the user-facing copy. Blank fields keep the defaults.
func WithPrompts(p Prompts) EngineOption {
	return func(e *Engine) {
		e.prompts = p.merged()
	}
}

// NewEngine builds an engine with the default prompts.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{prompts: DefaultPrompts()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transition computes the next step for one user turn. input is the
// normalized user input (text body or button id); phone is the sender.
func (e *Engine) Transition(state State, ctx Context, input, phone string) Transition {
	text := strings.TrimSpace(input)
	token := strings.ToUpper(text)

	switch token {
	case TokenMainMenu:
		return e.mainMenu()
	case TokenMoreServices:
		return Transition{Reply: ReplyMoreServicesMenu, NewState: StateMoreServices, Context: ctx.Clone()}
	}

	switch state {
	case StateStart:
		return e.fromStart(token)
	case StateReportWaitingInput:
		if text == "" {
			return e.text(e.prompts.AskReportIdentifier, state, ctx)
		}
		return Transition{
			Reply:      ReplyInternalNotify,
			ReplyText:  e.prompts.ReportAck,
			NotifyText: fmt.Sprintf("Report request from %s: %s", phone, text),
			NewState:   StateStart,
			Context:    Context{},
		}
	case StateBookingTestSelection:
		if text == "" {
			return e.text(e.prompts.AskTests, state, ctx)
		}
		return e.text(e.prompts.AskArea, StateBookingArea, ctx.WithTests(text))
	case StateBookingArea:
		if text == "" {
			return e.text(e.prompts.AskArea, state, ctx)
		}
		return e.text(e.prompts.AskDate, StateBookingDate, ctx.WithArea(text))
	case StateBookingDate:
		if text == "" {
			return e.text(e.prompts.AskDate, state, ctx)
		}
		return e.text(e.prompts.AskSlot, StateBookingSlot, ctx.WithSelectedDate(text))
	case StateBookingSlot:
		if text == "" {
			return e.text(e.prompts.AskSlot, state, ctx)
		}
		return Transition{Reply: ReplyCallQuickBook, NewState: StateStart, Context: ctx.WithSelectedSlot(text)}
	case StateMoreServices:
		return e.fromMoreServices(token, ctx)
	case StateFeedbackWaiting:
		if text == "" {
			return e.text(e.prompts.AskFeedback, state, ctx)
		}
		return Transition{
			Reply:      ReplyInternalNotify,
			ReplyText:  e.prompts.FeedbackThanks,
			NotifyText: fmt.Sprintf("Feedback from %s: %s", phone, text),
			NewState:   StateStart,
			Context:    Context{},
		}
	case StateHumanHandover:
		return e.text(e.prompts.ExecutiveWillReply, StateHumanHandover, ctx)
	}
	return e.mainMenu()
}

func (e *Engine) fromStart(token string) Transition {
	switch token {
	case TokenRequestReports:
		return e.text(e.prompts.AskReportIdentifier, StateReportWaitingInput, Context{})
	case TokenBookHomeVisit:
		return e.text(e.prompts.AskTests, StateBookingTestSelection, Context{})
	}
	return e.mainMenu()
}

func (e *Engine) fromMoreServices(token string, ctx Context) Transition {
	switch token {
	case TokenTalkExecutive:
		return Transition{Reply: ReplyHandoff, ReplyText: e.prompts.Handoff, NewState: StateHumanHandover, Context: ctx.Clone()}
	case TokenLabTimings:
		return e.text(e.prompts.LabTimings, StateStart, Context{})
	case TokenSendLocation:
		return Transition{Reply: ReplySendLocation, NewState: StateStart, Context: Context{}}
	case TokenFeedback:
		return e.text(e.prompts.AskFeedback, StateFeedbackWaiting, ctx)
	}
	return Transition{Reply: ReplyMoreServicesMenu, NewState: StateMoreServices, Context: ctx.Clone()}
}

func (e *Engine) mainMenu() Transition {
	return Transition{Reply: ReplyMainMenu, NewState: StateStart, Context: Context{}}
}

func (e *Engine) text(body string, next State, ctx Context) Transition {
	return Transition{Reply: ReplyText, ReplyText: body, NewState: next, Context: ctx.Clone()}
}
