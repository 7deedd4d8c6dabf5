package conversation

// Prompts holds the user-facing copy the engine places in transitions.
type Prompts struct {
	AskReportIdentifier string
	ReportAck           string
	AskTests            string
	AskArea             string
	AskDate             string
	AskSlot             string
	Handoff             string
	LabTimings          string
	AskFeedback         string
	FeedbackThanks      string
	ExecutiveWillReply  string
}

// DefaultPrompts returns the stock copy.
func DefaultPrompts() Prompts {
	return Prompts{
		AskReportIdentifier: "Please share the Patient ID or the registered mobile number to fetch your reports.",
		ReportAck:           "Thank you! Our team will share your reports here shortly.",
		AskTests:            "Please type the tests or health package you would like to book (for example: CBC, Thyroid Profile).",
		AskArea:             "Please share your area or locality for the home sample collection.",
		AskDate:             "Please share your preferred date for the visit (DD-MM-YYYY).",
		AskSlot:             "Please share a preferred time slot (for example: 7AM-9AM, 9AM-11AM).",
		Handoff:             "Connecting you to our executive. Someone from our team will reply here shortly.",
		LabTimings:          "Our lab is open Monday to Saturday, 7:00 AM to 9:00 PM, and on Sundays from 7:00 AM to 1:00 PM.",
		AskFeedback:         "We would love to hear from you. Please type your feedback.",
		FeedbackThanks:      "Thank you for your feedback!",
		ExecutiveWillReply:  "Our executive will respond to you shortly.",
	}
}

// merged fills blank fields of p from the defaults.
func (p Prompts) merged() Prompts {
	d := DefaultPrompts()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&p.AskReportIdentifier, d.AskReportIdentifier)
	fill(&p.ReportAck, d.ReportAck)
	fill(&p.AskTests, d.AskTests)
	fill(&p.AskArea, d.AskArea)
	fill(&p.AskDate, d.AskDate)
	fill(&p.AskSlot, d.AskSlot)
	fill(&p.Handoff, d.Handoff)
	fill(&p.LabTimings, d.LabTimings)
	fill(&p.AskFeedback, d.AskFeedback)
	fill(&p.FeedbackThanks, d.FeedbackThanks)
	fill(&p.ExecutiveWillReply, d.ExecutiveWillReply)
	return p
}
