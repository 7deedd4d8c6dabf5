package dispatch

import (
	"github.com/labbit-23/labbit-main-sub000/internal/conversation"
	"github.com/labbit-23/labbit-main-sub000/internal/lab"
	"github.com/labbit-23/labbit-main-sub000/internal/messaging/whatsappclient"
)

var mainMenuOptions = []whatsappclient.MenuOption{
	{ID: conversation.TokenRequestReports, Title: "Request Reports"},
	{ID: conversation.TokenBookHomeVisit, Title: "Book Home Visit"},
	{ID: conversation.TokenMoreServices, Title: "More Services"},
}

var moreServicesOptions = []whatsappclient.MenuOption{
	{ID: conversation.TokenTalkExecutive, Title: "Talk to Executive", Description: "Chat with our team"},
	{ID: conversation.TokenLabTimings, Title: "Lab Timings", Description: "Opening hours"},
	{ID: conversation.TokenSendLocation, Title: "Send Location", Description: "Directions to the lab"},
	{ID: conversation.TokenFeedback, Title: "Feedback", Description: "Tell us how we did"},
	{ID: conversation.TokenMainMenu, Title: "Main Menu", Description: "Back to the start"},
}

func buildMenu(kind MenuKind, to string, cfg *lab.Config) whatsappclient.OutboundMessage {
	if kind == MenuMoreServices {
		menu := whatsappclient.Menu{
			Body:       "What else can we help you with?",
			ButtonText: "View options",
			Options:    moreServicesOptions,
		}
		applyCopy(&menu, cfg.Messaging.MoreServicesMenu)
		return whatsappclient.NewList(to, menu)
	}
	menu := whatsappclient.Menu{
		Header:  cfg.Name,
		Body:    "Welcome! How can we help you today?",
		Options: mainMenuOptions,
	}
	applyCopy(&menu, cfg.Messaging.MainMenu)
	return whatsappclient.NewButtons(to, menu)
}

func applyCopy(menu *whatsappclient.Menu, override *lab.MenuCopy) {
	if override == nil {
		return
	}
	if override.Header != "" {
		menu.Header = override.Header
	}
	if override.Body != "" {
		menu.Body = override.Body
	}
	if override.Footer != "" {
		menu.Footer = override.Footer
	}
	if override.ButtonText != "" {
		menu.ButtonText = override.ButtonText
	}
}
