// Package lab provides per-tenant configuration for the chat channel:
// sending credentials, menu copy, the location card and operator contacts.
package lab

import (
	"strings"

	"github.com/labbit-23/labbit-main-sub000/internal/conversation"
	"github.com/labbit-23/labbit-main-sub000/internal/messaging/whatsappclient"
)

// Config is one lab's chat configuration.
type Config struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Messaging Messaging `json:"messaging"`
}

// Messaging is stored as JSONB on the labs row.
type Messaging struct {
	PhoneNumberID       string    `json:"phone_number_id"`
	AccessToken         string    `json:"access_token"`
	InternalNotifyPhone string    `json:"internal_notify_phone,omitempty"`
	OperatorEmail       string    `json:"operator_email,omitempty"`
	Location            *Location `json:"location,omitempty"`
	MainMenu            *MenuCopy `json:"main_menu,omitempty"`
	MoreServicesMenu    *MenuCopy `json:"more_services_menu,omitempty"`
	LabTimings          string    `json:"lab_timings,omitempty"`
	BookingConfirmation string    `json:"booking_confirmation,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

// MenuCopy overrides the text around a fixed menu. Option ids never change.
type MenuCopy struct {
	Header     string `json:"header,omitempty"`
	Body       string `json:"body,omitempty"`
	Footer     string `json:"footer,omitempty"`
	ButtonText string `json:"button_text,omitempty"`
}

// Credentials returns the sending credentials for the delivery API.
func (c *Config) Credentials() whatsappclient.Credentials {
	return whatsappclient.Credentials{
		PhoneNumberID: strings.TrimSpace(c.Messaging.PhoneNumberID),
		AccessToken:   strings.TrimSpace(c.Messaging.AccessToken),
	}
}

// HasLocation reports whether a usable location card is configured.
func (c *Config) HasLocation() bool {
	loc := c.Messaging.Location
	return loc != nil && (loc.Latitude != 0 || loc.Longitude != 0)
}

// Prompts returns the lab's overrides of the engine copy.
func (c *Config) Prompts() conversation.Prompts {
	return conversation.Prompts{LabTimings: strings.TrimSpace(c.Messaging.LabTimings)}
}

// Usable reports whether the lab can send messages at all.
func (c *Config) Usable() bool {
	if c == nil {
		return false
	}
	creds := c.Credentials()
	return creds.PhoneNumberID != "" && creds.AccessToken != ""
}
