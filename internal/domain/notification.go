package domain

import (
	"fmt"
	"strings"
)

// Notification kinds supported by the browser widget.
const (
	KindToast       = "toast"
	KindAlert       = "alert"
	KindAlertDialog = "alert_dialog"
)

// Notification is the presentation payload pushed to subscribed websites.
type Notification struct {
	Type            string `json:"type"`
	Title           string `json:"title"`
	Message         string `json:"message"`
	Style           string `json:"style"`
	BackgroundColor string `json:"backgroundColor"`
	TextColor       string `json:"textColor"`
	BorderColor     string `json:"borderColor"`
	ImageURL        string `json:"imageUrl,omitempty"`
}

// NotificationRequest is the inbound fan-out request on POST /notify.
// Websites lists the target origins; only connections subscribed to one of
// them receive the notification.
type NotificationRequest struct {
	DroplertID   string       `json:"droplertId"`
	Websites     []string     `json:"websites"`
	Notification Notification `json:"notification"`
}

// Validate checks the request shape. It does not check whether the account
// has any subscribers; that is the dispatcher's concern.
func (r *NotificationRequest) Validate() error {
	if strings.TrimSpace(r.DroplertID) == "" {
		return fmt.Errorf("droplertId is required")
	}
	if len(r.Websites) == 0 {
		return fmt.Errorf("websites must contain at least one target URL")
	}
	for i, w := range r.Websites {
		if strings.TrimSpace(w) == "" {
			return fmt.Errorf("websites[%d] is empty", i)
		}
	}
	switch r.Notification.Type {
	case KindToast, KindAlert, KindAlertDialog:
	default:
		return fmt.Errorf("notification.type must be one of toast, alert, alert_dialog")
	}
	if r.Notification.Title == "" {
		return fmt.Errorf("notification.title is required")
	}
	if r.Notification.Message == "" {
		return fmt.Errorf("notification.message is required")
	}
	return nil
}

// PushFrame is the JSON frame written to a website's websocket connection.
type PushFrame struct {
	Type string       `json:"type"`
	Data Notification `json:"data"`
}

// NewPushFrame wraps a notification in the envelope clients expect.
func NewPushFrame(n Notification) PushFrame {
	return PushFrame{Type: "notification", Data: n}
}
