package domain

import "strings"

// ActionSubscribe is the only control action a client may send.
const ActionSubscribe = "subscribe"

// SubscribeMessage is the JSON control frame a website sends after opening
// its websocket connection.
type SubscribeMessage struct {
	Action     string `json:"action"`
	DroplertID string `json:"droplertId"`
	WebsiteURL string `json:"websiteUrl"`
}

// Valid reports whether the message has the required shape: the subscribe
// action and two non-empty strings.
func (m SubscribeMessage) Valid() bool {
	return m.Action == ActionSubscribe &&
		strings.TrimSpace(m.DroplertID) != "" &&
		strings.TrimSpace(m.WebsiteURL) != ""
}

// SubscribeAck is the server's reply to a subscribe control frame.
type SubscribeAck struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SubscribeError is the reply to a malformed control frame. The connection
// stays open; the client may retry.
type SubscribeError struct {
	Error string `json:"error"`
}
