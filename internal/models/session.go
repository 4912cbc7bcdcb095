package models

import "time"

// Session is one open conversation screen of the gateway.
// Sessions are ephemeral: they are closed when the UI leaves the chat or
// stops sending heartbeats.
type Session struct {
	// ID is the unique identifier handed to the UI
	ID string `json:"id"`

	// Self is the wallet viewing the conversation, Other is the counterpart
	Self  string `json:"self"`
	Other string `json:"other"`

	// ConversationKey is the resolved key of {Self, Other}
	ConversationKey string `json:"conversation_id"`

	// CreatedAt is when the session was opened
	CreatedAt time.Time `json:"created_at"`

	// LastActiveAt is updated on each heartbeat
	// Used by the cleanup service to close abandoned sessions
	LastActiveAt time.Time `json:"last_active_at"`
}

// OpenConversationRequest is the request body for opening a conversation
type OpenConversationRequest struct {
	Self  string `json:"self" validate:"required"`
	Other string `json:"other" validate:"required,nefield=Self"`
}

// ConversationResponse contains session details and the current message list
type ConversationResponse struct {
	Session  Session   `json:"session"`
	Mode     string    `json:"mode"`
	Messages []Message `json:"messages"`

	// LoadError is set when history could not be loaded; the UI offers a retry
	LoadError string `json:"load_error,omitempty"`
}
