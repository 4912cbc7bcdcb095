package models

import "time"

// Message is one immutable unit of a two-party conversation.
// Rows live in the Supabase "messages" table; the store assigns ID and CreatedAt.
type Message struct {
	// ID is the store-assigned identifier, used as the dedup key
	ID string `json:"id"`

	// ConversationKey binds the message to exactly one unordered pair of participants
	ConversationKey string `json:"conversation_id"`

	// Sender and Receiver are normalized (lowercase) participant identifiers
	Sender   string `json:"sender_address"`
	Receiver string `json:"receiver_address"`

	// Body is the non-empty text payload
	Body string `json:"message"`

	// CreatedAt is the server timestamp, used for ordering and as polling watermark
	CreatedAt time.Time `json:"created_at"`
}

// NewMessageRow is the insert payload; the store fills in id and created_at.
type NewMessageRow struct {
	ConversationKey string `json:"conversation_id"`
	Sender          string `json:"sender_address"`
	Receiver        string `json:"receiver_address"`
	Body            string `json:"message"`
}

// SendMessageRequest is the request body for sending a message
type SendMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

// SendMessageResponse echoes the stored message
type SendMessageResponse struct {
	Message Message `json:"message"`
}

// SendMessageError is returned when a send fails; Draft is the preserved input
type SendMessageError struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
	Draft     string `json:"draft,omitempty"`
}

// GetMessagesResponse is the response for fetching messages
type GetMessagesResponse struct {
	Messages []Message `json:"messages"`
}
