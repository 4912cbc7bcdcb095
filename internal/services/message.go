package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linked-app/linked/backend/internal/apperr"
	"github.com/linked-app/linked/backend/internal/conversation"
	"github.com/linked-app/linked/backend/internal/models"
	"go.uber.org/zap"
)

// MessageStore is the slice of the Supabase client the message service needs.
type MessageStore interface {
	InsertMessage(ctx context.Context, row models.NewMessageRow) (models.Message, error)
	ListMessages(ctx context.Context, conversationKey string, after time.Time) ([]models.Message, error)
	LatestMessage(ctx context.Context, conversationKey string) (*models.Message, error)
	BroadcastMessage(ctx context.Context, msg models.Message) error
}

// MessageConfig tunes the message service.
type MessageConfig struct {
	// RequestTimeout bounds each store call
	RequestTimeout time.Duration

	// MaxLength is the maximum body length in runes
	MaxLength int

	// Broadcast publishes each inserted message on the realtime channel
	Broadcast bool
}

// MessageService is the stateless request/response boundary to the remote
// message store. Every identifier goes through the conversation resolver, so
// rows are always stored and queried with normalized addresses.
type MessageService struct {
	db  MessageStore
	cfg MessageConfig
	log *zap.Logger
}

// NewMessageService creates a new MessageService instance
func NewMessageService(db MessageStore, cfg MessageConfig, log *zap.Logger) *MessageService {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &MessageService{db: db, cfg: cfg, log: log}
}

// ValidateBody trims body and checks it can be sent.
func (s *MessageService) ValidateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperr.Validation("send message", apperr.ErrEmptyBody)
	}
	if s.cfg.MaxLength > 0 && utf8.RuneCountInString(body) > s.cfg.MaxLength {
		return "", apperr.Validation("send message",
			fmt.Errorf("%w: max %d characters", apperr.ErrBodyTooLong, s.cfg.MaxLength))
	}
	return body, nil
}

// Send stores a message from sender to receiver and returns it as persisted.
// Input is validated before any network call. On error the caller must not
// assume the message was stored.
func (s *MessageService) Send(ctx context.Context, sender, receiver, body string) (models.Message, error) {
	body, err := s.ValidateBody(body)
	if err != nil {
		return models.Message{}, err
	}
	key, err := conversation.Key(sender, receiver)
	if err != nil {
		return models.Message{}, err
	}
	// Key already validated both identifiers
	from, _ := conversation.Normalize(sender)
	to, _ := conversation.Normalize(receiver)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	msg, err := s.db.InsertMessage(ctx, models.NewMessageRow{
		ConversationKey: key,
		Sender:          from,
		Receiver:        to,
		Body:            body,
	})
	if err != nil {
		return models.Message{}, apperr.Persistence("send message", err)
	}
	s.log.Debug("[Message] Stored message", zap.String("id", msg.ID), zap.String("conversation", key))

	if s.cfg.Broadcast {
		go s.broadcast(msg)
	}
	return msg, nil
}

// broadcast is best effort: subscribers still get the row from the database
// change feed or the next poll.
func (s *MessageService) broadcast(msg models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()
	if err := s.db.BroadcastMessage(ctx, msg); err != nil {
		s.log.Warn("[Message] Failed to broadcast message", zap.String("id", msg.ID), zap.Error(err))
	}
}

// FetchHistory returns every message of the conversation {a, b}, ascending by
// created_at. An empty conversation yields an empty, non-nil slice.
func (s *MessageService) FetchHistory(ctx context.Context, a, b string) ([]models.Message, error) {
	return s.list(ctx, "fetch history", a, b, time.Time{})
}

// FetchSince returns the messages of {a, b} created strictly after watermark,
// ascending. It serves the polling path of the delivery multiplexer.
func (s *MessageService) FetchSince(ctx context.Context, a, b string, watermark time.Time) ([]models.Message, error) {
	if watermark.IsZero() {
		return nil, apperr.Validation("fetch since", fmt.Errorf("watermark is zero"))
	}
	return s.list(ctx, "fetch since", a, b, watermark)
}

func (s *MessageService) list(ctx context.Context, op, a, b string, after time.Time) ([]models.Message, error) {
	key, err := conversation.Key(a, b)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	messages, err := s.db.ListMessages(ctx, key, after)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// LastMessage returns the newest message of {a, b}, or nil for a new conversation.
func (s *MessageService) LastMessage(ctx context.Context, a, b string) (*models.Message, error) {
	key, err := conversation.Key(a, b)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	msg, err := s.db.LatestMessage(ctx, key)
	if err != nil {
		return nil, apperr.Persistence("last message", err)
	}
	return msg, nil
}
