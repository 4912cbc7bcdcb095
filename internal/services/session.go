package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linked-app/linked/backend/internal/apperr"
	"github.com/linked-app/linked/backend/internal/chat"
	"github.com/linked-app/linked/backend/internal/conversation"
	"github.com/linked-app/linked/backend/internal/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Notifier receives every message newly shown in a session and learns when a
// session ends. The websocket hub in production.
type Notifier interface {
	Publish(sessionID string, msg models.Message)
	Closed(sessionID string)
}

type session struct {
	info models.Session
	conv *chat.Conversation
	stop func()
}

// SessionService keeps the open conversation screens of the gateway.
// Each session owns one chat.Conversation, and therefore one live
// delivery subscription, until it is closed explicitly or reaped by the
// CleanupService.
type SessionService struct {
	newConversation func() *chat.Conversation
	notifier        Notifier
	log             *zap.Logger
	now             func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSessionService creates a registry that builds one conversation per session.
func NewSessionService(newConversation func() *chat.Conversation, log *zap.Logger) *SessionService {
	return &SessionService{
		newConversation: newConversation,
		log:             log,
		now:             time.Now,
		sessions:        make(map[string]*session),
	}
}

// SetNotifier attaches the sink that fans delivered messages out to clients.
// It must be called before the first Open.
func (s *SessionService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Open loads the conversation {self, other} into a new session.
// A history failure does not fail Open: the session is live and the
// conversation's LoadError tells the UI to offer a retry.
func (s *SessionService) Open(ctx context.Context, self, other string) (models.Session, *chat.Conversation, error) {
	key, err := conversation.Key(self, other)
	if err != nil {
		return models.Session{}, nil, err
	}
	if a, b, _ := conversation.Participants(key); a == b {
		return models.Session{}, nil, apperr.Validation("open conversation", apperr.ErrSameParticipant)
	}
	// Key already validated both identifiers
	self, _ = conversation.Normalize(self)
	other, _ = conversation.Normalize(other)

	now := s.now().UTC()
	info := models.Session{
		ID:              uuid.New().String(),
		Self:            self,
		Other:           other,
		ConversationKey: key,
		CreatedAt:       now,
		LastActiveAt:    now,
	}

	conv := s.newConversation()
	stop := func() {}
	if s.notifier != nil {
		stop = conv.OnMessage(func(msg models.Message) {
			s.notifier.Publish(info.ID, msg)
		})
	}

	if err := conv.Load(ctx, self, other); err != nil && !apperr.IsPersistence(err) {
		conv.Close()
		return models.Session{}, nil, err
	}

	s.mu.Lock()
	s.sessions[info.ID] = &session{info: info, conv: conv, stop: stop}
	s.mu.Unlock()

	s.log.Info("[Session] Opened",
		zap.String("session", info.ID),
		zap.String("conversation", key),
		zap.Stringer("mode", conv.Mode()))
	return info, conv, nil
}

// Get returns the session with the given id.
func (s *SessionService) Get(id string) (models.Session, *chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, nil, apperr.ErrNotFound
	}
	return sess.info, sess.conv, nil
}

// Heartbeat refreshes the session's last active timestamp.
// This prevents the session from being cleaned up.
func (s *SessionService) Heartbeat(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return apperr.ErrNotFound
	}
	sess.info.LastActiveAt = s.now().UTC()
	return nil
}

// Close removes the session and cancels its delivery.
func (s *SessionService) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}

	s.closeSession(sess)
	s.log.Info("[Session] Closed", zap.String("session", id))
	return nil
}

// CloseInactive closes every session whose last heartbeat is before
// threshold and returns the closed sessions.
func (s *SessionService) CloseInactive(threshold time.Time) []models.Session {
	return s.closeWhere(func(sess *session) bool {
		return sess.info.LastActiveAt.Before(threshold)
	})
}

// CloseAll closes every session, used on shutdown.
func (s *SessionService) CloseAll() {
	closed := s.closeWhere(func(*session) bool { return true })
	s.log.Info("[Session] Closed all sessions", zap.Int("count", len(closed)))
}

func (s *SessionService) closeWhere(match func(*session) bool) []models.Session {
	s.mu.Lock()
	stale := lo.Filter(lo.Values(s.sessions), func(sess *session, _ int) bool {
		return match(sess)
	})
	for _, sess := range stale {
		delete(s.sessions, sess.info.ID)
	}
	s.mu.Unlock()

	for _, sess := range stale {
		s.closeSession(sess)
	}
	return lo.Map(stale, func(sess *session, _ int) models.Session { return sess.info })
}

// Count returns the number of open sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionService) closeSession(sess *session) {
	sess.stop()
	sess.conv.Close()
	if s.notifier != nil {
		s.notifier.Closed(sess.info.ID)
	}
}
