package services

import (
	"time"

	"github.com/linked-app/linked/backend/internal/models"
	"go.uber.org/zap"
)

// SessionReaper closes sessions idle since before a threshold.
type SessionReaper interface {
	CloseInactive(threshold time.Time) []models.Session
}

// CleanupService closes abandoned conversation sessions.
// It runs as a background goroutine and periodically checks for sessions whose
// UI stopped sending heartbeats, so their delivery subscriptions do not poll forever.
type CleanupService struct {
	sessions SessionReaper
	interval time.Duration
	timeout  time.Duration
	stopChan chan struct{}
	log      *zap.Logger
	now      func() time.Time
}

// NewCleanupService creates a new cleanup service.
// - interval: how often to check for idle sessions (e.g., 1 minute)
// - timeout: how long a session can go without a heartbeat (e.g., 5 minutes)
func NewCleanupService(sessions SessionReaper, interval, timeout time.Duration, log *zap.Logger) *CleanupService {
	return &CleanupService{
		sessions: sessions,
		interval: interval,
		timeout:  timeout,
		stopChan: make(chan struct{}),
		log:      log,
		now:      time.Now,
	}
}

// Start begins the background cleanup worker.
// This method runs in its own goroutine and should be called with 'go'.
func (s *CleanupService) Start() {
	s.log.Info("[Cleanup] Service started",
		zap.Duration("interval", s.interval),
		zap.Duration("timeout", s.timeout))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			s.log.Info("[Cleanup] Service stopped")
			return
		}
	}
}

// Stop gracefully shuts down the cleanup service.
func (s *CleanupService) Stop() {
	close(s.stopChan)
}

// cleanup closes every session that has been idle past the timeout threshold.
func (s *CleanupService) cleanup() {
	threshold := s.now().UTC().Add(-s.timeout)

	closed := s.sessions.CloseInactive(threshold)
	if len(closed) == 0 {
		return
	}

	s.log.Info("[Cleanup] Closed inactive sessions", zap.Int("count", len(closed)))
	for _, sess := range closed {
		s.log.Debug("[Cleanup] Closed session",
			zap.String("session", sess.ID),
			zap.String("conversation", sess.ConversationKey),
			zap.Time("last_active_at", sess.LastActiveAt))
	}
}
