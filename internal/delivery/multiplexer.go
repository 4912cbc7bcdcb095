// Package delivery keeps a live, deduplicated stream of incoming messages for
// one conversation by merging a realtime push feed with a polling feed.
//
// Each subscription runs two producers and one consumer:
//
//	push  ─┐
//	       ├─► candidates ─► seen-set gate ─► handler
//	poll  ─┘
//
// The consumer goroutine owns the seen-set, so a message id reaches the
// handler at most once no matter how many times either path observes it.
// Push failures only degrade the subscription to polling; poll failures are
// retried on the next tick. Neither is ever reported to the handler.
package delivery

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linked-app/linked/backend/internal/apperr"
	"github.com/linked-app/linked/backend/internal/conversation"
	"github.com/linked-app/linked/backend/internal/models"
	"go.uber.org/zap"
)

// Poller is the pull side, the Message Store Client in production.
type Poller interface {
	FetchSince(ctx context.Context, self, other string, since time.Time) ([]models.Message, error)
}

// PushListener is the push side, the realtime client in production.
// Listen blocks until ctx is done or the feed fails.
type PushListener interface {
	Listen(ctx context.Context, conversationKey string, deliver func(models.Message), joined func()) error
}

// Mode is the delivery path currently carrying a subscription.
type Mode int32

const (
	// ModeConnecting means the push feed has not joined yet.
	ModeConnecting Mode = iota
	// ModeRealtime means the push feed is joined; polling still runs behind it.
	ModeRealtime
	// ModePolling means the push feed is down and polling carries delivery alone.
	ModePolling
)

func (m Mode) String() string {
	switch m {
	case ModeConnecting:
		return "connecting"
	case ModeRealtime:
		return "realtime"
	case ModePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// Path tells which producer observed a message.
type Path string

const (
	PathPush Path = "push"
	PathPoll Path = "poll"
)

// Config tunes both delivery paths.
type Config struct {
	// PollInterval is the fixed period between poll requests
	PollInterval time.Duration

	// RequestTimeout bounds a single poll request
	RequestTimeout time.Duration

	// PushRetryInitialDelay and PushRetryMaxDelay bound the reconnect backoff
	PushRetryInitialDelay time.Duration
	PushRetryMaxDelay     time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:          3 * time.Second,
		RequestTimeout:        10 * time.Second,
		PushRetryInitialDelay: time.Second,
		PushRetryMaxDelay:     30 * time.Second,
	}
}

// Multiplexer opens subscriptions. It holds no per-conversation state and is
// safe for concurrent use.
type Multiplexer struct {
	poller  Poller
	push    PushListener
	cfg     Config
	metrics *Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewMultiplexer wires a poller and an optional push listener. With a nil push
// listener every subscription runs in polling mode.
func NewMultiplexer(poller Poller, push PushListener, cfg Config, metrics *Metrics, log *zap.Logger) *Multiplexer {
	defaults := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.PushRetryInitialDelay <= 0 {
		cfg.PushRetryInitialDelay = defaults.PushRetryInitialDelay
	}
	if cfg.PushRetryMaxDelay < cfg.PushRetryInitialDelay {
		cfg.PushRetryMaxDelay = cfg.PushRetryInitialDelay
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Multiplexer{
		poller:  poller,
		push:    push,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

type candidate struct {
	msg  models.Message
	path Path
}

// Subscription is the live feed of one conversation. It is cancelled by Close
// or by cancelling the context given to Subscribe.
type Subscription struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	handler func(models.Message)

	candidates chan candidate
	done       chan struct{}
	mode       atomic.Int32

	// seen is only touched by the consumer goroutine
	seen map[string]struct{}

	metrics *Metrics
	log     *zap.Logger
}

// Subscribe starts delivering new messages of {self, other} to handler.
//
// since is the polling watermark: only messages created strictly after it are
// fetched by the poll path. A zero since means "now". handler runs on the
// subscription's own goroutine, one message at a time, and must not call Close.
func (m *Multiplexer) Subscribe(ctx context.Context, self, other string, since time.Time, handler func(models.Message)) (*Subscription, error) {
	key, err := conversation.Key(self, other)
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		since = m.now()
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		key:        key,
		ctx:        subCtx,
		cancel:     cancel,
		handler:    handler,
		candidates: make(chan candidate),
		done:       make(chan struct{}),
		seen:       make(map[string]struct{}),
		metrics:    m.metrics,
		log:        m.log.With(zap.String("conversation", key)),
	}
	if m.push == nil {
		s.setMode(ModePolling)
	} else {
		s.setMode(ModeConnecting)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.consume()
	}()
	go func() {
		defer wg.Done()
		m.poll(s, self, other, since)
	}()
	go func() {
		defer wg.Done()
		m.listen(s)
	}()

	m.metrics.ActiveSubscriptions.Inc()
	go func() {
		wg.Wait()
		m.metrics.ActiveSubscriptions.Dec()
		s.log.Debug("[Delivery] Subscription cancelled")
		close(s.done)
	}()

	s.log.Debug("[Delivery] Subscription active", zap.Time("watermark", since))
	return s, nil
}

// Key returns the conversation key of the subscription.
func (s *Subscription) Key() string {
	return s.key
}

// Mode reports which path currently carries the subscription.
func (s *Subscription) Mode() Mode {
	return Mode(s.mode.Load())
}

// Done is closed once every goroutine of the subscription has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close cancels both feeds and waits for them. After Close returns the handler
// is never invoked again. Close is idempotent.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) setMode(mode Mode) {
	s.mode.Store(int32(mode))
}

// offer hands a candidate to the consumer. It reports false once the
// subscription is cancelled.
func (s *Subscription) offer(c candidate) bool {
	select {
	case s.candidates <- c:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Subscription) consume() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case c := <-s.candidates:
			// Both cases may be ready at once, cancellation wins
			if s.ctx.Err() != nil {
				return
			}
			if _, dup := s.seen[c.msg.ID]; dup {
				s.metrics.Duplicates.WithLabelValues(string(c.path)).Inc()
				continue
			}
			s.seen[c.msg.ID] = struct{}{}
			s.metrics.Delivered.WithLabelValues(string(c.path)).Inc()
			s.handler(c.msg)
		}
	}
}

// poll runs the pull producer. Requests never overlap: the next tick is only
// considered once the previous request returned.
func (m *Multiplexer) poll(s *Subscription, self, other string, watermark time.Time) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		batch, err := m.fetch(s.ctx, self, other, watermark)
		// The request may have been in flight when the subscription was
		// cancelled; its result belongs to nobody
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			m.metrics.PollFailures.Inc()
			s.log.Debug("[Delivery] Poll failed, retrying next tick",
				zap.Error(apperr.TransientDelivery("poll", err)))
			continue
		}

		next := watermark
		for _, msg := range batch {
			if msg.CreatedAt.After(next) {
				next = msg.CreatedAt
			}
			if !s.offer(candidate{msg: msg, path: PathPoll}) {
				return
			}
		}
		watermark = next
	}
}

func (m *Multiplexer) fetch(ctx context.Context, self, other string, since time.Time) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()
	return m.poller.FetchSince(ctx, self, other, since)
}

// listen runs the push producer and reconnects it with exponential backoff
// for as long as the subscription lives.
func (m *Multiplexer) listen(s *Subscription) {
	if m.push == nil {
		return
	}

	delay := m.cfg.PushRetryInitialDelay
	for {
		err := m.push.Listen(s.ctx, s.key,
			func(msg models.Message) {
				s.offer(candidate{msg: msg, path: PathPush})
			},
			func() {
				s.setMode(ModeRealtime)
				delay = m.cfg.PushRetryInitialDelay
				s.log.Debug("[Delivery] Realtime joined")
			},
		)
		if s.ctx.Err() != nil {
			return
		}

		s.setMode(ModePolling)
		m.metrics.PushFailures.Inc()
		s.log.Info("[Delivery] Realtime unavailable, polling carries delivery",
			zap.Duration("retry_in", delay),
			zap.Error(apperr.TransientDelivery("push", err)))

		timer := time.NewTimer(jitter(delay))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		delay *= 2
		if delay > m.cfg.PushRetryMaxDelay {
			delay = m.cfg.PushRetryMaxDelay
		}
	}
}

// jitter spreads reconnects over [d/2, d).
func jitter(d time.Duration) time.Duration {
	if d < 2 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)))
}
