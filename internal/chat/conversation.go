// Package chat holds the per-screen conversation controller: it loads history,
// keeps the rendered message list ordered and free of duplicates, and guards
// sends while one is in flight.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linked-app/linked/backend/internal/apperr"
	"github.com/linked-app/linked/backend/internal/conversation"
	"github.com/linked-app/linked/backend/internal/delivery"
	"github.com/linked-app/linked/backend/internal/models"
	"go.uber.org/zap"
)

// Store is the request/response side of the message store.
type Store interface {
	FetchHistory(ctx context.Context, a, b string) ([]models.Message, error)
	Send(ctx context.Context, sender, receiver, body string) (models.Message, error)
}

// Subscriber opens live delivery for a pair, the delivery multiplexer in production.
type Subscriber interface {
	Subscribe(ctx context.Context, self, other string, since time.Time, handler func(models.Message)) (*delivery.Subscription, error)
}

type listener struct {
	id int
	fn func(models.Message)
}

// Conversation is the view state of one open chat between self and other.
//
// The message list is ordered by CreatedAt and holds each id once. Sent
// messages are not appended locally; they show up when delivery brings back
// the stored row.
type Conversation struct {
	store Store
	subs  Subscriber
	log   *zap.Logger

	// loadMu serializes Load so only one subscription is ever opened
	loadMu sync.Mutex

	mu        sync.Mutex
	self      string
	other     string
	key       string
	messages  []models.Message
	ids       map[string]struct{}
	listeners []listener
	nextID    int
	sub       *delivery.Subscription
	loadErr   error
	draft     string
	sending   bool
	closed    bool
}

// New creates an unbound conversation. Call Load to bind it to a pair.
func New(store Store, subs Subscriber, log *zap.Logger) *Conversation {
	return &Conversation{
		store: store,
		subs:  subs,
		log:   log,
		ids:   make(map[string]struct{}),
	}
}

// Load fetches the history of {self, other} and then starts live delivery,
// whether or not the history fetch succeeded. A history failure is returned
// as a persistence error and kept for LoadError; the conversation is live
// anyway and a later Load retries the history and merges it.
//
// The subscription outlives ctx; it ends with Close.
func (c *Conversation) Load(ctx context.Context, self, other string) error {
	key, err := conversation.Key(self, other)
	if err != nil {
		return err
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperr.ErrClosed
	}
	if c.key != "" && c.key != key {
		c.mu.Unlock()
		return apperr.Validation("load conversation",
			fmt.Errorf("already bound to %s", c.key))
	}
	c.self, c.other, c.key = self, other, key
	c.mu.Unlock()

	history, histErr := c.store.FetchHistory(ctx, self, other)

	c.mu.Lock()
	for _, msg := range history {
		c.insert(msg)
	}
	c.loadErr = histErr
	subscribed := c.sub != nil
	var since time.Time
	if n := len(c.messages); n > 0 {
		since = c.messages[n-1].CreatedAt
	}
	c.mu.Unlock()

	if histErr != nil {
		c.log.Warn("[Chat] Failed to load history", zap.String("conversation", key), zap.Error(histErr))
	}
	if subscribed {
		return histErr
	}

	sub, err := c.subs.Subscribe(context.WithoutCancel(ctx), self, other, since, c.receive)
	if err != nil {
		return errors.Join(histErr, err)
	}

	c.mu.Lock()
	if c.closed {
		// Closed while subscribing
		c.mu.Unlock()
		sub.Close()
		return apperr.ErrClosed
	}
	c.sub = sub
	c.mu.Unlock()

	c.log.Info("[Chat] Conversation loaded",
		zap.String("conversation", key),
		zap.Int("messages", len(history)),
		zap.Time("watermark", since))
	return histErr
}

// receive is the delivery handler. It runs on the subscription's goroutine.
func (c *Conversation) receive(msg models.Message) {
	c.mu.Lock()
	if c.closed || !c.insert(msg) {
		c.mu.Unlock()
		return
	}
	fns := make([]func(models.Message), len(c.listeners))
	for i, l := range c.listeners {
		fns[i] = l.fn
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// insert places msg after every message created at or before it, so equal
// timestamps keep arrival order. It reports false for a known id.
// Caller holds c.mu.
func (c *Conversation) insert(msg models.Message) bool {
	if _, ok := c.ids[msg.ID]; ok {
		return false
	}
	c.ids[msg.ID] = struct{}{}
	i := sort.Search(len(c.messages), func(i int) bool {
		return c.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	c.messages = slices.Insert(c.messages, i, msg)
	return true
}

// OnMessage registers fn for every message newly added to the list by live
// delivery. fn must not call Close. The returned func removes fn.
func (c *Conversation) OnMessage(fn func(models.Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listener{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners = slices.DeleteFunc(c.listeners, func(l listener) bool { return l.id == id })
	}
}

// Send stores body as a message from self to other. Only one send may be in
// flight; a second one fails with ErrSendInProgress. On failure body is kept
// as the draft so the UI can offer a retry.
func (c *Conversation) Send(ctx context.Context, body string) (models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return models.Message{}, apperr.Validation("send message", apperr.ErrEmptyBody)
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return models.Message{}, apperr.ErrClosed
	case c.sub == nil:
		c.mu.Unlock()
		return models.Message{}, apperr.ErrNotLoaded
	case c.sending:
		c.mu.Unlock()
		return models.Message{}, apperr.Validation("send message", apperr.ErrSendInProgress)
	}
	c.sending = true
	c.draft = body
	self, other := c.self, c.other
	c.mu.Unlock()

	msg, err := c.store.Send(ctx, self, other, body)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	if err != nil {
		return models.Message{}, err
	}
	c.draft = ""
	return msg, nil
}

// Close cancels live delivery. No listener runs after Close returns.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.sub
	c.listeners = nil
	c.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	c.log.Debug("[Chat] Conversation closed", zap.String("conversation", c.Key()))
}

// Messages returns a snapshot of the ordered message list.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// Draft returns the body of the last failed send, if any.
func (c *Conversation) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// LoadError returns the error of the last history fetch, nil once it succeeded.
func (c *Conversation) LoadError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Mode reports the delivery path carrying the conversation.
func (c *Conversation) Mode() delivery.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return delivery.ModeConnecting
	}
	return c.sub.Mode()
}

// Key returns the conversation key, empty before Load.
func (c *Conversation) Key() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}
