package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linked-app/linked/backend/internal/apperr"
	"github.com/linked-app/linked/backend/internal/delivery"
	"github.com/linked-app/linked/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	alice = "0xaaaa"
	bob   = "0xbbbb"
	key   = "0xaaaa:0xbbbb"
)

var t0 = time.Date(2025, 8, 4, 12, 0, 0, 0, time.UTC)

func msg(id string, offset time.Duration) models.Message {
	return models.Message{
		ID:              id,
		ConversationKey: key,
		Sender:          bob,
		Receiver:        alice,
		Body:            "body " + id,
		CreatedAt:       t0.Add(offset),
	}
}

// fakeStore serves history and records sends. A non-nil gate blocks Send
// until it is closed.
type fakeStore struct {
	mu         sync.Mutex
	history    []models.Message
	historyErr error
	sendErr    error
	gate       chan struct{}
	sent       []string
	sinces     []time.Time
}

func (s *fakeStore) FetchHistory(context.Context, string, string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return append([]models.Message(nil), s.history...), nil
}

func (s *fakeStore) Send(_ context.Context, _, _, body string) (models.Message, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return models.Message{}, s.sendErr
	}
	s.sent = append(s.sent, body)
	return models.Message{ID: "sent", Body: body}, nil
}

func (s *fakeStore) FetchSince(_ context.Context, _, _ string, since time.Time) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinces = append(s.sinces, since)
	return nil, nil
}

func (s *fakeStore) firstSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sinces) == 0 {
		return time.Time{}, false
	}
	return s.sinces[0], true
}

// pushFeed joins immediately and hands its deliver func to the test.
type pushFeed struct {
	mu      sync.Mutex
	deliver func(models.Message)
	ready   chan struct{}
}

func newPushFeed() *pushFeed {
	return &pushFeed{ready: make(chan struct{})}
}

func (p *pushFeed) Listen(ctx context.Context, _ string, deliver func(models.Message), joined func()) error {
	p.mu.Lock()
	p.deliver = deliver
	p.mu.Unlock()
	joined()
	close(p.ready)
	<-ctx.Done()
	return nil
}

func (p *pushFeed) push(t *testing.T, m models.Message) {
	t.Helper()
	select {
	case <-p.ready:
	case <-time.After(time.Second):
		t.Fatal("push feed never joined")
	}
	p.mu.Lock()
	deliver := p.deliver
	p.mu.Unlock()
	deliver(m)
}

func newConversation(t *testing.T, store *fakeStore, push delivery.PushListener, pollInterval time.Duration) *Conversation {
	t.Helper()
	mux := delivery.NewMultiplexer(store, push, delivery.Config{
		PollInterval:   pollInterval,
		RequestTimeout: time.Second,
	}, nil, zap.NewNop())
	c := New(store, mux, zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func ids(messages []models.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func TestLoad_SeedsWatermarkFromHistory(t *testing.T) {
	store := &fakeStore{history: []models.Message{msg("a", 0), msg("b", time.Second)}}
	c := newConversation(t, store, nil, 5*time.Millisecond)

	require.NoError(t, c.Load(context.Background(), alice, bob))
	assert.Equal(t, []string{"a", "b"}, ids(c.Messages()))
	assert.Equal(t, key, c.Key())
	assert.NoError(t, c.LoadError())

	require.Eventually(t, func() bool {
		_, ok := store.firstSince()
		return ok
	}, time.Second, time.Millisecond)
	since, _ := store.firstSince()
	assert.True(t, since.Equal(t0.Add(time.Second)))
	assert.Eventually(t, func() bool { return c.Mode() == delivery.ModePolling }, time.Second, time.Millisecond)
}

func TestLoad_HistoryFailureStillSubscribes(t *testing.T) {
	store := &fakeStore{historyErr: apperr.Persistence("fetch history", errors.New("down"))}
	push := newPushFeed()
	c := newConversation(t, store, push, time.Hour)

	err := c.Load(context.Background(), alice, bob)
	require.Error(t, err)
	assert.True(t, apperr.IsPersistence(err))
	assert.Error(t, c.LoadError())
	assert.Empty(t, c.Messages())

	// Live delivery works without history
	push.push(t, msg("live", 5*time.Second))
	require.Eventually(t, func() bool { return len(c.Messages()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, delivery.ModeRealtime, c.Mode())

	// Retrying merges history around what was delivered live
	store.mu.Lock()
	store.historyErr = nil
	store.history = []models.Message{msg("old", 0), msg("live", 5*time.Second)}
	store.mu.Unlock()

	require.NoError(t, c.Load(context.Background(), alice, bob))
	assert.NoError(t, c.LoadError())
	assert.Equal(t, []string{"old", "live"}, ids(c.Messages()))
}

func TestLoad_RejectsInvalidPair(t *testing.T) {
	c := newConversation(t, &fakeStore{}, nil, time.Hour)

	assert.True(t, apperr.IsValidation(c.Load(context.Background(), alice, "")))
	assert.True(t, apperr.IsValidation(c.Load(context.Background(), alice, alice+":x")))

	require.NoError(t, c.Load(context.Background(), alice, bob))
	assert.True(t, apperr.IsValidation(c.Load(context.Background(), alice, "0xcccc")))
}

func TestDelivery_OrdersByCreatedAtAndDeduplicates(t *testing.T) {
	store := &fakeStore{history: []models.Message{msg("a", 0), msg("d", 3*time.Second)}}
	push := newPushFeed()
	c := newConversation(t, store, push, time.Hour)

	var mu sync.Mutex
	var notified []string
	c.OnMessage(func(m models.Message) {
		mu.Lock()
		notified = append(notified, m.ID)
		mu.Unlock()
	})

	require.NoError(t, c.Load(context.Background(), alice, bob))

	// Arrival order differs from creation order; "a" was already in history
	push.push(t, msg("c", 2*time.Second))
	push.push(t, msg("a", 0))
	push.push(t, msg("b", time.Second))
	push.push(t, msg("e", 3*time.Second))

	require.Eventually(t, func() bool { return len(c.Messages()) == 5 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(c.Messages()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c", "b", "e"}, notified)
}

// Messages sharing a createdAt stay in the order they arrived.
func TestDelivery_EqualTimestampsKeepArrivalOrder(t *testing.T) {
	push := newPushFeed()
	c := newConversation(t, &fakeStore{}, push, time.Hour)
	require.NoError(t, c.Load(context.Background(), alice, bob))

	push.push(t, msg("z", time.Second))
	push.push(t, msg("a", time.Second))
	push.push(t, msg("m", 0))

	require.Eventually(t, func() bool { return len(c.Messages()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"m", "z", "a"}, ids(c.Messages()))

	push.push(t, msg("b", time.Second))
	require.Eventually(t, func() bool { return len(c.Messages()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"m", "z", "a", "b"}, ids(c.Messages()))
}

func TestOnMessage_Unsubscribe(t *testing.T) {
	push := newPushFeed()
	c := newConversation(t, &fakeStore{}, push, time.Hour)

	var mu sync.Mutex
	count := 0
	stop := c.OnMessage(func(models.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, c.Load(context.Background(), alice, bob))

	push.push(t, msg("a", 0))
	require.Eventually(t, func() bool { return len(c.Messages()) == 1 }, time.Second, time.Millisecond)
	stop()
	push.push(t, msg("b", time.Second))
	require.Eventually(t, func() bool { return len(c.Messages()) == 2 }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestSend_DoesNotAppendEcho(t *testing.T) {
	store := &fakeStore{}
	c := newConversation(t, store, nil, time.Hour)
	require.NoError(t, c.Load(context.Background(), alice, bob))

	sent, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", sent.Body)
	assert.Empty(t, c.Messages())
	assert.Empty(t, c.Draft())
	assert.Equal(t, []string{"hello"}, store.sent)
}

func TestSend_RejectsBlankBody(t *testing.T) {
	store := &fakeStore{}
	c := newConversation(t, store, nil, time.Hour)
	require.NoError(t, c.Load(context.Background(), alice, bob))

	for _, body := range []string{"", "  ", "\n"} {
		_, err := c.Send(context.Background(), body)
		assert.True(t, apperr.IsValidation(err))
	}
	assert.Empty(t, store.sent)
}

func TestSend_RejectsConcurrentSend(t *testing.T) {
	gate := make(chan struct{})
	store := &fakeStore{gate: gate}
	c := newConversation(t, store, nil, time.Hour)
	require.NoError(t, c.Load(context.Background(), alice, bob))

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "first")
		firstDone <- err
	}()
	require.Eventually(t, func() bool { return c.Draft() == "first" }, time.Second, time.Millisecond)

	_, err := c.Send(context.Background(), "second")
	assert.ErrorIs(t, err, apperr.ErrSendInProgress)

	close(gate)
	require.NoError(t, <-firstDone)

	_, err = c.Send(context.Background(), "third")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third"}, store.sent)
}

func TestSend_FailurePreservesDraft(t *testing.T) {
	store := &fakeStore{sendErr: apperr.Persistence("send message", errors.New("503"))}
	c := newConversation(t, store, nil, time.Hour)
	require.NoError(t, c.Load(context.Background(), alice, bob))

	_, err := c.Send(context.Background(), "keep me")
	require.Error(t, err)
	assert.True(t, apperr.IsPersistence(err))
	assert.Equal(t, "keep me", c.Draft())
}

func TestSend_BeforeLoadAndAfterClose(t *testing.T) {
	c := newConversation(t, &fakeStore{}, nil, time.Hour)

	_, err := c.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, apperr.ErrNotLoaded)

	require.NoError(t, c.Load(context.Background(), alice, bob))
	c.Close()
	c.Close()

	_, err = c.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, apperr.ErrClosed)
	assert.ErrorIs(t, c.Load(context.Background(), alice, bob), apperr.ErrClosed)
}

func TestClose_StopsListeners(t *testing.T) {
	push := newPushFeed()
	c := newConversation(t, &fakeStore{}, push, time.Hour)

	var mu sync.Mutex
	count := 0
	c.OnMessage(func(models.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, c.Load(context.Background(), alice, bob))

	push.push(t, msg("a", 0))
	require.Eventually(t, func() bool { return len(c.Messages()) == 1 }, time.Second, time.Millisecond)
	c.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestLoad_SurvivesRequestContext(t *testing.T) {
	push := newPushFeed()
	c := newConversation(t, &fakeStore{}, push, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Load(ctx, alice, bob))
	cancel()

	push.push(t, msg("a", 0))
	require.Eventually(t, func() bool { return len(c.Messages()) == 1 }, time.Second, time.Millisecond)
}
