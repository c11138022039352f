package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	err  error
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "chat.events", BreakerConfig{MaxFailures: 2, Timeout: time.Minute}, logger.Nop())

	require.NoError(t, p.Publish(context.Background(), "chat-1", TypeMessageSent, map[string]string{"id": "m1"}))
	msgs := w.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chat-1", string(msgs[0].Key))

	var ev Event
	require.NoError(t, json.Unmarshal(msgs[0].Value, &ev))
	assert.Equal(t, TypeMessageSent, ev.Type)
	assert.JSONEq(t, `{"id":"m1"}`, string(ev.Payload))
}

func TestProducerBreakerOpens(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(w, "chat.events", BreakerConfig{MaxFailures: 2, Timeout: time.Minute}, logger.Nop())
	ctx := context.Background()

	assert.EqualError(t, p.Publish(ctx, "k", TypeMessageSent, nil), "broker down")
	assert.EqualError(t, p.Publish(ctx, "k", TypeMessageSent, nil), "broker down")
	assert.ErrorIs(t, p.Publish(ctx, "k", TypeMessageSent, nil), ErrUnavailable)
}

type fakeHandler struct {
	mu            sync.Mutex
	failures      int
	err           error
	announcements []AnnouncementEvent
	assignments   []AssignmentEvent
	grades        []GradeEvent
}

func (h *fakeHandler) fail() error {
	if h.err != nil {
		return h.err
	}
	if h.failures > 0 {
		h.failures--
		return errors.New("transient")
	}
	return nil
}

func (h *fakeHandler) Announcement(_ context.Context, ev AnnouncementEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(); err != nil {
		return err
	}
	h.announcements = append(h.announcements, ev)
	return nil
}

func (h *fakeHandler) AssignmentCreated(_ context.Context, ev AssignmentEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(); err != nil {
		return err
	}
	h.assignments = append(h.assignments, ev)
	return nil
}

func (h *fakeHandler) Graded(_ context.Context, ev GradeEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(); err != nil {
		return err
	}
	h.grades = append(h.grades, ev)
	return nil
}

func (h *fakeHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.announcements) + len(h.assignments) + len(h.grades)
}

func record(t *testing.T, typ string, payload any) kafka.Message {
	t.Helper()
	ev, err := NewEvent(typ, payload)
	require.NoError(t, err)
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("k"), Value: b}
}

func newTestConsumer(h FanoutHandler, dlq *fakeWriter) *Consumer {
	return &Consumer{dlq: dlq, handler: h, maxElapsed: time.Second, initial: time.Millisecond, stall: 5 * time.Millisecond, log: logger.Nop()}
}

func TestConsumerDispatch(t *testing.T) {
	h := &fakeHandler{}
	dlq := &fakeWriter{}
	c := newTestConsumer(h, dlq)
	ctx := context.Background()

	require.NoError(t, c.process(ctx, record(t, TypeAnnouncementCreated, AnnouncementEvent{Title: "Exam"})))
	require.NoError(t, c.process(ctx, record(t, TypeAssignmentCreated, AssignmentEvent{ID: "a1"})))
	require.NoError(t, c.process(ctx, record(t, TypeAssignmentGraded, GradeEvent{AssignmentID: "a1"})))
	require.NoError(t, c.process(ctx, record(t, "course.updated", nil)))

	assert.Len(t, h.announcements, 1)
	assert.Equal(t, "Exam", h.announcements[0].Title)
	assert.Len(t, h.assignments, 1)
	assert.Len(t, h.grades, 1)
	assert.Empty(t, dlq.written())
}

func TestConsumerRetriesTransientFailure(t *testing.T) {
	h := &fakeHandler{failures: 2}
	dlq := &fakeWriter{}
	c := newTestConsumer(h, dlq)

	require.NoError(t, c.process(context.Background(), record(t, TypeAnnouncementCreated, AnnouncementEvent{Title: "x"})))
	assert.Len(t, h.announcements, 1)
	assert.Empty(t, dlq.written())
}

func TestConsumerDeadLetters(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed record", func(t *testing.T) {
		dlq := &fakeWriter{}
		c := newTestConsumer(&fakeHandler{}, dlq)
		require.NoError(t, c.process(ctx, kafka.Message{Value: []byte("{not json")}))
		require.Len(t, dlq.written(), 1)
		assert.Equal(t, "error", dlq.written()[0].Headers[0].Key)
	})

	t.Run("validation error is not retried", func(t *testing.T) {
		dlq := &fakeWriter{}
		h := &fakeHandler{err: apperr.Validation("course id missing")}
		c := newTestConsumer(h, dlq)
		require.NoError(t, c.process(ctx, record(t, TypeAssignmentCreated, AssignmentEvent{})))
		assert.Len(t, dlq.written(), 1)
	})

	t.Run("dlq unavailable", func(t *testing.T) {
		dlq := &fakeWriter{err: errors.New("down")}
		c := newTestConsumer(&fakeHandler{}, dlq)
		assert.Error(t, c.process(ctx, kafka.Message{Value: []byte("nope")}))
	})
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func (r *fakeReader) offsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for _, m := range r.committed {
		out = append(out, m.Offset)
	}
	return out
}

func TestConsumerRunCommits(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		record(t, TypeAnnouncementCreated, AnnouncementEvent{Title: "a"}),
		record(t, TypeAssignmentGraded, GradeEvent{AssignmentID: "g"}),
	}}
	c := newTestConsumer(&fakeHandler{}, &fakeWriter{})
	c.reader = reader

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return reader.commits() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.NoError(t, c.Close())
}

func TestConsumerStallsOnUnsettledRecord(t *testing.T) {
	good := record(t, TypeAnnouncementCreated, AnnouncementEvent{Title: "a"})
	good.Offset = 2
	reader := &fakeReader{queue: []kafka.Message{{Offset: 1, Value: []byte("{not json")}, good}}
	dlq := &fakeWriter{err: errors.New("dlq down")}
	h := &fakeHandler{}
	c := newTestConsumer(h, dlq)
	c.reader = reader

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// nothing past the stuck record is handled or committed
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, reader.commits())
	assert.Zero(t, h.count())

	dlq.setErr(nil)
	assert.Eventually(t, func() bool { return reader.commits() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 2}, reader.offsets())
	assert.Len(t, dlq.written(), 1)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumerStopsWhileStalled(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Offset: 7, Value: []byte("nope")}}}
	c := newTestConsumer(&fakeHandler{}, &fakeWriter{err: errors.New("dlq down")})
	c.reader = reader

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Zero(t, reader.commits())
}
