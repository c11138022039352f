package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/logger"
	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/fathima-sithara/school-chat/internal/repository/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func drain(c *Client) []frame {
	var out []frame
	for {
		select {
		case b, ok := <-c.Send():
			if !ok {
				return out
			}
			var f frame
			_ = json.Unmarshal(b, &f)
			out = append(out, f)
		default:
			return out
		}
	}
}

func types(fs []frame) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Type)
	}
	return out
}

func newHub(t *testing.T) (*Hub, *memory.ChatListStore) {
	t.Helper()
	store := memory.NewChatListStore()
	return New(store, nil, NewMetrics(nil), logger.Nop()), store
}

func TestRegisterRejectsBadIdentity(t *testing.T) {
	h, _ := newHub(t)
	ctx := context.Background()

	err := h.Register(ctx, NewClient("", models.RoleStudent, 4, 10))
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))

	err = h.Register(ctx, NewClient("u1", models.RoleAdmin, 4, 10))
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))

	assert.False(t, h.Online("u1"))
}

type failingSource struct{}

func (failingSource) ChatIDs(context.Context, string) ([]string, error) {
	return nil, errors.New("db down")
}

func TestRegisterFailsWhenRoomsUnavailable(t *testing.T) {
	h := New(failingSource{}, nil, nil, logger.Nop())
	err := h.Register(context.Background(), NewClient("u1", models.RoleTeacher, 4, 10))
	assert.True(t, errors.Is(err, apperr.ErrPersistence))
	assert.False(t, h.Online("u1"))
}

// gatedSource holds ChatIDs open until release is closed.
type gatedSource struct {
	entered chan struct{}
	release chan struct{}
	rooms   []string
}

func (g *gatedSource) ChatIDs(context.Context, string) ([]string, error) {
	close(g.entered)
	<-g.release
	return g.rooms, nil
}

func TestJoinRoomDuringRegisterIsKept(t *testing.T) {
	src := &gatedSource{entered: make(chan struct{}), release: make(chan struct{}), rooms: []string{"c1"}}
	h := New(src, nil, nil, logger.Nop())

	errc := make(chan error, 1)
	go func() { errc <- h.Register(context.Background(), NewClient("u1", models.RoleStudent, 4, 10)) }()

	<-src.entered
	h.JoinRoom("u1", "c9")
	close(src.release)
	require.NoError(t, <-errc)

	assert.Equal(t, []string{"c1", "c9"}, h.Rooms("u1"))
	assert.Empty(t, h.pending)
	assert.Empty(t, h.loading)
}

func TestRegisterJoinsExistingRooms(t *testing.T) {
	h, store := newHub(t)
	ctx := context.Background()
	_, _ = store.AddConversation(ctx, "t1", models.RoleTeacher, models.ChatEntry{ChatID: "c1", Timestamp: time.Now()})
	_, _ = store.AddConversation(ctx, "t1", models.RoleTeacher, models.ChatEntry{ChatID: "c2", Timestamp: time.Now()})

	c := NewClient("t1", models.RoleTeacher, 8, 10)
	require.NoError(t, h.Register(ctx, c))
	assert.Equal(t, []string{"c1", "c2"}, h.Rooms("t1"))

	h.PublishToRoom("c2", "typing", map[string]any{"userId": "s1", "isTyping": true})
	h.PublishToRoom("c3", "typing", nil)
	got := drain(c)
	require.Len(t, got, 1)
	assert.Equal(t, "typing", got[0].Type)
	assert.JSONEq(t, `{"userId":"s1","isTyping":true}`, string(got[0].Payload))
}

func TestPublishToUserReachesEveryConnection(t *testing.T) {
	h, _ := newHub(t)
	ctx := context.Background()
	a := NewClient("s1", models.RoleStudent, 8, 10)
	b := NewClient("s1", models.RoleStudent, 8, 10)
	other := NewClient("s2", models.RoleStudent, 8, 10)
	require.NoError(t, h.Register(ctx, a))
	require.NoError(t, h.Register(ctx, b))
	require.NoError(t, h.Register(ctx, other))

	h.PublishToUser("s1", "receiveMessage", map[string]string{"id": "m1"})
	h.PublishToUser("nobody", "receiveMessage", nil)

	assert.Equal(t, []string{"receiveMessage"}, types(drain(a)))
	assert.Equal(t, []string{"receiveMessage"}, types(drain(b)))
	assert.Empty(t, drain(other))
}

func TestJoinRoomOnlyForOnlineUsers(t *testing.T) {
	h, _ := newHub(t)
	c := NewClient("t1", models.RoleTeacher, 8, 10)
	require.NoError(t, h.Register(context.Background(), c))

	h.JoinRoom("t1", "c9")
	h.JoinRoom("offline", "c9")

	assert.Equal(t, []string{"c9"}, h.Rooms("t1"))
	assert.Empty(t, h.Rooms("offline"))

	h.PublishToRoom("c9", "newChat", nil)
	assert.Equal(t, []string{"newChat"}, types(drain(c)))
}

func TestDeregister(t *testing.T) {
	h, _ := newHub(t)
	ctx := context.Background()
	a := NewClient("s1", models.RoleStudent, 8, 10)
	b := NewClient("s1", models.RoleStudent, 8, 10)
	require.NoError(t, h.Register(ctx, a))
	require.NoError(t, h.Register(ctx, b))
	h.JoinRoom("s1", "c1")
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Connections))

	h.Deregister(a)
	h.Deregister(a)
	assert.True(t, a.Closed())
	assert.True(t, h.Online("s1"))
	assert.Equal(t, []string{"c1"}, h.Rooms("s1"))

	h.Deregister(b)
	assert.False(t, h.Online("s1"))
	assert.Empty(t, h.Rooms("s1"))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.Connections))

	// publishing to a closed client is a silent no-op
	h.PublishToRoom("c1", "typing", nil)
	h.PublishToUser("s1", "typing", nil)
}

func TestSlowClientIsDropped(t *testing.T) {
	h, _ := newHub(t)
	slow := NewClient("s1", models.RoleStudent, 1, 10)
	require.NoError(t, h.Register(context.Background(), slow))

	h.PublishToUser("s1", "a", nil)
	h.PublishToUser("s1", "b", nil)

	assert.True(t, slow.Closed())
	assert.False(t, h.Online("s1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Dropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Published.WithLabelValues("a")))
}

type recordingPresence struct {
	mu      sync.Mutex
	added   []string
	removed []string
}

func (p *recordingPresence) AddConnection(_ context.Context, userID, socketID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, userID+"/"+socketID)
	return nil
}

func (p *recordingPresence) RemoveConnection(_ context.Context, userID, socketID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, userID+"/"+socketID)
	return nil
}

func (p *recordingPresence) Get(context.Context, string) (Presence, error) {
	return Presence{Status: StatusOffline, LastSeen: 42}, nil
}

func TestPresenceTracking(t *testing.T) {
	p := &recordingPresence{}
	h := New(memory.NewChatListStore(), p, nil, logger.Nop())
	c := NewClient("t1", models.RoleTeacher, 4, 10)
	require.NoError(t, h.Register(context.Background(), c))
	h.Deregister(c)
	h.Deregister(c)

	assert.Equal(t, []string{"t1/" + c.ID}, p.added)
	assert.Equal(t, []string{"t1/" + c.ID}, p.removed)
}

func TestPresenceLookup(t *testing.T) {
	ctx := context.Background()

	h, _ := newHub(t)
	p, err := h.Presence(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, p.Status)

	c := NewClient("t1", models.RoleTeacher, 4, 10)
	require.NoError(t, h.Register(ctx, c))
	p, err = h.Presence(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, p.Status)
	assert.NotZero(t, p.LastSeen)

	// not connected here: the shared tracker answers
	shared := New(memory.NewChatListStore(), &recordingPresence{}, nil, logger.Nop())
	p, err = shared.Presence(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, Presence{Status: StatusOffline, LastSeen: 42}, p)
}

func TestConcurrentUse(t *testing.T) {
	h, _ := newHub(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := []string{"a", "b", "c", "d"}[i%4]
			c := NewClient(user, models.RoleStudent, 64, 10)
			if err := h.Register(ctx, c); err != nil {
				t.Error(err)
				return
			}
			h.JoinRoom(user, "room")
			for j := 0; j < 20; j++ {
				h.PublishToRoom("room", "typing", j)
				h.PublishToUser(user, "notification", j)
				drain(c)
			}
			h.Deregister(c)
		}(i)
	}
	wg.Wait()

	for _, u := range []string{"a", "b", "c", "d"} {
		assert.False(t, h.Online(u))
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.Connections))
}

func TestClientRateLimit(t *testing.T) {
	c := NewClient("u", models.RoleStudent, 1, 2)
	assert.True(t, c.Allow())
	assert.True(t, c.Allow())
	assert.False(t, c.Allow())
	assert.NotEmpty(t, c.ID)

	assert.True(t, c.Deliver(Envelope{Type: "x"}))
	assert.False(t, c.Deliver(Envelope{Type: "y"}))
	c.Close()
	c.Close()
	assert.False(t, c.Deliver(Envelope{Type: "z"}))
}
