package hub

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"go.uber.org/zap"
)

// RoomSource lists the conversations a user belongs to; rooms are rebuilt from it
// every time a user connects.
type RoomSource interface {
	ChatIDs(ctx context.Context, userID string) ([]string, error)
}

type PresenceTracker interface {
	AddConnection(ctx context.Context, userID, socketID string) error
	RemoveConnection(ctx context.Context, userID, socketID string) error
	Get(ctx context.Context, userID string) (Presence, error)
}

// Hub is the process-local connection registry: user -> live clients and
// conversation room -> member users. It is a cache; the chat lists are the source of
// truth for membership.
type Hub struct {
	mu     sync.RWMutex
	users  map[string]map[*Client]struct{}
	rooms  map[string]map[string]struct{}
	joined map[string]map[string]struct{}
	// joins requested while the user's chat list is being read in Register
	pending map[string]map[string]struct{}
	loading map[string]int

	source   RoomSource
	presence PresenceTracker
	metrics  *Metrics
	log      *zap.SugaredLogger
}

// New builds a hub. presence may be nil.
func New(source RoomSource, presence PresenceTracker, metrics *Metrics, log *zap.SugaredLogger) *Hub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		users:    make(map[string]map[*Client]struct{}),
		rooms:    make(map[string]map[string]struct{}),
		joined:   make(map[string]map[string]struct{}),
		pending:  make(map[string]map[string]struct{}),
		loading:  make(map[string]int),
		source:   source,
		presence: presence,
		metrics:  metrics,
		log:      log,
	}
}

// Register adds an authenticated client: it joins the user's personal channel and
// every conversation room in the user's chat list.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	if c == nil || c.UserID == "" {
		return apperr.Unauthenticated("userId is required")
	}
	if !c.Role.IsParticipant() {
		return apperr.Unauthenticated("userModel must be Teacher or Student")
	}
	h.mu.Lock()
	h.loading[c.UserID]++
	h.mu.Unlock()

	chatIDs, err := h.source.ChatIDs(ctx, c.UserID)

	h.mu.Lock()
	late := h.pending[c.UserID]
	if h.loading[c.UserID]--; h.loading[c.UserID] == 0 {
		delete(h.loading, c.UserID)
		delete(h.pending, c.UserID)
	}
	if err != nil {
		h.mu.Unlock()
		return apperr.Persistence("Failed to fetch chat list", err)
	}
	set, ok := h.users[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[c.UserID] = set
	}
	set[c] = struct{}{}
	for _, id := range chatIDs {
		h.join(c.UserID, id)
	}
	for id := range late {
		h.join(c.UserID, id)
	}
	h.mu.Unlock()

	h.metrics.Connections.Inc()
	if h.presence != nil {
		if err := h.presence.AddConnection(ctx, c.UserID, c.ID); err != nil {
			h.log.Warnw("presence add failed", "userId", c.UserID, "error", err)
		}
	}
	h.log.Infow("user connected", "userId", c.UserID, "role", c.Role, "socketId", c.ID, "rooms", len(chatIDs))
	return nil
}

// Deregister removes the client and closes its send channel. Calling it twice is safe.
// Room memberships of a user go away with the user's last connection.
func (h *Hub) Deregister(c *Client) {
	h.mu.Lock()
	set, ok := h.users[c.UserID]
	if ok {
		_, ok = set[c]
	}
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID)
			for chatID := range h.joined[c.UserID] {
				h.leave(c.UserID, chatID)
			}
		}
	}
	h.mu.Unlock()

	c.Close()
	if !ok {
		return
	}
	h.metrics.Connections.Dec()
	if h.presence != nil {
		if err := h.presence.RemoveConnection(context.Background(), c.UserID, c.ID); err != nil {
			h.log.Warnw("presence remove failed", "userId", c.UserID, "error", err)
		}
	}
	h.log.Infow("user disconnected", "userId", c.UserID, "role", c.Role, "socketId", c.ID)
}

// JoinRoom subscribes the live connections of userID to chatID. Offline users are
// skipped: they join on their next Register. A user whose Register is still reading
// the chat list gets the room once that read finishes.
func (h *Hub) JoinRoom(userID, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loading[userID] > 0 {
		rooms, ok := h.pending[userID]
		if !ok {
			rooms = make(map[string]struct{})
			h.pending[userID] = rooms
		}
		rooms[chatID] = struct{}{}
	}
	if _, ok := h.users[userID]; !ok {
		return
	}
	h.join(userID, chatID)
}

// join and leave expect h.mu held.
func (h *Hub) join(userID, chatID string) {
	members, ok := h.rooms[chatID]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[chatID] = members
	}
	members[userID] = struct{}{}

	chats, ok := h.joined[userID]
	if !ok {
		chats = make(map[string]struct{})
		h.joined[userID] = chats
	}
	chats[chatID] = struct{}{}
}

func (h *Hub) leave(userID, chatID string) {
	if members, ok := h.rooms[chatID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.rooms, chatID)
		}
	}
	if chats, ok := h.joined[userID]; ok {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(h.joined, userID)
		}
	}
}

// PublishToUser queues the event on every connection of userID. No-op when offline.
func (h *Hub) PublishToUser(userID, event string, payload any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	h.deliver(clients, event, payload)
}

// PublishToRoom queues the event on every connection of every member of chatID.
func (h *Hub) PublishToRoom(chatID, event string, payload any) {
	h.mu.RLock()
	var clients []*Client
	for userID := range h.rooms[chatID] {
		for c := range h.users[userID] {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(clients, event, payload)
}

func (h *Hub) deliver(clients []*Client, event string, payload any) {
	if len(clients) == 0 {
		return
	}
	b, err := json.Marshal(Envelope{Type: event, Payload: payload})
	if err != nil {
		h.log.Errorw("event marshal failed", "event", event, "error", err)
		return
	}
	for _, c := range clients {
		if c.enqueue(b) {
			h.metrics.Published.WithLabelValues(event).Inc()
			continue
		}
		if !c.Closed() {
			// slow consumer
			h.metrics.Dropped.Inc()
			h.log.Warnw("dropping slow client", "userId", c.UserID, "socketId", c.ID)
			h.Deregister(c)
		}
	}
}

// Online reports whether userID has a live connection on this instance.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// Presence answers for userID: a live socket on this instance means online,
// otherwise the shared tracker knows about the other instances.
func (h *Hub) Presence(ctx context.Context, userID string) (Presence, error) {
	if h.Online(userID) {
		return Presence{Status: StatusOnline, LastSeen: time.Now().Unix()}, nil
	}
	if h.presence == nil {
		return Presence{Status: StatusOffline}, nil
	}
	return h.presence.Get(ctx, userID)
}

// Rooms lists the rooms userID is joined to, sorted.
func (h *Hub) Rooms(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.joined[userID]))
	for id := range h.joined[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
