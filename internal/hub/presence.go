package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore mirrors live sockets to Redis so any instance can answer "is this
// user online". Keys:
//   - <prefix>:conn:<userID>     set of socket ids
//   - <prefix>:presence:<userID> json {status, lastSeen}
type PresenceStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type Presence struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen"`
}

func NewPresenceStore(r *redis.Client, prefix string, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PresenceStore{client: r, prefix: prefix, ttl: ttl}
}

func (s *PresenceStore) connKey(userID string) string {
	return fmt.Sprintf("%s:conn:%s", s.prefix, userID)
}

func (s *PresenceStore) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *PresenceStore) setPresence(ctx context.Context, userID, status string, ttl time.Duration) error {
	b, _ := json.Marshal(Presence{Status: status, LastSeen: time.Now().Unix()})
	return s.client.Set(ctx, s.presenceKey(userID), b, ttl).Err()
}

func (s *PresenceStore) AddConnection(ctx context.Context, userID, socketID string) error {
	key := s.connKey(userID)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, socketID)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.setPresence(ctx, userID, StatusOnline, s.ttl)
}

func (s *PresenceStore) RemoveConnection(ctx context.Context, userID, socketID string) error {
	key := s.connKey(userID)
	if err := s.client.SRem(ctx, key, socketID).Err(); err != nil {
		return err
	}
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.setPresence(ctx, userID, StatusOffline, 0)
	}
	return nil
}

// Get returns the stored presence; a user never seen is offline.
func (s *PresenceStore) Get(ctx context.Context, userID string) (Presence, error) {
	b, err := s.client.Get(ctx, s.presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Presence{Status: StatusOffline}, nil
	}
	if err != nil {
		return Presence{}, err
	}
	var p Presence
	if err := json.Unmarshal(b, &p); err != nil {
		return Presence{}, err
	}
	return p, nil
}
