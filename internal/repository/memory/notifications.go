package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/fathima-sithara/school-chat/internal/repository"
)

type NotificationStore struct {
	mu    sync.Mutex
	items []*models.Notification
	// FailInsert makes Insert and InsertMany return the error.
	FailInsert error
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

func matches(n *models.Notification, userID string, role models.Role) bool {
	return n.UserID == userID && (role == "" || n.UserModel == role)
}

func (s *NotificationStore) Insert(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		return s.FailInsert
	}
	c := *n
	s.items = append(s.items, &c)
	return nil
}

func (s *NotificationStore) InsertMany(_ context.Context, ns []models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		return s.FailInsert
	}
	for i := range ns {
		c := ns[i]
		s.items = append(s.items, &c)
	}
	return nil
}

func (s *NotificationStore) ListRecent(_ context.Context, userID string, role models.Role, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Notification{}
	for _, n := range s.items {
		if matches(n, userID, role) {
			out = append(out, *n)
		}
	}
	slices.SortStableFunc(out, func(a, b models.Notification) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *NotificationStore) CountUnread(_ context.Context, userID string, role models.Role) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := 0
	for _, n := range s.items {
		if matches(n, userID, role) && !n.Read {
			c++
		}
	}
	return c, nil
}

func (s *NotificationStore) MarkRead(_ context.Context, id string) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.items {
		if n.ID == id {
			n.Read = true
			c := *n
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *NotificationStore) MarkAllRead(_ context.Context, userID string, role models.Role) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	for _, n := range s.items {
		if matches(n, userID, role) && !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}

func (s *NotificationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.items {
		if n.ID == id {
			s.items = slices.Delete(s.items, i, i+1)
			return nil
		}
	}
	return repository.ErrNotFound
}

// All returns a copy of every stored notification in insertion order.
func (s *NotificationStore) All() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, *n)
	}
	return out
}
