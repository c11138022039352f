// Package memory holds in-process implementations of the stores, used by tests and
// by local runs without a database.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/fathima-sithara/school-chat/internal/repository"
)

type MessageStore struct {
	mu   sync.Mutex
	byID map[string]*models.Message
	// FailInsert makes Insert return the error; used to exercise failure paths.
	FailInsert error
}

func NewMessageStore() *MessageStore {
	return &MessageStore{byID: make(map[string]*models.Message)}
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	c.Reactions = slices.Clone(m.Reactions)
	if c.Reactions == nil {
		c.Reactions = []models.Reaction{}
	}
	return &c
}

func (s *MessageStore) Insert(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		return s.FailInsert
	}
	s.byID[m.ID] = cloneMessage(m)
	return nil
}

func (s *MessageStore) GetByID(_ context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (s *MessageStore) ListByChat(_ context.Context, chatID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Message{}
	for _, m := range s.byID {
		if m.ChatID == chatID && !m.IsDeleted {
			out = append(out, *cloneMessage(m))
		}
	}
	slices.SortStableFunc(out, func(a, b models.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, nil
}

func (s *MessageStore) SetReaction(_ context.Context, messageID, userID, reaction string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok || m.IsDeleted {
		return nil, repository.ErrNotFound
	}
	m.SetReaction(userID, reaction)
	return cloneMessage(m), nil
}

func (s *MessageStore) SoftDelete(_ context.Context, messageID, userID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if m.Sender != userID {
		return nil, apperr.ErrForbidden
	}
	m.IsDeleted = true
	return cloneMessage(m), nil
}

// Len counts stored messages, deleted ones included.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
