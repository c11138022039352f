package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/fathima-sithara/school-chat/internal/models"
)

type pairKey struct{ teacher, student string }

type ChatListStore struct {
	mu    sync.Mutex
	lists map[string]*models.ChatList
	pairs map[pairKey]models.ChatPair
	// FailTouch makes Touch return the error.
	FailTouch error
}

func NewChatListStore() *ChatListStore {
	return &ChatListStore{
		lists: make(map[string]*models.ChatList),
		pairs: make(map[pairKey]models.ChatPair),
	}
}

func (s *ChatListStore) list(owner string, role models.Role) *models.ChatList {
	l, ok := s.lists[owner]
	if !ok {
		l = &models.ChatList{User: owner, UserModel: role, Chats: []models.ChatEntry{}}
		s.lists[owner] = l
	}
	return l
}

func (s *ChatListStore) Get(_ context.Context, userID string) (*models.ChatList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[userID]
	if !ok {
		return &models.ChatList{User: userID, Chats: []models.ChatEntry{}}, nil
	}
	out := *l
	out.Chats = slices.Clone(l.Chats)
	slices.SortStableFunc(out.Chats, func(a, b models.ChatEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return &out, nil
}

func (s *ChatListStore) ChatIDs(ctx context.Context, userID string) ([]string, error) {
	l, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(l.Chats))
	for _, c := range l.Chats {
		ids = append(ids, c.ChatID)
	}
	return ids, nil
}

func (s *ChatListStore) FindOrCreatePair(_ context.Context, teacherID, studentID string) (models.ChatPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pairKey{teacherID, studentID}
	if p, ok := s.pairs[k]; ok {
		return p, false, nil
	}
	p := models.ChatPair{ChatID: models.NewID(), TeacherID: teacherID, StudentID: studentID, CreatedAt: time.Now().UTC()}
	s.pairs[k] = p
	return p, true, nil
}

func (s *ChatListStore) AddConversation(_ context.Context, owner string, role models.Role, entry models.ChatEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.list(owner, role)
	if l.Find(entry.ChatID) != nil {
		return false, nil
	}
	l.Chats = append(l.Chats, entry)
	return true, nil
}

func (s *ChatListStore) Touch(_ context.Context, owner string, role models.Role, entry models.ChatEntry, side models.Side) (models.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTouch != nil {
		return 0, s.FailTouch
	}
	l := s.list(owner, role)
	if row := l.Find(entry.ChatID); row != nil {
		row.LastMessage = entry.LastMessage
		row.Timestamp = entry.Timestamp
		if side == models.SideSender {
			row.UnreadCount = 0
		} else {
			row.UnreadCount++
		}
		return models.RowUpdated, nil
	}
	row := entry
	row.UnreadCount = 0
	if side == models.SideReceiver {
		row.UnreadCount = 1
	}
	l.Chats = append(l.Chats, row)
	return models.RowInserted, nil
}

func (s *ChatListStore) ResetUnread(_ context.Context, owner, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.lists[owner]; ok {
		if row := l.Find(chatID); row != nil {
			row.UnreadCount = 0
		}
	}
	return nil
}

// Pairs counts conversations created through FindOrCreatePair.
func (s *ChatListStore) Pairs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pairs)
}
