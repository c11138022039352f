package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/fathima-sithara/school-chat/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatListTouchBranches(t *testing.T) {
	ctx := context.Background()
	s := NewChatListStore()
	entry := models.ChatEntry{ChatID: "c1", Contact: "t1", ContactModel: models.RoleTeacher, LastMessage: "hi", Timestamp: time.Now()}

	out, err := s.Touch(ctx, "s1", models.RoleStudent, entry, models.SideReceiver)
	require.NoError(t, err)
	assert.Equal(t, models.RowInserted, out)

	entry.LastMessage = "again"
	out, err = s.Touch(ctx, "s1", models.RoleStudent, entry, models.SideReceiver)
	require.NoError(t, err)
	assert.Equal(t, models.RowUpdated, out)

	l, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, l.Chats, 1)
	assert.Equal(t, 2, l.Chats[0].UnreadCount)
	assert.Equal(t, "again", l.Chats[0].LastMessage)

	_, err = s.Touch(ctx, "s1", models.RoleStudent, entry, models.SideSender)
	require.NoError(t, err)
	l, _ = s.Get(ctx, "s1")
	assert.Equal(t, 0, l.Chats[0].UnreadCount)
}

func TestChatListOrderingAndReset(t *testing.T) {
	ctx := context.Background()
	s := NewChatListStore()
	now := time.Now()
	_, _ = s.AddConversation(ctx, "u", models.RoleTeacher, models.ChatEntry{ChatID: "old", Timestamp: now.Add(-time.Hour)})
	_, _ = s.AddConversation(ctx, "u", models.RoleTeacher, models.ChatEntry{ChatID: "new", Timestamp: now, UnreadCount: 4})

	added, err := s.AddConversation(ctx, "u", models.RoleTeacher, models.ChatEntry{ChatID: "new"})
	require.NoError(t, err)
	assert.False(t, added)

	ids, err := s.ChatIDs(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)

	require.NoError(t, s.ResetUnread(ctx, "u", "new"))
	require.NoError(t, s.ResetUnread(ctx, "nobody", "new"))
	l, _ := s.Get(ctx, "u")
	assert.Equal(t, 0, l.Find("new").UnreadCount)

	empty, err := s.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty.Chats)
}

func TestFindOrCreatePairConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewChatListStore()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	created := make([]bool, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, c, err := s.FindOrCreatePair(ctx, "t", "s")
			assert.NoError(t, err)
			ids[i], created[i] = p.ChatID, c
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, s.Pairs())
}

func TestMessageStore(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore()
	base := time.Now()
	require.NoError(t, s.Insert(ctx, &models.Message{ID: "m2", ChatID: "c", Sender: "a", Timestamp: base.Add(time.Second)}))
	require.NoError(t, s.Insert(ctx, &models.Message{ID: "m1", ChatID: "c", Sender: "a", Timestamp: base}))
	require.NoError(t, s.Insert(ctx, &models.Message{ID: "x", ChatID: "other", Sender: "a", Timestamp: base}))

	msgs, err := s.ListByChat(ctx, "c")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)

	m, err := s.SetReaction(ctx, "m1", "b", "👍")
	require.NoError(t, err)
	assert.Len(t, m.Reactions, 1)

	_, err = s.SoftDelete(ctx, "m1", "b")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	m, err = s.SoftDelete(ctx, "m1", "a")
	require.NoError(t, err)
	assert.True(t, m.IsDeleted)

	_, err = s.SetReaction(ctx, "m1", "b", "😂")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.SoftDelete(ctx, "missing", "a")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	msgs, _ = s.ListByChat(ctx, "c")
	assert.Len(t, msgs, 1)
	assert.Equal(t, 3, s.Len())
}

func TestNotificationStore(t *testing.T) {
	ctx := context.Background()
	s := NewNotificationStore()
	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Insert(ctx, &models.Notification{
			ID: models.NewID(), UserID: "u", UserModel: models.RoleStudent, Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.InsertMany(ctx, []models.Notification{{ID: "t", UserID: "u", UserModel: models.RoleTeacher, Timestamp: base}}))

	list, err := s.ListRecent(ctx, "u", models.RoleStudent, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Timestamp.After(list[1].Timestamp))

	n, _ := s.CountUnread(ctx, "u", "")
	assert.Equal(t, 4, n)

	changed, err := s.MarkAllRead(ctx, "u", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, int64(3), changed)
	n, _ = s.CountUnread(ctx, "u", models.RoleStudent)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Delete(ctx, "t"))
	assert.ErrorIs(t, s.Delete(ctx, "t"), repository.ErrNotFound)
	_, err = s.MarkRead(ctx, "t")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRoster(t *testing.T) {
	ctx := context.Background()
	r := NewRoster().Add(models.RoleStudent, "s1", "s2").Enroll("c1", "s1")

	ids, err := r.UserIDsByRole(ctx, models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)

	_, err = r.UserIDsByRole(ctx, models.RoleAdmin)
	assert.Error(t, err)

	ids, _ = r.StudentIDsByCourse(ctx, "c1")
	assert.Equal(t, []string{"s1"}, ids)
}
