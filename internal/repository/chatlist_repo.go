package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fathima-sithara/school-chat/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatListRepo stores one chat list document per user plus the teacher/student pair
// index that makes conversation creation a find-or-create.
type ChatListRepo struct {
	lists   *mongo.Collection
	pairs   *mongo.Collection
	timeout time.Duration
	newID   func() string
}

func NewChatListRepo(ctx context.Context, db *mongo.Database, timeout time.Duration) (*ChatListRepo, error) {
	r := &ChatListRepo{
		lists:   db.Collection("chatlists"),
		pairs:   db.Collection("chat_pairs"),
		timeout: opTimeout(timeout),
		newID:   models.NewID,
	}
	_, err := r.lists.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "user_model", Value: 1}}},
		{Keys: bson.D{{Key: "chats.chat_id", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	_, err = r.pairs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "teacher_id", Value: 1}, {Key: "student_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the user's chat list with the most recent conversation first. A user
// without a list gets an empty one.
func (r *ChatListRepo) Get(ctx context.Context, userID string) (*models.ChatList, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var l models.ChatList
	if err := r.lists.FindOne(ctx, bson.M{"user": userID}).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &models.ChatList{User: userID, Chats: []models.ChatEntry{}}, nil
		}
		return nil, err
	}
	if l.Chats == nil {
		l.Chats = []models.ChatEntry{}
	}
	slices.SortStableFunc(l.Chats, func(a, b models.ChatEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return &l, nil
}

func (r *ChatListRepo) ChatIDs(ctx context.Context, userID string) ([]string, error) {
	l, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(l.Chats))
	for _, c := range l.Chats {
		ids = append(ids, c.ChatID)
	}
	return ids, nil
}

// FindOrCreatePair atomically returns the conversation of a teacher/student pair,
// creating it on first use. created is true only for the caller whose insert won.
func (r *ChatListRepo) FindOrCreatePair(ctx context.Context, teacherID, studentID string) (models.ChatPair, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	candidate := r.newID()
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var pair models.ChatPair
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = r.pairs.FindOneAndUpdate(ctx,
			bson.M{"teacher_id": teacherID, "student_id": studentID},
			bson.M{"$setOnInsert": bson.M{"chat_id": candidate, "created_at": time.Now().UTC()}},
			opts,
		).Decode(&pair)
		if err == nil {
			return pair, pair.ChatID == candidate, nil
		}
		// two upserts racing on the unique index: the loser reads the winner's row
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	return models.ChatPair{}, false, err
}

func (r *ChatListRepo) ensureList(ctx context.Context, owner string, role models.Role) error {
	_, err := r.lists.UpdateOne(ctx,
		bson.M{"user": owner},
		bson.M{"$setOnInsert": bson.M{"user_model": role, "chats": bson.A{}}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return err
	}
	return nil
}

// AddConversation appends entry to the owner's list unless a row for the same chat is
// already there. It reports whether a row was added.
func (r *ChatListRepo) AddConversation(ctx context.Context, owner string, role models.Role, entry models.ChatEntry) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.ensureList(ctx, owner, role); err != nil {
		return false, err
	}
	res, err := r.lists.UpdateOne(ctx,
		bson.M{"user": owner, "chats.chat_id": bson.M{"$ne": entry.ChatID}},
		bson.M{"$push": bson.M{"chats": entry}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// Touch records a new message on the owner's row for entry.ChatID. When the row exists
// its preview and timestamp are set and its unread counter is zeroed (sender side) or
// incremented by one (receiver side) in the same update. When it does not, a row is
// pushed with the counter already at 0 or 1.
func (r *ChatListRepo) Touch(ctx context.Context, owner string, role models.Role, entry models.ChatEntry, side models.Side) (models.UpsertOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.ensureList(ctx, owner, role); err != nil {
		return 0, err
	}

	set := bson.M{
		"chats.$.last_message": entry.LastMessage,
		"chats.$.timestamp":    entry.Timestamp,
	}
	update := bson.M{"$set": set}
	row := entry
	if side == models.SideSender {
		set["chats.$.unread_count"] = 0
		row.UnreadCount = 0
	} else {
		update["$inc"] = bson.M{"chats.$.unread_count": 1}
		row.UnreadCount = 1
	}

	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.lists.UpdateOne(ctx, bson.M{"user": owner, "chats.chat_id": entry.ChatID}, update)
		if err != nil {
			return 0, err
		}
		if res.MatchedCount == 1 {
			return models.RowUpdated, nil
		}

		res, err = r.lists.UpdateOne(ctx,
			bson.M{"user": owner, "chats.chat_id": bson.M{"$ne": entry.ChatID}},
			bson.M{"$push": bson.M{"chats": row}},
		)
		if err != nil {
			return 0, err
		}
		if res.ModifiedCount == 1 {
			return models.RowInserted, nil
		}
		// a concurrent writer pushed the row between the two updates; retry the update
	}
	return 0, fmt.Errorf("chat list %s: row %s neither updated nor inserted", owner, entry.ChatID)
}

func (r *ChatListRepo) ResetUnread(ctx context.Context, owner, chatID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.lists.UpdateOne(ctx,
		bson.M{"user": owner, "chats.chat_id": chatID},
		bson.M{"$set": bson.M{"chats.$.unread_count": 0}},
	)
	return err
}
