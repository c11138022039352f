package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepo struct {
	col     *mongo.Collection
	timeout time.Duration
}

func NewMessageRepo(ctx context.Context, db *mongo.Database, timeout time.Duration) (*MessageRepo, error) {
	r := &MessageRepo{col: db.Collection("messages"), timeout: opTimeout(timeout)}
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MessageRepo) Insert(ctx context.Context, m *models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
	_, err := r.col.InsertOne(ctx, m)
	return err
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var m models.Message
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListByChat returns the visible messages of a conversation, oldest first.
func (r *MessageRepo) ListByChat(ctx context.Context, chatID string) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"chat_id": chatID, "is_deleted": false}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetReaction replaces userID's reaction when present, otherwise appends it. Both
// branches are single-document atomic updates guarded on the other branch's
// precondition, so concurrent reactions from one user never produce two entries.
func (r *MessageRepo) SetReaction(ctx context.Context, messageID, userID, reaction string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	after := options.FindOneAndUpdate().SetReturnDocument(options.After)
	for attempt := 0; attempt < 2; attempt++ {
		var m models.Message
		err := r.col.FindOneAndUpdate(ctx,
			bson.M{"_id": messageID, "is_deleted": false, "reactions.user": userID},
			bson.M{"$set": bson.M{"reactions.$.reaction": reaction}},
			after,
		).Decode(&m)
		if err == nil {
			return &m, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}

		err = r.col.FindOneAndUpdate(ctx,
			bson.M{"_id": messageID, "is_deleted": false, "reactions.user": bson.M{"$ne": userID}},
			bson.M{"$push": bson.M{"reactions": models.Reaction{User: userID, Reaction: reaction}}},
			after,
		).Decode(&m)
		if err == nil {
			return &m, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// SoftDelete flags the message as deleted when userID is its sender.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, userID string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var m models.Message
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID, "sender": userID},
		bson.M{"$set": bson.M{"is_deleted": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err == nil {
		return &m, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	n, err := r.col.CountDocuments(ctx, bson.M{"_id": messageID})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return nil, apperr.ErrForbidden
}
