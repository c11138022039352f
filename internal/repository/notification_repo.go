package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/school-chat/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type NotificationRepo struct {
	col     *mongo.Collection
	timeout time.Duration
}

func NewNotificationRepo(ctx context.Context, db *mongo.Database, timeout time.Duration) (*NotificationRepo, error) {
	r := &NotificationRepo{col: db.Collection("notifications"), timeout: opTimeout(timeout)}
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "user_model", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "read", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *NotificationRepo) Insert(ctx context.Context, n *models.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.col.InsertOne(ctx, n)
	return err
}

// InsertMany writes a fan-out batch in one round trip.
func (r *NotificationRepo) InsertMany(ctx context.Context, ns []models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	docs := make([]interface{}, len(ns))
	for i := range ns {
		docs[i] = ns[i]
	}
	_, err := r.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

func userFilter(userID string, role models.Role) bson.M {
	f := bson.M{"user_id": userID}
	if role != "" {
		f["user_model"] = role
	}
	return f
}

func (r *NotificationRepo) ListRecent(ctx context.Context, userID string, role models.Role, limit int) ([]models.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(limit))
	cur, err := r.col.Find(ctx, userFilter(userID, role), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID string, role models.Role) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	f := userFilter(userID, role)
	f["read"] = false
	n, err := r.col.CountDocuments(ctx, f)
	return int(n), err
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id string) (*models.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n models.Notification
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"read": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string, role models.Role) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	f := userFilter(userID, role)
	f["read"] = false
	res, err := r.col.UpdateMany(ctx, f, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *NotificationRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
