package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fathima-sithara/school-chat/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RosterRepo reads the student and teacher collections owned by the school
// administration service. It never writes.
type RosterRepo struct {
	students *mongo.Collection
	teachers *mongo.Collection
	timeout  time.Duration
}

func NewRosterRepo(db *mongo.Database, timeout time.Duration) *RosterRepo {
	return &RosterRepo{
		students: db.Collection("students"),
		teachers: db.Collection("teachers"),
		timeout:  opTimeout(timeout),
	}
}

type idDoc struct {
	ID primitive.ObjectID `bson:"_id"`
}

func (r *RosterRepo) UserIDsByRole(ctx context.Context, role models.Role) ([]string, error) {
	switch role {
	case models.RoleStudent:
		return r.ids(ctx, r.students, bson.M{"isBlock": bson.M{"$ne": true}})
	case models.RoleTeacher:
		return r.ids(ctx, r.teachers, bson.M{"isBlock": bson.M{"$ne": true}})
	}
	return nil, fmt.Errorf("no roster for role %q", role)
}

func (r *RosterRepo) StudentIDsByCourse(ctx context.Context, courseID string) ([]string, error) {
	oid, err := primitive.ObjectIDFromHex(courseID)
	if err != nil {
		return nil, fmt.Errorf("course id %q: %w", courseID, err)
	}
	return r.ids(ctx, r.students, bson.M{"courses.courseId": oid, "isBlock": bson.M{"$ne": true}})
}

func (r *RosterRepo) ids(ctx context.Context, col *mongo.Collection, filter bson.M) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cur, err := col.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []string{}
	for cur.Next(ctx) {
		var d idDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.ID.Hex())
	}
	return out, cur.Err()
}
