package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// NewID returns a fresh 24-hex identifier, the format every user, message and
// conversation id in the school database uses.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

func ValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}
