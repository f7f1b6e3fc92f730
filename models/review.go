package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Review is unique per (BookID, UserID); the reviews collection carries a unique index on the pair.
type Review struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BookID    primitive.ObjectID `bson:"bookId" json:"bookId"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	Rating    int                `bson:"rating" json:"rating"`
	Comment   string             `bson:"comment" json:"comment"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`

	// Populated on read, never stored.
	UserName   string `bson:"-" json:"userName,omitempty"`
	BookTitle  string `bson:"-" json:"bookTitle,omitempty"`
	BookAuthor string `bson:"-" json:"bookAuthor,omitempty"`
}
