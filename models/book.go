package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Genres a book may be filed under.
var Genres = []string{
	"Fiction", "Non-Fiction", "Mystery", "Thriller", "Science Fiction",
	"Fantasy", "Romance", "Horror", "Biography", "History",
	"Self-Help", "Poetry", "Children", "Young Adult", "Other",
}

// ValidGenre reports whether g is one of Genres (exact match).
func ValidGenre(g string) bool {
	for _, v := range Genres {
		if v == g {
			return true
		}
	}
	return false
}

type Book struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title         string             `bson:"title" json:"title"`
	Author        string             `bson:"author" json:"author"`
	Description   string             `bson:"description" json:"description"`
	Genre         string             `bson:"genre" json:"genre"`
	Year          int                `bson:"year" json:"year"`
	CoverImage    string             `bson:"coverImage" json:"coverImage"`
	CoverKey      string             `bson:"coverKey,omitempty" json:"-"` // object key of an uploaded cover
	CreatedBy     primitive.ObjectID `bson:"createdBy" json:"createdBy"`
	AverageRating float64            `bson:"averageRating" json:"averageRating"` // derived from reviews
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`

	// Read-only, filled from the users collection.
	CreatorName string `bson:"-" json:"creatorName,omitempty"`
}
