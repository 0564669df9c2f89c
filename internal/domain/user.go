package domain

import "time"

// User is a person who has contacted the bot at least once. Records are
// written on first contact and never updated afterwards.
type User struct {
	UserID    int64     `bson:"user_id" json:"user_id"`
	FirstName string    `bson:"first_name" json:"first_name"`
	JoinedAt  time.Time `bson:"joined_at" json:"joined_at"`
}
