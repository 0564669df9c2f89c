package domain

import "time"

// Admin is a stored grant of privileged status. The owner is never stored.
type Admin struct {
	UserID  int64     `bson:"user_id" json:"user_id"`
	AddedAt time.Time `bson:"added_at" json:"added_at"`
}

// AddResult reports the outcome of granting admin status.
type AddResult int

const (
	AdminAdded AddResult = iota
	AdminAlreadyPresent
)

// RemoveResult reports the outcome of revoking admin status.
type RemoveResult int

const (
	AdminRemoved RemoveResult = iota
	AdminWasAbsent
)
