package model

import "time"

// BookingLock is an advisory lock document held while a slot's check-then-insert runs.
// ID is the slot key; Owner guards release so an expired holder cannot free a successor's lock.
type BookingLock struct {
	ID        string    `bson:"_id" json:"id"`
	Owner     string    `bson:"owner" json:"owner"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
