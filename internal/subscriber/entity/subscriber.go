package entity

import "time"

// Subscriber is a newsletter sign-up. ID is a KSUID so listings sort by
// creation time.
type Subscriber struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Source    string    `json:"source,omitempty" db:"source"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
