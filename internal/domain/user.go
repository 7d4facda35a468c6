package domain

import "time"

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the domain model for people who report and handle tickets.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the acting identity attached to lifecycle operations.
type Actor struct {
	ID      string
	Name    string
	IsAdmin bool
}

// ActorFromUser derives an actor from a loaded user record.
func ActorFromUser(user *User) Actor {
	return Actor{ID: user.ID, Name: user.Name, IsAdmin: user.IsAdmin}
}
