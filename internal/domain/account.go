// Package domain provides definitions of all entities.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrAccountNotFound indicates that the account is not found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountAlreadyExists indicates that the account for the given id already exists.
	ErrAccountAlreadyExists = errors.New("account already exists")
	// ErrConflict indicates that a ledger transaction lost a race with a
	// concurrent one and none of its changes were applied.
	ErrConflict = errors.New("ledger transaction conflict")
)

// Account holds the balance of a user in minor units.
//
// The account ID equals the ID of the owning user.
type Account struct {
	ID        string    `json:"id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}
