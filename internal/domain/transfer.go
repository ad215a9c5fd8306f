package domain

import (
	"errors"
	"time"
)

var (
	// ErrInvalidAmount indicates a non-positive transfer amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrSelfTransfer indicates a transfer whose source and destination are the same account.
	ErrSelfTransfer = errors.New("cannot transfer to the same account")
	// ErrInsufficientBalance indicates that the account does not have sufficient balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrTransient indicates that the transfer could not be completed right now
	// and nothing was applied. The caller may retry the whole request later.
	ErrTransient = errors.New("transfer temporarily unavailable")
)

// Outcome tags the result of a transfer attempt.
type Outcome string

// Transfer outcomes.
const (
	OutcomeSuccess           Outcome = "Success"
	OutcomeInsufficientFunds Outcome = "InsufficientFunds"
	OutcomeAccountNotFound   Outcome = "AccountNotFound"
	OutcomeInvalidAmount     Outcome = "InvalidAmount"
	OutcomeTransientFailure  Outcome = "TransientFailure"
)

// OutcomeOf maps the error returned by a transfer to its outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer):
		return OutcomeInvalidAmount
	case errors.Is(err, ErrAccountNotFound):
		return OutcomeAccountNotFound
	case errors.Is(err, ErrInsufficientBalance):
		return OutcomeInsufficientFunds
	}

	return OutcomeTransientFailure
}

// TransferRequest is the input data for a transfer. Amount is in minor units.
type TransferRequest struct {
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        int64  `json:"amount"`
}

// TransferResult is the result of a transfer.
//
// Everything but Outcome and Attempts is only set on success.
type TransferResult struct {
	Outcome       Outcome   `json:"outcome"`
	ID            string    `json:"id,omitempty"`
	FromAccountID string    `json:"from_account_id,omitempty"`
	ToAccountID   string    `json:"to_account_id,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	FromBalance   int64     `json:"from_balance,omitempty"`
	ToBalance     int64     `json:"to_balance,omitempty"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// TransferCompleted is published once a transfer has been committed.
type TransferCompleted struct {
	ID            string    `json:"id"`
	FromAccountID string    `json:"from_account_id"`
	ToAccountID   string    `json:"to_account_id"`
	Amount        int64     `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}
