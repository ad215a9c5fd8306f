// Package ledger defines the transactional storage contract for account balances.
//
// A Tx is owned by the call that opened it. Callers defer Abort right after
// a successful Begin; Abort is a no-op once the Tx has been committed or
// aborted, so the handle is released on every exit path.
package ledger

import (
	"context"

	"github.com/go-petr/pet-wallet/internal/domain"
)

// Tx is an isolated unit of work over account balances.
//
//go:generate mockgen -destination ../transferservice/ledger_mock.go -package transferservice github.com/go-petr/pet-wallet/internal/ledger Tx
type Tx interface {
	// GetForUpdate reads the account with intent to change it. It returns
	// domain.ErrAccountNotFound when the account does not exist.
	GetForUpdate(ctx context.Context, id string) (domain.Account, error)

	// ApplyDelta adds delta to the account balance. It does not check the
	// resulting balance; callers verify sufficiency under the same Tx.
	ApplyDelta(ctx context.Context, id string, delta int64) error

	// Commit makes all deltas durable and visible at once. It returns
	// domain.ErrConflict when a concurrent transaction won, in which case
	// none of the deltas took effect.
	Commit() error

	// Abort discards all deltas.
	Abort() error
}
