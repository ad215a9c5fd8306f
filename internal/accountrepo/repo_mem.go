package accountrepo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/ledger"
)

var errTxDone = errors.New("ledger transaction already finished")

type memRecord struct {
	account domain.Account
	version uint64
}

// RepoMem is an in-memory account repository.
//
// Concurrency is optimistic: a transaction remembers the version of every
// account it read and Commit fails with domain.ErrConflict if any of them
// changed in the meantime.
type RepoMem struct {
	mu       sync.RWMutex
	accounts map[string]memRecord
}

// NewRepoMem returns an empty RepoMem.
func NewRepoMem() *RepoMem {
	return &RepoMem{
		accounts: make(map[string]memRecord),
	}
}

// Create provisions the account with the given id and initial balance.
func (r *RepoMem) Create(ctx context.Context, id string, balance int64) (domain.Account, error) {
	if balance < 0 {
		return domain.Account{}, domain.ErrInvalidAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; ok {
		return domain.Account{}, domain.ErrAccountAlreadyExists
	}

	a := domain.Account{
		ID:        id,
		Balance:   balance,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	r.accounts[id] = memRecord{account: a, version: 1}

	return a, nil
}

// Get returns the committed state of the account with the given id.
func (r *RepoMem) Get(ctx context.Context, id string) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return rec.account, nil
}

// Begin opens a ledger transaction.
func (r *RepoMem) Begin(ctx context.Context) (ledger.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &TxMem{
		repo:   r,
		reads:  make(map[string]uint64),
		deltas: make(map[string]int64),
	}, nil
}

// TxMem is a ledger transaction over RepoMem.
//
// A TxMem is used by a single goroutine.
type TxMem struct {
	repo   *RepoMem
	reads  map[string]uint64
	deltas map[string]int64
	order  []string
	done   bool
}

// read records the version of the account the first time it is seen.
func (t *TxMem) read(id string) (domain.Account, error) {
	t.repo.mu.RLock()
	rec, ok := t.repo.accounts[id]
	t.repo.mu.RUnlock()

	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	if _, seen := t.reads[id]; !seen {
		t.reads[id] = rec.version
	}

	return rec.account, nil
}

// GetForUpdate reads the account as seen by this transaction.
func (t *TxMem) GetForUpdate(ctx context.Context, id string) (domain.Account, error) {
	if t.done {
		return domain.Account{}, errTxDone
	}

	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	a, err := t.read(id)
	if err != nil {
		return a, err
	}

	a.Balance += t.deltas[id]

	return a, nil
}

// ApplyDelta buffers delta until Commit.
func (t *TxMem) ApplyDelta(ctx context.Context, id string, delta int64) error {
	if t.done {
		return errTxDone
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := t.read(id); err != nil {
		return err
	}

	if _, ok := t.deltas[id]; !ok {
		t.order = append(t.order, id)
	}

	t.deltas[id] += delta

	return nil
}

// Commit applies all buffered deltas at once, or none of them on conflict.
func (t *TxMem) Commit() error {
	if t.done {
		return errTxDone
	}

	t.done = true

	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	for id, version := range t.reads {
		rec, ok := t.repo.accounts[id]
		if !ok || rec.version != version {
			return domain.ErrConflict
		}
	}

	for _, id := range t.order {
		rec := t.repo.accounts[id]
		rec.account.Balance += t.deltas[id]
		rec.version++
		t.repo.accounts[id] = rec
	}

	return nil
}

// Abort discards all buffered deltas. It is a no-op after Commit or Abort.
func (t *TxMem) Abort() error {
	t.done = true
	t.deltas = nil
	t.order = nil

	return nil
}
