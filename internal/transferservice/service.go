// Package transferservice manages business logic layer of transfers.
//
// Transfer moves money between two accounts inside a single ledger
// transaction. Correctness rests on the ledger's isolation, not on any
// in-process locking, so a Service is safe for concurrent use.
package transferservice

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/ledger"
)

// Ledger provides the transactional account storage needed by transfer service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package transferservice
type Ledger interface {
	Begin(ctx context.Context) (ledger.Tx, error)
}

// Publisher announces committed transfers.
type Publisher interface {
	Publish(ctx context.Context, event domain.TransferCompleted) error
}

// Config bounds the work spent on a single transfer.
type Config struct {
	// MaxAttempts is how many times a conflicting transfer is tried in total.
	MaxAttempts int
	// AttemptTimeout is the wall-clock budget of one attempt.
	AttemptTimeout time.Duration
	// RetryBackoff is multiplied by the attempt number to get the pause
	// before the next attempt.
	RetryBackoff time.Duration
	// PublishTimeout bounds how long a committed transfer waits on the
	// publisher before the response is sent.
	PublishTimeout time.Duration
}

// DefaultConfig returns the recommended transfer limits.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		AttemptTimeout: 5 * time.Second,
		RetryBackoff:   10 * time.Millisecond,
		PublishTimeout: 2 * time.Second,
	}
}

// Service facilitates transfer service layer logic.
type Service struct {
	ledger    Ledger
	publisher Publisher
	config    Config
}

// New returns transfer service struct to manage transfer business logic.
//
// Unset MaxAttempts, AttemptTimeout and PublishTimeout fall back to
// DefaultConfig, a zero RetryBackoff retries immediately. The publisher may
// be nil.
func New(l Ledger, p Publisher, c Config) *Service {
	d := DefaultConfig()

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}

	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}

	if c.RetryBackoff < 0 {
		c.RetryBackoff = d.RetryBackoff
	}

	if c.PublishTimeout <= 0 {
		c.PublishTimeout = d.PublishTimeout
	}

	return &Service{
		ledger:    l,
		publisher: p,
		config:    c,
	}
}

// Transfer moves req.Amount from the caller's account to req.ToAccountID.
//
// The caller's account is the source; req.FromAccountID is ignored. The
// result always carries an outcome. The returned error is nil on success
// and otherwise one of domain.ErrInvalidAmount, domain.ErrSelfTransfer,
// domain.ErrAccountNotFound, domain.ErrInsufficientBalance or
// domain.ErrTransient. Nothing is applied unless the outcome is Success.
func (s *Service) Transfer(ctx context.Context, callerAccountID string, req domain.TransferRequest) (domain.TransferResult, error) {
	l := zerolog.Ctx(ctx)

	req.FromAccountID = canonicalID(callerAccountID)
	req.ToAccountID = canonicalID(req.ToAccountID)

	if req.Amount <= 0 {
		l.Info().Int64("amount", req.Amount).Msg("transfer rejected: non-positive amount")
		return failure(domain.ErrInvalidAmount, 0)
	}

	if req.FromAccountID == req.ToAccountID {
		l.Info().Str("account_id", req.FromAccountID).Msg("transfer rejected: same account")
		return failure(domain.ErrSelfTransfer, 0)
	}

	var err error

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		var from, to domain.Account

		from, to, err = s.attempt(ctx, req)
		if err == nil {
			return s.success(ctx, req, from, to, attempt), nil
		}

		if !errors.Is(err, domain.ErrConflict) {
			return s.reject(ctx, err, attempt)
		}

		l.Warn().Int("attempt", attempt).Msg("transfer conflicted with a concurrent one")

		if attempt == s.config.MaxAttempts {
			break
		}

		if werr := s.wait(ctx, attempt); werr != nil {
			return s.reject(ctx, werr, attempt)
		}
	}

	return s.reject(ctx, err, s.config.MaxAttempts)
}

// canonicalID returns the lowercase hyphenated form of a uuid so that
// spellings the store treats as equal also compare equal here. Other ids
// are returned unchanged.
func canonicalID(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}

	return parsed.String()
}

// attempt runs one read-check-mutate-commit sequence in its own transaction.
func (s *Service) attempt(ctx context.Context, req domain.TransferRequest) (domain.Account, domain.Account, error) {
	l := zerolog.Ctx(ctx)

	ctx, cancel := context.WithTimeout(ctx, s.config.AttemptTimeout)
	defer cancel()

	var from, to domain.Account

	tx, err := s.ledger.Begin(ctx)
	if err != nil {
		return from, to, err
	}

	defer func() {
		if err := tx.Abort(); err != nil {
			l.Error().Err(err).Msg("cannot abort ledger transaction")
		}
	}()

	// Lock both rows in a global order so that two transfers moving money
	// in opposite directions between the same accounts cannot deadlock.
	ids := [2]string{req.FromAccountID, req.ToAccountID}
	if ids[1] < ids[0] {
		ids[0], ids[1] = ids[1], ids[0]
	}

	locked := make(map[string]domain.Account, 2)

	for _, id := range ids {
		a, err := tx.GetForUpdate(ctx, id)
		if errors.Is(err, domain.ErrAccountNotFound) {
			continue
		}

		if err != nil {
			return from, to, err
		}

		locked[id] = a
	}

	from, ok := locked[req.FromAccountID]
	if !ok {
		return from, to, domain.ErrAccountNotFound
	}

	if from.Balance < req.Amount {
		return from, to, domain.ErrInsufficientBalance
	}

	to, ok = locked[req.ToAccountID]
	if !ok {
		return from, to, domain.ErrAccountNotFound
	}

	if to.Balance > math.MaxInt64-req.Amount {
		return from, to, domain.ErrInvalidAmount
	}

	if err := tx.ApplyDelta(ctx, from.ID, -req.Amount); err != nil {
		return from, to, err
	}

	if err := tx.ApplyDelta(ctx, to.ID, req.Amount); err != nil {
		return from, to, err
	}

	if err := tx.Commit(); err != nil {
		return from, to, err
	}

	from.Balance -= req.Amount
	to.Balance += req.Amount

	return from, to, nil
}

// wait pauses before the next attempt unless ctx is done first.
func (s *Service) wait(ctx context.Context, attempt int) error {
	if s.config.RetryBackoff == 0 {
		return ctx.Err()
	}

	t := time.NewTimer(time.Duration(attempt) * s.config.RetryBackoff)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) success(ctx context.Context, req domain.TransferRequest, from, to domain.Account, attempts int) domain.TransferResult {
	l := zerolog.Ctx(ctx)

	res := domain.TransferResult{
		Outcome:       domain.OutcomeSuccess,
		ID:            ulid.Make().String(),
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		Amount:        req.Amount,
		FromBalance:   from.Balance,
		ToBalance:     to.Balance,
		Attempts:      attempts,
		CreatedAt:     time.Now().UTC(),
	}

	l.Info().
		Str("transfer_id", res.ID).
		Str("from_account_id", res.FromAccountID).
		Str("to_account_id", res.ToAccountID).
		Int64("amount", res.Amount).
		Int("attempts", attempts).
		Msg("transfer committed")

	if s.publisher == nil {
		return res
	}

	event := domain.TransferCompleted{
		ID:            res.ID,
		FromAccountID: res.FromAccountID,
		ToAccountID:   res.ToAccountID,
		Amount:        res.Amount,
		CreatedAt:     res.CreatedAt,
	}

	// Best effort: the transfer is already committed.
	publishCtx, cancel := context.WithTimeout(ctx, s.config.PublishTimeout)
	defer cancel()

	if err := s.publisher.Publish(publishCtx, event); err != nil {
		l.Error().Err(err).Str("transfer_id", res.ID).Msg("cannot publish transfer event")
	}

	return res
}

// reject translates err into the outcome taxonomy. Business rejections are
// returned as is, everything else becomes domain.ErrTransient.
func (s *Service) reject(ctx context.Context, err error, attempts int) (domain.TransferResult, error) {
	l := zerolog.Ctx(ctx)

	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInvalidAmount):
		l.Info().Err(err).Int("attempts", attempts).Msg("transfer rejected")
		return failure(err, attempts)
	}

	l.Error().Err(err).Int("attempts", attempts).Msg("transfer failed")

	return failure(domain.ErrTransient, attempts)
}

func failure(err error, attempts int) (domain.TransferResult, error) {
	return domain.TransferResult{
		Outcome:  domain.OutcomeOf(err),
		Attempts: attempts,
	}, err
}
