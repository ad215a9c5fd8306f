package transferservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// The source id sorts before the destination id, so the happy path locks
// the source first.
const (
	sourceID = "11111111-1111-4111-8111-111111111111"
	destID   = "22222222-2222-4222-8222-222222222222"
)

type eqEventMatcher struct {
	from, to string
	amount   int64
}

func (m eqEventMatcher) Matches(x interface{}) bool {
	e, ok := x.(domain.TransferCompleted)
	if !ok {
		return false
	}

	return e.ID != "" && !e.CreatedAt.IsZero() &&
		e.FromAccountID == m.from && e.ToAccountID == m.to && e.Amount == m.amount
}

func (m eqEventMatcher) String() string {
	return fmt.Sprintf("is transfer event %v -> %v of %v", m.from, m.to, m.amount)
}

func eqEvent(from, to string, amount int64) gomock.Matcher {
	return eqEventMatcher{from: from, to: to, amount: amount}
}

var testConfig = Config{
	MaxAttempts:    3,
	AttemptTimeout: time.Second,
}

func TestTransfer(t *testing.T) {
	source := domain.Account{ID: sourceID, Balance: 100}
	dest := domain.Account{ID: destID, Balance: 10}

	okRequest := domain.TransferRequest{ToAccountID: destID, Amount: 40}

	testCases := []struct {
		name       string
		caller     string
		req        domain.TransferRequest
		buildStubs func(l *MockLedger, tx *MockTx, p *MockPublisher)
		want       domain.TransferResult
		wantErr    error
	}{
		{
			name:   "ZeroAmount",
			caller: sourceID,
			req:    domain.TransferRequest{ToAccountID: destID, Amount: 0},
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(0)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeInvalidAmount},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:   "NegativeAmount",
			caller: sourceID,
			req:    domain.TransferRequest{ToAccountID: destID, Amount: -5},
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(0)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeInvalidAmount},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:   "SelfTransfer",
			caller: sourceID,
			req:    domain.TransferRequest{ToAccountID: sourceID, Amount: 10},
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(0)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeInvalidAmount},
			wantErr: domain.ErrSelfTransfer,
		},
		{
			name:   "SelfTransferUppercaseID",
			caller: sourceID,
			req:    domain.TransferRequest{ToAccountID: strings.ToUpper(sourceID), Amount: 10},
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(0)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeInvalidAmount},
			wantErr: domain.ErrSelfTransfer,
		},
		{
			name:   "SelfTransferBracedID",
			caller: sourceID,
			req:    domain.TransferRequest{ToAccountID: "{" + sourceID + "}", Amount: 10},
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(0)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeInvalidAmount},
			wantErr: domain.ErrSelfTransfer,
		},
		{
			name:   "SelfTransferURNID",
			caller: sourceID,
			req:    domain.TransferRequest{ToAccountID: "urn:uuid:" + sourceID, Amount: 1000},
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(0)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeInvalidAmount},
			wantErr: domain.ErrSelfTransfer,
		},
		{
			name:   "BeginErr",
			caller: sourceID,
			req:    okRequest,
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(nil, errorspkg.ErrInternal)
				tx.EXPECT().Abort().Times(0)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeTransientFailure, Attempts: 1},
			wantErr: domain.ErrTransient,
		},
		{
			name:   "SourceNotFound",
			caller: sourceID,
			req:    okRequest,
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
				gomock.InOrder(
					tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(domain.Account{}, domain.ErrAccountNotFound),
					tx.EXPECT().GetForUpdate(gomock.Any(), destID).Return(dest, nil),
				)
				tx.EXPECT().ApplyDelta(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				tx.EXPECT().Commit().Times(0)
				tx.EXPECT().Abort().Times(1).Return(nil)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeAccountNotFound, Attempts: 1},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name:   "InsufficientBalance",
			caller: sourceID,
			req:    domain.TransferRequest{ToAccountID: destID, Amount: 101},
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(source, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), destID).Return(dest, nil)
				tx.EXPECT().ApplyDelta(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				tx.EXPECT().Commit().Times(0)
				tx.EXPECT().Abort().Times(1).Return(nil)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeInsufficientFunds, Attempts: 1},
			wantErr: domain.ErrInsufficientBalance,
		},
		{
			name:   "InsufficientBalanceBeatsMissingDestination",
			caller: sourceID,
			req:    domain.TransferRequest{ToAccountID: destID, Amount: 500},
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(source, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), destID).Return(domain.Account{}, domain.ErrAccountNotFound)
				tx.EXPECT().Commit().Times(0)
				tx.EXPECT().Abort().Times(1).Return(nil)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeInsufficientFunds, Attempts: 1},
			wantErr: domain.ErrInsufficientBalance,
		},
		{
			name:   "DestinationNotFound",
			caller: sourceID,
			req:    okRequest,
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(source, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), destID).Return(domain.Account{}, domain.ErrAccountNotFound)
				tx.EXPECT().ApplyDelta(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				tx.EXPECT().Commit().Times(0)
				tx.EXPECT().Abort().Times(1).Return(nil)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeAccountNotFound, Attempts: 1},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name:   "GetForUpdateErr",
			caller: sourceID,
			req:    okRequest,
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(domain.Account{}, errorspkg.ErrInternal)
				tx.EXPECT().Commit().Times(0)
				tx.EXPECT().Abort().Times(1).Return(nil)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeTransientFailure, Attempts: 1},
			wantErr: domain.ErrTransient,
		},
		{
			name:   "ApplyDeltaErr",
			caller: sourceID,
			req:    okRequest,
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(source, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), destID).Return(dest, nil)
				tx.EXPECT().ApplyDelta(gomock.Any(), sourceID, int64(-40)).Return(nil)
				tx.EXPECT().ApplyDelta(gomock.Any(), destID, int64(40)).Return(errorspkg.ErrInternal)
				tx.EXPECT().Commit().Times(0)
				tx.EXPECT().Abort().Times(1).Return(nil)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeTransientFailure, Attempts: 1},
			wantErr: domain.ErrTransient,
		},
		{
			name:   "AbortErrIsLoggedOnly",
			caller: sourceID,
			req:    okRequest,
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(source, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), destID).Return(domain.Account{}, domain.ErrAccountNotFound)
				tx.EXPECT().Abort().Times(1).Return(errorspkg.ErrInternal)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeAccountNotFound, Attempts: 1},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name:   "ConflictExhaustsRetries",
			caller: sourceID,
			req:    okRequest,
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(3).Return(tx, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Times(3).Return(source, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), destID).Times(3).Return(dest, nil)
				tx.EXPECT().ApplyDelta(gomock.Any(), gomock.Any(), gomock.Any()).Times(6).Return(nil)
				tx.EXPECT().Commit().Times(3).Return(domain.ErrConflict)
				tx.EXPECT().Abort().Times(3).Return(nil)
				p.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)
			},
			want:    domain.TransferResult{Outcome: domain.OutcomeTransientFailure, Attempts: 3},
			wantErr: domain.ErrTransient,
		},
		{
			name:   "ConflictOnLockIsRetried",
			caller: sourceID,
			req:    okRequest,
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(2).Return(tx, nil)
				gomock.InOrder(
					tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(domain.Account{}, domain.ErrConflict),
					tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(source, nil),
				)
				tx.EXPECT().GetForUpdate(gomock.Any(), destID).Times(1).Return(dest, nil)
				tx.EXPECT().ApplyDelta(gomock.Any(), sourceID, int64(-40)).Return(nil)
				tx.EXPECT().ApplyDelta(gomock.Any(), destID, int64(40)).Return(nil)
				tx.EXPECT().Commit().Times(1).Return(nil)
				tx.EXPECT().Abort().Times(2).Return(nil)
				p.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(1).Return(nil)
			},
			want: domain.TransferResult{
				Outcome:       domain.OutcomeSuccess,
				FromAccountID: sourceID,
				ToAccountID:   destID,
				Amount:        40,
				FromBalance:   60,
				ToBalance:     50,
				Attempts:      2,
			},
		},
		{
			name:   "OK",
			caller: sourceID,
			req: domain.TransferRequest{
				FromAccountID: destID, // ignored, the caller is the source
				ToAccountID:   destID,
				Amount:        40,
			},
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
				gomock.InOrder(
					tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(source, nil),
					tx.EXPECT().GetForUpdate(gomock.Any(), destID).Return(dest, nil),
					tx.EXPECT().ApplyDelta(gomock.Any(), sourceID, int64(-40)).Return(nil),
					tx.EXPECT().ApplyDelta(gomock.Any(), destID, int64(40)).Return(nil),
					tx.EXPECT().Commit().Return(nil),
					tx.EXPECT().Abort().Return(nil),
				)
				p.EXPECT().Publish(gomock.Any(), eqEvent(sourceID, destID, 40)).Times(1).Return(nil)
			},
			want: domain.TransferResult{
				Outcome:       domain.OutcomeSuccess,
				FromAccountID: sourceID,
				ToAccountID:   destID,
				Amount:        40,
				FromBalance:   60,
				ToBalance:     50,
				Attempts:      1,
			},
		},
		{
			name:   "OKUppercaseDestination",
			caller: sourceID,
			req:    domain.TransferRequest{ToAccountID: strings.ToUpper(destID), Amount: 40},
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
				gomock.InOrder(
					tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(source, nil),
					tx.EXPECT().GetForUpdate(gomock.Any(), destID).Return(dest, nil),
					tx.EXPECT().ApplyDelta(gomock.Any(), sourceID, int64(-40)).Return(nil),
					tx.EXPECT().ApplyDelta(gomock.Any(), destID, int64(40)).Return(nil),
					tx.EXPECT().Commit().Return(nil),
					tx.EXPECT().Abort().Return(nil),
				)
				p.EXPECT().Publish(gomock.Any(), eqEvent(sourceID, destID, 40)).Times(1).Return(nil)
			},
			want: domain.TransferResult{
				Outcome:       domain.OutcomeSuccess,
				FromAccountID: sourceID,
				ToAccountID:   destID,
				Amount:        40,
				FromBalance:   60,
				ToBalance:     50,
				Attempts:      1,
			},
		},
		{
			name:   "OKLocksInGlobalOrder",
			caller: destID,
			req:    domain.TransferRequest{ToAccountID: sourceID, Amount: 10},
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
				gomock.InOrder(
					tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(source, nil),
					tx.EXPECT().GetForUpdate(gomock.Any(), destID).Return(dest, nil),
					tx.EXPECT().ApplyDelta(gomock.Any(), destID, int64(-10)).Return(nil),
					tx.EXPECT().ApplyDelta(gomock.Any(), sourceID, int64(10)).Return(nil),
					tx.EXPECT().Commit().Return(nil),
					tx.EXPECT().Abort().Return(nil),
				)
				p.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(1).Return(nil)
			},
			want: domain.TransferResult{
				Outcome:       domain.OutcomeSuccess,
				FromAccountID: destID,
				ToAccountID:   sourceID,
				Amount:        10,
				FromBalance:   0,
				ToBalance:     110,
				Attempts:      1,
			},
		},
		{
			name:   "PublishErrKeepsSuccess",
			caller: sourceID,
			req:    okRequest,
			buildStubs: func(l *MockLedger, tx *MockTx, p *MockPublisher) {
				l.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(source, nil)
				tx.EXPECT().GetForUpdate(gomock.Any(), destID).Return(dest, nil)
				tx.EXPECT().ApplyDelta(gomock.Any(), gomock.Any(), gomock.Any()).Times(2).Return(nil)
				tx.EXPECT().Commit().Return(nil)
				tx.EXPECT().Abort().Return(nil)
				p.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(1).Return(errors.New("broker down"))
			},
			want: domain.TransferResult{
				Outcome:       domain.OutcomeSuccess,
				FromAccountID: sourceID,
				ToAccountID:   destID,
				Amount:        40,
				FromBalance:   60,
				ToBalance:     50,
				Attempts:      1,
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			ledger := NewMockLedger(ctrl)
			tx := NewMockTx(ctrl)
			publisher := NewMockPublisher(ctrl)
			transferService := New(ledger, publisher, testConfig)

			tc.buildStubs(ledger, tx, publisher)

			got, err := transferService.Transfer(context.Background(), tc.caller, tc.req)
			if !errors.Is(err, tc.wantErr) || (tc.wantErr == nil && err != nil) {
				t.Fatalf("transferService.Transfer() returned error %v, want %v", err, tc.wantErr)
			}

			ignore := cmpopts.IgnoreFields(domain.TransferResult{}, "ID", "CreatedAt")
			if diff := cmp.Diff(tc.want, got, ignore); diff != "" {
				t.Errorf("transferService.Transfer() returned unexpected difference (-want +got):\n%s", diff)
			}

			if got.Outcome == domain.OutcomeSuccess && (got.ID == "" || got.CreatedAt.IsZero()) {
				t.Errorf("successful result misses id or timestamp: %+v", got)
			}
		})
	}
}

func TestTransferAttemptTimeout(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := NewMockLedger(ctrl)
	tx := NewMockTx(ctrl)

	ledger.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
	tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).
		DoAndReturn(func(ctx context.Context, _ string) (domain.Account, error) {
			<-ctx.Done()
			return domain.Account{}, ctx.Err()
		})
	tx.EXPECT().Abort().Times(1).Return(nil)

	transferService := New(ledger, nil, Config{MaxAttempts: 3, AttemptTimeout: 20 * time.Millisecond})

	start := time.Now()

	got, err := transferService.Transfer(context.Background(), sourceID,
		domain.TransferRequest{ToAccountID: destID, Amount: 1})
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("transferService.Transfer() returned error %v, want %v", err, domain.ErrTransient)
	}

	if got.Outcome != domain.OutcomeTransientFailure {
		t.Errorf("got.Outcome = %v, want %v", got.Outcome, domain.OutcomeTransientFailure)
	}

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Transfer took %v, want it bounded by the attempt timeout", elapsed)
	}
}

func TestTransferStalledPublisher(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := NewMockLedger(ctrl)
	tx := NewMockTx(ctrl)
	publisher := NewMockPublisher(ctrl)

	ledger.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
	tx.EXPECT().GetForUpdate(gomock.Any(), sourceID).Return(domain.Account{ID: sourceID, Balance: 100}, nil)
	tx.EXPECT().GetForUpdate(gomock.Any(), destID).Return(domain.Account{ID: destID, Balance: 10}, nil)
	tx.EXPECT().ApplyDelta(gomock.Any(), gomock.Any(), gomock.Any()).Times(2).Return(nil)
	tx.EXPECT().Commit().Return(nil)
	tx.EXPECT().Abort().Return(nil)
	publisher.EXPECT().Publish(gomock.Any(), eqEvent(sourceID, destID, 40)).
		DoAndReturn(func(ctx context.Context, _ domain.TransferCompleted) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Errorf("Publish called without a deadline")
			}

			<-ctx.Done()

			return ctx.Err()
		})

	transferService := New(ledger, publisher, Config{
		MaxAttempts:    1,
		AttemptTimeout: time.Second,
		PublishTimeout: 20 * time.Millisecond,
	})

	start := time.Now()

	got, err := transferService.Transfer(context.Background(), sourceID,
		domain.TransferRequest{ToAccountID: destID, Amount: 40})
	if err != nil {
		t.Fatalf("transferService.Transfer() returned error: %v", err)
	}

	if got.Outcome != domain.OutcomeSuccess {
		t.Errorf("got.Outcome = %v, want %v", got.Outcome, domain.OutcomeSuccess)
	}

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Transfer took %v, want it bounded by the publish timeout", elapsed)
	}
}

func TestTransferCanceledWhileBackingOff(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := NewMockLedger(ctrl)
	tx := NewMockTx(ctrl)

	ctx, cancel := context.WithCancel(context.Background())

	ledger.EXPECT().Begin(gomock.Any()).Times(1).Return(tx, nil)
	tx.EXPECT().GetForUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string) (domain.Account, error) {
			cancel()
			return domain.Account{}, domain.ErrConflict
		})
	tx.EXPECT().Abort().Times(1).Return(nil)

	transferService := New(ledger, nil, Config{MaxAttempts: 3, RetryBackoff: time.Hour})

	_, err := transferService.Transfer(ctx, sourceID, domain.TransferRequest{ToAccountID: destID, Amount: 1})
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("transferService.Transfer() returned error %v, want %v", err, domain.ErrTransient)
	}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	s := New(nil, nil, Config{RetryBackoff: -1})

	if diff := cmp.Diff(DefaultConfig(), s.config); diff != "" {
		t.Errorf("New(Config{}) config mismatch (-want +got):\n%s", diff)
	}
}
