package randompkg

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestInt64Between(t *testing.T) {
	t.Parallel()

	for i := 0; i < 1000; i++ {
		got := Int64Between(5, 10)
		if got < 5 || got > 10 {
			t.Fatalf("Int64Between(5, 10) = %d, want value in [5, 10]", got)
		}
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	if got := String(12); len(got) != 12 {
		t.Errorf("len(String(12)) = %d, want 12", len(got))
	}
}

func TestAccountID(t *testing.T) {
	t.Parallel()

	id := AccountID()
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("uuid.Parse(%v) returned error: %v", id, err)
	}
}

func TestMoneyAmountBetween(t *testing.T) {
	t.Parallel()

	got := MoneyAmountBetween(100, 1000)

	d, err := decimal.NewFromString(got)
	if err != nil {
		t.Fatalf("decimal.NewFromString(%v) returned error: %v", got, err)
	}

	if d.LessThan(decimal.NewFromInt(1)) || d.GreaterThan(decimal.NewFromInt(10)) {
		t.Errorf("MoneyAmountBetween(100, 1000) = %v, want value in [1.00, 10.00]", got)
	}
}
