// Package helpers provides seeding helpers used in integration tests.
package helpers

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/go-petr/pet-wallet/internal/accountrepo"
	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/userrepo"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/passpkg"
	"github.com/go-petr/pet-wallet/pkg/randompkg"
)

// RandomUserParams returns the params of a random user with the given
// initial balance and the plain password of that user.
func RandomUserParams(t *testing.T, balance int64) (domain.CreateUserParams, string) {
	t.Helper()

	password := randompkg.String(10)

	hashedPassword, err := passpkg.Hash(password)
	if err != nil {
		t.Fatalf("passpkg.Hash(%v) returned error: %v", password, err)
	}

	arg := domain.CreateUserParams{
		ID:             uuid.NewString(),
		Username:       randompkg.Email(),
		HashedPassword: hashedPassword,
		FirstName:      randompkg.Name(),
		LastName:       randompkg.Name(),
		InitialBalance: balance,
	}

	return arg, password
}

// SeedUser creates a random user without an account.
func SeedUser(t *testing.T, db dbpkg.SQLInterface) domain.User {
	t.Helper()

	arg, _ := RandomUserParams(t, 0)

	user, err := userrepo.NewTxRepoPGS(db).Create(context.Background(), arg)
	if err != nil {
		t.Fatalf("userRepo.Create(ctx, %+v) returned error: %v", arg, err)
	}

	return user
}

// SeedAccount creates a random user together with its account holding balance.
func SeedAccount(t *testing.T, db dbpkg.SQLInterface, balance int64) domain.Account {
	t.Helper()

	user := SeedUser(t, db)

	account, err := accountrepo.NewTxRepoPGS(db).Create(context.Background(), user.ID, balance)
	if err != nil {
		t.Fatalf("accountRepo.Create(ctx, %v, %v) returned error: %v", user.ID, balance, err)
	}

	return account
}
