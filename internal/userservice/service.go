// Package userservice manages business logic layer of users.
package userservice

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
	"github.com/go-petr/pet-wallet/pkg/passpkg"
)

// Repo provides data access layer interface needed by user service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package userservice
type Repo interface {
	CreateWithAccount(ctx context.Context, arg domain.CreateUserParams) (domain.User, error)
	Get(ctx context.Context, username string) (domain.User, error)
	Update(ctx context.Context, id string, arg domain.UpdateUserParams) (domain.User, error)
	List(ctx context.Context, filter string, limit, offset int32) ([]domain.User, error)
}

// Service facilitates user service layer logic.
type Service struct {
	repo           Repo
	initialBalance int64
}

// New return user service struct to manage user bussines logic.
//
// Every signed up user gets an account holding initialBalance minor units.
func New(ur Repo, initialBalance int64) *Service {
	return &Service{
		repo:           ur,
		initialBalance: initialBalance,
	}
}

// Create creates the user together with its account.
func (s *Service) Create(ctx context.Context, username, password, firstName, lastName string) (domain.UserProfile, error) {
	l := zerolog.Ctx(ctx)

	var result domain.UserProfile

	hashedPassword, err := passpkg.Hash(password)
	if err != nil {
		l.Error().Err(err).Send()
		return result, errorspkg.ErrInternal
	}

	arg := domain.CreateUserParams{
		ID:             uuid.NewString(),
		Username:       username,
		HashedPassword: hashedPassword,
		FirstName:      firstName,
		LastName:       lastName,
		InitialBalance: s.initialBalance,
	}

	gotUser, err := s.repo.CreateWithAccount(ctx, arg)
	if err != nil {
		return result, err
	}

	return domain.NewUserProfile(gotUser), nil
}

// CheckPassword checks if the password is valid for the given username.
func (s *Service) CheckPassword(ctx context.Context, username, pass string) (domain.UserProfile, error) {
	l := zerolog.Ctx(ctx)

	var response domain.UserProfile

	gotUser, err := s.repo.Get(ctx, username)
	if err != nil {
		return response, err
	}

	err = passpkg.Check(pass, gotUser.HashedPassword)
	if err != nil {
		l.Warn().Err(err).Send()
		return response, domain.ErrWrongPassword
	}

	return domain.NewUserProfile(gotUser), nil
}

// Update changes the given fields of the user. A nil field stays untouched,
// a new password is stored hashed.
func (s *Service) Update(ctx context.Context, id string, password, firstName, lastName *string) (domain.UserProfile, error) {
	l := zerolog.Ctx(ctx)

	arg := domain.UpdateUserParams{
		FirstName: firstName,
		LastName:  lastName,
	}

	if password != nil {
		hashedPassword, err := passpkg.Hash(*password)
		if err != nil {
			l.Error().Err(err).Send()
			return domain.UserProfile{}, errorspkg.ErrInternal
		}

		arg.HashedPassword = &hashedPassword
	}

	gotUser, err := s.repo.Update(ctx, id, arg)
	if err != nil {
		return domain.UserProfile{}, err
	}

	return domain.NewUserProfile(gotUser), nil
}

// List returns a page of users whose first or last name contains filter.
// Pages beyond what an int32 offset can address are empty.
func (s *Service) List(ctx context.Context, filter string, pageSize, pageID int32) ([]domain.UserProfile, error) {
	offset := (int64(pageID) - 1) * int64(pageSize)
	if pageID < 1 || pageSize < 1 || offset > math.MaxInt32 {
		return []domain.UserProfile{}, nil
	}

	users, err := s.repo.List(ctx, filter, pageSize, int32(offset))
	if err != nil {
		return nil, err
	}

	profiles := make([]domain.UserProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, domain.NewUserProfile(u))
	}

	return profiles, nil
}
