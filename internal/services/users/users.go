package usersservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
)

type UserService struct {
	log      *slog.Logger
	users    UserStore
	releaser Releaser
}

type UserStore interface {
	Users(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, id int) error
}

// Releaser frees the stations a user occupies and stops their recordings.
type Releaser interface {
	ReleaseOperator(ctx context.Context, userID int) error
}

func New(log *slog.Logger, users UserStore, releaser Releaser) *UserService {
	return &UserService{
		log:      log,
		users:    users,
		releaser: releaser,
	}
}

func (s *UserService) Users(ctx context.Context) ([]models.User, error) {
	const op = "service.users.Users"

	users, err := s.users.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

// DeleteUser removes an account after releasing its stations. Admins cannot
// delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, id int, requester models.User) error {
	const op = "service.users.DeleteUser"

	log := s.log.With(
		slog.String("op", op),
		slog.Int("user_id", id),
		slog.String("requester", requester.Username),
	)

	if id == requester.Id {
		return fmt.Errorf("%s: %w", op, errs.ErrDeleteSelf)
	}

	if err := s.releaser.ReleaseOperator(ctx, id); err != nil {
		log.Error("failed to release stations", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.DeleteUser(ctx, id); err != nil {
		log.Error("failed to delete user", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user deleted")

	return nil
}
