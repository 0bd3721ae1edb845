package authservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/zanzhit/station_recorder/internal/domain/constants"
	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	jwtmid "github.com/zanzhit/station_recorder/internal/lib/jwt"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
)

type AuthService struct {
	secret       string
	tokenTTL     time.Duration
	log          *slog.Logger
	userSaver    UserSaver
	userProvider UserProvider
}

type UserSaver interface {
	SaveUser(ctx context.Context, user models.User) (int, error)
}

type UserProvider interface {
	User(ctx context.Context, username string) (models.User, error)
}

// NewUser is what an admin submits to create an account.
type NewUser struct {
	Username     string
	Password     string
	FullName     string
	EmployeeCode string
	Role         string
}

func New(log *slog.Logger, userSaver UserSaver, userProvider UserProvider, tokenTTL time.Duration, secret string) *AuthService {
	return &AuthService{
		secret:       secret,
		tokenTTL:     tokenTTL,
		log:          log,
		userSaver:    userSaver,
		userProvider: userProvider,
	}
}

func (s *AuthService) RegisterNewUser(ctx context.Context, in NewUser) (int, error) {
	const op = "service.auth.Register"

	log := s.log.With(
		slog.String("op", op),
		slog.String("username", in.Username),
	)

	if in.Role == "" {
		in.Role = constants.User
	}

	if in.Role != constants.User && in.Role != constants.Admin {
		log.Warn("invalid role", sl.Err(errs.ErrUserType))

		return 0, fmt.Errorf("%s: %w", op, errs.ErrUserType)
	}

	log.Info("registering user")

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.userSaver.SaveUser(ctx, models.User{
		Username:     strings.TrimSpace(in.Username),
		FullName:     strings.TrimSpace(in.FullName),
		EmployeeCode: strings.TrimSpace(in.EmployeeCode),
		UserType:     in.Role,
		PassHash:     passHash,
	})
	if err != nil {
		log.Error("failed to save user", sl.Err(err))

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	const op = "service.auth.Login"

	log := s.log.With(
		slog.String("op", op),
		slog.String("username", username),
	)

	log.Info("attempting to login user")

	user, err := s.userProvider.User(ctx, username)
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))

			return "", fmt.Errorf("%s: %w", op, errs.ErrInvalidCredentials)
		}

		log.Error("failed to get user", sl.Err(err))

		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))

		return "", fmt.Errorf("%s: %w", op, errs.ErrInvalidCredentials)
	}

	log.Info("user logged in successfully")

	token, err := jwtmid.NewToken(user, s.tokenTTL, s.secret)
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// CreateInitialAdmin makes sure the admin named by ADMIN_USERNAME exists.
func (s *AuthService) CreateInitialAdmin(ctx context.Context) error {
	const op = "service.auth.CreateInitialAdmin"

	log := s.log.With(
		slog.String("op", op),
	)

	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminPassword == "" {
		return fmt.Errorf("%s: ADMIN_USERNAME and ADMIN_PASSWORD are required", op)
	}

	_, err := s.userProvider.User(ctx, adminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errs.ErrUserNotFound) {
		return fmt.Errorf("%s: failed to check admin existence: %w", op, err)
	}

	_, err = s.RegisterNewUser(ctx, NewUser{
		Username: adminUsername,
		Password: adminPassword,
		FullName: "Administrator",
		Role:     constants.Admin,
	})
	if err != nil {
		log.Error("failed to create admin", sl.Err(err))

		return fmt.Errorf("%s: failed to create admin: %w", op, err)
	}

	log.Info("admin created successfully")

	return nil
}
