package authstorage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/storage/postgres"
)

type AuthStorage struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *AuthStorage {
	return &AuthStorage{db: db}
}

const userColumns = "id, username, full_name, employee_code, role, password_hash"

func (s *AuthStorage) SaveUser(ctx context.Context, user models.User) (int, error) {
	const op = "storage.postgres.auth.SaveUser"

	var id int
	query := fmt.Sprintf(`INSERT INTO %s (username, full_name, employee_code, role, password_hash)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`, postgres.UsersTable)

	err := s.db.QueryRowContext(ctx, query,
		user.Username, user.FullName, user.EmployeeCode, user.UserType, user.PassHash,
	).Scan(&id)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", op, errs.ErrUserExists)
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *AuthStorage) User(ctx context.Context, username string) (models.User, error) {
	const op = "storage.postgres.auth.User"

	var user models.User
	query := fmt.Sprintf("SELECT %s FROM %s WHERE username = $1", userColumns, postgres.UsersTable)

	if err := s.db.GetContext(ctx, &user, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("%s: %w", op, errs.ErrUserNotFound)
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByBadge matches key against employee codes and usernames normalized the
// way badges are: spaces removed, upper case. Employee codes win.
func (s *AuthStorage) UserByBadge(ctx context.Context, key string) (models.User, error) {
	const op = "storage.postgres.auth.UserByBadge"

	var user models.User
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE upper(replace(employee_code, ' ', '')) = $1 OR upper(replace(username, ' ', '')) = $1
		ORDER BY (upper(replace(employee_code, ' ', '')) = $1) DESC, id
		LIMIT 1`, userColumns, postgres.UsersTable)

	if err := s.db.GetContext(ctx, &user, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("%s: %w", op, errs.ErrUserNotFound)
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *AuthStorage) Users(ctx context.Context) ([]models.User, error) {
	const op = "storage.postgres.auth.Users"

	users := []models.User{}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", userColumns, postgres.UsersTable)

	if err := s.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

// DeleteUser removes the account. Stations it occupied are released by the
// foreign key; session history keeps the recorded_by name.
func (s *AuthStorage) DeleteUser(ctx context.Context, id int) error {
	const op = "storage.postgres.auth.DeleteUser"

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", postgres.UsersTable)

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, errs.ErrWriteToDB, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrUserNotFound)
	}

	return nil
}
