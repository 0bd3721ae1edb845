package camerastorage

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

type CameraStorage struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *CameraStorage {
	return &CameraStorage{
		db: db,
	}
}

func (s *CameraStorage) Save(ctx context.Context, cam models.Camera) (models.Camera, error) {
	const op = "storage.postgres.cameras.Save"

	query := fmt.Sprintf(`INSERT INTO %s (name, rtsp_url) VALUES ($1, $2) RETURNING id, name, rtsp_url`, postgres.CamerasTable)

	err := s.db.QueryRowxContext(ctx, query, cam.Name, cam.RtspURL).StructScan(&cam)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return models.Camera{}, fmt.Errorf("%s: %w", op, errs.ErrCameraAlreadyExists)
		}

		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	return cam, nil
}

func (s *CameraStorage) Camera(ctx context.Context, id int) (models.Camera, error) {
	const op = "storage.postgres.cameras.Camera"

	var cam models.Camera
	query := fmt.Sprintf(`SELECT id, name, rtsp_url FROM %s WHERE id = $1`, postgres.CamerasTable)

	if err := s.db.GetContext(ctx, &cam, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Camera{}, fmt.Errorf("%s: %w", op, errs.ErrCameraNotFound)
		}

		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	return cam, nil
}

func (s *CameraStorage) Cameras(ctx context.Context) ([]models.Camera, error) {
	const op = "storage.postgres.cameras.Cameras"

	cams := []models.Camera{}
	query := fmt.Sprintf(`SELECT id, name, rtsp_url FROM %s ORDER BY id`, postgres.CamerasTable)

	if err := s.db.SelectContext(ctx, &cams, query); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cams, nil
}

func (s *CameraStorage) Update(ctx context.Context, cam models.Camera) (models.Camera, error) {
	const op = "storage.postgres.cameras.Update"

	query := fmt.Sprintf(`UPDATE %s SET name = $1, rtsp_url = $2 WHERE id = $3 RETURNING id, name, rtsp_url`, postgres.CamerasTable)

	err := s.db.QueryRowxContext(ctx, query, cam.Name, cam.RtspURL, cam.ID).StructScan(&cam)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Camera{}, fmt.Errorf("%s: %w", op, errs.ErrCameraNotFound)
		}
		if postgres.IsUniqueViolation(err) {
			return models.Camera{}, fmt.Errorf("%s: %w", op, errs.ErrCameraAlreadyExists)
		}

		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	return cam, nil
}

// Delete removes the camera. Stations and sessions referencing it keep
// their rows with the reference cleared.
func (s *CameraStorage) Delete(ctx context.Context, id int) error {
	const op = "storage.postgres.cameras.Delete"

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, postgres.CamerasTable)

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, errs.ErrWriteToDB, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrCameraNotFound)
	}

	return nil
}
