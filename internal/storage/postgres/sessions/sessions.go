package sessionstorage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/storage/postgres"
)

type SessionStorage struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *SessionStorage {
	return &SessionStorage{
		db: db,
	}
}

const sessionColumns = "id, code, station_name, recorded_by, camera_id, file_path, start_time, end_time"

func (s *SessionStorage) Create(ctx context.Context, rec models.RecordingSession) error {
	const op = "storage.postgres.sessions.Create"

	query := fmt.Sprintf(`INSERT INTO %s (id, code, station_name, recorded_by, camera_id, file_path, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, postgres.SessionsTable)

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Code, rec.StationName, rec.RecordedBy, rec.CameraID, rec.FilePath, rec.StartTime,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, errs.ErrSessionAlreadyOpen)
		}

		return fmt.Errorf("%s: %w: %w", op, errs.ErrWriteToDB, err)
	}

	return nil
}

// Open returns the open session of a station.
func (s *SessionStorage) Open(ctx context.Context, stationName string) (models.RecordingSession, error) {
	const op = "storage.postgres.sessions.Open"

	var rec models.RecordingSession
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE station_name = $1 AND end_time IS NULL`, sessionColumns, postgres.SessionsTable)

	if err := s.db.GetContext(ctx, &rec, query, stationName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RecordingSession{}, fmt.Errorf("%s: %w", op, errs.ErrSessionNotFound)
		}

		return models.RecordingSession{}, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

func (s *SessionStorage) OpenAll(ctx context.Context) ([]models.RecordingSession, error) {
	const op = "storage.postgres.sessions.OpenAll"

	recs := []models.RecordingSession{}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE end_time IS NULL ORDER BY station_name`, sessionColumns, postgres.SessionsTable)

	if err := s.db.SelectContext(ctx, &recs, query); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return recs, nil
}

func (s *SessionStorage) Close(ctx context.Context, id string, endTime time.Time) error {
	const op = "storage.postgres.sessions.Close"

	query := fmt.Sprintf(`UPDATE %s SET end_time = $1 WHERE id = $2 AND end_time IS NULL`, postgres.SessionsTable)

	result, err := s.db.ExecContext(ctx, query, endTime, id)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, errs.ErrWriteToDB, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrSessionNotFound)
	}

	return nil
}

func (s *SessionStorage) Session(ctx context.Context, id string) (models.RecordingSession, error) {
	const op = "storage.postgres.sessions.Session"

	var rec models.RecordingSession
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, sessionColumns, postgres.SessionsTable)

	if err := s.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RecordingSession{}, fmt.Errorf("%s: %w", op, errs.ErrSessionNotFound)
		}

		return models.RecordingSession{}, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

func (s *SessionStorage) Delete(ctx context.Context, id string) error {
	const op = "storage.postgres.sessions.Delete"

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, postgres.SessionsTable)

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, errs.ErrWriteToDB, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrSessionNotFound)
	}

	return nil
}

// List returns the newest sessions first.
func (s *SessionStorage) List(ctx context.Context, filter models.SessionFilter) ([]models.RecordingSession, error) {
	const op = "storage.postgres.sessions.List"

	var (
		where []string
		args  []any
	)

	if filter.Code != "" {
		args = append(args, filter.Code)
		where = append(where, fmt.Sprintf("strpos(lower(code), lower($%d)) > 0", len(args)))
	}
	if filter.StationName != "" {
		args = append(args, filter.StationName)
		where = append(where, fmt.Sprintf("lower(station_name) = lower($%d)", len(args)))
	}
	if filter.CameraID != nil {
		args = append(args, *filter.CameraID)
		where = append(where, fmt.Sprintf("camera_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("start_time >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("start_time < $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, sessionColumns, postgres.SessionsTable)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY start_time DESC LIMIT $%d", len(args))

	recs := []models.RecordingSession{}
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return recs, nil
}
