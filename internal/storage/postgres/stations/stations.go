package stationstorage

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

type StationStorage struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *StationStorage {
	return &StationStorage{db: db}
}

// stationRow is a station joined with its occupant and cameras.
type stationRow struct {
	ID           int            `db:"id"`
	Name         string         `db:"name"`
	UserID       sql.NullInt64  `db:"user_id"`
	UserUsername sql.NullString `db:"user_username"`
	UserFullName sql.NullString `db:"user_full_name"`
	OverviewID   sql.NullInt64  `db:"overview_id"`
	OverviewName sql.NullString `db:"overview_name"`
	OverviewURL  sql.NullString `db:"overview_url"`
	QrID         sql.NullInt64  `db:"qr_id"`
	QrName       sql.NullString `db:"qr_name"`
	QrURL        sql.NullString `db:"qr_url"`
}

func (r stationRow) station() models.Station {
	st := models.Station{ID: r.ID, Name: r.Name}

	if r.UserID.Valid {
		st.CurrentUser = &models.Operator{
			ID:       int(r.UserID.Int64),
			Username: r.UserUsername.String,
			FullName: r.UserFullName.String,
		}
	}

	if r.OverviewID.Valid {
		st.OverviewCamera = &models.Camera{ID: int(r.OverviewID.Int64), Name: r.OverviewName.String, RtspURL: r.OverviewURL.String}
	}

	if r.QrID.Valid {
		st.QrCamera = &models.Camera{ID: int(r.QrID.Int64), Name: r.QrName.String, RtspURL: r.QrURL.String}
	}

	return st
}

var selectStations = fmt.Sprintf(`
	SELECT s.id, s.name,
		u.id AS user_id, u.username AS user_username, u.full_name AS user_full_name,
		oc.id AS overview_id, oc.name AS overview_name, oc.rtsp_url AS overview_url,
		qc.id AS qr_id, qc.name AS qr_name, qc.rtsp_url AS qr_url
	FROM %s s
	LEFT JOIN %s u ON u.id = s.current_user_id
	LEFT JOIN %s oc ON oc.id = s.overview_camera_id
	LEFT JOIN %s qc ON qc.id = s.qr_camera_id`,
	postgres.StationsTable, postgres.UsersTable, postgres.CamerasTable, postgres.CamerasTable)

// Station looks a station up by name, case-insensitively.
func (s *StationStorage) Station(ctx context.Context, name string) (models.Station, error) {
	const op = "storage.postgres.stations.Station"

	return s.one(ctx, op, selectStations+" WHERE lower(s.name) = lower(trim($1))", name)
}

func (s *StationStorage) StationByID(ctx context.Context, id int) (models.Station, error) {
	const op = "storage.postgres.stations.StationByID"

	return s.one(ctx, op, selectStations+" WHERE s.id = $1", id)
}

func (s *StationStorage) Stations(ctx context.Context) ([]models.Station, error) {
	const op = "storage.postgres.stations.Stations"

	return s.many(ctx, op, selectStations+" ORDER BY s.id")
}

func (s *StationStorage) StationsByOccupant(ctx context.Context, userID int) ([]models.Station, error) {
	const op = "storage.postgres.stations.StationsByOccupant"

	return s.many(ctx, op, selectStations+" WHERE s.current_user_id = $1 ORDER BY s.id", userID)
}

func (s *StationStorage) SaveStation(ctx context.Context, name string) (models.Station, error) {
	const op = "storage.postgres.stations.SaveStation"

	var id int
	query := fmt.Sprintf(`INSERT INTO %s (name) VALUES ($1) RETURNING id`, postgres.StationsTable)

	if err := s.db.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		if postgres.IsUniqueViolation(err) {
			return models.Station{}, fmt.Errorf("%s: %w", op, errs.ErrStationExists)
		}

		return models.Station{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.Station{ID: id, Name: name}, nil
}

func (s *StationStorage) DeleteStation(ctx context.Context, id int) error {
	const op = "storage.postgres.stations.DeleteStation"

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, postgres.StationsTable)

	return s.update(ctx, op, errs.ErrStationNotFound, query, id)
}

// SetOccupant sets or, with a nil userID, clears the station occupant.
func (s *StationStorage) SetOccupant(ctx context.Context, stationID int, userID *int) error {
	const op = "storage.postgres.stations.SetOccupant"

	query := fmt.Sprintf(`UPDATE %s SET current_user_id = $1 WHERE id = $2`, postgres.StationsTable)

	return s.update(ctx, op, errs.ErrUserNotFound, query, userID, stationID)
}

func (s *StationStorage) SetCameras(ctx context.Context, stationID int, overviewID, qrID *int) error {
	const op = "storage.postgres.stations.SetCameras"

	query := fmt.Sprintf(`UPDATE %s SET overview_camera_id = $1, qr_camera_id = $2 WHERE id = $3`, postgres.StationsTable)

	return s.update(ctx, op, errs.ErrCameraNotFound, query, overviewID, qrID, stationID)
}

func (s *StationStorage) update(ctx context.Context, op string, fkErr error, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("%s: %w", op, fkErr)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrStationNotFound)
	}

	return nil
}

func (s *StationStorage) one(ctx context.Context, op, query string, args ...any) (models.Station, error) {
	var row stationRow

	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Station{}, fmt.Errorf("%s: %w", op, errs.ErrStationNotFound)
		}

		return models.Station{}, fmt.Errorf("%s: %w", op, err)
	}

	return row.station(), nil
}

func (s *StationStorage) many(ctx context.Context, op, query string, args ...any) ([]models.Station, error) {
	var rows []stationRow

	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stations := make([]models.Station, 0, len(rows))
	for _, r := range rows {
		stations = append(stations, r.station())
	}

	return stations, nil
}
