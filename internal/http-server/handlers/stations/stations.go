package stationshandler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/http-server/handlers"
	authmiddleware "github.com/zanzhit/station_recorder/internal/http-server/middleware/auth"
	"github.com/zanzhit/station_recorder/internal/lib/api/response"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
)

type StationHandler struct {
	log      *slog.Logger
	stations Stations
}

type Stations interface {
	Stations(ctx context.Context) ([]models.Station, error)
	CreateStation(ctx context.Context, name string) (models.Station, error)
	Occupy(ctx context.Context, stationID int, user models.User) (models.Station, error)
	Release(ctx context.Context, stationID int, requester models.User, force bool) error
	SetCameras(ctx context.Context, stationID int, overviewID, qrID *int) (models.Station, error)
	DeleteStation(ctx context.Context, stationID int) error
}

type CreateRequest struct {
	Name string `json:"name" validate:"required"`
}

type StationRequest struct {
	StationID int `json:"station_id" validate:"required,gt=0"`
}

type CamerasRequest struct {
	StationID        int  `json:"station_id" validate:"required,gt=0"`
	OverviewCameraID *int `json:"overview_camera_id"`
	QrCameraID       *int `json:"qr_camera_id"`
}

func New(log *slog.Logger, stations Stations) *StationHandler {
	return &StationHandler{
		log:      log,
		stations: stations,
	}
}

func (h *StationHandler) Stations(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.stations.Stations"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	stations, err := h.stations.Stations(r.Context())
	if err != nil {
		log.Error("failed to get stations", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to get stations", middleware.GetReqID(r.Context())))

		return
	}

	if stations == nil {
		stations = []models.Station{}
	}

	render.JSON(w, r, stations)
}

func (h *StationHandler) CreateStation(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.stations.CreateStation"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req CreateRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	st, err := h.stations.CreateStation(r.Context(), req.Name)
	if err != nil {
		h.fail(w, r, log, err, "failed to create station")

		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, st)
}

func (h *StationHandler) Occupy(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.stations.Occupy"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req StationRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	user, ok := authmiddleware.UserFrom(r.Context())
	if !ok {
		log.Error("user not found in context")

		handlers.Error(w, r, http.StatusUnauthorized, response.Error("user not found", ""))

		return
	}

	st, err := h.stations.Occupy(r.Context(), req.StationID, user)
	if err != nil {
		h.fail(w, r, log, err, "failed to occupy station")

		return
	}

	render.JSON(w, r, st)
}

func (h *StationHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.release(w, r, false)
}

func (h *StationHandler) ForceRelease(w http.ResponseWriter, r *http.Request) {
	h.release(w, r, true)
}

func (h *StationHandler) release(w http.ResponseWriter, r *http.Request, force bool) {
	const op = "handlers.stations.Release"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Bool("force", force),
	)

	var req StationRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	user, ok := authmiddleware.UserFrom(r.Context())
	if !ok {
		log.Error("user not found in context")

		handlers.Error(w, r, http.StatusUnauthorized, response.Error("user not found", ""))

		return
	}

	if err := h.stations.Release(r.Context(), req.StationID, user, force); err != nil {
		h.fail(w, r, log, err, "failed to release station")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *StationHandler) SetCameras(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.stations.SetCameras"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req CamerasRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	st, err := h.stations.SetCameras(r.Context(), req.StationID, req.OverviewCameraID, req.QrCameraID)
	if err != nil {
		h.fail(w, r, log, err, "failed to set cameras")

		return
	}

	render.JSON(w, r, st)
}

// DeleteStation stops the station's recording, releases it and removes it.
func (h *StationHandler) DeleteStation(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.stations.DeleteStation"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		handlers.Error(w, r, http.StatusBadRequest, response.Error("invalid station id", ""))

		return
	}

	if err := h.stations.DeleteStation(r.Context(), id); err != nil {
		h.fail(w, r, log, err, "failed to delete station")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates the body, answering 400 itself when it fails.
func (h *StationHandler) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, req any) bool {
	err := render.DecodeJSON(r.Body, req)
	if err != nil {
		if errors.Is(err, io.EOF) {
			log.Error("request body is empty")

			handlers.Error(w, r, http.StatusBadRequest, response.Error("empty request", ""))

			return false
		}

		log.Error("failed to decode request body", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.Error("failed to decode request", middleware.GetReqID(r.Context())))

		return false
	}

	log.Info("request body decoded", slog.Any("request", req))

	if err := validator.New().Struct(req); err != nil {
		validateErr := err.(validator.ValidationErrors)

		log.Error("invalid request", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.ValidationError(validateErr))

		return false
	}

	return true
}

func (h *StationHandler) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error, msg string) {
	switch {
	case errors.Is(err, errs.ErrStationNotFound):
		handlers.Error(w, r, http.StatusNotFound, response.Error("station not found", ""))
	case errors.Is(err, errs.ErrCameraNotFound):
		handlers.Error(w, r, http.StatusNotFound, response.Error("camera not found", ""))
	case errors.Is(err, errs.ErrUserNotFound):
		handlers.Error(w, r, http.StatusNotFound, response.Error("user not found", ""))
	case errors.Is(err, errs.ErrStationOccupied):
		handlers.Error(w, r, http.StatusConflict, response.Error("station is occupied by another operator", ""))
	case errors.Is(err, errs.ErrStationExists):
		handlers.Error(w, r, http.StatusConflict, response.Error("station already exists", ""))
	case errors.Is(err, errs.ErrNotStationOccupant):
		handlers.Error(w, r, http.StatusForbidden, response.Error("you do not occupy this station", ""))
	case errors.Is(err, errs.ErrInvalidStation):
		handlers.Error(w, r, http.StatusBadRequest, response.Error("station name is required", ""))
	default:
		log.Error(msg, sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error(msg, middleware.GetReqID(r.Context())))
	}
}
