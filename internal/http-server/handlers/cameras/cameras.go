package camerashandler

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
	"github.com/zanzhit/station_recorder/internal/lib/api/response"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
)

type CameraHandler struct {
	log    *slog.Logger
	camera Camera
}

type Camera interface {
	SaveCamera(ctx context.Context, name, streamURL string, check bool) (models.Camera, error)
	Cameras(ctx context.Context) ([]models.Camera, error)
	Camera(ctx context.Context, id int) (models.Camera, error)
	UpdateCamera(ctx context.Context, id int, name, streamURL string, check bool) (models.Camera, error)
	DeleteCamera(ctx context.Context, id int) error
}

type Request struct {
	Name    string `json:"name" validate:"required"`
	RtspURL string `json:"rtsp_url" validate:"required"`
	// Check requires the camera to answer before saving it.
	Check bool `json:"check"`
}

func New(
	log *slog.Logger,
	camera Camera,
) *CameraHandler {
	return &CameraHandler{
		log:    log,
		camera: camera,
	}
}

func (h *CameraHandler) SaveCamera(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.SaveCamera"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	req, ok := decode(w, r, log)
	if !ok {
		return
	}

	cam, err := h.camera.SaveCamera(r.Context(), req.Name, req.RtspURL, req.Check)
	if err != nil {
		fail(w, r, log, err, "failed to save new camera")

		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, cam)
}

func (h *CameraHandler) Camera(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.Camera"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := cameraID(w, r)
	if !ok {
		return
	}

	cam, err := h.camera.Camera(r.Context(), id)
	if err != nil {
		fail(w, r, log, err, "failed to get camera")

		return
	}

	render.JSON(w, r, cam)
}

func (h *CameraHandler) UpdateCamera(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.UpdateCamera"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := cameraID(w, r)
	if !ok {
		return
	}

	req, ok := decode(w, r, log)
	if !ok {
		return
	}

	cam, err := h.camera.UpdateCamera(r.Context(), id, req.Name, req.RtspURL, req.Check)
	if err != nil {
		fail(w, r, log, err, "failed to update camera")

		return
	}

	render.JSON(w, r, cam)
}

func (h *CameraHandler) DeleteCamera(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.DeleteCamera"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := cameraID(w, r)
	if !ok {
		return
	}

	if err := h.camera.DeleteCamera(r.Context(), id); err != nil {
		fail(w, r, log, err, "failed to delete camera")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, log *slog.Logger) (Request, bool) {
	var req Request
	err := render.DecodeJSON(r.Body, &req)
	if err != nil {
		if errors.Is(err, io.EOF) {
			log.Error("request body is empty")

			handlers.Error(w, r, http.StatusBadRequest, response.Error("empty request", ""))

			return Request{}, false
		}

		log.Error("failed to decode request body", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.Error("failed to decode request", middleware.GetReqID(r.Context())))

		return Request{}, false
	}

	log.Info("request body decoded", slog.Any("request", req))

	if err := validator.New().Struct(req); err != nil {
		validateErr := err.(validator.ValidationErrors)

		log.Error("invalid request", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.ValidationError(validateErr))

		return Request{}, false
	}

	return req, true
}

func cameraID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		handlers.Error(w, r, http.StatusBadRequest, response.Error("invalid camera id", ""))

		return 0, false
	}

	return id, true
}

func fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error, msg string) {
	switch {
	case errors.Is(err, errs.ErrCameraNotFound):
		handlers.Error(w, r, http.StatusNotFound, response.Error("camera not found", ""))
	case errors.Is(err, errs.ErrCameraAlreadyExists):
		log.Warn("camera already exists", sl.Err(err))

		handlers.Error(w, r, http.StatusConflict, response.Error("camera already exists", ""))
	case errors.Is(err, errs.ErrInvalidStreamURL):
		handlers.Error(w, r, http.StatusBadRequest, response.Error("invalid rtsp_url", ""))
	case errors.Is(err, errs.ErrCameraIsNotAvailable):
		handlers.Error(w, r, http.StatusBadGateway, response.Error("camera is not available", ""))
	default:
		log.Error(msg, sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error(msg, middleware.GetReqID(r.Context())))
	}
}

func (h *CameraHandler) Cameras(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.Cameras"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	cams, err := h.camera.Cameras(r.Context())
	if err != nil {
		log.Error("failed to get cameras", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to get cameras", middleware.GetReqID(r.Context())))

		return
	}

	if cams == nil {
		cams = []models.Camera{}
	}

	render.JSON(w, r, cams)
}
