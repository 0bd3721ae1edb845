package recordhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/http-server/handlers"
	authmiddleware "github.com/zanzhit/station_recorder/internal/http-server/middleware/auth"
	"github.com/zanzhit/station_recorder/internal/lib/api/response"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
	"github.com/zanzhit/station_recorder/internal/services/scan"
	stationservice "github.com/zanzhit/station_recorder/internal/services/stations"
)

type RecordHandler struct {
	log      *slog.Logger
	recorder Recorder
}

type Recorder interface {
	Scan(ctx context.Context, req stationservice.ScanRequest) (stationservice.Result, error)
	Stop(ctx context.Context, stationName string, requester *models.User) (stationservice.Result, error)
	RecordingStatus(ctx context.Context) (map[string]string, error)
	Sessions(ctx context.Context, filter models.SessionFilter) ([]models.RecordingSession, error)
	ExportSessions(ctx context.Context, filter models.SessionFilter) ([]models.RecordingSession, error)
	DeleteSession(ctx context.Context, id string) error
}

func New(log *slog.Logger, recorder Recorder) *RecordHandler {
	return &RecordHandler{
		log:      log,
		recorder: recorder,
	}
}

// Mode is the scan origin. Scanner clients send either "manual"/"automated"
// or the numbers 0/1.
type Mode string

func (m *Mode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = Mode(s)

		return nil
	}

	if bytes.Equal(data, []byte("null")) {
		*m = ""

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*m = Mode(n.String())

	return nil
}

type ScanRequest struct {
	Code         string `json:"code" validate:"required"`
	StationName  string `json:"station_name" validate:"required"`
	Mode         Mode   `json:"mode"`
	StreamSource string `json:"stream_source"`
}

type StopRequest struct {
	StationName string `json:"station_name" validate:"required"`
}

func (h *RecordHandler) Scan(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.record.Scan"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req ScanRequest
	err := render.DecodeJSON(r.Body, &req)
	if err != nil {
		if errors.Is(err, io.EOF) {
			log.Error("request body is empty")

			handlers.Error(w, r, http.StatusBadRequest, response.Error("empty request", ""))

			return
		}

		log.Error("failed to decode request body", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.Error("failed to decode request", middleware.GetReqID(r.Context())))

		return
	}

	log.Info("request body decoded", slog.Any("request", req))

	if err := validator.New().Struct(req); err != nil {
		validateErr := err.(validator.ValidationErrors)

		log.Error("invalid request", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.ValidationError(validateErr))

		return
	}

	scanReq := stationservice.ScanRequest{
		Code:         req.Code,
		StationName:  req.StationName,
		Origin:       scan.ParseOrigin(string(req.Mode)),
		StreamSource: req.StreamSource,
	}
	if user, ok := authmiddleware.UserFrom(r.Context()); ok {
		scanReq.Requester = &user
	}

	res, err := h.recorder.Scan(r.Context(), scanReq)
	if err != nil {
		log.Warn("scan failed", sl.Err(err))
	}

	h.writeResult(w, r, res, err)
}

func (h *RecordHandler) Stop(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.record.Stop"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req StopRequest
	err := render.DecodeJSON(r.Body, &req)
	if err != nil {
		if errors.Is(err, io.EOF) {
			log.Error("request body is empty")

			handlers.Error(w, r, http.StatusBadRequest, response.Error("empty request", ""))

			return
		}

		log.Error("failed to decode request body", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.Error("failed to decode request", middleware.GetReqID(r.Context())))

		return
	}

	if err := validator.New().Struct(req); err != nil {
		validateErr := err.(validator.ValidationErrors)

		log.Error("invalid request", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.ValidationError(validateErr))

		return
	}

	var requester *models.User
	if user, ok := authmiddleware.UserFrom(r.Context()); ok {
		requester = &user
	}

	res, err := h.recorder.Stop(r.Context(), req.StationName, requester)
	if err != nil {
		log.Warn("stop failed", sl.Err(err))
	}

	h.writeResult(w, r, res, err)
}

// writeResult renders the action body with the status the error maps to.
// Spawn failures keep 200 so the scanner shows the error action.
func (h *RecordHandler) writeResult(w http.ResponseWriter, r *http.Request, res stationservice.Result, err error) {
	status := http.StatusOK

	switch {
	case err == nil, errors.Is(err, errs.ErrProcessSpawn):
	case errors.Is(err, errs.ErrInvalidScan), errors.Is(err, errs.ErrNoStreamSource):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrStationNotFound):
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
	}

	body := response.Action{
		Action:        string(res.Action),
		Message:       res.Message,
		RecordingCode: res.RecordingCode,
		FilePath:      res.FilePath,
	}
	if status == http.StatusInternalServerError {
		body.RequestID = middleware.GetReqID(r.Context())
	}

	render.Status(r, status)
	render.JSON(w, r, body)
}

func (h *RecordHandler) RecordingStatus(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.record.RecordingStatus"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	status, err := h.recorder.RecordingStatus(r.Context())
	if err != nil {
		log.Error("failed to get recording status", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to get recording status", middleware.GetReqID(r.Context())))

		return
	}

	render.JSON(w, r, status)
}
