package recordhandler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/http-server/handlers"
	"github.com/zanzhit/station_recorder/internal/lib/api/response"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
)

const (
	dateLayout   = "2006-01-02"
	exportLayout = "2006-01-02 15:04:05"
)

var exportHeader = []string{"no", "code", "recorded_by", "station", "start_time", "end_time", "file_path"}

func (h *RecordHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.record.Sessions"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		log.Warn("invalid session filter", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.Error(err.Error(), ""))

		return
	}

	sessions, err := h.recorder.Sessions(r.Context(), filter)
	if err != nil {
		log.Error("failed to get sessions", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to get sessions", middleware.GetReqID(r.Context())))

		return
	}

	if sessions == nil {
		sessions = []models.RecordingSession{}
	}

	render.JSON(w, r, sessions)
}

// ExportSessions writes the filtered history as a CSV attachment. Open
// sessions have "recording" as their end time.
func (h *RecordHandler) ExportSessions(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.record.ExportSessions"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		log.Warn("invalid session filter", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.Error(err.Error(), ""))

		return
	}

	sessions, err := h.recorder.ExportSessions(r.Context(), filter)
	if err != nil {
		log.Error("failed to get sessions", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to export sessions", middleware.GetReqID(r.Context())))

		return
	}

	fileName := fmt.Sprintf("recordings_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))

	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(exportHeader); err != nil {
		log.Error("failed to write csv header", sl.Err(err))

		return
	}

	for i, s := range sessions {
		end := "recording"
		if s.EndTime != nil {
			end = s.EndTime.Local().Format(exportLayout)
		}

		row := []string{
			strconv.Itoa(i + 1),
			s.Code,
			s.RecordedBy,
			s.StationName,
			s.StartTime.Local().Format(exportLayout),
			end,
			s.FilePath,
		}
		if err := cw.Write(row); err != nil {
			log.Error("failed to write csv row", sl.Err(err))

			return
		}
	}

	log.Info("sessions exported", slog.Int("rows", len(sessions)))
}

// DeleteSession removes a recording with its file.
func (h *RecordHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.record.DeleteSession"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id := chi.URLParam(r, "id")
	if id == "" {
		handlers.Error(w, r, http.StatusBadRequest, response.Error("session id is required", ""))

		return
	}

	if err := h.recorder.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, errs.ErrSessionNotFound) {
			handlers.Error(w, r, http.StatusNotFound, response.Error("recording session not found", ""))

			return
		}

		log.Error("failed to delete session", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to delete session", middleware.GetReqID(r.Context())))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseFilter reads code, station, camera_id, date_from, date_to and limit.
// Dates are either days in local time or RFC 3339 timestamps; a day given as
// date_to includes that whole day.
func parseFilter(q url.Values) (models.SessionFilter, error) {
	filter := models.SessionFilter{
		Code:        q.Get("code"),
		StationName: q.Get("station"),
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return models.SessionFilter{}, errors.New("invalid limit parameter")
		}
		filter.Limit = limit
	}

	if v := q.Get("camera_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			return models.SessionFilter{}, errors.New("invalid camera_id parameter")
		}
		filter.CameraID = &id
	}

	if v := q.Get("date_from"); v != "" {
		from, _, err := parseDate(v)
		if err != nil {
			return models.SessionFilter{}, errors.New("invalid date_from parameter")
		}
		filter.From = &from
	}

	if v := q.Get("date_to"); v != "" {
		to, dayOnly, err := parseDate(v)
		if err != nil {
			return models.SessionFilter{}, errors.New("invalid date_to parameter")
		}
		if dayOnly {
			to = to.AddDate(0, 0, 1)
		}
		filter.To = &to
	}

	return filter, nil
}

func parseDate(v string) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(dateLayout, v, time.Local); err == nil {
		return t, true, nil
	}

	t, err := time.Parse(time.RFC3339, v)

	return t, false, err
}
