package recordhandler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
)

func TestParseFilter(t *testing.T) {
	q := url.Values{
		"code":      {"order"},
		"station":   {"S1"},
		"camera_id": {"12"},
		"date_from": {"2026-03-10"},
		"date_to":   {"2026-03-11"},
		"limit":     {"20"},
	}

	filter, err := parseFilter(q)
	require.NoError(t, err)

	assert.Equal(t, "order", filter.Code)
	assert.Equal(t, "S1", filter.StationName)
	assert.Equal(t, 20, filter.Limit)
	require.NotNil(t, filter.CameraID)
	assert.Equal(t, 12, *filter.CameraID)
	require.NotNil(t, filter.From)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local), *filter.From)
	require.NotNil(t, filter.To)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.Local), *filter.To)
}

func TestParseFilter_Timestamps(t *testing.T) {
	filter, err := parseFilter(url.Values{"date_to": {"2026-03-11T08:30:00Z"}})
	require.NoError(t, err)

	require.NotNil(t, filter.To)
	assert.True(t, filter.To.Equal(time.Date(2026, 3, 11, 8, 30, 0, 0, time.UTC)))
	assert.Nil(t, filter.From)
	assert.Nil(t, filter.CameraID)
}

func TestParseFilter_Rejects(t *testing.T) {
	for _, q := range []url.Values{
		{"limit": {"-1"}},
		{"camera_id": {"x"}},
		{"camera_id": {"0"}},
		{"date_from": {"10/03/2026"}},
		{"date_to": {"yesterday"}},
	} {
		_, err := parseFilter(q)
		assert.Error(t, err, q.Encode())
	}
}

func TestSessions_Filters(t *testing.T) {
	rec := &fakeRecorder{}
	h := newRouter(rec)

	w := do(t, h, http.MethodGet, "/record/sessions?camera_id=3&date_from=2026-03-10", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, rec.filter.CameraID)
	assert.Equal(t, 3, *rec.filter.CameraID)
	require.NotNil(t, rec.filter.From)

	w = do(t, h, http.MethodGet, "/record/sessions?date_to=nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportSessions(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	end := start.Add(90 * time.Second)

	rec := &fakeRecorder{sessions: []models.RecordingSession{
		{ID: "a", Code: "000123456", RecordedBy: "nv007", StationName: "S1", StartTime: start, EndTime: &end, FilePath: "/videos/S1/a.mp4"},
		{ID: "b", Code: "ORDER,77", RecordedBy: "nv008", StationName: "S2", StartTime: start, FilePath: "/videos/S2/b.mp4"},
	}}
	h := newRouter(rec)

	w := do(t, h, http.MethodGet, "/record/sessions/export?station=S1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment;")
	assert.Equal(t, "S1", rec.filter.StationName)

	rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, []string{"1", "000123456", "nv007", "S1", "2026-03-10 09:00:00", "2026-03-10 09:01:30", "/videos/S1/a.mp4"}, rows[1])
	assert.Equal(t, "ORDER,77", rows[2][1])
	assert.Equal(t, "recording", rows[2][5])
}

func TestExportSessions_Failure(t *testing.T) {
	h := newRouter(&fakeRecorder{err: fmt.Errorf("op: %w", errs.ErrWriteToDB)})

	w := do(t, h, http.MethodGet, "/record/sessions/export", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Header().Get("Content-Type"), "text/csv")
}

func TestDeleteSession(t *testing.T) {
	rec := &fakeRecorder{}

	w := do(t, newRouter(rec), http.MethodDelete, "/record/sessions/abc123", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "abc123", rec.deleted)

	w = do(t, newRouter(&fakeRecorder{err: fmt.Errorf("op: %w", errs.ErrSessionNotFound)}), http.MethodDelete, "/record/sessions/abc123", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, newRouter(&fakeRecorder{err: errs.ErrWriteToDB}), http.MethodDelete, "/record/sessions/abc123", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
