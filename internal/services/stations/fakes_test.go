package stationservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/services/capture"
	"github.com/zanzhit/station_recorder/internal/services/scan"
)

// memStore keeps stations, users and sessions in memory. Create fails when a
// station already has an open session, like the partial unique index does.
type memStore struct {
	mu        sync.Mutex
	stations  map[int]*models.Station
	users     []models.User
	sessions  []models.RecordingSession
	createErr error
}

func newMemStore() *memStore {
	return &memStore{stations: make(map[int]*models.Station)}
}

func (m *memStore) addStation(st models.Station) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st.ID == 0 {
		st.ID = m.nextID()
	}
	m.stations[st.ID] = &st
}

func (m *memStore) addUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users = append(m.users, u)
}

func (m *memStore) nextID() int {
	id := 1
	for existing := range m.stations {
		if existing >= id {
			id = existing + 1
		}
	}

	return id
}

func (m *memStore) Station(_ context.Context, name string) (models.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.stations {
		if strings.EqualFold(st.Name, strings.TrimSpace(name)) {
			return *st, nil
		}
	}

	return models.Station{}, errs.ErrStationNotFound
}

func (m *memStore) StationByID(_ context.Context, id int) (models.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stations[id]
	if !ok {
		return models.Station{}, errs.ErrStationNotFound
	}

	return *st, nil
}

func (m *memStore) Stations(_ context.Context) ([]models.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Station, 0, len(m.stations))
	for _, st := range m.stations {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *memStore) StationsByOccupant(_ context.Context, userID int) ([]models.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Station
	for _, st := range m.stations {
		if st.CurrentUser != nil && st.CurrentUser.ID == userID {
			out = append(out, *st)
		}
	}

	return out, nil
}

func (m *memStore) SetOccupant(_ context.Context, stationID int, userID *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stations[stationID]
	if !ok {
		return errs.ErrStationNotFound
	}

	if userID == nil {
		st.CurrentUser = nil

		return nil
	}

	for _, u := range m.users {
		if u.Id == *userID {
			st.CurrentUser = &models.Operator{ID: u.Id, Username: u.Username, FullName: u.FullName}

			return nil
		}
	}

	return errs.ErrUserNotFound
}

func (m *memStore) SaveStation(_ context.Context, name string) (models.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.stations {
		if strings.EqualFold(st.Name, name) {
			return models.Station{}, errs.ErrStationExists
		}
	}

	st := models.Station{ID: m.nextID(), Name: name}
	m.stations[st.ID] = &st

	return st, nil
}

func (m *memStore) SetCameras(_ context.Context, stationID int, overviewID, qrID *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stations[stationID]
	if !ok {
		return errs.ErrStationNotFound
	}

	camera := func(id *int) *models.Camera {
		if id == nil {
			return nil
		}

		return &models.Camera{ID: *id, Name: fmt.Sprintf("cam-%d", *id), RtspURL: fmt.Sprintf("rtsp://cam/%d", *id)}
	}

	st.OverviewCamera = camera(overviewID)
	st.QrCamera = camera(qrID)

	return nil
}

func (m *memStore) UserByBadge(_ context.Context, key string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if scan.BadgeKey(u.EmployeeCode) == key || scan.BadgeKey(u.Username) == key {
			return u, nil
		}
	}

	return models.User{}, errs.ErrUserNotFound
}

func (m *memStore) Create(_ context.Context, s models.RecordingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}

	for _, existing := range m.sessions {
		if existing.IsOpen() && existing.StationName == s.StationName {
			return errs.ErrSessionAlreadyOpen
		}
	}

	m.sessions = append(m.sessions, s)

	return nil
}

func (m *memStore) Open(_ context.Context, stationName string) (models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.IsOpen() && s.StationName == stationName {
			return s, nil
		}
	}

	return models.RecordingSession{}, errs.ErrSessionNotFound
}

func (m *memStore) OpenAll(_ context.Context) ([]models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.RecordingSession
	for _, s := range m.sessions {
		if s.IsOpen() {
			out = append(out, s)
		}
	}

	return out, nil
}

func (m *memStore) Close(_ context.Context, id string, endTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.sessions {
		if m.sessions[i].ID == id && m.sessions[i].IsOpen() {
			end := endTime
			m.sessions[i].EndTime = &end

			return nil
		}
	}

	return errs.ErrSessionNotFound
}

func (m *memStore) List(_ context.Context, filter models.SessionFilter) ([]models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.RecordingSession
	for i := len(m.sessions) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		s := m.sessions[i]
		if filter.Code != "" && !strings.Contains(strings.ToLower(s.Code), strings.ToLower(filter.Code)) {
			continue
		}
		if filter.StationName != "" && !strings.EqualFold(s.StationName, filter.StationName) {
			continue
		}
		if filter.CameraID != nil && (s.CameraID == nil || *s.CameraID != *filter.CameraID) {
			continue
		}
		if filter.From != nil && s.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !s.StartTime.Before(*filter.To) {
			continue
		}
		out = append(out, s)
	}

	return out, nil
}

func (m *memStore) Session(_ context.Context, id string) (models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.ID == id {
			return s, nil
		}
	}

	return models.RecordingSession{}, errs.ErrSessionNotFound
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.sessions {
		if s.ID == id {
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)

			return nil
		}
	}

	return errs.ErrSessionNotFound
}

func (m *memStore) DeleteStation(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stations[id]; !ok {
		return errs.ErrStationNotFound
	}
	delete(m.stations, id)

	return nil
}

func (m *memStore) openCount(station string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.sessions {
		if s.IsOpen() && s.StationName == station {
			n++
		}
	}

	return n
}

func (m *memStore) occupant(stationID int) *models.Operator {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stations[stationID].CurrentUser
}

// fakeRecorder tracks one fake process per key and fails the test run through
// overlap when two starts for a key ever interleave.
type fakeRecorder struct {
	mu        sync.Mutex
	running   map[string]string
	dead      map[string]bool
	starts    []string
	stops     []string
	startErr  error
	overlap   bool
	inStart   map[string]bool
	removed   []string
	removeErr error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		running: make(map[string]string),
		dead:    make(map[string]bool),
		inStart: make(map[string]bool),
	}
}

func (r *fakeRecorder) StartRecording(stationKey, streamSource, code, stationName, operatorName string) (string, error) {
	r.mu.Lock()
	if r.inStart[stationKey] {
		r.overlap = true
	}
	r.inStart[stationKey] = true
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inStart[stationKey] = false

	if r.startErr != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrProcessSpawn, r.startErr)
	}

	if operatorName == "" {
		operatorName = "UnknownUser"
	}

	r.running[stationKey] = code
	delete(r.dead, stationKey)
	r.starts = append(r.starts, stationKey+":"+code+":"+streamSource)

	return fmt.Sprintf("/videos/%s/%s_%s.mp4", stationName, operatorName, code), nil
}

func (r *fakeRecorder) StopRecording(stationKey string) capture.StopResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.running[stationKey]
	if !ok {
		return capture.StopResult{Outcome: capture.StopNotRunning}
	}

	delete(r.running, stationKey)
	r.stops = append(r.stops, stationKey+":"+code)

	if r.dead[stationKey] {
		delete(r.dead, stationKey)

		return capture.StopResult{Outcome: capture.StopAlreadyExited, Code: code}
	}

	return capture.StopResult{Outcome: capture.StopGraceful, Code: code}
}

func (r *fakeRecorder) Alive(stationKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.running[stationKey]

	return ok && !r.dead[stationKey]
}

func (r *fakeRecorder) StopAll() map[string]capture.StopResult {
	r.mu.Lock()
	keys := make([]string, 0, len(r.running))
	for k := range r.running {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	out := make(map[string]capture.StopResult)
	for _, k := range keys {
		out[k] = r.StopRecording(k)
	}

	return out
}

func (r *fakeRecorder) RemoveFile(relPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removed = append(r.removed, relPath)

	return r.removeErr
}

func (r *fakeRecorder) isRunning(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.running[key]

	return ok
}

func (r *fakeRecorder) kill(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dead[key] = true
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, e)
}

func (p *recordingPublisher) actions() []scan.Action {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]scan.Action, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}

	return out
}

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
