// Package stationservice sequences scan decisions with their side effects:
// capture processes, the recording session log and station occupancy. Every
// read-decide-mutate cycle for a station runs under that station's lock.
package stationservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v3"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/lib/keylock"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
	"github.com/zanzhit/station_recorder/internal/services/capture"
	"github.com/zanzhit/station_recorder/internal/services/scan"
)

const (
	defaultSessionsLimit = 50
	maxSessionsLimit     = 500
	maxExportRows        = 10000
)

type Orchestrator struct {
	log        *slog.Logger
	classifier *scan.Classifier
	recorder   Recorder
	stations   StationStore
	users      UserProvider
	sessions   SessionStore
	publisher  Publisher
	metrics    Metrics
	locks      *keylock.KeyedMutex
	now        func() time.Time
}

type Recorder interface {
	StartRecording(stationKey, streamSource, code, stationName, operatorName string) (string, error)
	StopRecording(stationKey string) capture.StopResult
	Alive(stationKey string) bool
	StopAll() map[string]capture.StopResult
	// RemoveFile deletes a recording by the path StartRecording returned.
	RemoveFile(relPath string) error
}

type StationStore interface {
	Station(ctx context.Context, name string) (models.Station, error)
	StationByID(ctx context.Context, id int) (models.Station, error)
	Stations(ctx context.Context) ([]models.Station, error)
	StationsByOccupant(ctx context.Context, userID int) ([]models.Station, error)
	SetOccupant(ctx context.Context, stationID int, userID *int) error
	SaveStation(ctx context.Context, name string) (models.Station, error)
	SetCameras(ctx context.Context, stationID int, overviewID, qrID *int) error
	DeleteStation(ctx context.Context, id int) error
}

type UserProvider interface {
	// UserByBadge looks a user up by a BadgeKey-normalized employee code or
	// username. Unknown keys return errs.ErrUserNotFound.
	UserByBadge(ctx context.Context, key string) (models.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, s models.RecordingSession) error
	// Open returns the open session of a station or errs.ErrSessionNotFound.
	Open(ctx context.Context, stationName string) (models.RecordingSession, error)
	OpenAll(ctx context.Context) ([]models.RecordingSession, error)
	Close(ctx context.Context, id string, endTime time.Time) error
	List(ctx context.Context, filter models.SessionFilter) ([]models.RecordingSession, error)
	Session(ctx context.Context, id string) (models.RecordingSession, error)
	Delete(ctx context.Context, id string) error
}

// Publisher receives every executed decision, e.g. the live websocket hub.
type Publisher interface {
	Publish(e Event)
}

type Metrics interface {
	ScanHandled(action, origin string)
}

type ScanRequest struct {
	Code        string
	StationName string
	Origin      scan.Origin
	// StreamSource is used when the station has no camera assigned.
	StreamSource string
	// Requester is the authenticated user behind the scan, nil for the
	// vision feed.
	Requester *models.User
}

type Result struct {
	Action        scan.Action `json:"action"`
	Message       string      `json:"message"`
	RecordingCode string      `json:"recording_code,omitempty"`
	FilePath      string      `json:"file_path,omitempty"`
}

// Event is what live observers see for every handled scan or occupancy change.
type Event struct {
	Station  string      `json:"station"`
	Action   scan.Action `json:"action"`
	Message  string      `json:"message"`
	Code     string      `json:"code,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Origin   string      `json:"origin"`
	At       time.Time   `json:"at"`
}

func New(
	log *slog.Logger,
	classifier *scan.Classifier,
	recorder Recorder,
	stations StationStore,
	users UserProvider,
	sessions SessionStore,
	publisher Publisher,
	metrics Metrics,
) *Orchestrator {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Orchestrator{
		log:        log,
		classifier: classifier,
		recorder:   recorder,
		stations:   stations,
		users:      users,
		sessions:   sessions,
		publisher:  publisher,
		metrics:    metrics,
		locks:      keylock.New(),
		now:        time.Now,
	}
}

// Scan classifies a scanned code against the station state and applies the
// outcome. Errors carry a Result whose Action is scan.ActionError.
func (o *Orchestrator) Scan(ctx context.Context, req ScanRequest) (Result, error) {
	const op = "service.stations.Scan"

	code := strings.TrimSpace(req.Code)
	name := strings.TrimSpace(req.StationName)

	log := o.log.With(
		slog.String("op", op),
		slog.String("station", name),
		slog.String("code", code),
		slog.String("origin", req.Origin.String()),
	)

	if code == "" || name == "" {
		return errorResult("code and station_name are required"), fmt.Errorf("%s: %w", op, errs.ErrInvalidScan)
	}

	unlock := o.locks.Lock(capture.Key(name))
	defer unlock()

	st, err := o.stations.Station(ctx, name)
	if err != nil {
		if errors.Is(err, errs.ErrStationNotFound) {
			log.Warn("station not found")

			return errorResult("station not found"), fmt.Errorf("%s: %w", op, errs.ErrStationNotFound)
		}

		log.Error("failed to get station", sl.Err(err))

		return errorResult("failed to get station"), fmt.Errorf("%s: %w", op, err)
	}

	active, err := o.openSession(ctx, st.Name)
	if err != nil {
		log.Error("failed to get open session", sl.Err(err))

		return errorResult("failed to get recording state"), fmt.Errorf("%s: %w", op, err)
	}

	badge, err := o.resolveBadge(ctx, code)
	if err != nil {
		log.Error("failed to resolve badge", sl.Err(err))

		return errorResult("failed to resolve badge"), fmt.Errorf("%s: %w", op, err)
	}

	snapshot := scan.Snapshot{Occupant: st.CurrentUser}
	if active != nil {
		snapshot.ActiveCode = active.Code
	}

	d := o.classifier.Classify(scan.Input{
		Code:     code,
		Station:  snapshot,
		Origin:   req.Origin,
		Operator: badge,
	})

	log.Debug("scan classified", slog.String("action", string(d.Action)), slog.Bool("stop_active", d.StopActive))

	res, err := o.execute(ctx, log, st, active, d, badge, req)

	o.metrics.ScanHandled(string(res.Action), req.Origin.String())
	o.publish(st.Name, res, operatorName(st, badge, req.Requester), req.Origin.String())

	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	return res, nil
}

func (o *Orchestrator) execute(
	ctx context.Context,
	log *slog.Logger,
	st models.Station,
	active *models.RecordingSession,
	d scan.Decision,
	badge *models.User,
	req ScanRequest,
) (Result, error) {
	res := Result{Action: d.Action, Message: d.Message, RecordingCode: d.Code}

	if d.StopActive {
		if err := o.stopActive(ctx, log, st, active); err != nil {
			return errorResult("failed to close recording session"), err
		}
	}

	switch d.Action {
	case scan.ActionStationJoin:
		if err := o.stations.SetOccupant(ctx, st.ID, &badge.Id); err != nil {
			log.Error("failed to set occupant", sl.Err(err))

			return errorResult("failed to join station"), err
		}

		log.Info("operator joined station", slog.String("operator", badge.Username))

	case scan.ActionStationLeave:
		if err := o.stations.SetOccupant(ctx, st.ID, nil); err != nil {
			log.Error("failed to clear occupant", sl.Err(err))

			return errorResult("failed to leave station"), err
		}

		log.Info("operator left station", slog.String("operator", badge.Username))

	case scan.ActionStart:
		return o.start(ctx, log, st, d, req)
	}

	return res, nil
}

func (o *Orchestrator) start(ctx context.Context, log *slog.Logger, st models.Station, d scan.Decision, req ScanRequest) (Result, error) {
	source, cameraID := st.StreamSource(strings.TrimSpace(req.StreamSource))
	if source == "" {
		log.Warn("no stream source for station")

		return errorResult("no camera is assigned to the station"), errs.ErrNoStreamSource
	}

	operator := operatorName(st, nil, req.Requester)

	file, err := o.recorder.StartRecording(capture.Key(st.Name), source, d.Code, st.Name, operator)
	if err != nil {
		log.Error("failed to start recording", sl.Err(err))

		return errorResult("failed to start recording"), err
	}

	session := models.RecordingSession{
		ID:          shortuuid.New(),
		Code:        d.Code,
		StationName: st.Name,
		RecordedBy:  operator,
		CameraID:    cameraID,
		FilePath:    file,
		StartTime:   o.now(),
	}

	if err := o.sessions.Create(ctx, session); err != nil {
		log.Error("failed to save recording session, stopping capture", sl.Err(err))

		o.recorder.StopRecording(capture.Key(st.Name))

		return errorResult("failed to save recording session"), err
	}

	log.Info("recording started", slog.String("session_id", session.ID), slog.String("file", file))

	return Result{
		Action:        scan.ActionStart,
		Message:       d.Message,
		RecordingCode: d.Code,
		FilePath:      file,
	}, nil
}

// stopActive stops the station's process and closes its open session. The
// session is closed whatever the stop outcome was.
func (o *Orchestrator) stopActive(ctx context.Context, log *slog.Logger, st models.Station, active *models.RecordingSession) error {
	res := o.recorder.StopRecording(capture.Key(st.Name))
	if res.Warning != nil {
		log.Warn("capture stop warning", slog.String("outcome", res.Outcome.String()), sl.Err(res.Warning))
	}

	if active == nil {
		return nil
	}

	if err := o.sessions.Close(ctx, active.ID, o.now()); err != nil {
		log.Error("failed to close recording session", slog.String("session_id", active.ID), sl.Err(err))

		return err
	}

	log.Info("recording stopped",
		slog.String("session_id", active.ID),
		slog.String("closed_code", active.Code),
		slog.String("outcome", res.Outcome.String()),
	)

	return nil
}

// Stop is the explicit stop of a station's recording.
func (o *Orchestrator) Stop(ctx context.Context, stationName string, requester *models.User) (Result, error) {
	const op = "service.stations.Stop"

	name := strings.TrimSpace(stationName)

	log := o.log.With(
		slog.String("op", op),
		slog.String("station", name),
	)

	if name == "" {
		return errorResult("station_name is required"), fmt.Errorf("%s: %w", op, errs.ErrInvalidScan)
	}

	unlock := o.locks.Lock(capture.Key(name))
	defer unlock()

	st, err := o.stations.Station(ctx, name)
	if err != nil {
		return errorResult("station not found"), fmt.Errorf("%s: %w", op, err)
	}

	active, err := o.openSession(ctx, st.Name)
	if err != nil {
		log.Error("failed to get open session", sl.Err(err))

		return errorResult("failed to get recording state"), fmt.Errorf("%s: %w", op, err)
	}

	if active == nil {
		// a process without a session can only be a leftover
		o.recorder.StopRecording(capture.Key(st.Name))

		return Result{Action: scan.ActionIgnore, Message: "nothing to stop"}, nil
	}

	if err := o.stopActive(ctx, log, st, active); err != nil {
		return errorResult("failed to close recording session"), fmt.Errorf("%s: %w", op, err)
	}

	res := Result{Action: scan.ActionStop, Message: "recording stopped", RecordingCode: active.Code}
	o.publish(st.Name, res, operatorName(st, nil, requester), scan.OriginManual.String())

	return res, nil
}

// RecordingStatus maps every station with an open session to its code.
func (o *Orchestrator) RecordingStatus(ctx context.Context) (map[string]string, error) {
	const op = "service.stations.RecordingStatus"

	open, err := o.sessions.OpenAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	status := make(map[string]string, len(open))
	for _, s := range open {
		status[s.StationName] = s.Code
	}

	return status, nil
}

// Occupy puts the user on the station. Occupying a station twice is fine,
// occupying someone else's is errs.ErrStationOccupied.
func (o *Orchestrator) Occupy(ctx context.Context, stationID int, user models.User) (models.Station, error) {
	const op = "service.stations.Occupy"

	log := o.log.With(
		slog.String("op", op),
		slog.Int("station_id", stationID),
		slog.String("operator", user.Username),
	)

	st, unlock, err := o.lockStation(ctx, stationID)
	if err != nil {
		return models.Station{}, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	if st.CurrentUser != nil {
		if st.CurrentUser.ID == user.Id {
			return st, nil
		}

		log.Warn("station is occupied", slog.String("occupant", st.CurrentUser.Username))

		return models.Station{}, fmt.Errorf("%s: %w", op, errs.ErrStationOccupied)
	}

	if err := o.stations.SetOccupant(ctx, st.ID, &user.Id); err != nil {
		log.Error("failed to set occupant", sl.Err(err))

		return models.Station{}, fmt.Errorf("%s: %w", op, err)
	}

	st.CurrentUser = &models.Operator{ID: user.Id, Username: user.Username, FullName: user.FullName}

	log.Info("station occupied")

	o.publish(st.Name, Result{
		Action:  scan.ActionStationJoin,
		Message: fmt.Sprintf("%s joined the station", user.DisplayName()),
	}, user.Username, scan.OriginManual.String())

	return st, nil
}

// Release frees the station, stopping its recording first. Without force
// only the occupant may release.
func (o *Orchestrator) Release(ctx context.Context, stationID int, requester models.User, force bool) error {
	const op = "service.stations.Release"

	log := o.log.With(
		slog.String("op", op),
		slog.Int("station_id", stationID),
		slog.String("requester", requester.Username),
		slog.Bool("force", force),
	)

	st, unlock, err := o.lockStation(ctx, stationID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	if !force && (st.CurrentUser == nil || st.CurrentUser.ID != requester.Id) {
		log.Warn("requester does not occupy the station")

		return fmt.Errorf("%s: %w", op, errs.ErrNotStationOccupant)
	}

	if err := o.releaseLocked(ctx, log, st); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ReleaseOperator frees every station the user occupies. It is the release
// routine of the presence tracker.
func (o *Orchestrator) ReleaseOperator(ctx context.Context, userID int) error {
	const op = "service.stations.ReleaseOperator"

	log := o.log.With(
		slog.String("op", op),
		slog.Int("user_id", userID),
	)

	occupied, err := o.stations.StationsByOccupant(ctx, userID)
	if err != nil {
		log.Error("failed to get occupied stations", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	var errsJoined error

	for _, s := range occupied {
		err := func() error {
			st, unlock, err := o.lockStation(ctx, s.ID)
			if err != nil {
				return err
			}
			defer unlock()

			// someone else may have taken over while we waited for the lock
			if st.CurrentUser == nil || st.CurrentUser.ID != userID {
				return nil
			}

			return o.releaseLocked(ctx, log, st)
		}()
		if err != nil {
			errsJoined = errors.Join(errsJoined, err)
		}
	}

	if errsJoined != nil {
		return fmt.Errorf("%s: %w", op, errsJoined)
	}

	return nil
}

func (o *Orchestrator) releaseLocked(ctx context.Context, log *slog.Logger, st models.Station) error {
	log = log.With(slog.String("station", st.Name))

	active, err := o.openSession(ctx, st.Name)
	if err != nil {
		log.Error("failed to get open session", sl.Err(err))

		return err
	}

	if err := o.stopActive(ctx, log, st, active); err != nil {
		return err
	}

	if st.CurrentUser == nil {
		return nil
	}

	if err := o.stations.SetOccupant(ctx, st.ID, nil); err != nil {
		log.Error("failed to clear occupant", sl.Err(err))

		return err
	}

	log.Info("station released", slog.String("operator", st.CurrentUser.Username))

	o.publish(st.Name, Result{
		Action:  scan.ActionStationLeave,
		Message: fmt.Sprintf("%s left the station", st.CurrentUser.DisplayName()),
	}, st.CurrentUser.Username, scan.OriginManual.String())

	return nil
}

// Sweep closes open sessions whose capture process is gone and returns how
// many it closed.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	const op = "service.stations.Sweep"

	log := o.log.With(slog.String("op", op))

	open, err := o.sessions.OpenAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	closed := 0

	for _, s := range open {
		key := capture.Key(s.StationName)

		ok, err := func() (bool, error) {
			unlock := o.locks.Lock(key)
			defer unlock()

			if o.recorder.Alive(key) {
				return false, nil
			}

			current, err := o.openSession(ctx, s.StationName)
			if err != nil || current == nil || current.ID != s.ID {
				return false, err
			}

			res := o.recorder.StopRecording(key)
			if err := o.sessions.Close(ctx, s.ID, o.now()); err != nil {
				return false, err
			}

			log.Warn("closed session without a live capture process",
				slog.String("station", s.StationName),
				slog.String("session_id", s.ID),
				slog.String("outcome", res.Outcome.String()),
			)

			return true, nil
		}()
		if err != nil {
			log.Error("failed to sweep session", slog.String("session_id", s.ID), sl.Err(err))

			continue
		}
		if ok {
			closed++
		}
	}

	return closed, nil
}

// StopAll stops every recording and closes every open session. Used on
// shutdown.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	const op = "service.stations.StopAll"

	log := o.log.With(slog.String("op", op))

	var errsJoined error

	open, err := o.sessions.OpenAll(ctx)
	if err != nil {
		log.Error("failed to list open sessions", sl.Err(err))

		errsJoined = err
	}

	for _, s := range open {
		key := capture.Key(s.StationName)

		unlock := o.locks.Lock(key)
		res := o.recorder.StopRecording(key)
		if err := o.sessions.Close(ctx, s.ID, o.now()); err != nil {
			errsJoined = errors.Join(errsJoined, err)
		}
		unlock()

		log.Info("recording stopped on shutdown", slog.String("station", s.StationName), slog.String("outcome", res.Outcome.String()))
	}

	for key, res := range o.recorder.StopAll() {
		log.Warn("stopped capture process without a session", slog.String("key", key), slog.String("outcome", res.Outcome.String()))
	}

	if errsJoined != nil {
		return fmt.Errorf("%s: %w", op, errsJoined)
	}

	return nil
}

func (o *Orchestrator) Sessions(ctx context.Context, filter models.SessionFilter) ([]models.RecordingSession, error) {
	const op = "service.stations.Sessions"

	if filter.Limit <= 0 {
		filter.Limit = defaultSessionsLimit
	}
	if filter.Limit > maxSessionsLimit {
		filter.Limit = maxSessionsLimit
	}

	sessions, err := o.sessions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sessions, nil
}

// ExportSessions is Sessions for the export, with a much higher row cap.
func (o *Orchestrator) ExportSessions(ctx context.Context, filter models.SessionFilter) ([]models.RecordingSession, error) {
	const op = "service.stations.ExportSessions"

	if filter.Limit <= 0 || filter.Limit > maxExportRows {
		filter.Limit = maxExportRows
	}

	sessions, err := o.sessions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sessions, nil
}

// DeleteSession removes a recording: its capture process if it is still
// running, its file and its row. A file that cannot be removed is logged
// and the row is deleted anyway.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	const op = "service.stations.DeleteSession"

	log := o.log.With(
		slog.String("op", op),
		slog.String("session_id", id),
	)

	rec, err := o.sessions.Session(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	key := capture.Key(rec.StationName)

	unlock := o.locks.Lock(key)
	defer unlock()

	rec, err = o.sessions.Session(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("station", rec.StationName))

	if rec.IsOpen() {
		res := o.recorder.StopRecording(key)
		if res.Warning != nil {
			log.Warn("capture stop warning", slog.String("outcome", res.Outcome.String()), sl.Err(res.Warning))
		}
	}

	if err := o.recorder.RemoveFile(rec.FilePath); err != nil {
		log.Warn("failed to remove recording file", slog.String("file", rec.FilePath), sl.Err(err))
	}

	if err := o.sessions.Delete(ctx, id); err != nil {
		log.Error("failed to delete recording session", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("recording deleted", slog.String("code", rec.Code))

	if rec.IsOpen() {
		o.publish(rec.StationName, Result{
			Action:        scan.ActionStop,
			Message:       "recording deleted",
			RecordingCode: rec.Code,
		}, "", scan.OriginManual.String())
	}

	return nil
}

func (o *Orchestrator) Stations(ctx context.Context) ([]models.Station, error) {
	const op = "service.stations.Stations"

	stations, err := o.stations.Stations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return stations, nil
}

func (o *Orchestrator) CreateStation(ctx context.Context, name string) (models.Station, error) {
	const op = "service.stations.CreateStation"

	log := o.log.With(
		slog.String("op", op),
		slog.String("station", name),
	)

	name = strings.TrimSpace(name)
	if name == "" {
		return models.Station{}, fmt.Errorf("%s: %w", op, errs.ErrInvalidStation)
	}

	st, err := o.stations.SaveStation(ctx, name)
	if err != nil {
		log.Error("failed to save station", sl.Err(err))

		return models.Station{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("station created", slog.Int("station_id", st.ID))

	return st, nil
}

// SetCameras assigns the overview and QR cameras of a station. A nil id
// clears the slot.
func (o *Orchestrator) SetCameras(ctx context.Context, stationID int, overviewID, qrID *int) (models.Station, error) {
	const op = "service.stations.SetCameras"

	log := o.log.With(
		slog.String("op", op),
		slog.Int("station_id", stationID),
	)

	st, unlock, err := o.lockStation(ctx, stationID)
	if err != nil {
		return models.Station{}, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	if err := o.stations.SetCameras(ctx, st.ID, overviewID, qrID); err != nil {
		log.Error("failed to set cameras", sl.Err(err))

		return models.Station{}, fmt.Errorf("%s: %w", op, err)
	}

	st, err = o.stations.StationByID(ctx, st.ID)
	if err != nil {
		return models.Station{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("station cameras updated")

	return st, nil
}

// DeleteStation releases the station like a forced release would and then
// removes it. Its session history stays.
func (o *Orchestrator) DeleteStation(ctx context.Context, stationID int) error {
	const op = "service.stations.DeleteStation"

	log := o.log.With(
		slog.String("op", op),
		slog.Int("station_id", stationID),
	)

	st, unlock, err := o.lockStation(ctx, stationID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	if err := o.releaseLocked(ctx, log, st); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := o.stations.DeleteStation(ctx, st.ID); err != nil {
		log.Error("failed to delete station", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("station deleted", slog.String("station", st.Name))

	return nil
}

// lockStation loads a station by id, takes its lock and reloads it so the
// returned snapshot is current.
func (o *Orchestrator) lockStation(ctx context.Context, id int) (models.Station, func(), error) {
	st, err := o.stations.StationByID(ctx, id)
	if err != nil {
		return models.Station{}, nil, err
	}

	unlock := o.locks.Lock(capture.Key(st.Name))

	st, err = o.stations.StationByID(ctx, id)
	if err != nil {
		unlock()

		return models.Station{}, nil, err
	}

	return st, unlock, nil
}

func (o *Orchestrator) openSession(ctx context.Context, stationName string) (*models.RecordingSession, error) {
	s, err := o.sessions.Open(ctx, stationName)
	if err != nil {
		if errors.Is(err, errs.ErrSessionNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return &s, nil
}

func (o *Orchestrator) resolveBadge(ctx context.Context, code string) (*models.User, error) {
	key := scan.BadgeKey(code)
	if key == "" {
		return nil, nil
	}

	u, err := o.users.UserByBadge(ctx, key)
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return &u, nil
}

func (o *Orchestrator) publish(station string, res Result, operator, origin string) {
	o.publisher.Publish(Event{
		Station:  station,
		Action:   res.Action,
		Message:  res.Message,
		Code:     res.RecordingCode,
		Operator: operator,
		Origin:   origin,
		At:       o.now(),
	})
}

// operatorName is the name recordings are attributed to: the station
// occupant, then the badge, then the requester.
func operatorName(st models.Station, badge, requester *models.User) string {
	switch {
	case st.CurrentUser != nil:
		return st.CurrentUser.Username
	case badge != nil:
		return badge.Username
	case requester != nil:
		return requester.Username
	default:
		return ""
	}
}

func errorResult(msg string) Result {
	return Result{Action: scan.ActionError, Message: msg}
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

type noopMetrics struct{}

func (noopMetrics) ScanHandled(string, string) {}
