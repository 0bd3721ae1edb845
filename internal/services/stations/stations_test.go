package stationservice

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/services/presence"
	"github.com/zanzhit/station_recorder/internal/services/scan"
)

var (
	nv007 = models.User{Id: 7, Username: "nv007", FullName: "Nguyen Van", EmployeeCode: "NV007", UserType: "user"}
	nv008 = models.User{Id: 8, Username: "nv008", FullName: "Tran Thi", EmployeeCode: "NV008", UserType: "user"}
)

type fixture struct {
	orch      *Orchestrator
	store     *memStore
	recorder  *fakeRecorder
	publisher *recordingPublisher
}

func newFixture(t *testing.T, policy scan.Policy) *fixture {
	t.Helper()

	classifier, err := scan.New("", policy)
	require.NoError(t, err)

	store := newMemStore()
	store.addUser(nv007)
	store.addUser(nv008)
	store.addStation(models.Station{
		ID:             1,
		Name:           "S1",
		OverviewCamera: &models.Camera{ID: 11, Name: "overview", RtspURL: "rtsp://cam/overview"},
		QrCamera:       &models.Camera{ID: 12, Name: "qr", RtspURL: "rtsp://cam/qr"},
	})
	store.addStation(models.Station{ID: 2, Name: "S2"})

	rec := newFakeRecorder()
	pub := &recordingPublisher{}

	return &fixture{
		orch:      New(discardLogger(), classifier, rec, store, store, store, pub, nil),
		store:     store,
		recorder:  rec,
		publisher: pub,
	}
}

func (f *fixture) scan(t *testing.T, code string, origin scan.Origin) Result {
	t.Helper()

	res, err := f.orch.Scan(context.Background(), ScanRequest{Code: code, StationName: "S1", Origin: origin})
	require.NoError(t, err)

	return res
}

func TestScan_Scenarios(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	// join
	res := f.scan(t, "EMP:NV007", scan.OriginManual)
	assert.Equal(t, scan.ActionStationJoin, res.Action)
	require.NotNil(t, f.store.occupant(1))
	assert.Equal(t, nv007.Id, f.store.occupant(1).ID)

	// start
	res = f.scan(t, "000123456", scan.OriginManual)
	assert.Equal(t, scan.ActionStart, res.Action)
	assert.Equal(t, "000123456", res.RecordingCode)
	assert.Equal(t, "/videos/S1/nv007_000123456.mp4", res.FilePath)
	assert.Equal(t, 1, f.store.openCount("S1"))
	assert.True(t, f.recorder.isRunning("s1"))

	open, err := f.store.Open(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "nv007", open.RecordedBy)
	require.NotNil(t, open.CameraID)
	assert.Equal(t, 11, *open.CameraID)

	// same code again, manual
	res = f.scan(t, "000123456", scan.OriginManual)
	assert.Equal(t, scan.ActionStop, res.Action)
	assert.Equal(t, "000123456", res.RecordingCode)
	assert.Equal(t, 0, f.store.openCount("S1"))
	assert.False(t, f.recorder.isRunning("s1"))

	// STOP with nothing running
	res = f.scan(t, "STOP", scan.OriginManual)
	assert.Equal(t, scan.ActionIgnore, res.Action)
	assert.Contains(t, res.Message, "nothing to stop")
}

func TestScan_StopCodeClosesSession(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	f.scan(t, "EMP:NV007", scan.OriginManual)
	f.scan(t, "000123456", scan.OriginManual)

	res := f.scan(t, "STOP", scan.OriginManual)

	assert.Equal(t, scan.ActionStop, res.Action)
	assert.Equal(t, "000123456", res.RecordingCode)
	assert.Equal(t, 0, f.store.openCount("S1"))
	assert.Equal(t, []string{"s1:000123456"}, f.recorder.stops)
}

func TestScan_SameCodeAutomatedIsIgnored(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	f.scan(t, "000123456", scan.OriginAutomated)
	res := f.scan(t, "000123456", scan.OriginAutomated)

	assert.Equal(t, scan.ActionIgnore, res.Action)
	assert.Equal(t, 1, f.store.openCount("S1"))
	assert.True(t, f.recorder.isRunning("s1"))
}

func TestScan_DifferentCodeSwitches(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	f.scan(t, "000123456", scan.OriginManual)
	res := f.scan(t, "000999999", scan.OriginManual)

	assert.Equal(t, scan.ActionStart, res.Action)
	assert.Equal(t, "000999999", res.RecordingCode)
	assert.Contains(t, res.Message, "000123456")
	assert.Equal(t, 1, f.store.openCount("S1"))

	open, err := f.store.Open(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "000999999", open.Code)
	assert.Equal(t, []string{"s1:000123456"}, f.recorder.stops)
}

func TestScan_DifferentCodeRejected(t *testing.T) {
	f := newFixture(t, scan.PolicyReject)

	f.scan(t, "000123456", scan.OriginManual)
	res := f.scan(t, "000999999", scan.OriginManual)

	assert.Equal(t, scan.ActionIgnore, res.Action)

	open, err := f.store.Open(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "000123456", open.Code)
	assert.Empty(t, f.recorder.stops)
}

func TestScan_BadgeToggleStopsRecordingFirst(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	f.scan(t, "EMP:NV007", scan.OriginManual)
	f.scan(t, "000123456", scan.OriginManual)

	res := f.scan(t, "nv007", scan.OriginManual)

	assert.Equal(t, scan.ActionStationLeave, res.Action)
	assert.Nil(t, f.store.occupant(1))
	assert.Equal(t, 0, f.store.openCount("S1"))
	assert.False(t, f.recorder.isRunning("s1"))
}

func TestScan_OtherBadgeIsBlocked(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	f.scan(t, "EMP:NV007", scan.OriginManual)
	res := f.scan(t, "EMP:NV008", scan.OriginManual)

	assert.Equal(t, scan.ActionStationBlocked, res.Action)
	assert.Contains(t, res.Message, "Nguyen Van")
	assert.Equal(t, nv007.Id, f.store.occupant(1).ID)
}

func TestScan_SpawnFailureWritesNoSession(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	f.recorder.startErr = errBoom

	res, err := f.orch.Scan(context.Background(), ScanRequest{Code: "000123456", StationName: "S1"})

	require.ErrorIs(t, err, errs.ErrProcessSpawn)
	assert.Equal(t, scan.ActionError, res.Action)
	assert.Equal(t, 0, f.store.openCount("S1"))
}

func TestScan_SessionWriteFailureStopsCapture(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	f.store.createErr = errBoom

	res, err := f.orch.Scan(context.Background(), ScanRequest{Code: "000123456", StationName: "S1"})

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, scan.ActionError, res.Action)
	assert.False(t, f.recorder.isRunning("s1"))
}

func TestScan_StreamSourceFallback(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	res, err := f.orch.Scan(context.Background(), ScanRequest{Code: "000123456", StationName: "S2"})
	require.ErrorIs(t, err, errs.ErrNoStreamSource)
	assert.Equal(t, scan.ActionError, res.Action)

	requester := nv008
	res, err = f.orch.Scan(context.Background(), ScanRequest{
		Code:         "000123456",
		StationName:  "s2",
		StreamSource: "rtsp://handheld/1",
		Requester:    &requester,
	})
	require.NoError(t, err)
	assert.Equal(t, scan.ActionStart, res.Action)
	assert.Equal(t, "/videos/S2/nv008_000123456.mp4", res.FilePath)
	assert.Contains(t, f.recorder.starts, "s2:000123456:rtsp://handheld/1")
}

func TestScan_Validation(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	_, err := f.orch.Scan(context.Background(), ScanRequest{Code: " ", StationName: "S1"})
	require.ErrorIs(t, err, errs.ErrInvalidScan)

	_, err = f.orch.Scan(context.Background(), ScanRequest{Code: "000123456", StationName: "nowhere"})
	require.ErrorIs(t, err, errs.ErrStationNotFound)
}

func TestScan_ConcurrentScansKeepOneOpenSession(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			code := fmt.Sprintf("%09d", 100000+i%3)
			_, err := f.orch.Scan(context.Background(), ScanRequest{Code: code, StationName: "S1", Origin: scan.OriginAutomated})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.store.openCount("S1"))
	assert.False(t, f.recorder.overlap)
}

func TestStop(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	res, err := f.orch.Stop(context.Background(), "S1", nil)
	require.NoError(t, err)
	assert.Equal(t, scan.ActionIgnore, res.Action)

	f.scan(t, "000123456", scan.OriginManual)

	res, err = f.orch.Stop(context.Background(), "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, scan.ActionStop, res.Action)
	assert.Equal(t, "000123456", res.RecordingCode)
	assert.Equal(t, 0, f.store.openCount("S1"))

	res, err = f.orch.Stop(context.Background(), "S1", nil)
	require.NoError(t, err)
	assert.Equal(t, scan.ActionIgnore, res.Action)
}

func TestRecordingStatus(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	f.scan(t, "000123456", scan.OriginManual)

	status, err := f.orch.RecordingStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"S1": "000123456"}, status)
}

func TestOccupyAndRelease(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	ctx := context.Background()

	st, err := f.orch.Occupy(ctx, 1, nv007)
	require.NoError(t, err)
	assert.Equal(t, nv007.Id, st.CurrentUser.ID)

	_, err = f.orch.Occupy(ctx, 1, nv007)
	require.NoError(t, err)

	_, err = f.orch.Occupy(ctx, 1, nv008)
	require.ErrorIs(t, err, errs.ErrStationOccupied)

	err = f.orch.Release(ctx, 1, nv008, false)
	require.ErrorIs(t, err, errs.ErrNotStationOccupant)

	f.scan(t, "000123456", scan.OriginManual)

	require.NoError(t, f.orch.Release(ctx, 1, nv007, false))
	assert.Nil(t, f.store.occupant(1))
	assert.Equal(t, 0, f.store.openCount("S1"))

	_, err = f.orch.Occupy(ctx, 99, nv007)
	require.ErrorIs(t, err, errs.ErrStationNotFound)
}

func TestForceRelease(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	ctx := context.Background()

	_, err := f.orch.Occupy(ctx, 1, nv007)
	require.NoError(t, err)

	require.NoError(t, f.orch.Release(ctx, 1, nv008, true))
	assert.Nil(t, f.store.occupant(1))
	assert.Contains(t, f.publisher.actions(), scan.ActionStationLeave)
}

func TestReleaseOperator(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	ctx := context.Background()

	_, err := f.orch.Occupy(ctx, 1, nv007)
	require.NoError(t, err)
	_, err = f.orch.Occupy(ctx, 2, nv008)
	require.NoError(t, err)
	f.scan(t, "000123456", scan.OriginManual)

	require.NoError(t, f.orch.ReleaseOperator(ctx, nv007.Id))

	assert.Nil(t, f.store.occupant(1))
	assert.Equal(t, 0, f.store.openCount("S1"))
	assert.Equal(t, nv008.Id, f.store.occupant(2).ID)

	require.NoError(t, f.orch.ReleaseOperator(ctx, 12345))
}

func TestSweep(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	ctx := context.Background()

	f.scan(t, "000123456", scan.OriginManual)

	closed, err := f.orch.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
	assert.Equal(t, 1, f.store.openCount("S1"))

	f.recorder.kill("s1")

	closed, err = f.orch.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 0, f.store.openCount("S1"))
	assert.False(t, f.recorder.isRunning("s1"))
}

func TestStopAll(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	ctx := context.Background()

	f.scan(t, "000123456", scan.OriginManual)
	_, err := f.orch.Scan(ctx, ScanRequest{Code: "000777777", StationName: "S2", StreamSource: "/dev/video0"})
	require.NoError(t, err)

	require.NoError(t, f.orch.StopAll(ctx))

	assert.Equal(t, 0, f.store.openCount("S1"))
	assert.Equal(t, 0, f.store.openCount("S2"))
	assert.False(t, f.recorder.isRunning("s1"))
	assert.False(t, f.recorder.isRunning("s2"))
}

func TestSessionsLimit(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.scan(t, fmt.Sprintf("00012345%d", i), scan.OriginManual)
	}

	all, err := f.orch.Sessions(ctx, models.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	one, err := f.orch.Sessions(ctx, models.SessionFilter{Code: "000123451"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "000123451", one[0].Code)
}

func TestSessionsFilters(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	ctx := context.Background()

	cam := 12
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f.store.sessions = []models.RecordingSession{
		{ID: "a", Code: "ORDER-77A", StationName: "S1", CameraID: &cam, StartTime: day},
		{ID: "b", Code: "order-78", StationName: "S2", StartTime: day.Add(24 * time.Hour)},
		{ID: "c", Code: "PKG-1", StationName: "S1", CameraID: &cam, StartTime: day.Add(48 * time.Hour)},
	}

	byCode, err := f.orch.Sessions(ctx, models.SessionFilter{Code: "order-7"})
	require.NoError(t, err)
	assert.Len(t, byCode, 2)

	from, to := day, day.Add(48*time.Hour)
	byDate, err := f.orch.Sessions(ctx, models.SessionFilter{From: &from, To: &to, CameraID: &cam})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, "a", byDate[0].ID)
}

func TestExportSessions_IgnoresPageLimit(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	for i := 0; i < maxSessionsLimit+5; i++ {
		f.store.sessions = append(f.store.sessions, models.RecordingSession{
			ID: fmt.Sprintf("s%d", i), Code: "000123456", StationName: "S1",
		})
	}

	page, err := f.orch.Sessions(context.Background(), models.SessionFilter{Limit: 10000})
	require.NoError(t, err)
	assert.Len(t, page, maxSessionsLimit)

	all, err := f.orch.ExportSessions(context.Background(), models.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, maxSessionsLimit+5)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()

	t.Run("open session is stopped first", func(t *testing.T) {
		f := newFixture(t, scan.PolicySwitch)
		res := f.scan(t, "000123456", scan.OriginManual)

		open, err := f.store.Open(ctx, "S1")
		require.NoError(t, err)

		require.NoError(t, f.orch.DeleteSession(ctx, open.ID))

		assert.False(t, f.recorder.isRunning("s1"))
		assert.Equal(t, []string{res.FilePath}, f.recorder.removed)
		_, err = f.store.Session(ctx, open.ID)
		require.ErrorIs(t, err, errs.ErrSessionNotFound)
		assert.Contains(t, f.publisher.actions(), scan.ActionStop)
	})

	t.Run("file errors do not keep the row", func(t *testing.T) {
		f := newFixture(t, scan.PolicySwitch)
		f.scan(t, "000123456", scan.OriginManual)
		_, err := f.orch.Stop(ctx, "S1", nil)
		require.NoError(t, err)

		list, err := f.orch.Sessions(ctx, models.SessionFilter{})
		require.NoError(t, err)
		require.Len(t, list, 1)

		f.recorder.removeErr = errBoom
		require.NoError(t, f.orch.DeleteSession(ctx, list[0].ID))

		list, err = f.orch.Sessions(ctx, models.SessionFilter{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("unknown id", func(t *testing.T) {
		f := newFixture(t, scan.PolicySwitch)

		require.ErrorIs(t, f.orch.DeleteSession(ctx, "nope"), errs.ErrSessionNotFound)
		assert.Empty(t, f.recorder.removed)
	})
}

func TestDeleteStation(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	ctx := context.Background()

	_, err := f.orch.Occupy(ctx, 1, nv007)
	require.NoError(t, err)
	f.scan(t, "000123456", scan.OriginManual)

	require.NoError(t, f.orch.DeleteStation(ctx, 1))

	assert.False(t, f.recorder.isRunning("s1"))
	assert.Equal(t, 0, f.store.openCount("S1"))
	assert.Contains(t, f.publisher.actions(), scan.ActionStationLeave)

	stations, err := f.orch.Stations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "S2", stations[0].Name)

	history, err := f.orch.Sessions(ctx, models.SessionFilter{StationName: "S1"})
	require.NoError(t, err)
	assert.Len(t, history, 1)

	require.ErrorIs(t, f.orch.DeleteStation(ctx, 1), errs.ErrStationNotFound)
}

func TestCreateStationAndSetCameras(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	ctx := context.Background()

	_, err := f.orch.CreateStation(ctx, "  ")
	require.ErrorIs(t, err, errs.ErrInvalidStation)

	st, err := f.orch.CreateStation(ctx, "S3")
	require.NoError(t, err)

	_, err = f.orch.CreateStation(ctx, "s3")
	require.ErrorIs(t, err, errs.ErrStationExists)

	qr := 5
	st, err = f.orch.SetCameras(ctx, st.ID, nil, &qr)
	require.NoError(t, err)
	assert.Nil(t, st.OverviewCamera)
	require.NotNil(t, st.QrCamera)

	res, err := f.orch.Scan(ctx, ScanRequest{Code: "000123456", StationName: "S3"})
	require.NoError(t, err)
	assert.Equal(t, scan.ActionStart, res.Action)
	assert.Contains(t, f.recorder.starts, "s3:000123456:rtsp://cam/5")
}

func TestScan_PublishesEvents(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)

	f.scan(t, "EMP:NV007", scan.OriginManual)
	f.scan(t, "000123456", scan.OriginAutomated)

	assert.Equal(t, []scan.Action{scan.ActionStationJoin, scan.ActionStart}, f.publisher.actions())
	assert.Equal(t, "nv007", f.publisher.events[1].Operator)
	assert.Equal(t, "automated", f.publisher.events[1].Origin)
}

func TestPresence_LastUISessionReleasesStation(t *testing.T) {
	f := newFixture(t, scan.PolicySwitch)
	tracker := presence.New(discardLogger(), f.orch)
	ctx := context.Background()

	f.scan(t, "EMP:NV007", scan.OriginManual)
	f.scan(t, "000123456", scan.OriginManual)

	tracker.OnSessionOpened(nv007.Id)
	tracker.OnSessionOpened(nv007.Id)

	require.NoError(t, tracker.OnSessionClosed(ctx, nv007.Id))
	require.NotNil(t, f.store.occupant(1))
	assert.Equal(t, 1, f.store.openCount("S1"))

	require.NoError(t, tracker.OnSessionClosed(ctx, nv007.Id))
	assert.Nil(t, f.store.occupant(1))
	assert.Equal(t, 0, f.store.openCount("S1"))
	assert.False(t, f.recorder.isRunning("s1"))
}
