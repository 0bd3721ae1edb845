// Package capture supervises the external processes that record station
// streams. There is at most one process per station key; start and stop for
// the same key never run concurrently.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/zanzhit/station_recorder/internal/domain/constants"
	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/lib/keylock"
	"github.com/zanzhit/station_recorder/internal/lib/rtsp"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
)

type StopOutcome int

const (
	// StopNotRunning means nothing was registered for the key.
	StopNotRunning StopOutcome = iota
	// StopGraceful means the process finalized its output and exited in time.
	StopGraceful
	// StopForced means the grace period ran out and the process was killed.
	StopForced
	// StopAlreadyExited means the process had died before the stop.
	StopAlreadyExited
)

func (o StopOutcome) String() string {
	switch o {
	case StopGraceful:
		return "graceful"
	case StopForced:
		return "forced"
	case StopAlreadyExited:
		return "already_exited"
	default:
		return "not_running"
	}
}

// StopResult reports how a stop went. Warning carries termination errors that
// were tolerated; a stop never fails as a whole.
type StopResult struct {
	Outcome StopOutcome
	Warning error
	Code    string
	Output  string
}

var (
	errKillTimeout   = errors.New("process did not exit after kill")
	errRecordingPath = errors.New("not a recording path")
)

// Observer receives supervisor events, typically metrics.
type Observer interface {
	RecordingStarted()
	RecordingStopped(outcome string)
	UnexpectedExit()
}

type Options struct {
	// Root is the directory recordings are written under, one sub directory
	// per station.
	Root string
	// URLPrefix is prepended to the returned relative path, e.g. "/videos".
	URLPrefix string
	Binary    string
	Extension string
	// Args builds the capture command line. Defaults to FFmpegArgs.
	Args        func(source, output string) []string
	GracePeriod time.Duration
	KillWait    time.Duration
	// CheckStream requires RTSP sources to answer before spawning.
	CheckStream bool
	Observer    Observer
}

type Supervisor struct {
	log       *slog.Logger
	launcher  Launcher
	registry  *Registry
	locks     *keylock.KeyedMutex
	opts      Options
	now       func() time.Time
	reachable func(string) (bool, error)
}

func New(log *slog.Logger, launcher Launcher, registry *Registry, opts Options) *Supervisor {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.Extension == "" {
		opts.Extension = "mp4"
	}
	if opts.Args == nil {
		opts.Args = FFmpegArgs
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 1800 * time.Millisecond
	}
	if opts.KillWait <= 0 {
		opts.KillWait = 2 * time.Second
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	return &Supervisor{
		log:       log,
		launcher:  launcher,
		registry:  registry,
		locks:     keylock.New(),
		opts:      opts,
		now:       time.Now,
		reachable: rtsp.Available,
	}
}

// StartRecording spawns a capture process for the station and returns the
// relative path of the output file. A process already running for the key is
// stopped first.
func (s *Supervisor) StartRecording(stationKey, streamSource, code, stationName, operatorName string) (string, error) {
	const op = "service.capture.StartRecording"

	streamSource = strings.TrimSpace(streamSource)
	code = strings.TrimSpace(code)
	stationName = strings.TrimSpace(stationName)

	if streamSource == "" || code == "" || stationName == "" {
		return "", fmt.Errorf("%s: %w", op, errs.ErrInvalidRecording)
	}

	operatorName = strings.TrimSpace(operatorName)
	if operatorName == "" {
		operatorName = constants.UnknownUser
	}

	key := Key(stationKey)
	if key == "" {
		key = Key(stationName)
	}

	log := s.log.With(
		slog.String("op", op),
		slog.String("station", stationName),
		slog.String("code", code),
	)

	unlock := s.locks.Lock(key)
	defer unlock()

	if prev := s.stopLocked(key); prev.Outcome != StopNotRunning {
		log.Info("stopped previous capture process", slog.String("outcome", prev.Outcome.String()), slog.String("prev_code", prev.Code))
	}

	if s.opts.CheckStream && rtsp.IsRTSP(streamSource) {
		if ok, err := s.reachable(streamSource); err != nil || !ok {
			if err == nil {
				err = errs.ErrCameraIsNotAvailable
			}
			log.Error("stream is not reachable", sl.Err(err))

			return "", fmt.Errorf("%s: %w: %w", op, errs.ErrProcessSpawn, err)
		}
	}

	stationDir := SafeName(stationName)
	dir := filepath.Join(s.opts.Root, stationDir)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		log.Error("failed to create station directory", sl.Err(err))

		return "", fmt.Errorf("%s: %w: %w", op, errs.ErrProcessSpawn, err)
	}

	startedAt := s.now()
	fileName := fmt.Sprintf("%s_%s_%s.%s",
		SafeName(operatorName), SafeName(code), startedAt.Format("20060102_150405"), s.opts.Extension)
	fullPath := filepath.Join(dir, fileName)

	proc, err := s.launcher.Launch(s.opts.Binary, s.opts.Args(streamSource, fullPath))
	if err != nil {
		log.Error("failed to start capture process", sl.Err(err))

		return "", fmt.Errorf("%s: %w: %w", op, errs.ErrProcessSpawn, err)
	}

	h := &handle{
		proc:      proc,
		output:    fullPath,
		startedAt: startedAt,
		source:    streamSource,
		code:      code,
		operator:  operatorName,
		station:   stationName,
	}
	s.registry.put(key, h)
	s.opts.Observer.RecordingStarted()

	go s.watch(key, h)

	log.Info("capture process started", slog.Int("pid", proc.Pid()), slog.String("file", fullPath))

	return path.Join("/", s.opts.URLPrefix, stationDir, fileName), nil
}

// StopRecording stops the process registered for the key, if any. The handle
// is removed on every path.
func (s *Supervisor) StopRecording(stationKey string) StopResult {
	key := Key(stationKey)

	unlock := s.locks.Lock(key)
	defer unlock()

	return s.stopLocked(key)
}

func (s *Supervisor) stopLocked(key string) StopResult {
	const op = "service.capture.StopRecording"

	h := s.registry.remove(key)
	if h == nil {
		return StopResult{Outcome: StopNotRunning}
	}

	h.stopping.Store(true)

	log := s.log.With(
		slog.String("op", op),
		slog.String("station", h.station),
		slog.String("code", h.code),
		slog.Int("pid", h.proc.Pid()),
	)

	res := s.terminate(h)
	res.Code = h.code
	res.Output = h.output

	s.opts.Observer.RecordingStopped(res.Outcome.String())

	if res.Warning != nil {
		log.Warn("capture process stop finished with warnings", slog.String("outcome", res.Outcome.String()), sl.Err(res.Warning))
	} else {
		log.Info("capture process stopped", slog.String("outcome", res.Outcome.String()))
	}

	return res
}

func (s *Supervisor) terminate(h *handle) StopResult {
	select {
	case <-h.proc.Done():
		return StopResult{Outcome: StopAlreadyExited}
	default:
	}

	res := StopResult{Outcome: StopGraceful}

	if err := h.proc.Interrupt(); err != nil {
		res.Warning = err
	}

	grace := time.NewTimer(s.opts.GracePeriod)
	defer grace.Stop()

	select {
	case <-h.proc.Done():
		return res
	case <-grace.C:
	}

	res.Outcome = StopForced

	if err := h.proc.Kill(); err != nil {
		res.Warning = errors.Join(res.Warning, err)
	}

	killWait := time.NewTimer(s.opts.KillWait)
	defer killWait.Stop()

	select {
	case <-h.proc.Done():
	case <-killWait.C:
		res.Warning = errors.Join(res.Warning, errKillTimeout)
	}

	return res
}

// watch logs processes that die without being asked to. The session log is
// left alone; reconciling it is the sweeper's job.
func (s *Supervisor) watch(key string, h *handle) {
	<-h.proc.Done()

	if h.stopping.Load() {
		return
	}

	s.opts.Observer.UnexpectedExit()

	attrs := []any{
		slog.String("station", h.station),
		slog.String("key", key),
		slog.String("code", h.code),
		slog.Duration("uptime", s.now().Sub(h.startedAt)),
	}
	if err := h.proc.Err(); err != nil {
		attrs = append(attrs, sl.Err(err))
	}

	s.log.Warn("capture process exited unexpectedly", attrs...)
}

// IsRecording reports whether a process is registered for the key, even if
// it has already died.
func (s *Supervisor) IsRecording(stationKey string) bool {
	_, ok := s.registry.get(Key(stationKey))

	return ok
}

// Alive reports whether a registered process is still running.
func (s *Supervisor) Alive(stationKey string) bool {
	h, ok := s.registry.get(Key(stationKey))
	if !ok {
		return false
	}

	select {
	case <-h.proc.Done():
		return false
	default:
		return true
	}
}

// ActiveFile returns the absolute output path of the running recording.
func (s *Supervisor) ActiveFile(stationKey string) (string, bool) {
	h, ok := s.registry.get(Key(stationKey))
	if !ok {
		return "", false
	}

	return h.output, true
}

// RemoveFile deletes the recording behind a relative path returned by
// StartRecording. The file must sit directly in a station directory under
// Root. A file that is already gone is not an error.
func (s *Supervisor) RemoveFile(relPath string) error {
	const op = "service.capture.RemoveFile"

	name := path.Clean("/" + relPath)
	if prefix := path.Clean("/" + s.opts.URLPrefix); prefix != "/" {
		if !strings.HasPrefix(name, prefix+"/") {
			return fmt.Errorf("%s: %w: %q", op, errRecordingPath, relPath)
		}
		name = strings.TrimPrefix(name, prefix)
	}

	stationDir, fileName := path.Split(strings.TrimPrefix(name, "/"))
	stationDir = strings.TrimSuffix(stationDir, "/")
	if stationDir == "" || fileName == "" || strings.Contains(stationDir, "/") {
		return fmt.Errorf("%s: %w: %q", op, errRecordingPath, relPath)
	}

	err := os.Remove(filepath.Join(s.opts.Root, stationDir, fileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// StopAll stops every registered process. Used on shutdown.
func (s *Supervisor) StopAll() map[string]StopResult {
	results := make(map[string]StopResult)

	for _, key := range s.registry.keys() {
		results[key] = s.StopRecording(key)
	}

	return results
}

type noopObserver struct{}

func (noopObserver) RecordingStarted()       {}
func (noopObserver) RecordingStopped(string) {}
func (noopObserver) UnexpectedExit()         {}
