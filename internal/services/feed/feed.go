// Package feed runs the automated vision feed: one detector per station QR
// camera, each turning decoded codes into automated scans.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc"

	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
	"github.com/zanzhit/station_recorder/internal/services/scan"
	stationservice "github.com/zanzhit/station_recorder/internal/services/stations"
)

var errDetectorExited = errors.New("detector exited")

// Detector decodes codes from a stream and calls emit for each one until ctx
// is done or the stream fails.
type Detector interface {
	Run(ctx context.Context, source string, emit func(code string)) error
}

// ScanSink accepts scan events. The orchestrator is the only implementation
// outside tests.
type ScanSink interface {
	Scan(ctx context.Context, req stationservice.ScanRequest) (stationservice.Result, error)
}

type StationLister interface {
	Stations(ctx context.Context) ([]models.Station, error)
}

type Options struct {
	// Debounce drops repeats of the same code within the window.
	Debounce time.Duration
	// RefreshInterval is how often the station list is re-read while no
	// station has a QR camera.
	RefreshInterval time.Duration
	// InitialBackoff and MaxBackoff bound the reconnect delay of a detector.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Runner struct {
	log      *slog.Logger
	detector Detector
	sink     ScanSink
	stations StationLister
	opts     Options
	now      func() time.Time
}

func New(log *slog.Logger, detector Detector, sink ScanSink, stations StationLister, opts Options) *Runner {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 10 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 3 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Minute
	}

	return &Runner{
		log:      log,
		detector: detector,
		sink:     sink,
		stations: stations,
		opts:     opts,
		now:      time.Now,
	}
}

type target struct {
	station string
	source  string
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	const op = "service.feed.Run"

	log := r.log.With(slog.String("op", op))

	for {
		targets, err := r.targets(ctx)
		if err != nil {
			log.Error("failed to list stations", sl.Err(err))
		}

		if len(targets) > 0 {
			log.Info("vision feed starting", slog.Int("cameras", len(targets)))

			var wg conc.WaitGroup
			for _, t := range targets {
				t := t
				wg.Go(func() { r.watch(ctx, t) })
			}
			wg.Wait()

			return ctx.Err()
		}

		if err == nil {
			log.Warn("no qr cameras configured, retrying", slog.Duration("in", r.opts.RefreshInterval))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.RefreshInterval):
		}
	}
}

func (r *Runner) targets(ctx context.Context) ([]target, error) {
	stations, err := r.stations.Stations(ctx)
	if err != nil {
		return nil, err
	}

	var out []target
	for _, st := range stations {
		if st.QrCamera == nil || st.QrCamera.RtspURL == "" {
			continue
		}
		out = append(out, target{station: st.Name, source: st.QrCamera.RtspURL})
	}

	return out, nil
}

// watch keeps one detector running for a station, reconnecting with
// exponential backoff, until ctx is done.
func (r *Runner) watch(ctx context.Context, t target) {
	log := r.log.With(
		slog.String("station", t.station),
		slog.String("source", t.source),
	)

	emit := r.emitter(ctx, log, t)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialBackoff
	b.MaxInterval = r.opts.MaxBackoff
	b.MaxElapsedTime = 0

	operation := func() error {
		log.Info("detector connecting")

		err := r.detector.Run(ctx, t.source, emit)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = errDetectorExited
		}

		return err
	}

	notify := func(err error, next time.Duration) {
		log.Warn("detector failed, reconnecting", sl.Err(err), slog.Duration("in", next))
	}

	_ = backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)

	log.Info("detector stopped")
}

// emitter returns the debounced scan callback of one station.
func (r *Runner) emitter(ctx context.Context, log *slog.Logger, t target) func(string) {
	var (
		mu       sync.Mutex
		lastCode string
		lastAt   time.Time
	)

	return func(code string) {
		code = strings.TrimSpace(code)
		if code == "" {
			return
		}

		now := r.now()

		mu.Lock()
		if strings.EqualFold(code, lastCode) && now.Sub(lastAt) <= r.opts.Debounce {
			mu.Unlock()

			return
		}
		lastCode, lastAt = code, now
		mu.Unlock()

		res, err := r.sink.Scan(ctx, stationservice.ScanRequest{
			Code:         code,
			StationName:  t.station,
			Origin:       scan.OriginAutomated,
			StreamSource: t.source,
		})
		if err != nil {
			log.Error("automated scan failed", slog.String("code", code), sl.Err(err))

			return
		}

		log.Info("automated scan", slog.String("code", code), slog.String("action", string(res.Action)))
	}
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, source string, emit func(code string)) error

func (f DetectorFunc) Run(ctx context.Context, source string, emit func(code string)) error {
	return f(ctx, source, emit)
}
