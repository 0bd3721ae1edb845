package cameraservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zanzhit/station_recorder/internal/domain/errs"
	"github.com/zanzhit/station_recorder/internal/domain/models"
	"github.com/zanzhit/station_recorder/internal/lib/rtsp"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
)

type CameraService struct {
	log            *slog.Logger
	cameraSaver    CameraSaver
	cameraProvider CameraProvider
	cameraEditor   CameraEditor
	reachable      func(string) (bool, error)
}

type CameraSaver interface {
	Save(ctx context.Context, cam models.Camera) (models.Camera, error)
}

type CameraProvider interface {
	Camera(ctx context.Context, id int) (models.Camera, error)
	Cameras(ctx context.Context) ([]models.Camera, error)
}

type CameraEditor interface {
	Update(ctx context.Context, cam models.Camera) (models.Camera, error)
	Delete(ctx context.Context, id int) error
}

func New(log *slog.Logger, cameraSaver CameraSaver, cameraProvider CameraProvider, cameraEditor CameraEditor) *CameraService {
	return &CameraService{
		log:            log,
		cameraSaver:    cameraSaver,
		cameraProvider: cameraProvider,
		cameraEditor:   cameraEditor,
		reachable:      rtsp.Available,
	}
}

// SaveCamera registers a camera. RTSP URLs are validated; with check the
// camera must also answer an OPTIONS request.
func (s *CameraService) SaveCamera(ctx context.Context, name, streamURL string, check bool) (models.Camera, error) {
	const op = "service.cameras.SaveCamera"

	name = strings.TrimSpace(name)
	streamURL = strings.TrimSpace(streamURL)

	log := s.log.With(
		slog.String("op", op),
		slog.String("name", name),
		slog.String("url", streamURL),
	)

	log.Info("save camera")

	if err := s.checkStream(log, streamURL, check); err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	cam, err := s.cameraSaver.Save(ctx, models.Camera{Name: name, RtspURL: streamURL})
	if err != nil {
		log.Error("failed to save camera", sl.Err(err))

		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	return cam, nil
}

func (s *CameraService) Cameras(ctx context.Context) ([]models.Camera, error) {
	const op = "service.cameras.Cameras"

	cams, err := s.cameraProvider.Cameras(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cams, nil
}

func (s *CameraService) Camera(ctx context.Context, id int) (models.Camera, error) {
	const op = "service.cameras.Camera"

	cam, err := s.cameraProvider.Camera(ctx, id)
	if err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	return cam, nil
}

// UpdateCamera renames a camera or points it at another stream. The URL is
// checked the way SaveCamera checks it.
func (s *CameraService) UpdateCamera(ctx context.Context, id int, name, streamURL string, check bool) (models.Camera, error) {
	const op = "service.cameras.UpdateCamera"

	name = strings.TrimSpace(name)
	streamURL = strings.TrimSpace(streamURL)

	log := s.log.With(
		slog.String("op", op),
		slog.Int("camera_id", id),
		slog.String("url", streamURL),
	)

	if err := s.checkStream(log, streamURL, check); err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	cam, err := s.cameraEditor.Update(ctx, models.Camera{ID: id, Name: name, RtspURL: streamURL})
	if err != nil {
		log.Error("failed to update camera", sl.Err(err))

		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("camera updated")

	return cam, nil
}

// DeleteCamera removes a camera. Stations using it lose that camera slot.
func (s *CameraService) DeleteCamera(ctx context.Context, id int) error {
	const op = "service.cameras.DeleteCamera"

	log := s.log.With(
		slog.String("op", op),
		slog.Int("camera_id", id),
	)

	if err := s.cameraEditor.Delete(ctx, id); err != nil {
		log.Error("failed to delete camera", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("camera deleted")

	return nil
}

// checkStream validates RTSP URLs and, with check, requires the camera to
// answer an OPTIONS request. Other sources only need to be non-empty.
func (s *CameraService) checkStream(log *slog.Logger, streamURL string, check bool) error {
	if streamURL == "" {
		return errs.ErrInvalidStreamURL
	}

	if !rtsp.IsRTSP(streamURL) {
		return nil
	}

	if err := rtsp.Validate(streamURL); err != nil {
		log.Warn("invalid stream url", sl.Err(err))

		return fmt.Errorf("%w: %w", errs.ErrInvalidStreamURL, err)
	}

	if !check {
		return nil
	}

	if ok, err := s.reachable(streamURL); err != nil || !ok {
		if err == nil {
			err = errs.ErrCameraIsNotAvailable
		}
		log.Warn("camera is not available", sl.Err(err))

		return errs.ErrCameraIsNotAvailable
	}

	return nil
}
