package errs

import "errors"

var (
	ErrUserType           = errors.New("wrong user type")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDeleteSelf         = errors.New("users cannot delete their own account")

	ErrCameraAlreadyExists  = errors.New("camera already exists")
	ErrCameraNotFound       = errors.New("camera not found")
	ErrCameraIsNotAvailable = errors.New("camera is not available")
	ErrInvalidStreamURL     = errors.New("invalid stream url")

	ErrInvalidStation     = errors.New("station name is required")
	ErrStationExists      = errors.New("station already exists")
	ErrStationNotFound    = errors.New("station not found")
	ErrStationOccupied    = errors.New("station is occupied by another operator")
	ErrNotStationOccupant = errors.New("operator does not occupy the station")

	ErrInvalidScan      = errors.New("invalid scan request")
	ErrInvalidRecording = errors.New("stream source, code and station are required")
	ErrNoStreamSource   = errors.New("no stream source for station")
	ErrProcessSpawn     = errors.New("failed to spawn capture process")

	ErrSessionNotFound    = errors.New("recording session not found")
	ErrSessionAlreadyOpen = errors.New("station already has an open recording session")

	ErrWriteToDB = errors.New("failed to write to database")
)
