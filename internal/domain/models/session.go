package models

import "time"

// RecordingSession is one start-to-stop recording interval of a station.
// EndTime is nil while the recording is open.
type RecordingSession struct {
	ID          string     `json:"id" db:"id"`
	Code        string     `json:"code" db:"code"`
	StationName string     `json:"station_name" db:"station_name"`
	RecordedBy  string     `json:"recorded_by" db:"recorded_by"`
	CameraID    *int       `json:"camera_id,omitempty" db:"camera_id"`
	FilePath    string     `json:"file_path" db:"file_path"`
	StartTime   time.Time  `json:"start_time" db:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty" db:"end_time"`
}

func (s RecordingSession) IsOpen() bool {
	return s.EndTime == nil
}

// SessionFilter narrows the session history. Code matches a substring,
// From is inclusive and To exclusive, both on the start time.
type SessionFilter struct {
	Code        string
	StationName string
	CameraID    *int
	From        *time.Time
	To          *time.Time
	Limit       int
}
