package models

type Camera struct {
	ID      int    `json:"id" db:"id"`
	Name    string `json:"name" db:"name" validate:"required"`
	RtspURL string `json:"rtsp_url" db:"rtsp_url" validate:"required"`
}
