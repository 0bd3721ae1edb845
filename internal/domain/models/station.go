package models

// Station is a physical recording position. CurrentUser is nil while the
// station is free.
type Station struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	CurrentUser    *Operator `json:"current_user,omitempty"`
	OverviewCamera *Camera   `json:"overview_camera,omitempty"`
	QrCamera       *Camera   `json:"qr_camera,omitempty"`
}

// Operator is the slice of a user a station snapshot carries.
type Operator struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
}

func (o Operator) DisplayName() string {
	if o.FullName != "" {
		return o.FullName
	}

	return o.Username
}

// StreamSource picks the stream a recording is captured from: the overview
// camera, then the QR camera, then the fallback.
func (s Station) StreamSource(fallback string) (string, *int) {
	if s.OverviewCamera != nil && s.OverviewCamera.RtspURL != "" {
		return s.OverviewCamera.RtspURL, &s.OverviewCamera.ID
	}

	if s.QrCamera != nil && s.QrCamera.RtspURL != "" {
		return s.QrCamera.RtspURL, &s.QrCamera.ID
	}

	return fallback, nil
}
