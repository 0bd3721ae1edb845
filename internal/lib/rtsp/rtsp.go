// Package rtsp validates camera stream URLs and checks they answer.
package rtsp

import (
	"fmt"
	"strings"

	"github.com/aler9/gortsplib"
	"github.com/aler9/gortsplib/pkg/url"
)

// IsRTSP reports whether the source is an rtsp:// or rtsps:// URL.
func IsRTSP(source string) bool {
	s := strings.ToLower(strings.TrimSpace(source))

	return strings.HasPrefix(s, "rtsp://") || strings.HasPrefix(s, "rtsps://")
}

// Validate parses an RTSP URL and rejects anything without a host.
func Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	if u.Host == "" {
		return fmt.Errorf("missing host in %q", rawURL)
	}

	return nil
}

// Available sends an OPTIONS request to the stream and reports whether the
// camera answered.
func Available(rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}

	conn := gortsplib.Client{}

	err = conn.Start(u.Scheme, u.Host)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	_, err = conn.Options(u)
	if err != nil {
		return false, err
	}

	return true, nil
}
