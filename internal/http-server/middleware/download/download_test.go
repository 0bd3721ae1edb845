package download

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slowBody(w http.ResponseWriter, _ *http.Request) {
	time.Sleep(150 * time.Millisecond)
	_, _ = io.WriteString(w, strings.Repeat("x", 1<<20))
}

func serve(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()

	srv := httptest.NewUnstartedServer(h)
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)

	return srv
}

func TestNoWriteTimeout(t *testing.T) {
	srv := serve(t, NoWriteTimeout(http.HandlerFunc(slowBody)))

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, body, 1<<20)
}

func TestWriteTimeoutWithoutMiddleware(t *testing.T) {
	srv := serve(t, http.HandlerFunc(slowBody))

	resp, err := http.Get(srv.URL)
	if err == nil {
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		assert.True(t, readErr != nil || len(body) < 1<<20)
	}
}

func TestNoWriteTimeout_Recorder(t *testing.T) {
	w := httptest.NewRecorder()
	NoWriteTimeout(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}
