package capture

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logRecord struct {
	Line      string `json:"line"`
	Truncated bool   `json:"truncated"`
}

func newLineLogger() (*lineLogger, *bytes.Buffer) {
	out := &bytes.Buffer{}

	return &lineLogger{log: slog.New(slog.NewJSONHandler(out, nil))}, out
}

func records(t *testing.T, out *bytes.Buffer) []logRecord {
	t.Helper()

	var recs []logRecord
	for _, raw := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if raw == "" {
			continue
		}

		var rec logRecord
		require.NoError(t, json.Unmarshal([]byte(raw), &rec))
		recs = append(recs, rec)
	}

	return recs
}

func TestLineLogger_SplitsOnNewlinesAndCarriageReturns(t *testing.T) {
	w, out := newLineLogger()

	input := []byte("Input #0, rtsp\nframe=  10 fps=25\rframe=  20 fps=25\r")
	n, err := w.Write(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)

	_, err = w.Write([]byte("conn"))
	require.NoError(t, err)
	_, err = w.Write([]byte("ection refused\r\n\n"))
	require.NoError(t, err)

	recs := records(t, out)
	require.Len(t, recs, 4)
	assert.Equal(t, "Input #0, rtsp", recs[0].Line)
	assert.Equal(t, "frame=  10 fps=25", recs[1].Line)
	assert.Equal(t, "frame=  20 fps=25", recs[2].Line)
	assert.Equal(t, "connection refused", recs[3].Line)
	assert.Zero(t, w.buf.Len())
}

func TestLineLogger_CapsUnterminatedOutput(t *testing.T) {
	w, out := newLineLogger()

	for i := 0; i < 10; i++ {
		_, err := w.Write(bytes.Repeat([]byte("x"), 1000))
		require.NoError(t, err)
		assert.Less(t, w.buf.Len(), maxLineLength)
	}

	recs := records(t, out)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.True(t, rec.Truncated)
		assert.Len(t, rec.Line, maxLineLength)
	}

	_, err := w.Write([]byte("\n"))
	require.NoError(t, err)

	recs = records(t, out)
	require.Len(t, recs, 3)
	assert.False(t, recs[2].Truncated)
	assert.Len(t, recs[2].Line, 10000-2*maxLineLength)
}
