package stream

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSESinkFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewSSESink(rec, 0)

	require.NoError(t, sink.Send([]byte(`{"a":1}`)))
	require.NoError(t, sink.Heartbeat())
	require.NoError(t, sink.Send([]byte("{\n\"b\":2\n}")))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.Equal(t, "data: {\"a\":1}\n\n:heartbeat\n\ndata: {\ndata: \"b\":2\ndata: }\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSSESinkClosed(t *testing.T) {
	sink := NewSSESink(httptest.NewRecorder(), 0)
	sink.Close()
	sink.Close()

	select {
	case <-sink.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.ErrorIs(t, sink.Send([]byte(`{}`)), ErrClosed)
}

type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header { return b.header }
func (b *brokenWriter) WriteHeader(int)     {}
func (b *brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("write: broken pipe")
}

func TestSSESinkWriteFailureClosesSink(t *testing.T) {
	sink := NewSSESink(&brokenWriter{header: http.Header{}}, 0)

	require.Error(t, sink.Send([]byte(`{}`)))
	select {
	case <-sink.Done():
	default:
		t.Fatal("failed write should close the sink")
	}
}
