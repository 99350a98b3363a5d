package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/model"
)

// Writer writes events to an HTTP response as server-sent events.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for event streaming. It fails when the response
// cannot be flushed incrementally.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, eris.New("stream: streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent sends one `data: <json>\n\n` block and flushes it.
func (sw *Writer) WriteEvent(ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "stream: marshal event")
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return eris.Wrap(err, "stream: write event")
	}
	sw.flusher.Flush()
	return nil
}

// Pipe forwards s to w until s closes or the client goes away. On a write
// failure or client disconnect the stream is cancelled so the producer
// stops blocking on it. It reports whether a terminal event was delivered.
func Pipe(ctx context.Context, s *Stream, w *Writer) bool {
	terminal := false
	for {
		ev, ok := s.Next(ctx)
		if !ok {
			if ctx.Err() != nil {
				s.Cancel()
				zap.L().Info("stream: client disconnected")
			} else if !terminal {
				zap.L().Warn("stream: closed without terminal event")
			}
			return terminal
		}
		if err := w.WriteEvent(ev); err != nil {
			s.Cancel()
			zap.L().Warn("stream: write failed", zap.Error(err))
			return false
		}
		terminal = ev.IsTerminal()
	}
}
