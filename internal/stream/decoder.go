package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/model"
)

var blockDelim = []byte("\n\n")

// ParseError describes an event block that could not be decoded. The
// decoder skips such blocks and keeps going.
type ParseError struct {
	Block string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("stream: malformed event block %q: %v", e.Block, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Decoder reads server-sent events from r. Blocks are split on a blank
// line; a partial trailing block stays buffered until more bytes arrive
// or the reader ends.
type Decoder struct {
	r       io.Reader
	buf     []byte
	eof     bool
	skipped int

	// OnError, when set, is called for every skipped block.
	OnError func(*ParseError)
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Skipped returns how many malformed blocks were dropped so far.
func (d *Decoder) Skipped() int { return d.skipped }

// Next returns the next well-formed event, or io.EOF once the reader is
// exhausted.
func (d *Decoder) Next() (model.Event, error) {
	chunk := make([]byte, 4096)
	for {
		if i := bytes.Index(d.buf, blockDelim); i >= 0 {
			block := d.buf[:i]
			d.buf = d.buf[i+len(blockDelim):]
			if ev, ok := d.decode(block); ok {
				return ev, nil
			}
			continue
		}

		if d.eof {
			rest := bytes.TrimSpace(d.buf)
			d.buf = nil
			if len(rest) > 0 {
				if ev, ok := d.decode(rest); ok {
					return ev, nil
				}
			}
			return model.Event{}, io.EOF
		}

		n, err := d.r.Read(chunk)
		d.buf = append(d.buf, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			d.eof = true
		} else if err != nil {
			return model.Event{}, err
		}
	}
}

// decode parses one block. ok is false for comment-only blocks and for
// malformed ones.
func (d *Decoder) decode(block []byte) (model.Event, bool) {
	var data [][]byte
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if after, found := bytes.CutPrefix(line, []byte("data:")); found {
			data = append(data, bytes.TrimPrefix(after, []byte(" ")))
		}
	}
	if len(data) == 0 {
		return model.Event{}, false
	}

	payload := bytes.Join(data, []byte("\n"))
	var ev model.Event
	err := json.Unmarshal(payload, &ev)
	if err == nil && ev.Type == "" {
		err = errors.New("missing event type")
	}
	if err != nil {
		d.skip(&ParseError{Block: string(block), Err: err})
		return model.Event{}, false
	}
	return ev, true
}

func (d *Decoder) skip(pe *ParseError) {
	d.skipped++
	zap.L().Warn("stream: skipping malformed event", zap.Error(pe))
	if d.OnError != nil {
		d.OnError(pe)
	}
}

// ReadAll decodes every event from r. abnormal is true when the stream
// ended without a terminal event.
func ReadAll(r io.Reader) (events []model.Event, abnormal bool, err error) {
	dec := NewDecoder(r)
	terminal := false
	for {
		ev, nextErr := dec.Next()
		if errors.Is(nextErr, io.EOF) {
			return events, !terminal, nil
		}
		if nextErr != nil {
			return events, true, nextErr
		}
		events = append(events, ev)
		terminal = ev.IsTerminal()
	}
}
