// Package sse encodes and decodes text/event-stream framing.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const ContentType = "text/event-stream"

const (
	EventMessage = "message"
	EventDone    = "done"
	EventError   = "error"
)

type Event struct {
	Name string
	ID   string
	Data string
}

type flusher interface {
	Flush() error
}

// Writer frames events onto w. When w can be flushed, every event is
// flushed as soon as it is written.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send writes one event. Multi-line data becomes one data field per line.
// CR and CRLF are line terminators on the wire, so they come back as "\n";
// use SendText when the exact bytes matter.
func (w *Writer) Send(ev Event) error {
	var buf bytes.Buffer
	if ev.Name != "" && ev.Name != EventMessage {
		buf.WriteString("event: " + sanitizeField(ev.Name) + "\n")
	}
	if ev.ID != "" {
		buf.WriteString("id: " + sanitizeField(ev.ID) + "\n")
	}

	data := strings.ReplaceAll(ev.Data, "\r\n", "\n")
	data = strings.ReplaceAll(data, "\r", "\n")
	for _, line := range strings.Split(data, "\n") {
		buf.WriteString("data: " + line + "\n")
	}
	buf.WriteByte('\n')

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return err
	}
	return w.flush()
}

// SendText writes text as a JSON string so that every byte, carriage
// returns included, survives the framing. Decode it with Event.Text.
func (w *Writer) SendText(name, text string) error {
	return w.SendJSON(name, text)
}

func (w *Writer) SendJSON(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: marshal %s event: %w", name, err)
	}
	return w.Send(Event{Name: name, Data: string(data)})
}

// Comment writes a keep-alive line that readers ignore.
func (w *Writer) Comment(text string) error {
	if _, err := io.WriteString(w.w, ": "+sanitizeField(text)+"\n\n"); err != nil {
		return err
	}
	return w.flush()
}

func (w *Writer) flush() error {
	if f, ok := w.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

func sanitizeField(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// Text decodes the data of an event written by SendText.
func (e Event) Text() (string, error) {
	var text string
	if err := json.Unmarshal([]byte(e.Data), &text); err != nil {
		return "", fmt.Errorf("sse: decode %s event: %w", e.Name, err)
	}
	return text, nil
}

// Reader decodes events from a stream.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	scanner.Split(scanLines)
	return &Reader{scanner: scanner}
}

// scanLines splits on LF, CR or CRLF.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		// A trailing CR may be the first half of a CRLF.
		if !atEOF {
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// ErrTruncated means the stream ended in the middle of an event.
var ErrTruncated = errors.New("sse: stream ended mid-event")

// Next returns the next dispatched event, or io.EOF once the stream ends
// cleanly on an event boundary.
func (r *Reader) Next() (*Event, error) {
	var (
		ev      Event
		data    []string
		hasData bool
		pending bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if !hasData {
				// Nothing to dispatch; reset per the framing rules.
				ev, pending = Event{}, false
				continue
			}
			ev.Data = strings.Join(data, "\n")
			if ev.Name == "" {
				ev.Name = EventMessage
			}
			return &ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			field = line[:idx]
			value = strings.TrimPrefix(line[idx+1:], " ")
		}

		pending = true
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			ev.ID = value
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrTruncated
	}
	return nil, io.EOF
}
