package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"ai-consultation-be/pkg/sse"
)

// Run is one submission. Call Next until it returns an error; io.EOF means
// the summary finished and was recorded.
type Run struct {
	client  *Client
	sub     Submission
	machine machine

	parent context.Context
	cancel context.CancelFunc
	body   io.ReadCloser
	reader *sse.Reader

	mu         sync.Mutex
	transcript strings.Builder
	done       *Done
	err        error
	saved      *HistoryEntry
	saveErr    error
	cacheErr   error
}

func newRun(c *Client, sub Submission) *Run {
	return &Run{client: c, sub: sub}
}

func (r *Run) State() State {
	return r.machine.current()
}

// Transcript is everything received so far, in arrival order.
func (r *Run) Transcript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript.String()
}

// Err is the reason the run closed with an error.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is the server's completion metadata, set on success.
func (r *Run) Done() *Done {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Saved is the durable history entry written on success, if the save worked.
func (r *Run) Saved() *HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved
}

// SaveErr reports a failed durable save. It does not change the run's state.
func (r *Run) SaveErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveErr
}

// CacheErr reports a failed write to the local recents cache. Like SaveErr it
// does not change the run's state.
func (r *Run) CacheErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cacheErr
}

// Next returns the next fragment. It returns io.EOF once the run closed
// successfully, or the failure once it closed with an error.
func (r *Run) Next() (string, error) {
	switch r.State() {
	case StateClosedSuccess:
		return "", io.EOF
	case StateClosedError:
		return "", r.Err()
	case StateAwaitingFirstByte, StateStreaming:
	default:
		return "", errors.New("relay: run is not streaming")
	}

	for {
		ev, err := r.reader.Next()
		if err != nil {
			if r.parent != nil && r.parent.Err() != nil {
				err = r.parent.Err()
			} else if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			r.fail(err)
			return "", err
		}

		switch ev.Name {
		case sse.EventMessage:
			chunk, err := ev.Text()
			if err != nil {
				r.fail(err)
				return "", err
			}
			if r.State() == StateAwaitingFirstByte {
				_ = r.machine.transition(StateStreaming)
			}
			r.mu.Lock()
			r.transcript.WriteString(chunk)
			r.mu.Unlock()
			return chunk, nil

		case sse.EventDone:
			var done Done
			_ = json.Unmarshal([]byte(ev.Data), &done)
			r.succeed(&done)
			return "", io.EOF

		case sse.EventError:
			var se streamError
			msg := ev.Data
			if json.Unmarshal([]byte(ev.Data), &se) == nil && se.Message != "" {
				msg = se.Message
			}
			err := errors.Join(ErrStream, errors.New(msg))
			r.fail(err)
			return "", err
		}
	}
}

// Wait drains the run, calling observe after every fragment with the
// fragment and the transcript so far.
func (r *Run) Wait(observe func(chunk, transcript string)) error {
	for {
		chunk, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if observe != nil {
			observe(chunk, r.Transcript())
		}
	}
}

// Close abandons the run and releases the connection.
func (r *Run) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	if !r.State().Terminal() && r.State() != StateIdle {
		r.fail(context.Canceled)
	}
	return nil
}

func (r *Run) fail(err error) {
	if r.machine.transition(StateClosedError) != nil {
		return
	}
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.release()
}

// succeed closes the run and records the summary in both tiers. Nothing is
// recorded for an empty transcript.
func (r *Run) succeed(done *Done) {
	if r.machine.transition(StateClosedSuccess) != nil {
		return
	}
	r.release()

	r.mu.Lock()
	r.done = done
	text := r.transcript.String()
	r.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return
	}

	ctx := r.parent
	if ctx == nil {
		ctx = context.Background()
	}
	cacheErr := r.client.cache.Put(ctx, Record{
		PatientName: r.sub.PatientName,
		DateOfVisit: r.sub.DateOfVisit,
		Summary:     text,
		CreatedAt:   r.client.now().UTC(),
	})
	if cacheErr != nil {
		cacheErr = fmt.Errorf("relay: cache summary: %w", cacheErr)
	}

	saved, err := r.client.SaveHistory(ctx, r.sub.PatientName, r.sub.DateOfVisit, text)
	r.mu.Lock()
	r.saved, r.saveErr = saved, err
	r.cacheErr = cacheErr
	r.mu.Unlock()
}

func (r *Run) release() {
	if r.body != nil {
		_ = r.body.Close()
	}
	if r.cancel != nil {
		r.cancel()
	}
}
