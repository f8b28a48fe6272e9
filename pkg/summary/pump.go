package summary

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"ai-consultation-be/pkg/llm"
)

type Status string

const (
	StatusDone          Status = "done"
	StatusUpstreamError Status = "upstream_error"
	StatusIdleTimeout   Status = "idle_timeout"
	StatusClientGone    Status = "client_gone"
	StatusCancelled     Status = "cancelled"
)

var (
	ErrIdleTimeout = errors.New("summary: no chunk received within the idle timeout")
	ErrClientGone  = errors.New("summary: client disconnected")
)

// Outcome describes how a pumped stream ended.
type Outcome struct {
	Status Status
	Text   string
	Chunks int
	Err    error
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusDone
}

// Sink receives each fragment in arrival order. An error from the sink means
// the consumer is gone.
type Sink func(chunk string) error

type recvResult struct {
	chunk string
	err   error
}

// PumpOptions bound a pumped stream. Zero durations disable the matching
// timer.
type PumpOptions struct {
	// Idle is the longest gap allowed between two fragments.
	Idle time.Duration
	// KeepAlive is how long the stream may stay silent before Heartbeat is
	// called. Heartbeat repeats every KeepAlive until a fragment arrives.
	KeepAlive time.Duration
	Heartbeat func() error
}

// Pump relays fragments from stream to sink until the stream ends, the sink
// or heartbeat fails, ctx is cancelled or no fragment arrives within
// opts.Idle. The stream is always closed before Pump returns.
func Pump(ctx context.Context, stream llm.Stream, sink Sink, opts PumpOptions) Outcome {
	defer stream.Close()

	results := make(chan recvResult)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			chunk, err := stream.Recv()
			select {
			case results <- recvResult{chunk: chunk, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var (
		text   strings.Builder
		chunks int
	)
	outcome := func(status Status, err error) Outcome {
		return Outcome{Status: status, Text: text.String(), Chunks: chunks, Err: err}
	}

	idle := opts.Idle
	var timeout <-chan time.Time
	var timer *time.Timer
	if idle > 0 {
		timer = time.NewTimer(idle)
		defer timer.Stop()
		timeout = timer.C
	}

	var beat <-chan time.Time
	var ticker *time.Ticker
	if opts.KeepAlive > 0 && opts.Heartbeat != nil {
		ticker = time.NewTicker(opts.KeepAlive)
		defer ticker.Stop()
		beat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return outcome(StatusCancelled, ctx.Err())
		case <-timeout:
			return outcome(StatusIdleTimeout, ErrIdleTimeout)
		case <-beat:
			if err := opts.Heartbeat(); err != nil {
				return outcome(StatusClientGone, errors.Join(ErrClientGone, err))
			}
		case res := <-results:
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					return outcome(StatusDone, nil)
				}
				if ctx.Err() != nil {
					return outcome(StatusCancelled, ctx.Err())
				}
				return outcome(StatusUpstreamError, res.err)
			}
			if res.chunk == "" {
				continue
			}
			if err := sink(res.chunk); err != nil {
				return outcome(StatusClientGone, errors.Join(ErrClientGone, err))
			}
			text.WriteString(res.chunk)
			chunks++
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(idle)
			}
			if ticker != nil {
				ticker.Reset(opts.KeepAlive)
			}
		}
	}
}
