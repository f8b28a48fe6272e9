// Package llmtest provides a scripted llm.LLMProvider for tests.
package llmtest

import (
	"context"
	"io"
	"sync"
	"time"

	"ai-consultation-be/pkg/llm"
)

// Call records one Chat or ChatStream invocation.
type Call struct {
	History []llm.Message
	Options *llm.Options
}

// Provider replays Chunks for every stream. StartErr fails the call before
// the first byte; StreamErr is returned after the chunks instead of io.EOF.
type Provider struct {
	Chunks    []string
	StartErr  error
	StreamErr error
	// Delay is waited before every chunk.
	Delay time.Duration
	// Hang blocks after the chunks until the stream is closed or ctx ends.
	Hang bool

	// Reply and ChatErr answer non-streamed Chat calls.
	Reply   string
	ChatErr error

	mu        sync.Mutex
	calls     []Call
	chatCalls []Call
}

var _ llm.LLMProvider = (*Provider)(nil)

func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// ChatCalls returns the recorded Chat invocations. Calls only has streams.
func (p *Provider) ChatCalls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.chatCalls...)
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	p.mu.Lock()
	p.chatCalls = append(p.chatCalls, Call{History: history, Options: llm.ApplyOptions(opts...)})
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.ChatErr != nil {
		return "", p.ChatErr
	}
	return p.Reply, nil
}

func (p *Provider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (llm.Stream, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{History: history, Options: llm.ApplyOptions(opts...)})
	p.mu.Unlock()

	if p.StartErr != nil {
		return nil, p.StartErr
	}
	return &stream{
		ctx:    ctx,
		chunks: append([]string(nil), p.Chunks...),
		err:    p.StreamErr,
		delay:  p.Delay,
		hang:   p.Hang,
		closed: make(chan struct{}),
	}, nil
}

type stream struct {
	ctx       context.Context
	chunks    []string
	err       error
	delay     time.Duration
	hang      bool
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *stream) Recv() (string, error) {
	if len(s.chunks) > 0 {
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-s.closed:
				return "", io.ErrClosedPipe
			case <-s.ctx.Done():
				return "", s.ctx.Err()
			}
		}
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		return chunk, nil
	}
	if s.hang {
		select {
		case <-s.closed:
			return "", io.ErrClosedPipe
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
