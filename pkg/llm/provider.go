package llm

import (
	"context"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Image is an inline image attached to a message, base64 encoded.
type Image struct {
	MimeType string
	Data     string
}

// DataURL renders the image the way OpenAI-compatible APIs expect it.
func (i Image) DataURL() string {
	return "data:" + i.MimeType + ";base64," + i.Data
}

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
	Images  []Image
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func ApplyOptions(opts ...Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Stream is an in-flight streamed completion. Recv blocks until the next
// non-empty fragment arrives and returns io.EOF once the upstream signals
// completion. Close releases the upstream connection and is safe to call twice.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// ChatStream opens a streamed completion. It returns only once the
	// upstream has accepted the request, so failures before the first byte
	// surface here rather than through Recv.
	ChatStream(ctx context.Context, history []Message, options ...Option) (Stream, error)
}

// Unavailable is a provider that fails every call with err. It stands in
// when the configured backend could not be built.
func Unavailable(err error) LLMProvider {
	return unavailable{err: err}
}

type unavailable struct {
	err error
}

func (u unavailable) Chat(context.Context, []Message, ...Option) (string, error) {
	return "", u.err
}

func (u unavailable) ChatStream(context.Context, []Message, ...Option) (Stream, error) {
	return nil, u.err
}
