package summary

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-consultation-be/pkg/llm"
	"ai-consultation-be/pkg/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_NotesVerbatim(t *testing.T) {
	notes := "BP 120/80, mild cough.\n  Follow-up in 2 weeks."
	msgs := BuildMessages(Input{PatientName: "Jane Doe", DateOfVisit: "2025-01-15", Notes: notes}, PrecedenceFile)

	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, SystemPrompt, msgs[0].Content)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t,
		"Create the summary, next steps and draft email for:\nPatient Name: Jane Doe\nDate of Visit: 2025-01-15\nNotes:\n"+notes,
		msgs[1].Content)
	assert.NotContains(t, msgs[1].Content, fileSeparator)
	assert.Empty(t, msgs[1].Images)
}

func TestBody_Precedence(t *testing.T) {
	pdf := &upload.Payload{Kind: upload.KindText, Text: "lab results"}
	in := Input{Notes: "typed notes", File: pdf}

	assert.Equal(t, "lab results", Body(in, PrecedenceFile))
	assert.Equal(t, "typed notes\n\n--- From file ---\nlab results", Body(in, PrecedenceCombine))

	in.Notes = "   "
	assert.Equal(t, "lab results", Body(in, PrecedenceCombine))
}

func TestBuildMessages_ImageAttached(t *testing.T) {
	img := &upload.Payload{Kind: upload.KindImage, MimeType: "image/png", Base64: "AAAA"}
	msgs := BuildMessages(Input{PatientName: "Jane", DateOfVisit: "2025-01-15", File: img}, PrecedenceFile)

	require.Len(t, msgs[1].Images, 1)
	assert.Equal(t, "image/png", msgs[1].Images[0].MimeType)
	assert.Contains(t, msgs[1].Content, imagePlaceholder)
}

func TestTranscriptionMessages(t *testing.T) {
	msgs := TranscriptionMessages(&upload.Payload{Kind: upload.KindImage, MimeType: "image/webp", Base64: "UklG"})
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, TranscriptionPrompt, msgs[0].Content)
	assert.Equal(t, []llm.Image{{MimeType: "image/webp", Data: "UklG"}}, msgs[0].Images)
}

func TestParseImageMode(t *testing.T) {
	assert.Equal(t, ImageModeTranscribe, ParseImageMode(" Transcribe "))
	assert.Equal(t, ImageModeVision, ParseImageMode(""))
	assert.Equal(t, ImageModeVision, ParseImageMode("ocr"))
}

func TestParsePrecedence(t *testing.T) {
	assert.Equal(t, PrecedenceCombine, ParsePrecedence(" Combine "))
	assert.Equal(t, PrecedenceFile, ParsePrecedence("file"))
	assert.Equal(t, PrecedenceFile, ParsePrecedence("whatever"))
}

func TestTierSelector(t *testing.T) {
	tiers := TierSelector{Baseline: "gpt-4o-mini", Premium: "gpt-5"}
	assert.Equal(t, "gpt-5", tiers.Select(true))
	assert.Equal(t, "gpt-4o-mini", tiers.Select(false))
	assert.Equal(t, "base", TierSelector{Baseline: "base"}.Select(true))
}

type fakeStream struct {
	mu     sync.Mutex
	chunks []string
	err    error
	block  chan struct{}
	closed bool
}

func (f *fakeStream) Recv() (string, error) {
	f.mu.Lock()
	if len(f.chunks) > 0 {
		c := f.chunks[0]
		f.chunks = f.chunks[1:]
		f.mu.Unlock()
		return c, nil
	}
	block, err := f.block, f.err
	f.mu.Unlock()
	if block != nil {
		<-block
		return "", errors.New("closed")
	}
	if err != nil {
		return "", err
	}
	return "", io.EOF
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		if f.block != nil {
			close(f.block)
		}
	}
	return nil
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func collect(out *[]string) Sink {
	return func(chunk string) error {
		*out = append(*out, chunk)
		return nil
	}
}

func TestPump_Done(t *testing.T) {
	stream := &fakeStream{chunks: []string{"### Summary", "", "\nok"}}
	var got []string

	out := Pump(context.Background(), stream, collect(&got), PumpOptions{Idle: time.Second})

	assert.Equal(t, StatusDone, out.Status)
	assert.True(t, out.Succeeded())
	assert.Equal(t, []string{"### Summary", "\nok"}, got)
	assert.Equal(t, "### Summary\nok", out.Text)
	assert.Equal(t, 2, out.Chunks)
	assert.True(t, stream.isClosed())
}

func TestPump_UpstreamError(t *testing.T) {
	stream := &fakeStream{chunks: []string{"partial"}, err: errors.New("connection reset")}
	var got []string

	out := Pump(context.Background(), stream, collect(&got), PumpOptions{})

	assert.Equal(t, StatusUpstreamError, out.Status)
	assert.EqualError(t, out.Err, "connection reset")
	assert.Equal(t, "partial", out.Text)
}

func TestPump_IdleTimeout(t *testing.T) {
	stream := &fakeStream{chunks: []string{"first"}, block: make(chan struct{})}
	var got []string

	out := Pump(context.Background(), stream, collect(&got), PumpOptions{Idle: 50 * time.Millisecond})

	assert.Equal(t, StatusIdleTimeout, out.Status)
	assert.ErrorIs(t, out.Err, ErrIdleTimeout)
	assert.Equal(t, []string{"first"}, got)
	assert.True(t, stream.isClosed())
}

func TestPump_ClientGone(t *testing.T) {
	stream := &fakeStream{chunks: []string{"a", "b"}, block: make(chan struct{})}
	sink := func(string) error { return errors.New("broken pipe") }

	out := Pump(context.Background(), stream, sink, PumpOptions{Idle: time.Second})

	assert.Equal(t, StatusClientGone, out.Status)
	assert.ErrorIs(t, out.Err, ErrClientGone)
	assert.Zero(t, out.Chunks)
	assert.True(t, stream.isClosed())
}

func TestPump_Cancelled(t *testing.T) {
	stream := &fakeStream{block: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	out := Pump(ctx, stream, func(string) error { return nil }, PumpOptions{Idle: time.Minute})

	assert.Equal(t, StatusCancelled, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.True(t, stream.isClosed())
}

func TestPump_HeartbeatWhileSilent(t *testing.T) {
	stream := &fakeStream{block: make(chan struct{})}
	var beats atomic.Int32

	out := Pump(context.Background(), stream, collect(new([]string)), PumpOptions{
		Idle:      200 * time.Millisecond,
		KeepAlive: 20 * time.Millisecond,
		Heartbeat: func() error {
			beats.Add(1)
			return nil
		},
	})

	assert.Equal(t, StatusIdleTimeout, out.Status)
	assert.GreaterOrEqual(t, beats.Load(), int32(3))
}

func TestPump_HeartbeatFailureMeansClientGone(t *testing.T) {
	stream := &fakeStream{block: make(chan struct{})}

	out := Pump(context.Background(), stream, collect(new([]string)), PumpOptions{
		Idle:      time.Minute,
		KeepAlive: 10 * time.Millisecond,
		Heartbeat: func() error { return errors.New("broken pipe") },
	})

	assert.Equal(t, StatusClientGone, out.Status)
	assert.ErrorIs(t, out.Err, ErrClientGone)
	assert.True(t, stream.isClosed())
}
