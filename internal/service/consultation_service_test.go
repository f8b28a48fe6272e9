package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/apperr"
	"ai-consultation-be/pkg/identity"
	"ai-consultation-be/pkg/llm"
	"ai-consultation-be/pkg/llm/llmtest"
	"ai-consultation-be/pkg/summary"
	"ai-consultation-be/pkg/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestConsultationService(provider llm.LLMProvider, pub IPublisherService, precedence summary.Precedence) IConsultationService {
	return newConsultationServiceWithOptions(provider, pub, ConsultationOptions{
		Tiers:       summary.TierSelector{Baseline: "gpt-4o-mini", Premium: "gpt-5"},
		Precedence:  precedence,
		IdleTimeout: time.Second,
	})
}

func newConsultationServiceWithOptions(provider llm.LLMProvider, pub IPublisherService, opts ConsultationOptions) IConsultationService {
	normalizer := upload.NewNormalizer(upload.DefaultMaxBytes, upload.WithTextExtractor(func([]byte) (string, error) {
		return "lab results from pdf", nil
	}))
	return NewConsultationService(provider, normalizer, pub, logger.NewNopLogger(), opts)
}

func collectChunks(session *ConsultationSession) ([]string, summary.Outcome) {
	var got []string
	outcome := session.Relay(func(chunk string) error {
		got = append(got, chunk)
		return nil
	}, nil)
	return got, outcome
}

func transcribeOptions() ConsultationOptions {
	return ConsultationOptions{
		Tiers:       summary.TierSelector{Baseline: "gpt-4o-mini", Premium: "gpt-5"},
		Precedence:  summary.PrecedenceCombine,
		ImageMode:   summary.ImageModeTranscribe,
		IdleTimeout: time.Second,
	}
}

func imageRequest() *dto.ConsultationRequest {
	return &dto.ConsultationRequest{
		PatientName: "Jane", DateOfVisit: "2025-01-15", Notes: "typed notes",
		FileBase64: base64.StdEncoding.EncodeToString(pngBytes), FileMime: "image/png",
	}
}

func TestConsultationService_JaneDoe(t *testing.T) {
	provider := &llmtest.Provider{Chunks: []string{"### Summary", " of visit", "\nBP normal"}}
	pub := &recordingPublisher{}
	svc := newTestConsultationService(provider, pub, summary.PrecedenceFile)

	subject := &identity.Subject{ID: "user_123"}
	session, err := svc.Start(context.Background(), subject, &dto.ConsultationRequest{
		PatientName: "Jane Doe",
		DateOfVisit: "2025-01-15",
		Notes:       "BP 120/80, mild cough",
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", session.Model())

	chunks, outcome := collectChunks(session)
	assert.Equal(t, []string{"### Summary", " of visit", "\nBP normal"}, chunks)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, "### Summary of visit\nBP normal", outcome.Text)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "gpt-4o-mini", calls[0].Options.Model)
	user := calls[0].History[1].Content
	assert.Contains(t, user, "Patient Name: Jane Doe")
	assert.Contains(t, user, "Date of Visit: 2025-01-15")
	assert.Contains(t, user, "Notes:\nBP 120/80, mild cough")
	assert.NotContains(t, user, "--- From file ---")

	assert.Equal(t, []string{dto.EventConsultationSummarized}, pub.types())
}

func TestConsultationService_PremiumModel(t *testing.T) {
	provider := &llmtest.Provider{Chunks: []string{"ok"}}
	svc := newTestConsultationService(provider, nil, summary.PrecedenceFile)

	session, err := svc.Start(context.Background(), &identity.Subject{ID: "u", Premium: true}, &dto.ConsultationRequest{
		PatientName: "Jane", DateOfVisit: "2025-01-15", Notes: "n",
	})
	require.NoError(t, err)
	collectChunks(session)

	assert.Equal(t, "gpt-5", session.Model())
	assert.Equal(t, "gpt-5", provider.Calls()[0].Options.Model)
	assert.Equal(t, "gpt-4o-mini", svc.Model(&identity.Subject{ID: "u", Plan: "mystery_plan"}))
}

func TestConsultationService_FilePrecedence(t *testing.T) {
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4\n%%EOF\n"))
	req := &dto.ConsultationRequest{
		PatientName: "Jane", DateOfVisit: "2025-01-15",
		Notes: "typed notes", FileBase64: pdf, FileMime: "application/pdf",
	}

	provider := &llmtest.Provider{Chunks: []string{"ok"}}
	session, err := newTestConsultationService(provider, nil, summary.PrecedenceFile).Start(context.Background(), nil, req)
	require.NoError(t, err)
	collectChunks(session)
	user := provider.Calls()[0].History[1].Content
	assert.Contains(t, user, "lab results from pdf")
	assert.NotContains(t, user, "typed notes")

	provider = &llmtest.Provider{Chunks: []string{"ok"}}
	session, err = newTestConsultationService(provider, nil, summary.PrecedenceCombine).Start(context.Background(), nil, req)
	require.NoError(t, err)
	collectChunks(session)
	user = provider.Calls()[0].History[1].Content
	assert.Contains(t, user, "typed notes\n\n--- From file ---\nlab results from pdf")
}

func TestConsultationService_ImageAttached(t *testing.T) {
	provider := &llmtest.Provider{Chunks: []string{"ok"}}
	svc := newTestConsultationService(provider, nil, summary.PrecedenceFile)

	session, err := svc.Start(context.Background(), nil, &dto.ConsultationRequest{
		PatientName: "Jane", DateOfVisit: "2025-01-15",
		FileBase64: base64.StdEncoding.EncodeToString(pngBytes), FileMime: "image/png",
	})
	require.NoError(t, err)
	collectChunks(session)

	images := provider.Calls()[0].History[1].Images
	require.Len(t, images, 1)
	assert.Equal(t, "image/png", images[0].MimeType)
}

func TestConsultationService_RejectsBeforeUpstream(t *testing.T) {
	provider := &llmtest.Provider{Chunks: []string{"never"}}
	svc := newTestConsultationService(provider, nil, summary.PrecedenceFile)
	ctx := context.Background()

	big := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{'a'}, 6*1024*1024))
	_, err := svc.Start(ctx, nil, &dto.ConsultationRequest{
		PatientName: "Jane", DateOfVisit: "2025-01-15", FileBase64: big, FileMime: "application/pdf",
	})
	assert.ErrorIs(t, err, apperr.ErrPayloadTooLarge)

	_, err = svc.Start(ctx, nil, &dto.ConsultationRequest{
		PatientName: "Jane", DateOfVisit: "2025-01-15",
		FileBase64: base64.StdEncoding.EncodeToString([]byte("hello")), FileMime: "text/plain",
	})
	assert.ErrorIs(t, err, apperr.ErrUnsupportedMediaType)

	_, err = svc.Start(ctx, nil, &dto.ConsultationRequest{PatientName: "Jane", DateOfVisit: "2025-01-15", Notes: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Empty(t, provider.Calls())
}

func TestConsultationService_UpstreamUnavailable(t *testing.T) {
	provider := &llmtest.Provider{StartErr: errors.New("429 quota exceeded")}
	pub := &recordingPublisher{}
	svc := newTestConsultationService(provider, pub, summary.PrecedenceFile)

	_, err := svc.Start(context.Background(), &identity.Subject{ID: "u"}, &dto.ConsultationRequest{
		PatientName: "Jane", DateOfVisit: "2025-01-15", Notes: "n",
	})
	assert.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
	assert.Equal(t, 502, apperr.StatusCode(err))
	assert.Equal(t, []string{dto.EventConsultationFailed}, pub.types())
}

func TestConsultationService_MidStreamFailure(t *testing.T) {
	provider := &llmtest.Provider{Chunks: []string{"partial"}, StreamErr: errors.New("connection reset")}
	pub := &recordingPublisher{}
	svc := newTestConsultationService(provider, pub, summary.PrecedenceFile)

	session, err := svc.Start(context.Background(), nil, &dto.ConsultationRequest{
		PatientName: "Jane", DateOfVisit: "2025-01-15", Notes: "n",
	})
	require.NoError(t, err)

	chunks, outcome := collectChunks(session)
	assert.Equal(t, []string{"partial"}, chunks)
	assert.Equal(t, summary.StatusUpstreamError, outcome.Status)
	assert.Equal(t, []string{dto.EventConsultationFailed}, pub.types())
}

func TestConsultationService_TranscribesImage(t *testing.T) {
	provider := &llmtest.Provider{Chunks: []string{"ok"}, Reply: "  BP 130/85, wheeze on left  \n"}
	svc := newConsultationServiceWithOptions(provider, nil, transcribeOptions())

	session, err := svc.Start(context.Background(), &identity.Subject{ID: "u", Premium: true}, imageRequest())
	require.NoError(t, err)
	collectChunks(session)

	chats := provider.ChatCalls()
	require.Len(t, chats, 1)
	assert.Equal(t, "gpt-4o-mini", chats[0].Options.Model)
	assert.Equal(t, 4096, chats[0].Options.MaxTokens)
	assert.InDelta(t, 0.2, chats[0].Options.Temperature, 0.001)
	require.Len(t, chats[0].History, 1)
	assert.Equal(t, summary.TranscriptionPrompt, chats[0].History[0].Content)
	require.Len(t, chats[0].History[0].Images, 1)
	assert.Equal(t, "image/png", chats[0].History[0].Images[0].MimeType)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "gpt-5", calls[0].Options.Model)
	user := calls[0].History[1]
	assert.Empty(t, user.Images)
	assert.Contains(t, user.Content, "typed notes\n\n--- From file ---\nBP 130/85, wheeze on left")
}

func TestConsultationService_TranscriptionFailures(t *testing.T) {
	t.Run("upstream error", func(t *testing.T) {
		provider := &llmtest.Provider{Chunks: []string{"never"}, ChatErr: errors.New("503 overloaded")}
		pub := &recordingPublisher{}
		svc := newConsultationServiceWithOptions(provider, pub, transcribeOptions())

		_, err := svc.Start(context.Background(), nil, imageRequest())
		assert.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
		assert.Empty(t, provider.Calls())
		assert.Equal(t, []string{dto.EventConsultationFailed}, pub.types())
	})

	t.Run("no text", func(t *testing.T) {
		provider := &llmtest.Provider{Chunks: []string{"never"}, Reply: " \n "}
		svc := newConsultationServiceWithOptions(provider, nil, transcribeOptions())

		_, err := svc.Start(context.Background(), nil, imageRequest())
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Empty(t, provider.Calls())
	})
}

func TestConsultationService_VisionModeSkipsTranscription(t *testing.T) {
	provider := &llmtest.Provider{Chunks: []string{"ok"}, Reply: "unused"}
	svc := newTestConsultationService(provider, nil, summary.PrecedenceFile)

	session, err := svc.Start(context.Background(), nil, imageRequest())
	require.NoError(t, err)
	collectChunks(session)

	assert.Empty(t, provider.ChatCalls())
	assert.Len(t, provider.Calls()[0].History[1].Images, 1)
}

func TestConsultationSession_HeartbeatWhileUpstreamSilent(t *testing.T) {
	provider := &llmtest.Provider{Chunks: []string{"late"}, Delay: 150 * time.Millisecond}
	opts := transcribeOptions()
	opts.KeepAlive = 20 * time.Millisecond
	svc := newConsultationServiceWithOptions(provider, nil, opts)

	session, err := svc.Start(context.Background(), nil, &dto.ConsultationRequest{
		PatientName: "Jane", DateOfVisit: "2025-01-15", Notes: "n",
	})
	require.NoError(t, err)

	beats := 0
	outcome := session.Relay(func(string) error { return nil }, func() error {
		beats++
		return nil
	})
	assert.True(t, outcome.Succeeded())
	assert.GreaterOrEqual(t, beats, 2)
}
