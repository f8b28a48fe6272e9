package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ai-consultation-be/internal/bootstrap"
	"ai-consultation-be/internal/config"
	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/internal/pkg/serverutils"
	"ai-consultation-be/internal/repository/unitofwork"
	"ai-consultation-be/pkg/apperr"
	"ai-consultation-be/pkg/database"
	"ai-consultation-be/pkg/identity"
	"ai-consultation-be/pkg/llm/llmtest"
	"ai-consultation-be/pkg/sse"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier map[string]*identity.Subject

func (f fakeVerifier) Verify(ctx context.Context, bearer string) (*identity.Subject, error) {
	token := strings.TrimPrefix(bearer, "Bearer ")
	if token == "expired" {
		return nil, apperr.New(apperr.ErrUnauthorized, "Token expired")
	}
	if s, ok := f[token]; ok {
		return s, nil
	}
	return nil, apperr.New(apperr.ErrUnauthorized, "Invalid token")
}

var testSubjects = fakeVerifier{
	"token-a":       {ID: "user_a"},
	"token-b":       {ID: "user_b"},
	"token-premium": {ID: "user_p", Plan: "u:premium_subscription", Premium: true},
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Port:               "0",
			CorsAllowedOrigins: "*",
			BodyLimitMB:        10,
			StaticDir:          "does-not-exist",
			EventTopic:         "TEST_EVENTS",
		},
		Ai: config.AIConfig{
			BaselineModel:    "gpt-4o-mini",
			PremiumModel:     "gpt-5",
			ChunkIdleTimeout: 2 * time.Second,
		},
		Upload: config.UploadConfig{
			MaxBytes:       5 * 1024 * 1024,
			FilePrecedence: "file",
		},
	}
}

func newTestApp(t *testing.T, provider *llmtest.Provider, factory unitofwork.RepositoryFactory) *fiber.App {
	return newTestAppWithConfig(t, testConfig(), provider, factory)
}

func newTestAppWithConfig(t *testing.T, cfg *config.Config, provider *llmtest.Provider, factory unitofwork.RepositoryFactory) *fiber.App {
	t.Helper()
	if factory == nil {
		factory = unitofwork.NewMemoryFactory(nil)
	}
	container := bootstrap.NewContainer(cfg,
		bootstrap.WithLogger(logger.NewNopLogger()),
		bootstrap.WithLLMProvider(provider),
		bootstrap.WithVerifier(testSubjects),
		bootstrap.WithRepositoryFactory(factory),
	)
	t.Cleanup(func() { _ = container.Close() })
	return New(cfg, container).GetApp()
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func readEvents(t *testing.T, resp *http.Response) []sse.Event {
	t.Helper()
	defer resp.Body.Close()
	r := sse.NewReader(resp.Body)
	var out []sse.Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, *ev)
	}
}

func eventText(t *testing.T, ev sse.Event) string {
	t.Helper()
	text, err := ev.Text()
	require.NoError(t, err)
	return text
}

func decodeError(t *testing.T, resp *http.Response) serverutils.BaseResponse[any] {
	t.Helper()
	defer resp.Body.Close()
	var body serverutils.BaseResponse[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func janeDoe() dto.ConsultationRequest {
	return dto.ConsultationRequest{
		PatientName: "Jane Doe",
		DateOfVisit: "2025-01-15",
		Notes:       "BP 120/80, mild cough, follow-up in 2 weeks",
	}
}

func TestConsultation_StreamsSummary(t *testing.T) {
	chunks := []string{"### Summary of visit for the doctor's records\n", "BP 120/80.", "\n\n### Next steps for the doctor\n", "Follow up."}
	provider := &llmtest.Provider{Chunks: chunks}
	app := newTestApp(t, provider, nil)

	resp := doJSON(t, app, http.MethodPost, "/api/consultation", "token-a", janeDoe())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := readEvents(t, resp)
	require.Len(t, events, len(chunks)+1)

	var text strings.Builder
	for i, ev := range events[:len(chunks)] {
		assert.Equal(t, sse.EventMessage, ev.Name)
		assert.Equal(t, chunks[i], eventText(t, ev))
		text.WriteString(eventText(t, ev))
	}
	assert.Equal(t, strings.Join(chunks, ""), text.String())

	done := events[len(events)-1]
	assert.Equal(t, sse.EventDone, done.Name)
	var meta dto.ConsultationDone
	require.NoError(t, json.Unmarshal([]byte(done.Data), &meta))
	assert.Equal(t, "gpt-4o-mini", meta.Model)
	assert.Equal(t, len(chunks), meta.Chunks)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].History[1].Content, "Notes:\nBP 120/80, mild cough, follow-up in 2 weeks")
}

func TestConsultation_CarriageReturnsSurviveTheStream(t *testing.T) {
	chunks := []string{"### Summary\r\n", "BP 120/80\r", "\nDone."}
	app := newTestApp(t, &llmtest.Provider{Chunks: chunks}, nil)

	resp := doJSON(t, app, http.MethodPost, "/api/consultation", "token-a", janeDoe())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readEvents(t, resp)
	require.Len(t, events, len(chunks)+1)
	var text strings.Builder
	for _, ev := range events[:len(chunks)] {
		text.WriteString(eventText(t, ev))
	}
	assert.Equal(t, "### Summary\r\nBP 120/80\r\nDone.", text.String())
}

func TestConsultation_KeepAliveWhileUpstreamSilent(t *testing.T) {
	cfg := testConfig()
	cfg.Ai.StreamKeepAlive = 20 * time.Millisecond
	app := newTestAppWithConfig(t, cfg, &llmtest.Provider{Chunks: []string{"late"}, Delay: 150 * time.Millisecond}, nil)

	resp := doJSON(t, app, http.MethodPost, "/api/consultation", "token-a", janeDoe())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.True(t, strings.HasPrefix(string(raw), ": keep-alive\n\n"))
	events := readEvents(t, &http.Response{Body: io.NopCloser(bytes.NewReader(raw))})
	require.Len(t, events, 2)
	assert.Equal(t, "late", eventText(t, events[0]))
	assert.Equal(t, sse.EventDone, events[1].Name)
}

func TestConsultation_PremiumUsesPremiumModel(t *testing.T) {
	provider := &llmtest.Provider{Chunks: []string{"ok"}}
	app := newTestApp(t, provider, nil)

	resp := doJSON(t, app, http.MethodPost, "/api/consultation", "token-premium", janeDoe())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	readEvents(t, resp)
	assert.Equal(t, "gpt-5", provider.Calls()[0].Options.Model)
}

func TestConsultation_Rejections(t *testing.T) {
	provider := &llmtest.Provider{Chunks: []string{"never"}}
	app := newTestApp(t, provider, nil)

	t.Run("expired token", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/consultation", "expired", janeDoe())
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decodeError(t, resp)
		assert.False(t, body.Success)
		assert.Equal(t, "Token expired", body.Message)
	})

	t.Run("missing token", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/consultation", "", janeDoe())
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("six MiB file", func(t *testing.T) {
		req := janeDoe()
		req.Notes = ""
		req.FileMime = "application/pdf"
		req.FileBase64 = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{'x'}, 6*1024*1024))
		resp := doJSON(t, app, http.MethodPost, "/api/consultation", "token-a", req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("unsupported type", func(t *testing.T) {
		req := janeDoe()
		req.FileMime = "text/plain"
		req.FileBase64 = base64.StdEncoding.EncodeToString([]byte("hello"))
		resp := doJSON(t, app, http.MethodPost, "/api/consultation", "token-a", req)
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("neither notes nor file", func(t *testing.T) {
		req := janeDoe()
		req.Notes = ""
		resp := doJSON(t, app, http.MethodPost, "/api/consultation", "token-a", req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad date", func(t *testing.T) {
		req := janeDoe()
		req.DateOfVisit = "15/01/2025"
		resp := doJSON(t, app, http.MethodPost, "/api/consultation", "token-a", req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp).Message, "date_of_visit")
	})

	assert.Empty(t, provider.Calls())
}

func TestConsultation_UpstreamUnavailable(t *testing.T) {
	app := newTestApp(t, &llmtest.Provider{StartErr: errors.New("quota exceeded")}, nil)

	resp := doJSON(t, app, http.MethodPost, "/api/consultation", "token-a", janeDoe())
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.NotContains(t, decodeError(t, resp).Message, "quota")
}

func TestConsultation_MidStreamFailure(t *testing.T) {
	app := newTestApp(t, &llmtest.Provider{Chunks: []string{"partial"}, StreamErr: errors.New("reset")}, nil)

	resp := doJSON(t, app, http.MethodPost, "/api/consultation", "token-a", janeDoe())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readEvents(t, resp)
	require.Len(t, events, 2)
	assert.Equal(t, "partial", eventText(t, events[0]))
	assert.Equal(t, sse.EventError, events[1].Name)

	var streamErr dto.ConsultationStreamError
	require.NoError(t, json.Unmarshal([]byte(events[1].Data), &streamErr))
	assert.Equal(t, "upstream_error", streamErr.Code)
}

func TestHistory_AppendAndList(t *testing.T) {
	app := newTestApp(t, &llmtest.Provider{}, nil)

	for _, name := range []string{"First", "Second", "Third"} {
		resp := doJSON(t, app, http.MethodPost, "/api/history", "token-a", dto.CreateHistoryRequest{
			PatientName: name, DateOfVisit: "2025-01-15", Summary: "summary " + name,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var created serverutils.BaseResponse[dto.HistoryEntryResponse]
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		resp.Body.Close()
		assert.True(t, created.Success)
		assert.Equal(t, name, created.Data.PatientName)
		// Distinct creation timestamps.
		time.Sleep(2 * time.Millisecond)
	}

	resp := doJSON(t, app, http.MethodGet, "/api/history", "token-a", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list serverutils.BaseResponse[dto.ListHistoryResponse]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Data.History, 3)
	assert.Equal(t, "Third", list.Data.History[0].PatientName)
	assert.Equal(t, "First", list.Data.History[2].PatientName)
	assert.Equal(t, "2025-01-15", list.Data.History[0].DateOfVisit)

	resp = doJSON(t, app, http.MethodGet, "/api/history?limit=1&offset=1", "token-a", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Data.History, 1)
	assert.Equal(t, "Second", list.Data.History[0].PatientName)

	resp = doJSON(t, app, http.MethodGet, "/api/history", "token-b", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Empty(t, list.Data.History)
}

func TestHistory_Validation(t *testing.T) {
	app := newTestApp(t, &llmtest.Provider{}, nil)

	resp := doJSON(t, app, http.MethodPost, "/api/history", "token-a", dto.CreateHistoryRequest{PatientName: "Jane", DateOfVisit: "2025-01-15"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/api/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHistory_StoreUnavailable(t *testing.T) {
	app := newTestApp(t, &llmtest.Provider{Chunks: []string{"still works"}}, unitofwork.NewRepositoryFactory(database.NewConnector("")))

	resp := doJSON(t, app, http.MethodGet, "/api/history", "token-a", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/api/history", "token-a", dto.CreateHistoryRequest{
		PatientName: "Jane", DateOfVisit: "2025-01-15", Summary: "s",
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Summaries do not depend on the store.
	resp = doJSON(t, app, http.MethodPost, "/api/consultation", "token-a", janeDoe())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := readEvents(t, resp)
	assert.Equal(t, "still works", eventText(t, events[0]))
}

func TestHealthAndProfile(t *testing.T) {
	app := newTestApp(t, &llmtest.Provider{}, nil)

	resp := doJSON(t, app, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "healthy", health["status"])

	resp = doJSON(t, app, http.MethodGet, "/api/me", "token-premium", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me serverutils.BaseResponse[dto.ProfileResponse]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	resp.Body.Close()
	assert.Equal(t, "user_p", me.Data.UserId)
	assert.True(t, me.Data.Premium)
	assert.Equal(t, "gpt-5", me.Data.Model)
}

func TestCorsConfig(t *testing.T) {
	assert.False(t, corsConfig("*").AllowCredentials)
	assert.True(t, corsConfig("https://app.example.com").AllowCredentials)
}
