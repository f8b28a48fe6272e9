// Package relay is the client side of the consultation backend: it submits a
// consultation, consumes the summary stream and records finished summaries.
package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ai-consultation-be/pkg/apperr"
	"ai-consultation-be/pkg/sse"
)

type Options struct {
	BaseURL string
	Token   string
	// HTTPClient must not set an overall Timeout, which would cut long streams.
	HTTPClient     *http.Client
	Cache          LocalCache
	MaxUploadBytes int
}

type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	cache    LocalCache
	maxBytes int
	now      func() time.Time
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("relay: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("relay: invalid base URL: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheSize)
	}
	maxBytes := opts.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}

	return &Client{
		baseURL:  base,
		token:    opts.Token,
		http:     httpClient,
		cache:    cache,
		maxBytes: maxBytes,
		now:      time.Now,
	}, nil
}

func (c *Client) Cache() LocalCache {
	return c.cache
}

// Wire types. They mirror the backend's JSON.

type envelope[T any] struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type consultationBody struct {
	PatientName string `json:"patient_name"`
	DateOfVisit string `json:"date_of_visit"`
	Notes       string `json:"notes"`
	FileBase64  string `json:"file_base64,omitempty"`
	FileMime    string `json:"file_mime,omitempty"`
}

type HistoryEntry struct {
	ID          string    `json:"id"`
	PatientName string    `json:"patient_name"`
	DateOfVisit string    `json:"date_of_visit"`
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"created_at"`
}

type historyList struct {
	History []HistoryEntry `json:"history"`
	Total   int64          `json:"total"`
}

type Profile struct {
	UserID    string `json:"user_id"`
	Plan      string `json:"plan"`
	Premium   bool   `json:"premium"`
	Model     string `json:"model"`
	ExpiresAt string `json:"expires_at"`
}

// Done is the data of the stream's terminal success event.
type Done struct {
	Model  string `json:"model"`
	Chunks int    `json:"chunks"`
	Chars  int    `json:"chars"`
}

type streamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrStream is returned when the server reports a failure after the stream
// has started.
var ErrStream = errors.New("relay: stream failed")

// Submit validates locally, then opens the summary stream. A validation
// failure leaves the run Idle and makes no network call. Failures before the
// first byte close the run with an error.
func (c *Client) Submit(ctx context.Context, sub Submission) (*Run, error) {
	run := newRun(c, sub)

	if err := run.machine.transition(StateValidating); err != nil {
		return nil, err
	}
	if err := sub.Validate(c.maxBytes); err != nil {
		_ = run.machine.transition(StateIdle)
		return run, err
	}
	_ = run.machine.transition(StateAwaitingFirstByte)

	body := consultationBody{
		PatientName: sub.PatientName,
		DateOfVisit: sub.DateOfVisit,
		Notes:       sub.Notes,
	}
	if len(sub.File) > 0 {
		body.FileBase64 = base64.StdEncoding.EncodeToString(sub.File)
		body.FileMime = sub.FileMime
	}

	runCtx, cancel := context.WithCancel(ctx)
	run.cancel = cancel
	run.parent = ctx

	req, err := c.newRequest(runCtx, http.MethodPost, "/api/consultation", body)
	if err != nil {
		run.fail(err)
		return run, err
	}
	req.Header.Set("Accept", sse.ContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		err = apperr.Wrap(apperr.ErrDependencyUnavailable, "Backend is unreachable", err)
		run.fail(err)
		return run, err
	}
	if resp.StatusCode != http.StatusOK {
		err := decodeError(resp)
		run.fail(err)
		return run, err
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), sse.ContentType) {
		resp.Body.Close()
		err := fmt.Errorf("relay: unexpected content type %q", resp.Header.Get("Content-Type"))
		run.fail(err)
		return run, err
	}

	run.body = resp.Body
	run.reader = sse.NewReader(resp.Body)
	return run, nil
}

// SaveHistory appends a finished summary to the durable history.
func (c *Client) SaveHistory(ctx context.Context, patientName, dateOfVisit, summary string) (*HistoryEntry, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/history", map[string]string{
		"patient_name":  patientName,
		"date_of_visit": dateOfVisit,
		"summary":       summary,
	})
	if err != nil {
		return nil, err
	}
	var out envelope[HistoryEntry]
	if err := c.doJSON(req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// ListHistory returns the caller's entries, newest first. A zero limit
// means all of them.
func (c *Client) ListHistory(ctx context.Context, limit, offset int) ([]HistoryEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out envelope[historyList]
	if err := c.doJSON(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	if out.Data.History == nil {
		return []HistoryEntry{}, nil
	}
	return out.Data.History, nil
}

func (c *Client) Me(ctx context.Context) (*Profile, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/me", nil)
	if err != nil {
		return nil, err
	}
	var out envelope[Profile]
	if err := c.doJSON(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("relay: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("relay: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(req *http.Request, want int, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrDependencyUnavailable, "Backend is unreachable", err)
	}
	if resp.StatusCode != want {
		return decodeError(resp)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("relay: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	defer resp.Body.Close()
	var body envelope[json.RawMessage]
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		message = body.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return apperr.FromStatus(resp.StatusCode, message)
}
