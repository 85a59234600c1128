// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Configuration constants for the bridge API.
const (
	// chatPath is the completion endpoint relative to the base URL.
	chatPath = "/api/chat"

	// defaultUserAgent identifies skiff to the bridge.
	defaultUserAgent = "skiff/1.0"

	// guardTimeout caps non-streaming calls even when the caller forgot
	// a deadline. Per-request deadlines arrive via ctx.
	guardTimeout = 120 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

// Shared transports keep connection pooling across client instances.
var (
	sharedTransport = &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	sharedHTTPClient = &http.Client{
		Transport: sharedTransport,
		Timeout:   guardTimeout,
	}

	// sharedStreamClient has no client timeout; streams are bounded by
	// their context.
	sharedStreamClient = &http.Client{
		Transport: sharedTransport,
	}
)

// HTTPBridge talks to the hosted bridge over HTTP. Completions POST to
// /api/chat; streaming responses arrive as newline-delimited JSON
// fragments terminated by a line whose "done" field is true.
type HTTPBridge struct {
	baseURL      string
	apiKey       string
	userAgent    string
	httpClient   *http.Client
	streamClient *http.Client
	pacer        *rate.Limiter
	logger       zerolog.Logger
}

var _ Bridge = (*HTTPBridge)(nil)

// Option adjusts an HTTPBridge beyond the required fields.
type Option func(*HTTPBridge)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *HTTPBridge) { b.logger = logger }
}

// WithPace throttles outbound calls to at most rpm per minute. This is
// wire politeness toward the bridge, not admission control; 0 disables.
func WithPace(rpm int) Option {
	return func(b *HTTPBridge) {
		if rpm > 0 {
			b.pacer = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
		}
	}
}

// WithHTTPClient replaces both HTTP clients, for tests and custom TLS.
func WithHTTPClient(c *http.Client) Option {
	return func(b *HTTPBridge) {
		b.httpClient = c
		b.streamClient = c
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(b *HTTPBridge) {
		if ua != "" {
			b.userAgent = ua
		}
	}
}

// New creates a bridge client for the given base URL. An empty API key
// is allowed; the bridge answers 401 when it wants one.
func New(baseURL, apiKey string, opts ...Option) *HTTPBridge {
	b := &HTTPBridge{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       strings.TrimSpace(apiKey),
		userAgent:    defaultUserAgent,
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamClient,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BaseURL returns the configured endpoint root.
func (b *HTTPBridge) BaseURL() string {
	return b.baseURL
}

// IsConfigured reports whether an API key is set.
func (b *HTTPBridge) IsConfigured() bool {
	return b.apiKey != ""
}

// chatPayload is the wire request for /api/chat.
type chatPayload struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Stream      bool    `json:"stream,omitempty"`
}

// apiErrorBody is the bridge's error envelope, when it sends one.
type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke performs a single completion call and returns the raw payload.
// No retries happen here; a failure is classified and returned.
func (b *HTTPBridge) Invoke(ctx context.Context, req Request) ([]byte, error) {
	if err := b.pace(ctx); err != nil {
		return nil, err
	}

	httpReq, err := b.newChatRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	// Drop the credential from the request copy so later dumps of the
	// request never carry it.
	httpReq.Header.Del("Authorization")
	if err != nil {
		b.logger.Debug().Err(err).Str("model", req.Model).Msg("bridge call failed")
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	b.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Str("model", req.Model).
		Msg("bridge call")

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

// InvokeStream performs a streaming completion call. The returned
// channel closes after the completion marker, after a chunk carrying a
// classified error, or when ctx is cancelled.
func (b *HTTPBridge) InvokeStream(ctx context.Context, req Request) (<-chan Chunk, error) {
	if err := b.pace(ctx); err != nil {
		return nil, err
	}

	httpReq, err := b.newChatRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := b.streamClient.Do(httpReq)
	httpReq.Header.Del("Authorization")
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := readBody(resp)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		return nil, statusError(resp.StatusCode, body)
	}

	ch := make(chan Chunk, 16)
	go b.pumpStream(ctx, resp.Body, ch)
	return ch, nil
}

// pumpStream reads NDJSON lines into ch until the completion marker,
// an error, or cancellation.
func (b *HTTPBridge) pumpStream(ctx context.Context, body io.ReadCloser, ch chan<- Chunk) {
	defer close(ch)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	completed := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if gjson.GetBytes(line, "done").Bool() {
			completed = true
			break
		}
		// The scanner reuses its buffer; hand out a copy.
		raw := append([]byte(nil), line...)
		select {
		case ch <- Chunk{Raw: raw}:
		case <-ctx.Done():
			return
		}
	}

	var failure error
	switch {
	case ctx.Err() != nil:
		return
	case scanner.Err() != nil:
		failure = classifyTransport(scanner.Err())
	case !completed:
		// EOF before the marker means the upstream died mid-answer.
		failure = newError(ErrTypeConnection, "bridge stream interrupted", ErrIncompleteStream)
	default:
		return
	}

	select {
	case ch <- Chunk{Err: failure}:
	case <-ctx.Done():
	}
}

// newChatRequest builds the POST with auth and content headers set.
func (b *HTTPBridge) newChatRequest(ctx context.Context, req Request, stream bool) (*http.Request, error) {
	payload := chatPayload{
		Model:       req.Model,
		Prompt:      req.Prompt,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+chatPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", b.userAgent)
	return httpReq, nil
}

// pace blocks on the politeness throttle when one is configured.
func (b *HTTPBridge) pace(ctx context.Context) error {
	if b.pacer == nil {
		return nil
	}
	if err := b.pacer.Wait(ctx); err != nil {
		return classifyTransport(err)
	}
	return nil
}

// readBody reads a response body with a size cap so a misbehaving
// upstream cannot balloon memory.
func readBody(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, newError(ErrTypeInvalidResponse,
			fmt.Sprintf("response exceeded maximum size of %d bytes", MaxResponseSize), nil)
	}
	return body, nil
}

// statusError maps a non-200 status onto the bridge taxonomy. The
// bridge's own error message is used when its envelope parses.
func statusError(statusCode int, body []byte) error {
	message := fmt.Sprintf("bridge returned HTTP %d", statusCode)
	var envelope apiErrorBody
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return newError(ErrTypeAuth, message, ErrAuthFailed)
	case http.StatusPaymentRequired:
		return newError(ErrTypeAuth, message, ErrInsufficientCredits)
	case http.StatusNotFound:
		return newError(ErrTypeUnknown, message, ErrModelNotFound)
	case http.StatusTooManyRequests:
		return newError(ErrTypeRateLimited, message, ErrRateLimited)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return newError(ErrTypeConnection, message, nil)
	default:
		return newError(ErrTypeUnknown, message, nil)
	}
}
