// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/aiapi/dschat/internal/model"
)

// Configuration constants for the chat completions endpoint.
const (
	// DefaultEndpoint is the full URL of the default chat completions endpoint.
	DefaultEndpoint = "https://api.deepseek.com/chat/completions"

	// DefaultSystemPrompt is sent as the first message of every request.
	// It asks for a helpful assistant that answers in Turkish.
	DefaultSystemPrompt = "Sen yardımcı bir asistansın. Türkçe cevap ver."

	// DefaultTemperature is the sampling temperature sent with every request.
	DefaultTemperature = 0.7

	// DefaultTimeout bounds one full request/response cycle.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum accepted response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	// contentPath is where the reply text lives in a chat completion body.
	contentPath = "choices.0.message.content"
)

// UserAgent is sent with every request. main sets it from the build version.
var UserAgent = "dschat/dev"

// PERFORMANCE: Connection pooling reduces TCP handshake overhead across
// exchanges. Each Client gets its own http.Client for the timeout but shares
// this transport.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        10,
	MaxIdleConnsPerHost: 2,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
	TLSClientConfig: &tls.Config{
		MinVersion: tls.VersionTLS12,
	},
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is one entry of the request's messages array.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// ChatRequest is the body posted to the chat completions endpoint.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client performs single, stateless request/reply exchanges against an
// OpenAI-compatible chat completions endpoint. A Client holds no
// conversation state and is safe for concurrent use once configured.
type Client struct {
	endpoint     string
	apiKey       string
	model        string
	systemPrompt string
	temperature  float64

	httpClient      *http.Client
	maxResponseSize int64
	log             zerolog.Logger
}

// NewClient creates a client for the given endpoint URL and API key with the
// default model, system prompt and temperature.
func NewClient(endpoint, apiKey string) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:     strings.TrimSpace(endpoint),
		apiKey:       strings.TrimSpace(apiKey),
		model:        model.DefaultModel,
		systemPrompt: DefaultSystemPrompt,
		temperature:  DefaultTemperature,
		httpClient: &http.Client{
			Transport: sharedTransport,
			Timeout:   DefaultTimeout,
		},
		maxResponseSize: MaxResponseSize,
		log:             zerolog.Nop(),
	}
}

// WithModel sets the model identifier.
func (c *Client) WithModel(name string) *Client {
	if name = strings.TrimSpace(name); name != "" {
		c.model = name
	}
	return c
}

// WithSystemPrompt sets the system instruction. An empty prompt omits the
// system message from requests.
func (c *Client) WithSystemPrompt(prompt string) *Client {
	c.systemPrompt = prompt
	return c
}

// WithTemperature sets the sampling temperature.
func (c *Client) WithTemperature(t float64) *Client {
	c.temperature = t
	return c
}

// WithTimeout sets the request timeout. Zero leaves requests bounded only by
// the caller's context.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLogger sets the logger used for request and response events.
func (c *Client) WithLogger(l zerolog.Logger) *Client {
	c.log = l.With().Str("component", "cloud").Logger()
	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// Validate checks that the client can be used: the endpoint must be an
// absolute http(s) URL and an API key must be present.
func (c *Client) Validate() error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.endpoint, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", c.endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", c.endpoint)
	}
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	return nil
}

// APIKeyMasked returns a display-safe description of the API key.
// SECURITY: Never exposes key fragments, only length and fingerprint.
func (c *Client) APIKeyMasked() string {
	if c.apiKey == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(c.apiKey), c.KeyFingerprint())
}

// KeyFingerprint returns the first 8 hex chars of the key's SHA-256.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// EXCHANGE
// =============================================================================

// Send performs one exchange: the system prompt and message go out, the first
// choice's content comes back.
//
// The caller must pass non-blank text. Every non-nil error is a
// *TransportError, *NetworkError or *MalformedResponseError. Send never
// retries.
func (c *Client) Send(ctx context.Context, message string) (string, error) {
	return c.SendWithHistory(ctx, nil, message)
}

// SendWithHistory is Send with prior conversation messages placed between the
// system prompt and the new message.
func (c *Client) SendWithHistory(ctx context.Context, history []model.Message, message string) (string, error) {
	return c.complete(ctx, c.buildRequest(history, message))
}

// buildRequest assembles the request body.
func (c *Client) buildRequest(history []model.Message, message string) ChatRequest {
	msgs := make([]ChatMessage, 0, len(history)+2)
	if c.systemPrompt != "" {
		msgs = append(msgs, NewSystemMessage(c.systemPrompt))
	}
	for _, m := range history {
		msgs = append(msgs, ChatMessage{Role: m.Role.String(), Content: m.Content})
	}
	msgs = append(msgs, NewUserMessage(message))

	return ChatRequest{
		Model:       c.model,
		Messages:    msgs,
		Stream:      false,
		Temperature: c.temperature,
	}
}

// setHeaders sets auth and content headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
}

// complete posts reqBody and extracts the reply.
func (c *Client) complete(ctx context.Context, reqBody ChatRequest) (string, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		// Only strings and numbers go in; treat as a failure to send.
		return "", &NetworkError{Op: "encode", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &NetworkError{Op: "connect", Err: err}
	}
	c.setHeaders(req)

	// CLOUD: Secure logging - never the key, never the body.
	c.log.Debug().
		Str("host", req.URL.Host).
		Str("model", reqBody.Model).
		Int("messages", len(reqBody.Messages)).
		Str("key", c.KeyFingerprint()).
		Msg("api request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	req.Header.Del("Authorization")
	if err != nil {
		c.log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("api request failed")
		return "", &NetworkError{Op: "send", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug().
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(start)).
			Msg("api response rejected")
		return "", c.transportError(resp)
	}

	body, err := c.readBody(resp)
	if err != nil {
		return "", err
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("api response")

	return extractContent(body)
}

// readBody reads the response body up to the size limit.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, &NetworkError{Op: "read", Err: err}
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, &MalformedResponseError{
			Reason: fmt.Sprintf("response exceeds %d bytes", c.maxResponseSize),
		}
	}
	return body, nil
}

// transportError builds the error for a non-2xx answer. The body is read
// best-effort for an OpenAI-style error message; an unreadable or oversized
// body still yields a TransportError.
func (c *Client) transportError(resp *http.Response) *TransportError {
	te := &TransportError{StatusCode: resp.StatusCode, Status: resp.Status}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil || int64(len(body)) > c.maxResponseSize {
		return te
	}
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message"); msg.Type == gjson.String {
			te.Message = msg.Str
		}
	}
	return te
}

// extractContent returns the string at choices[0].message.content.
func extractContent(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", &MalformedResponseError{Reason: "body is not valid JSON"}
	}

	choices := gjson.GetBytes(body, "choices")
	if !choices.IsArray() {
		return "", &MalformedResponseError{Reason: "missing choices array"}
	}
	if !choices.Get("0").Exists() {
		return "", &MalformedResponseError{Reason: "choices array is empty"}
	}

	content := gjson.GetBytes(body, contentPath)
	if !content.Exists() {
		return "", &MalformedResponseError{Reason: "missing choices[0].message.content"}
	}
	if content.Type != gjson.String {
		return "", &MalformedResponseError{Reason: "choices[0].message.content is not a string"}
	}
	return content.Str, nil
}
