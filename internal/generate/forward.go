// Package generate forwards text generation requests to the AI messages API,
// adding the server-held credential.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"bookproxy/internal/errs"
	"bookproxy/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-sonnet-4-5"

	apiVersion   = "2023-06-01"
	pathMessages = "/v1/messages"
	target       = "AI service"

	maxResponseBytes = 8 << 20
)

type Forwarder struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	logger  *slog.Logger
}

func NewForwarder(client *http.Client, baseURL, apiKey, model string, logger *slog.Logger) *Forwarder {
	if client == nil {
		client = http.DefaultClient
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if model == "" {
		model = DefaultModel
	}

	return &Forwarder{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		logger:  logger,
	}
}

type upstreamRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      json.RawMessage `json:"system,omitempty"`
	Messages    []Message       `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type upstreamError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Forward sends req upstream and returns the successful response body unchanged.
// A non-success upstream status comes back as an *errs.Error carrying that status
// and the upstream's own error message.
func (f *Forwarder) Forward(ctx context.Context, req *Request) (json.RawMessage, error) {
	body, err := json.Marshal(f.upstreamRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encoding generation request: %w", err)
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+pathMessages, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building generation request: %w", err)
	}

	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("x-api-key", f.apiKey)
	hr.Header.Set("anthropic-version", apiVersion)

	res, err := f.client.Do(hr)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("ai", "error").Inc()
		f.logger.WarnContext(ctx, "Generation request failed: "+err.Error())
		return nil, errs.UpstreamFailure(target, err)
	}
	defer res.Body.Close()

	metrics.UpstreamRequests.WithLabelValues("ai", strconv.Itoa(res.StatusCode)).Inc()

	bs, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, errs.UpstreamFailure(target, fmt.Errorf("reading response: %w", err))
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		e := errs.UpstreamStatus(target, res.StatusCode)

		var ue upstreamError
		if json.Unmarshal(bs, &ue) == nil && ue.Error.Message != "" {
			e.Message = ue.Error.Message
		}

		f.logger.WarnContext(ctx, "Generation rejected upstream",
			slog.Int("status", res.StatusCode), slog.String("message", e.Message))
		return nil, e
	}

	if !json.Valid(bs) {
		return nil, errs.UpstreamFailure(target, fmt.Errorf("response is not valid JSON"))
	}

	return bs, nil
}

func (f *Forwarder) upstreamRequest(req *Request) *upstreamRequest {
	ur := &upstreamRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	}

	if ur.Model == "" {
		ur.Model = f.model
	}

	if string(bytes.TrimSpace(ur.System)) == "null" {
		ur.System = nil
	}

	if ur.MaxTokens == 0 {
		ur.MaxTokens = DefaultMaxTokens
	}

	if len(ur.Messages) == 0 {
		content, _ := json.Marshal(req.Prompt)
		ur.Messages = []Message{{Role: "user", Content: content}}
	}

	return ur
}
