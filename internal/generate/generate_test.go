package generate

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookproxy/internal/errs"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"legacy prompt", `{"prompt":"Summarise chapter one"}`, ""},
		{"messages", `{"messages":[{"role":"user","content":"Hi"}],"system":"Be brief","max_tokens":200}`, ""},
		{"content blocks", `{"messages":[{"role":"user","content":[{"type":"text","text":"Hi"}]}]}`, ""},
		{"not json", `prompt=hi`, "request body must be a JSON object"},
		{"empty object", `{}`, "prompt or messages is required"},
		{"blank prompt", `{"prompt":"   "}`, "prompt or messages is required"},
		{"bad role", `{"messages":[{"role":"system","content":"Hi"}]}`, "messages[0].role must be one of: user assistant"},
		{"empty content", `{"messages":[{"role":"user","content":""}]}`, "messages[0].content must not be empty"},
		{"missing content", `{"messages":[{"role":"user"}]}`, "messages[0].content must not be empty"},
		{"null content", `{"messages":[{"role":"user","content":null}]}`, "messages[0].content must not be empty"},
		{"empty block list", `{"messages":[{"role":"user","content":"Hi"},{"role":"assistant","content":[]}]}`, "messages[1].content must not be empty"},
		{"max tokens too high", `{"prompt":"hi","max_tokens":9000}`, "max_tokens must be between 1 and 8192"},
		{"max tokens negative", `{"prompt":"hi","max_tokens":-1}`, "max_tokens must be between 1 and 8192"},
		{"prompt too long", `{"prompt":"` + strings.Repeat("a", MaxPromptChars+1) + `"}`, "prompt must be at most 100000 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest(strings.NewReader(tt.body))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, req)
				return
			}

			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
			assert.Equal(t, tt.wantErr, errs.Message(err))
		})
	}
}

func TestContentValidationRegistered(t *testing.T) {
	err := validate.Var(json.RawMessage(`[]`), "content")
	assert.Error(t, err)
	assert.NoError(t, validate.Var(json.RawMessage(`"Hi"`), "content"))
}

func TestDecodeRequestPromptAtLimit(t *testing.T) {
	_, err := DecodeRequest(strings.NewReader(`{"prompt":"` + strings.Repeat("é", MaxPromptChars) + `"}`))
	assert.NoError(t, err)
}

func newForwarder(t *testing.T, h http.HandlerFunc) *Forwarder {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewForwarder(srv.Client(), srv.URL+"/", "secret-key", "test-model", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestForwardLegacyPrompt(t *testing.T) {
	var got map[string]any
	f := newForwarder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathMessages, r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","content":[{"type":"text","text":"Done"}]}`)
	})

	req, err := DecodeRequest(strings.NewReader(`{"prompt":"Summarise"}`))
	require.NoError(t, err)

	body, err := f.Forward(context.Background(), req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"msg_1","content":[{"type":"text","text":"Done"}]}`, string(body))

	assert.Equal(t, "test-model", got["model"])
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
	assert.Equal(t, []any{map[string]any{"role": "user", "content": "Summarise"}}, got["messages"])
	assert.NotContains(t, got, "system")
}

func TestForwardMessages(t *testing.T) {
	var got map[string]any
	f := newForwarder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{}`)
	})

	req, err := DecodeRequest(strings.NewReader(`{
		"model": "other-model",
		"system": "You are a tutor",
		"max_tokens": 50,
		"messages": [
			{"role": "user", "content": "Q"},
			{"role": "assistant", "content": "A"},
			{"role": "user", "content": "Q2"}
		]
	}`))
	require.NoError(t, err)

	_, err = f.Forward(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "other-model", got["model"])
	assert.Equal(t, "You are a tutor", got["system"])
	assert.EqualValues(t, 50, got["max_tokens"])
	assert.Len(t, got["messages"], 3)
}

func TestForwardUpstreamError(t *testing.T) {
	f := newForwarder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests has exceeded your rate limit"}}`)
	})

	_, err := f.Forward(context.Background(), &Request{Prompt: "hi"})

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusTooManyRequests, e.UpstreamStatus)
	assert.Equal(t, "Number of requests has exceeded your rate limit", errs.Message(err))
}

func TestForwardUpstreamErrorWithoutBody(t *testing.T) {
	f := newForwarder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := f.Forward(context.Background(), &Request{Prompt: "hi"})
	assert.Equal(t, "AI service returned status 500", errs.Message(err))
}

func TestForwardTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewForwarder(nil, url, "k", "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := f.Forward(context.Background(), &Request{Prompt: "hi"})
	assert.Equal(t, errs.KindUpstream, errs.KindOf(err))
	assert.Equal(t, http.StatusBadGateway, errs.Status(err))
}
