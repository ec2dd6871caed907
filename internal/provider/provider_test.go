package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harunnryd/coachviz/internal/config"
	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/imagegen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var imageBytes = []byte("\x89PNG\r\n\x1a\nopenrouter")

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func openRouterReply(data []byte) string {
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	return fmt.Sprintf(`{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"","images":[{"type":"image_url","image_url":{"url":%q}}]}}]}`, url)
}

func newOpenRouter(t *testing.T, handler http.HandlerFunc) *OpenRouter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewOpenRouter(config.ProviderConfig{
		Name:    config.ProviderOpenRouter,
		APIKey:  "or-key",
		Model:   "google/gemini-test-image",
		BaseURL: server.URL + "/",
	}, Options{HTTPClient: server.Client(), Sleep: noSleep})
}

func TestNew(t *testing.T) {
	p, err := New(config.ProviderConfig{Name: config.ProviderGemini, APIKey: "k", Model: "m"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, config.ProviderGemini, p.Name())
	assert.Equal(t, "m", p.Model())

	p, err = New(config.ProviderConfig{Name: config.ProviderVertexAI, Project: "proj"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, config.ProviderVertexAI, p.Name())

	p, err = New(config.ProviderConfig{Name: config.ProviderOpenRouter, APIKey: "k"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultOpenRouterModel, p.Model())

	_, err = New(config.ProviderConfig{Name: config.ProviderGemini}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = New(config.ProviderConfig{Name: config.ProviderVertexAI}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = New(config.ProviderConfig{Name: "dalle", APIKey: "k"}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestOpenRouter_Generate(t *testing.T) {
	var body []byte
	p := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		assert.Equal(t, "coachviz", r.Header.Get("X-Title"))
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, openRouterReply(imageBytes))
	})

	img, err := p.Generate(context.Background(), imagegen.Request{
		Prompt:            "overhead drill setup",
		SystemInstruction: "Use tennis terminology.",
		Reference:         []byte("ref"),
		ReferenceMIME:     "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, imageBytes, img.Data)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, 1, img.Attempts)

	req := gjson.ParseBytes(body)
	assert.Equal(t, "google/gemini-test-image", req.Get("model").String())
	assert.Equal(t, "image", req.Get("modalities.0").String())
	assert.Equal(t, "system", req.Get("messages.0.role").String())
	assert.Equal(t, "Use tennis terminology.", req.Get("messages.0.content").String())
	assert.Contains(t, req.Get("messages.1.content.0.text").String(), "overhead drill setup")
	assert.Equal(t, "data:image/png;base64,cmVm", req.Get("messages.1.content.1.image_url.url").String())
	assert.Equal(t, "1:1", req.Get("image_config.aspect_ratio").String())
}

func TestOpenRouter_RetriesServerErrors(t *testing.T) {
	var calls int32
	p := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"code":429,"message":"Rate limit exceeded"}}`)
			return
		}
		_, _ = io.WriteString(w, openRouterReply(imageBytes))
	})

	img, err := p.Generate(context.Background(), imagegen.Request{Prompt: "rally"})
	require.NoError(t, err)
	assert.Equal(t, 2, img.Attempts)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenRouter_ExhaustedRetries(t *testing.T) {
	var calls int32
	p := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":{"code":502,"message":"model is down"}}`)
	})

	_, err := p.Generate(context.Background(), imagegen.Request{Prompt: "rally"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTransientProvider, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "model is down")
	assert.Equal(t, int32(imagegen.DefaultMaxAttempts), atomic.LoadInt32(&calls))
}

func TestOpenRouter_NoImageIsContentError(t *testing.T) {
	var calls int32
	p := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Here is a description instead."}}]}`)
	})

	_, err := p.Generate(context.Background(), imagegen.Request{Prompt: "rally"})
	assert.ErrorIs(t, err, apperrors.ErrContent)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenRouter_UnauthorizedIsNotRetried(t *testing.T) {
	var calls int32
	p := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":401,"message":"No auth credentials found"}}`)
	})

	_, err := p.Generate(context.Background(), imagegen.Request{Prompt: "rally"})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGemini_UsesConfiguredKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gm-key", r.Header.Get("x-goog-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"image/png","data":%q}}]}}]}`,
			base64.StdEncoding.EncodeToString(imageBytes))
	}))
	defer server.Close()

	p, err := New(config.ProviderConfig{
		Name:    config.ProviderGemini,
		APIKey:  "gm-key",
		Model:   "gemini-test-image",
		BaseURL: server.URL + "/",
	}, Options{HTTPClient: server.Client(), Sleep: noSleep})
	require.NoError(t, err)

	img, err := p.Generate(context.Background(), imagegen.Request{Prompt: "court"})
	require.NoError(t, err)
	assert.Equal(t, imageBytes, img.Data)
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[
			{"id":"openai/gpt-5-image","object":"model","created":1730000000,"owned_by":"openai"},
			{"id":"google/gemini-3-pro-image-preview","object":"model","created":1740000000,"owned_by":"google"}
		]}`)
	}))
	defer server.Close()

	models, err := ListModels(context.Background(), config.ProviderConfig{
		Name:    config.ProviderOpenRouter,
		APIKey:  "or-key",
		BaseURL: server.URL,
	}, server.Client())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "google/gemini-3-pro-image-preview", models[0].ID)
	assert.Equal(t, "google", models[0].OwnedBy)

	_, err = ListModels(context.Background(), config.ProviderConfig{Name: config.ProviderGemini}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
