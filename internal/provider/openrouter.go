package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/coachviz/internal/config"
	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/imagegen"

	"github.com/tidwall/gjson"
)

const (
	openRouterTitle   = "coachviz"
	openRouterReferer = "https://github.com/harunnryd/coachviz"

	maxErrorBody = 1 << 16
)

// OpenRouter requests images through the OpenRouter chat completions API.
type OpenRouter struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	callTimeout time.Duration
	sleep       imagegen.SleepFunc
}

func NewOpenRouter(cfg config.ProviderConfig, opts Options) *OpenRouter {
	o := &OpenRouter{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  opts.HTTPClient,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		callTimeout: opts.CallTimeout,
		sleep:       opts.Sleep,
	}
	if o.baseURL == "" {
		o.baseURL = config.DefaultOpenRouterURL
	}
	if o.model == "" {
		o.model = config.DefaultOpenRouterModel
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = imagegen.DefaultMaxAttempts
	}
	if o.baseDelay <= 0 {
		o.baseDelay = imagegen.DefaultBaseDelay
	}
	if o.callTimeout <= 0 {
		o.callTimeout = imagegen.DefaultCallTimeout
	}
	if o.sleep == nil {
		o.sleep = imagegen.Sleep
	}
	return o
}

func (o *OpenRouter) Name() string  { return config.ProviderOpenRouter }
func (o *OpenRouter) Model() string { return o.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string            `json:"model"`
	Messages    []chatMessage     `json:"messages"`
	Modalities  []string          `json:"modalities"`
	ImageConfig map[string]string `json:"image_config,omitempty"`
}

// Generate sends the prompt and returns the first image in the reply. Non-2xx
// responses and network errors are retried with the same backoff as the
// Gemini generator; a reply without an image is not.
func (o *OpenRouter) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Image, error) {
	if req.Prompt == "" {
		return nil, apperrors.InvalidInput("prompt is required")
	}
	if req.APIKey == "" {
		req.APIKey = o.apiKey
	}
	if req.APIKey == "" {
		return nil, apperrors.Configuration("openrouter api key is not set")
	}

	body, err := json.Marshal(o.buildRequest(req))
	if err != nil {
		return nil, apperrors.Wrap(err, "encode openrouter request")
	}

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(err, "image generation cancelled")
		}

		img, err := o.call(ctx, req.APIKey, body)
		if err == nil {
			img.Attempts = attempt
			return img, nil
		}
		if !apperrors.IsRetryable(err) {
			return nil, err
		}

		lastErr = err
		if attempt == o.maxAttempts {
			break
		}
		delay := imagegen.Backoff(o.baseDelay, attempt)
		slog.Warn("OpenRouter attempt failed, retrying", "model", o.model, "attempt", attempt, "delay", delay, "error", err)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, apperrors.Wrap(err, "image generation cancelled during backoff")
		}
	}
	return nil, fmt.Errorf("image generation failed after %d attempts: %w", o.maxAttempts, lastErr)
}

func (o *OpenRouter) buildRequest(req imagegen.Request) chatRequest {
	var messages []chatMessage
	if req.SystemInstruction != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemInstruction})
	}

	parts := []contentPart{{Type: "text", Text: req.Prompt}}
	if len(req.Reference) > 0 {
		mime := req.ReferenceMIME
		if mime == "" {
			mime = http.DetectContentType(req.Reference)
		}
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Reference)},
		})
		parts[0].Text = "Match the visual style of the attached reference image.\n\n" + req.Prompt
	}
	messages = append(messages, chatMessage{Role: "user", Content: parts})

	aspect := req.AspectRatio
	if aspect == "" {
		aspect = imagegen.DefaultAspectRatio
	}
	return chatRequest{
		Model:       o.model,
		Messages:    messages,
		Modalities:  []string{"image", "text"},
		ImageConfig: map[string]string{"aspect_ratio": aspect},
	}
}

func (o *OpenRouter) call(ctx context.Context, apiKey string, body []byte) (*imagegen.Image, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, "create openrouter request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("HTTP-Referer", openRouterReferer)
	httpReq.Header.Set("X-Title", openRouterTitle)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(ctx.Err(), "image generation cancelled")
		}
		return nil, apperrors.WrapWithCategory(err, "openrouter request", apperrors.ErrTransientProvider)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.WrapWithCategory(err, "read openrouter response", apperrors.ErrTransientProvider)
	}

	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data[:min(len(data), maxErrorBody)]))
		}
		detail := fmt.Sprintf("openrouter error %d: %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, apperrors.Configuration(detail)
		}
		return nil, apperrors.Transient(detail)
	}

	// some upstreams report failures inside a 200 body
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
		return nil, apperrors.Transient("openrouter error: " + msg.String())
	}

	url := gjson.GetBytes(data, "choices.0.message.images.0.image_url.url").String()
	if url == "" {
		return nil, apperrors.Content("no image data in response")
	}
	return decodeDataURL(url)
}

func decodeDataURL(url string) (*imagegen.Image, error) {
	if !strings.HasPrefix(url, "data:") {
		return nil, apperrors.Content("no image data in response (unsupported image url)")
	}
	header, payload, ok := strings.Cut(url, ",")
	if !ok {
		return nil, apperrors.Content("no image data in response (malformed data url)")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperrors.WrapWithCategory(err, "decode image data", apperrors.ErrContent)
	}
	mime := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	return &imagegen.Image{Data: data, MIMEType: mime}, nil
}
