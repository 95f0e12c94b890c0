// Package genai wraps the Gemini SDK for the two call shapes the app needs:
// free text and schema-constrained JSON.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	googlegenai "google.golang.org/genai"

	"github.com/mr1hm/go-civdef-map/internal/config"
)

const apiVersion = "v1beta"

var (
	ErrEmptyResponse = errors.New("model returned no content")
	ErrBlocked       = errors.New("prompt blocked by model safety filter")
)

// Schema is the response schema sent with JSON requests.
type Schema = googlegenai.Schema

const (
	TypeObject  = googlegenai.TypeObject
	TypeArray   = googlegenai.TypeArray
	TypeString  = googlegenai.TypeString
	TypeNumber  = googlegenai.TypeNumber
	TypeInteger = googlegenai.TypeInteger
	TypeBoolean = googlegenai.TypeBoolean
)

type Client struct {
	sdk   *googlegenai.Client
	model string
}

// NewClient returns nil when no API key is configured; callers treat a nil
// client as the degraded mode.
func NewClient(cfg config.AIConfig) *Client {
	if cfg.APIKey == "" {
		slog.Warn("no generative-AI API key configured, AI features degraded")
		return nil
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := googlegenai.HTTPOptions{APIVersion: apiVersion}
	if cfg.BaseURL != "" {
		opts.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	}
	sdk, err := googlegenai.NewClient(context.Background(), &googlegenai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     googlegenai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: timeout},
		HTTPOptions: opts,
	})
	if err != nil {
		slog.Error("error creating generative-AI client, AI features degraded", "error", err)
		return nil
	}
	return &Client{sdk: sdk, model: cfg.Model}
}

// GenerateText returns the model's text reply to prompt.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, nil)
}

// GenerateJSON asks for a JSON reply matching schema and decodes it into out.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, schema *Schema, out any) error {
	text, err := c.generate(ctx, prompt, &googlegenai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFences(text)), out); err != nil {
		return fmt.Errorf("error decoding model JSON: %w", err)
	}
	return nil
}

func (c *Client) generate(ctx context.Context, prompt string, gc *googlegenai.GenerateContentConfig) (string, error) {
	resp, err := c.sdk.Models.GenerateContent(ctx, c.model, googlegenai.Text(prompt), gc)
	if err != nil {
		return "", fmt.Errorf("error calling model: %w", err)
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// stripFences removes a ```json ... ``` wrapper some models add even in
// JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
