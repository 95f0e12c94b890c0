// Package describe drafts a short description for a proposed evacuation
// point so the author can start from the model's wording.
package describe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mr1hm/go-civdef-map/internal/genai"
	"github.com/mr1hm/go-civdef-map/internal/metrics"
	"github.com/mr1hm/go-civdef-map/internal/models"
)

const (
	// Unavailable is returned verbatim when no model is configured.
	Unavailable = "AI Description unavailable (No API Key)."

	// MaxLength matches the marker description limit.
	MaxLength = 200

	defaultTimeout = 15 * time.Second
)

type Describer interface {
	Describe(ctx context.Context, name string, pos models.Coordinates) (string, error)
}

// New returns the degraded describer when client is nil.
func New(client *genai.Client, timeout time.Duration) Describer {
	if client == nil {
		return Degraded{}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &AIDescriber{client: client, timeout: timeout}
}

type Degraded struct{}

func (Degraded) Describe(context.Context, string, models.Coordinates) (string, error) {
	metrics.DescribeRequests.WithLabelValues("degraded").Inc()
	return Unavailable, nil
}

type AIDescriber struct {
	client  *genai.Client
	timeout time.Duration
}

func (d *AIDescriber) Describe(ctx context.Context, name string, pos models.Coordinates) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`You are a civil defense expert for Szczecin.
Generate a serious description (max 25 words) for an evacuation point named %q at %g, %g.
Focus on safety and utility.`, name, pos.Lat, pos.Lng)

	text, err := d.client.GenerateText(ctx, prompt)
	if err != nil {
		metrics.DescribeRequests.WithLabelValues("error").Inc()
		slog.Warn("description call failed", "error", err)
		return "", fmt.Errorf("error generating description: %w", err)
	}
	metrics.DescribeRequests.WithLabelValues("ok").Inc()
	return truncate(text, MaxLength), nil
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n]))
}
