package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mr1hm/go-civdef-map/internal/genai"
	"github.com/mr1hm/go-civdef-map/internal/validate"
)

const defaultTimeout = 15 * time.Second

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"approved":     {Type: genai.TypeBoolean},
		"reason":       {Type: genai.TypeString, Description: "Short explanation for the user."},
		"suggestedFix": {Type: genai.TypeString, Description: "Corrected wording the user could submit instead, if rejected."},
	},
	Required: []string{"approved", "reason"},
}

// aiResponse is validated strictly: a missing field is a gateway error,
// never a silent approval.
type aiResponse struct {
	Approved     *bool   `json:"approved" validate:"required"`
	Reason       *string `json:"reason" validate:"required"`
	SuggestedFix string  `json:"suggestedFix"`
}

type AIGateway struct {
	client  *genai.Client
	timeout time.Duration
}

func (g *AIGateway) ModerateMarker(ctx context.Context, name, description string) Verdict {
	prompt := fmt.Sprintf(`You are an AI moderator for a Civil Defense Map in Szczecin, Poland.
Your job is to REJECT spam, jokes, offensive content, or commercial ads.
You must APPROVE valid evacuation spots, shelters, meeting points, or medical stations.

Marker Name: %q
Marker Description: %q

Analyze this content. Is it a valid attempt to define a civil defense location?
If you reject it, suggest a corrected wording in suggestedFix when one exists.
Respond in JSON format.`, name, description)

	return g.moderate(ctx, prompt)
}

func (g *AIGateway) ModerateMessage(ctx context.Context, msgContext, text string) Verdict {
	prompt := fmt.Sprintf(`You are an AI moderator for public communications on a Civil Defense Map in Szczecin, Poland.
Context: %s
REJECT spam, scams, panic-inducing misinformation, offensive content and commercial ads.
APPROVE genuine requests for help, lost and found notices, and community safety information.

Message: %q

Respond in JSON format.`, msgContext, text)

	return g.moderate(ctx, prompt)
}

func (g *AIGateway) moderate(ctx context.Context, prompt string) Verdict {
	timeout := g.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp aiResponse
	if err := g.client.GenerateJSON(ctx, prompt, responseSchema, &resp); err != nil {
		slog.Warn("moderation call failed", "error", err)
		return Verdict{Status: StatusError, Reason: describeError(errors.Join(ctx.Err(), err))}
	}
	if err := validate.Struct(resp); err != nil {
		slog.Warn("moderation response failed validation", "error", err)
		return Verdict{Status: StatusError, Reason: "AI Verification Failed: malformed response."}
	}

	reason := strings.TrimSpace(*resp.Reason)
	if *resp.Approved {
		if reason == "" {
			reason = "Approved by AI."
		}
		return Verdict{Status: StatusApproved, Reason: reason}
	}
	if reason == "" {
		reason = "Content does not describe a civil defense location."
	}
	return Verdict{Status: StatusRejected, Reason: reason, SuggestedFix: strings.TrimSpace(resp.SuggestedFix)}
}

func describeError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "AI Service timed out. Please try again later."
	case errors.Is(err, context.Canceled):
		return "AI check cancelled before completion."
	case errors.Is(err, genai.ErrBlocked):
		return "AI Service refused to evaluate this content."
	default:
		return "AI Service unavailable. Please try again later."
	}
}
