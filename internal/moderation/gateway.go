package moderation

import (
	"context"
	"time"

	"github.com/mr1hm/go-civdef-map/internal/genai"
	"github.com/mr1hm/go-civdef-map/internal/metrics"
)

type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusError    Status = "error"
)

// Verdict is the tagged result of a moderation call. An error verdict means
// no decision was reached and must never be treated as a rejection.
type Verdict struct {
	Status       Status `json:"status"`
	Reason       string `json:"reason"`
	SuggestedFix string `json:"suggestedFix,omitempty"`
}

func (v Verdict) Approved() bool { return v.Status == StatusApproved }
func (v Verdict) Rejected() bool { return v.Status == StatusRejected }
func (v Verdict) Failed() bool   { return v.Status == StatusError }

// Gateway classifies user-submitted text. Implementations always return a
// verdict; transport and parse failures become StatusError.
type Gateway interface {
	ModerateMarker(ctx context.Context, name, description string) Verdict
	ModerateMessage(ctx context.Context, msgContext, text string) Verdict
}

// New returns the AI-backed gateway, or the degraded one when client is nil.
func New(client *genai.Client, timeout time.Duration) Gateway {
	var g Gateway
	if client == nil {
		g = DegradedGateway{}
	} else {
		g = &AIGateway{client: client, timeout: timeout}
	}
	return instrumented{next: g}
}

const degradedReason = "Dev Mode: No API Key, auto-approved."

// DegradedGateway approves everything so the rest of the system keeps working
// without AI credentials.
type DegradedGateway struct{}

func (DegradedGateway) ModerateMarker(context.Context, string, string) Verdict {
	return Verdict{Status: StatusApproved, Reason: degradedReason}
}

func (DegradedGateway) ModerateMessage(context.Context, string, string) Verdict {
	return Verdict{Status: StatusApproved, Reason: degradedReason}
}

type instrumented struct {
	next Gateway
}

func (i instrumented) ModerateMarker(ctx context.Context, name, description string) Verdict {
	start := time.Now()
	v := i.next.ModerateMarker(ctx, name, description)
	observe("marker", start, v)
	return v
}

func (i instrumented) ModerateMessage(ctx context.Context, msgContext, text string) Verdict {
	start := time.Now()
	v := i.next.ModerateMessage(ctx, msgContext, text)
	observe("message", start, v)
	return v
}

func observe(kind string, start time.Time, v Verdict) {
	metrics.ModerationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	metrics.ModerationRequests.WithLabelValues(kind, string(v.Status)).Inc()
}
