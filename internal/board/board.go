// Package board is the moderated public message board. Messages live in
// memory only and are never queued while offline.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mr1hm/go-civdef-map/internal/events"
	"github.com/mr1hm/go-civdef-map/internal/models"
	"github.com/mr1hm/go-civdef-map/internal/moderation"
)

const (
	MaxTextLength = 280
	maxMessages   = 50
	modContext    = "public message board"
)

var (
	ErrInvalidText = fmt.Errorf("message must be 1-%d characters", MaxTextLength)
	ErrUnavailable = errors.New("moderation unavailable, message not posted")
)

// RejectedError carries the moderation verdict back to the poster.
type RejectedError struct {
	Verdict moderation.Verdict
}

func (e *RejectedError) Error() string {
	return "message rejected: " + e.Verdict.Reason
}

// ErrRejected matches any *RejectedError with errors.Is.
var ErrRejected = &RejectedError{}

func (e *RejectedError) Is(target error) bool {
	_, ok := target.(*RejectedError)
	return ok
}

type Board struct {
	gateway moderation.Gateway
	pub     events.Publisher

	mu       sync.RWMutex
	messages []models.PublicMessage
}

func New(gateway moderation.Gateway, pub events.Publisher) *Board {
	if pub == nil {
		pub = events.Discard
	}
	return &Board{
		gateway:  gateway,
		pub:      pub,
		messages: seed(time.Now()),
	}
}

func seed(now time.Time) []models.PublicMessage {
	msg := func(id, text string, urgent bool, ago time.Duration) models.PublicMessage {
		return models.PublicMessage{ID: id, Text: text + " [AI OK]", Urgent: urgent, Verified: true, Timestamp: now.Add(-ago)}
	}
	return []models.PublicMessage{
		msg("pb1", "Jagiellońska 11th November LOST CAT! Call 513943126.", true, 5*time.Minute),
		msg("pb2", "Seeking medical supplies near Kaskada. Meet at south entrance.", true, 15*time.Minute),
		msg("pb3", "Water distribution at Plac Grunwaldzki - 14:00. Limit 1L per person.", false, 25*time.Minute),
		msg("pb4", "FOUND KEYS near Wały Chrobrego. Describe to claim.", false, 45*time.Minute),
	}
}

// Messages returns the board newest first.
func (b *Board) Messages() []models.PublicMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.messages)
}

// Post moderates text and, if approved, puts it at the top of the board.
func (b *Board) Post(ctx context.Context, text string, urgent bool) (models.PublicMessage, error) {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n == 0 || n > MaxTextLength {
		return models.PublicMessage{}, ErrInvalidText
	}

	v := b.gateway.ModerateMessage(ctx, modContext, text)
	switch v.Status {
	case moderation.StatusApproved:
	case moderation.StatusRejected:
		slog.Info("board message rejected", "reason", v.Reason)
		return models.PublicMessage{}, &RejectedError{Verdict: v}
	default:
		slog.Warn("board moderation failed", "reason", v.Reason)
		return models.PublicMessage{}, fmt.Errorf("%w: %s", ErrUnavailable, v.Reason)
	}

	msg := models.PublicMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Urgent:    urgent,
		Verified:  true,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	b.messages = slices.Insert(b.messages, 0, msg)
	if len(b.messages) > maxMessages {
		b.messages = b.messages[:maxMessages]
	}
	b.mu.Unlock()

	b.pub.Publish(models.NewEvent(models.EventBoardPosted, msg))
	return msg, nil
}
