// Package syncer drives the marker lifecycle: submission with or without
// connectivity, and batch reconciliation of pending markers with the
// moderation gateway.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-civdef-map/internal/events"
	"github.com/mr1hm/go-civdef-map/internal/metrics"
	"github.com/mr1hm/go-civdef-map/internal/models"
	"github.com/mr1hm/go-civdef-map/internal/moderation"
	"github.com/mr1hm/go-civdef-map/internal/store"
	"github.com/mr1hm/go-civdef-map/internal/validate"
)

const defaultAuthor = "Scout"

var (
	ErrInvalidDraft   = errors.New("invalid marker draft")
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Connectivity is the part of the monitor the coordinator reads.
type Connectivity interface {
	Online() bool
}

// Draft is a user submission. A non-empty ID edits that marker.
type Draft struct {
	ID          string              `json:"id,omitempty"`
	Name        string              `json:"name" validate:"required,max=80"`
	Description string              `json:"description" validate:"max=200"`
	Type        models.MarkerType   `json:"type" validate:"required,oneof=shelter gathering_point medical underground"`
	Position    *models.Coordinates `json:"position,omitempty"`
	AuthorName  string              `json:"authorName,omitempty" validate:"max=60"`
}

type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomeQueued   Outcome = "queued"
)

// SubmitResult reports what happened to a draft. Marker is nil when the
// draft was rejected.
type SubmitResult struct {
	Outcome Outcome            `json:"outcome"`
	Marker  *models.Marker     `json:"marker,omitempty"`
	Verdict moderation.Verdict `json:"verdict"`
}

// Summary is the batch report of one Sync run.
type Summary struct {
	Processed  int      `json:"processed"`
	Approved   int      `json:"approved"`
	Rejected   int      `json:"rejected"`
	Errored    int      `json:"errored"`
	Superseded []string `json:"superseded,omitempty"`
	Skipped    int      `json:"skipped"`
}

type Coordinator struct {
	markers *store.MarkerStore
	gateway moderation.Gateway
	conn    Connectivity
	pub     events.Publisher
	auto    bool

	busy atomic.Bool
	now  func() time.Time
}

func NewCoordinator(markers *store.MarkerStore, gateway moderation.Gateway, conn Connectivity, pub events.Publisher, autoSync bool) *Coordinator {
	if pub == nil {
		pub = events.Discard
	}
	return &Coordinator{
		markers: markers,
		gateway: gateway,
		conn:    conn,
		pub:     pub,
		auto:    autoSync,
		now:     time.Now,
	}
}

// Syncing reports whether a batch sync is running.
func (c *Coordinator) Syncing() bool {
	return c.busy.Load()
}

// Submit creates or edits a marker. Online, the gateway is consulted before
// anything is stored; a rejection leaves the store untouched. Offline, or on
// a gateway error, the marker is kept as pending_sync.
func (c *Coordinator) Submit(ctx context.Context, d Draft) (SubmitResult, error) {
	if err := validate.Struct(d); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}

	var existing models.Marker
	editing := d.ID != ""
	if editing {
		m, ok := c.markers.Get(d.ID)
		if !ok {
			return SubmitResult{}, store.ErrNotFound
		}
		existing = m
	}

	pos := existing.Position
	if d.Position != nil {
		pos = *d.Position
	}
	if !editing && d.Position == nil {
		return SubmitResult{}, fmt.Errorf("%w: position is required", ErrInvalidDraft)
	}
	if !pos.Valid() {
		return SubmitResult{}, store.ErrInvalidPosition
	}

	author := d.AuthorName
	if author == "" {
		author = defaultAuthor
	}
	m := models.Marker{
		ID:                 d.ID,
		Name:               d.Name,
		Description:        d.Description,
		Position:           pos,
		Type:               d.Type,
		CreatedAt:          c.now(),
		VerificationStatus: models.StatusPendingSync,
		AuthorName:         author,
	}

	res := SubmitResult{Outcome: OutcomeQueued}
	if c.conn.Online() {
		v := c.gateway.ModerateMarker(ctx, d.Name, d.Description)
		res.Verdict = v
		switch v.Status {
		case moderation.StatusRejected:
			slog.Info("marker submission rejected", "name", d.Name, "reason", v.Reason)
			res.Outcome = OutcomeRejected
			return res, nil
		case moderation.StatusApproved:
			m.VerificationStatus = models.StatusAIApproved
			m.AIVerificationDetails = v.Reason
			if m.AIVerificationDetails == "" {
				m.AIVerificationDetails = "Approved by AI."
			}
			res.Outcome = OutcomeApproved
		default:
			m.AIVerificationDetails = "AI System Error: " + v.Reason
		}
	}

	var (
		saved models.Marker
		err   error
	)
	if editing {
		saved, err = c.markers.Update(ctx, m)
	} else {
		m.ID = uuid.NewString()
		saved, err = c.markers.Add(ctx, m)
	}
	if err != nil {
		return SubmitResult{}, fmt.Errorf("error saving marker: %w", err)
	}

	slog.Info("marker submitted", "id", saved.ID, "status", saved.VerificationStatus, "edit", editing)
	res.Marker = &saved
	return res, nil
}

func (c *Coordinator) Pending() []models.Marker {
	return c.markers.Pending()
}

// Discard removes the listed markers without moderation, whatever their
// status.
func (c *Coordinator) Discard(ctx context.Context, ids []string) int {
	n := c.markers.Remove(ctx, ids...)
	slog.Info("markers discarded", "requested", len(ids), "removed", n)
	return n
}

// Sync moderates the selected pending markers one at a time, in collection
// order, and commits all transitions in one store update. nil ids selects
// every pending marker. Markers edited or removed while the batch ran keep
// the concurrent write and are reported as superseded.
func (c *Coordinator) Sync(ctx context.Context, ids []string) (Summary, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Summary{}, ErrSyncInProgress
	}
	defer c.busy.Store(false)

	pending := c.markers.Pending()
	selected := pending
	var sum Summary
	if ids != nil {
		want := make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		selected = selected[:0:0]
		for _, m := range pending {
			if want[m.ID] {
				selected = append(selected, m)
				delete(want, m.ID)
			}
		}
		sum.Skipped = len(want)
	}

	slog.Info("sync started", "selected", len(selected))

	changes := make([]store.Change, 0, len(selected))
	for _, m := range selected {
		if ctx.Err() != nil {
			slog.Warn("sync interrupted", "remaining", len(selected)-sum.Processed)
			break
		}

		v := c.gateway.ModerateMarker(ctx, m.Name, m.Description)
		if v.Failed() && ctx.Err() != nil {
			// The call was cut short, not answered: the marker stays pending as is.
			slog.Warn("sync interrupted", "id", m.ID, "remaining", len(selected)-sum.Processed)
			break
		}
		sum.Processed++

		ch := store.Change{ID: m.ID, Revision: m.Revision}
		switch v.Status {
		case moderation.StatusApproved:
			m.VerificationStatus = models.StatusAIApproved
			m.AIVerificationDetails = v.Reason
			if m.AIVerificationDetails == "" {
				m.AIVerificationDetails = "Approved during sync."
			}
			ch.Marker = m
			sum.Approved++
		case moderation.StatusRejected:
			ch.Remove = true
			sum.Rejected++
		default:
			m.AIVerificationDetails = "Sync Error: " + v.Reason
			ch.Marker = m
			sum.Errored++
		}
		changes = append(changes, ch)
	}

	if len(changes) > 0 {
		res := c.markers.Commit(ctx, changes)
		sum.Superseded = res.Superseded
		if len(res.Superseded) > 0 {
			slog.Warn("sync results superseded by concurrent edits", "ids", res.Superseded)
		}
	}

	record(sum)
	c.pub.Publish(models.NewEvent(models.EventSyncCompleted, sum))
	slog.Info("sync completed",
		"processed", sum.Processed,
		"approved", sum.Approved,
		"rejected", sum.Rejected,
		"errored", sum.Errored,
		"superseded", len(sum.Superseded),
	)
	return sum, nil
}

func record(sum Summary) {
	metrics.SyncRuns.Inc()
	metrics.SyncMarkers.WithLabelValues("approved").Add(float64(sum.Approved))
	metrics.SyncMarkers.WithLabelValues("rejected").Add(float64(sum.Rejected))
	metrics.SyncMarkers.WithLabelValues("error").Add(float64(sum.Errored))
	metrics.SyncMarkers.WithLabelValues("superseded").Add(float64(len(sum.Superseded)))
}

// Subscriber is the part of the event bus Run listens on.
type Subscriber interface {
	Subscribe() (uint64, <-chan models.Event)
	Unsubscribe(id uint64)
}

// Run reacts to regained connectivity: with pending markers it either syncs
// them all or publishes a sync prompt listing them. Events keep draining
// while a sync runs; an online edge seen meanwhile triggers one more pass
// after it.
func (c *Coordinator) Run(ctx context.Context, bus Subscriber) {
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	trigger := make(chan struct{}, 1)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-trigger:
				c.onOnline(ctx)
			}
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Kind == models.EventConnectivityOnline {
				select {
				case trigger <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (c *Coordinator) onOnline(ctx context.Context) {
	pending := c.markers.Pending()
	if len(pending) == 0 {
		return
	}

	if !c.auto {
		ids := make([]string, len(pending))
		for i, m := range pending {
			ids[i] = m.ID
		}
		c.pub.Publish(models.NewEvent(models.EventSyncPrompt, map[string]any{"pending": ids}))
		return
	}

	if _, err := c.Sync(ctx, nil); err != nil {
		slog.Info("auto sync skipped", "error", err)
	}
}
