package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mr1hm/go-civdef-map/internal/events"
	"github.com/mr1hm/go-civdef-map/internal/metrics"
	"github.com/mr1hm/go-civdef-map/internal/models"
	"github.com/mr1hm/go-civdef-map/internal/repository"
)

const MarkersKey = "szczecin_evac_markers"

var (
	ErrNotFound        = errors.New("marker not found")
	ErrDuplicateID     = errors.New("id already exists")
	ErrInvalidPosition = errors.New("marker position must be finite and in range")
)

// Change is one entry of a batch commit. Revision is the revision the caller
// observed; the change is skipped if the marker has moved on since.
type Change struct {
	ID       string
	Revision uint64
	Remove   bool
	Marker   models.Marker
}

type CommitResult struct {
	Applied    int
	Superseded []string
}

// MarkerStore holds the canonical ordered marker collection and is the only
// writer of its persisted form.
type MarkerStore struct {
	mu      sync.RWMutex
	kv      repository.KVStore
	pub     events.Publisher
	seed    []models.Marker
	markers []models.Marker
}

func NewMarkerStore(kv repository.KVStore, pub events.Publisher) *MarkerStore {
	if pub == nil {
		pub = events.Discard
	}
	return &MarkerStore{
		kv:   kv,
		pub:  pub,
		seed: DefaultSeed(),
	}
}

// WithSeed replaces the first-run seed. Call before Load.
func (s *MarkerStore) WithSeed(seed []models.Marker) *MarkerStore {
	s.seed = seed
	return s
}

// storedMarker shadows the fields that older or corrupt payloads get wrong
// so a bad entry can be detected instead of failing the whole collection.
type storedMarker struct {
	models.Marker
	Position  *storedPosition `json:"position"`
	CreatedAt flexTime        `json:"createdAt"`
}

type storedPosition struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func decodeMarker(raw json.RawMessage) (models.Marker, bool) {
	var sm storedMarker
	if err := json.Unmarshal(raw, &sm); err != nil {
		return models.Marker{}, false
	}
	if sm.Position == nil || sm.Position.Lat == nil || sm.Position.Lng == nil {
		return models.Marker{}, false
	}

	m := sm.Marker
	m.Position = models.Coordinates{Lat: *sm.Position.Lat, Lng: *sm.Position.Lng}
	m.CreatedAt = sm.CreatedAt.Time
	if !m.Position.Valid() || m.ID == "" {
		return models.Marker{}, false
	}
	if m.Revision == 0 {
		m.Revision = 1
	}
	return m, true
}

// Load rehydrates the collection. Corrupt data never fails startup: a bad
// payload yields an empty collection and bad entries are excluded. Only a
// storage read failure is returned, and the store is still usable after it.
func (s *MarkerStore) Load(ctx context.Context) (int, error) {
	data, err := s.kv.Get(ctx, MarkersKey)
	if errors.Is(err, repository.ErrNotFound) {
		s.mu.Lock()
		s.markers = withSeedDefaults(s.seed)
		s.persistLocked(ctx)
		n := len(s.markers)
		s.mu.Unlock()

		slog.Info("marker store seeded", "count", n)
		s.changed()
		return n, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error loading markers: %w", err)
	}

	items, err := decodeEnvelope(data)
	if err != nil {
		slog.Warn("discarding unreadable marker collection", "error", err)
		items = nil
	}

	loaded := make([]models.Marker, 0, len(items))
	seen := make(map[string]bool, len(items))
	discarded := 0
	for _, raw := range items {
		m, ok := decodeMarker(raw)
		if !ok || seen[m.ID] {
			discarded++
			continue
		}
		seen[m.ID] = true
		loaded = append(loaded, m)
	}
	if discarded > 0 {
		metrics.StoreLoadDiscarded.WithLabelValues("markers").Add(float64(discarded))
		slog.Warn("excluded invalid markers on load", "count", discarded)
	}

	s.mu.Lock()
	s.markers = loaded
	s.mu.Unlock()

	s.changed()
	slog.Info("marker store loaded", "count", len(loaded))
	return len(loaded), nil
}

func (s *MarkerStore) All() []models.Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.markers)
}

func (s *MarkerStore) Get(id string) (models.Marker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.markers[i], true
	}
	return models.Marker{}, false
}

// Pending returns the markers awaiting moderation in collection order.
func (s *MarkerStore) Pending() []models.Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Marker
	for _, m := range s.markers {
		if m.IsPendingSync() {
			out = append(out, m)
		}
	}
	return out
}

func (s *MarkerStore) Add(ctx context.Context, m models.Marker) (models.Marker, error) {
	if !m.Position.Valid() {
		return models.Marker{}, ErrInvalidPosition
	}

	s.mu.Lock()
	if s.indexLocked(m.ID) >= 0 {
		s.mu.Unlock()
		return models.Marker{}, ErrDuplicateID
	}
	m.Revision = 1
	s.markers = append(s.markers, m)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.changed()
	return m, nil
}

// Update replaces the marker with the same ID.
func (s *MarkerStore) Update(ctx context.Context, m models.Marker) (models.Marker, error) {
	if !m.Position.Valid() {
		return models.Marker{}, ErrInvalidPosition
	}

	s.mu.Lock()
	i := s.indexLocked(m.ID)
	if i < 0 {
		s.mu.Unlock()
		return models.Marker{}, ErrNotFound
	}
	m.Revision = s.markers[i].Revision + 1
	s.markers[i] = m
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.changed()
	return m, nil
}

// Remove deletes every listed ID regardless of status and reports how many
// markers were removed.
func (s *MarkerStore) Remove(ctx context.Context, ids ...string) int {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	before := len(s.markers)
	s.markers = slices.DeleteFunc(s.markers, func(m models.Marker) bool {
		return drop[m.ID]
	})
	removed := before - len(s.markers)
	if removed > 0 {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	if removed > 0 {
		s.changed()
	}
	return removed
}

// Commit applies a batch of changes as one mutation and one write. A change
// whose marker is gone or whose revision moved is reported as superseded.
func (s *MarkerStore) Commit(ctx context.Context, changes []Change) CommitResult {
	var res CommitResult

	s.mu.Lock()
	for _, ch := range changes {
		i := s.indexLocked(ch.ID)
		if i < 0 || s.markers[i].Revision != ch.Revision {
			res.Superseded = append(res.Superseded, ch.ID)
			continue
		}
		if ch.Remove {
			s.markers = slices.Delete(s.markers, i, i+1)
		} else {
			m := ch.Marker
			m.ID = ch.ID
			m.Revision = ch.Revision + 1
			s.markers[i] = m
		}
		res.Applied++
	}
	if res.Applied > 0 {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	if res.Applied > 0 {
		s.changed()
	}
	return res
}

func (s *MarkerStore) indexLocked(id string) int {
	return slices.IndexFunc(s.markers, func(m models.Marker) bool {
		return m.ID == id
	})
}

// persistLocked writes the whole collection. A failed write is logged and
// repaired by the next mutation, which rewrites everything.
func (s *MarkerStore) persistLocked(ctx context.Context) {
	data, err := encodeEnvelope(s.markers)
	if err == nil {
		err = s.kv.Put(context.WithoutCancel(ctx), MarkersKey, data)
	}
	if err != nil {
		metrics.StorePersistFailures.WithLabelValues("markers").Inc()
		slog.Error("failed to persist markers", "count", len(s.markers), "error", err)
	}
}

func (s *MarkerStore) changed() {
	counts := map[models.VerificationStatus]int{}
	s.mu.RLock()
	total := len(s.markers)
	for _, m := range s.markers {
		counts[m.VerificationStatus]++
	}
	s.mu.RUnlock()

	for _, st := range []models.VerificationStatus{models.StatusVerified, models.StatusAIApproved, models.StatusPending, models.StatusPendingSync} {
		metrics.MarkersByStatus.WithLabelValues(string(st)).Set(float64(counts[st]))
	}

	s.pub.Publish(models.NewEvent(models.EventMarkersChanged, map[string]int{
		"total":   total,
		"pending": counts[models.StatusPendingSync],
	}))
}
