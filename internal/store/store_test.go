package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-civdef-map/internal/events"
	"github.com/mr1hm/go-civdef-map/internal/models"
	"github.com/mr1hm/go-civdef-map/internal/repository"
)

func setupKV(t *testing.T) *repository.SQLiteDB {
	t.Helper()
	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// flakyKV wraps a KVStore and fails on demand.
type flakyKV struct {
	repository.KVStore
	mu      sync.Mutex
	failGet bool
	failPut bool
	puts    int
}

func (f *flakyKV) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, errors.New("disk unavailable")
	}
	return f.KVStore.Get(ctx, key)
}

func (f *flakyKV) Put(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.puts++
	fail := f.failPut
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.KVStore.Put(ctx, key, value)
}

func newMarker(id string, lat, lng float64, status models.VerificationStatus) models.Marker {
	return models.Marker{
		ID:                 id,
		Name:               "Marker " + id,
		Description:        "test",
		Position:           models.Coordinates{Lat: lat, Lng: lng},
		Type:               models.MarkerTypeShelter,
		CreatedAt:          time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		VerificationStatus: status,
	}
}

func ids(markers []models.Marker) []string {
	out := make([]string, len(markers))
	for i, m := range markers {
		out[i] = m.ID
	}
	return out
}

func TestMarkerStore_SeedsOnFirstRun(t *testing.T) {
	kv := setupKV(t)
	s := NewMarkerStore(kv, nil)

	n, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultSeed()), n)

	for _, m := range s.All() {
		assert.Equal(t, models.StatusVerified, m.VerificationStatus)
		assert.True(t, m.Position.Valid())
	}

	// Seed is persisted, so a second store does not reseed an emptied collection.
	s.Remove(context.Background(), ids(s.All())...)
	reloaded := NewMarkerStore(kv, nil)
	n, err = reloaded.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMarkerStore_RoundTrip(t *testing.T) {
	kv := setupKV(t)
	ctx := context.Background()

	s := NewMarkerStore(kv, nil).WithSeed(nil)
	_, err := s.Load(ctx)
	require.NoError(t, err)

	for _, m := range []models.Marker{
		newMarker("a", 53.42, 14.55, models.StatusVerified),
		newMarker("b", 53.43, 14.56, models.StatusPendingSync),
		newMarker("c", 53.44, 14.57, models.StatusAIApproved),
	} {
		_, err := s.Add(ctx, m)
		require.NoError(t, err)
	}

	reloaded := NewMarkerStore(kv, nil)
	n, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(reloaded.All()))

	got, ok := reloaded.Get("b")
	require.True(t, ok)
	assert.Equal(t, models.StatusPendingSync, got.VerificationStatus)
	assert.True(t, got.CreatedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestMarkerStore_LoadExcludesInvalidEntries(t *testing.T) {
	kv := setupKV(t)
	ctx := context.Background()

	payload := `{"version":1,"items":[
		{"id":"ok","name":"Good","position":{"lat":53.4,"lng":14.5},"type":"shelter","verificationStatus":"verified","createdAt":"2025-01-01T00:00:00Z"},
		{"id":"nan","name":"NaN lat","position":{"lat":"NaN","lng":14.5},"type":"shelter"},
		{"id":"nolng","name":"Missing lng","position":{"lat":53.4},"type":"shelter"},
		{"id":"nopos","name":"No position","type":"shelter"},
		{"id":"nullpos","name":"Null position","position":null},
		{"id":"range","name":"Out of range","position":{"lat":123,"lng":14.5}},
		{"id":"ok","name":"Duplicate","position":{"lat":53.5,"lng":14.6}},
		"garbage",
		{"id":"legacy","name":"Epoch createdAt","position":{"lat":53.41,"lng":14.52},"createdAt":1735689600000,"verificationStatus":"pending"}
	]}`
	require.NoError(t, kv.Put(ctx, MarkersKey, []byte(payload)))

	s := NewMarkerStore(kv, nil)
	n, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ok", "legacy"}, ids(s.All()))

	legacy, _ := s.Get("legacy")
	assert.Equal(t, int64(1735689600000), legacy.CreatedAt.UnixMilli())
	assert.Equal(t, uint64(1), legacy.Revision)

	first, _ := s.Get("ok")
	assert.Equal(t, "Good", first.Name)
}

func TestMarkerStore_LoadLegacyArray(t *testing.T) {
	kv := setupKV(t)
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, MarkersKey, []byte(`[{"id":"x","name":"X","position":{"lat":53.4,"lng":14.5},"createdAt":1700000000000}]`)))

	s := NewMarkerStore(kv, nil)
	n, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkerStore_LoadMalformedStartsEmpty(t *testing.T) {
	kv := setupKV(t)
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, MarkersKey, []byte(`{"version":1,"items":[{"id":`)))

	s := NewMarkerStore(kv, nil)
	n, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, s.All())

	// Still usable after a corrupt load.
	_, err = s.Add(ctx, newMarker("fresh", 53.4, 14.5, models.StatusPendingSync))
	assert.NoError(t, err)
}

func TestMarkerStore_LoadReadFailure(t *testing.T) {
	kv := &flakyKV{KVStore: setupKV(t), failGet: true}
	s := NewMarkerStore(kv, nil)

	_, err := s.Load(context.Background())
	assert.Error(t, err)
	assert.Empty(t, s.All())
}

func TestMarkerStore_AddRejectsInvalidPosition(t *testing.T) {
	s := NewMarkerStore(setupKV(t), nil)

	for _, c := range []models.Coordinates{{Lat: nan(), Lng: 14.5}, {Lat: 53.4, Lng: nan()}, {Lat: 100, Lng: 0}} {
		m := newMarker("bad", c.Lat, c.Lng, models.StatusPendingSync)
		_, err := s.Add(context.Background(), m)
		assert.ErrorIs(t, err, ErrInvalidPosition)
	}
	assert.Empty(t, s.All())
}

func TestMarkerStore_AddDuplicate(t *testing.T) {
	s := NewMarkerStore(setupKV(t), nil)
	ctx := context.Background()

	_, err := s.Add(ctx, newMarker("a", 53.4, 14.5, models.StatusVerified))
	require.NoError(t, err)
	_, err = s.Add(ctx, newMarker("a", 53.4, 14.5, models.StatusVerified))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestMarkerStore_UpdateBumpsRevision(t *testing.T) {
	s := NewMarkerStore(setupKV(t), nil)
	ctx := context.Background()

	added, err := s.Add(ctx, newMarker("a", 53.4, 14.5, models.StatusPendingSync))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), added.Revision)

	changed := added
	changed.Name = "Renamed"
	updated, err := s.Update(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), updated.Revision)

	got, _ := s.Get("a")
	assert.Equal(t, "Renamed", got.Name)

	_, err = s.Update(ctx, newMarker("missing", 53.4, 14.5, models.StatusVerified))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkerStore_RemoveExactlyListed(t *testing.T) {
	s := NewMarkerStore(setupKV(t), nil)
	ctx := context.Background()

	for _, m := range []models.Marker{
		newMarker("v", 53.40, 14.50, models.StatusVerified),
		newMarker("p1", 53.41, 14.51, models.StatusPendingSync),
		newMarker("ai", 53.42, 14.52, models.StatusAIApproved),
		newMarker("p2", 53.43, 14.53, models.StatusPendingSync),
	} {
		_, err := s.Add(ctx, m)
		require.NoError(t, err)
	}

	removed := s.Remove(ctx, "v", "p2", "unknown")
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"p1", "ai"}, ids(s.All()))

	// Repeating the discard is a no-op.
	assert.Equal(t, 0, s.Remove(ctx, "v", "p2"))
	assert.Equal(t, []string{"p1", "ai"}, ids(s.All()))
}

func TestMarkerStore_Pending(t *testing.T) {
	s := NewMarkerStore(setupKV(t), nil)
	ctx := context.Background()

	s.Add(ctx, newMarker("p1", 53.40, 14.50, models.StatusPendingSync))
	s.Add(ctx, newMarker("v", 53.41, 14.51, models.StatusVerified))
	s.Add(ctx, newMarker("legacy", 53.42, 14.52, models.StatusPending))
	s.Add(ctx, newMarker("p2", 53.43, 14.53, models.StatusPendingSync))

	assert.Equal(t, []string{"p1", "p2"}, ids(s.Pending()))
}

func TestMarkerStore_Commit(t *testing.T) {
	kv := &flakyKV{KVStore: setupKV(t)}
	s := NewMarkerStore(kv, nil)
	ctx := context.Background()

	a, _ := s.Add(ctx, newMarker("a", 53.40, 14.50, models.StatusPendingSync))
	b, _ := s.Add(ctx, newMarker("b", 53.41, 14.51, models.StatusPendingSync))
	c, _ := s.Add(ctx, newMarker("c", 53.42, 14.52, models.StatusPendingSync))

	// c is edited after the caller took its snapshot.
	edited := c
	edited.Name = "edited concurrently"
	_, err := s.Update(ctx, edited)
	require.NoError(t, err)

	approved := a
	approved.VerificationStatus = models.StatusAIApproved

	putsBefore := kv.puts
	res := s.Commit(ctx, []Change{
		{ID: "a", Revision: a.Revision, Marker: approved},
		{ID: "b", Revision: b.Revision, Remove: true},
		{ID: "c", Revision: c.Revision, Marker: c},
		{ID: "gone", Revision: 1, Remove: true},
	})

	assert.Equal(t, 2, res.Applied)
	assert.ElementsMatch(t, []string{"c", "gone"}, res.Superseded)
	assert.Equal(t, putsBefore+1, kv.puts, "commit must persist exactly once")

	gotA, _ := s.Get("a")
	assert.Equal(t, models.StatusAIApproved, gotA.VerificationStatus)
	_, ok := s.Get("b")
	assert.False(t, ok)
	gotC, _ := s.Get("c")
	assert.Equal(t, "edited concurrently", gotC.Name)
}

func TestMarkerStore_PersistFailureKeepsMemory(t *testing.T) {
	kv := &flakyKV{KVStore: setupKV(t), failPut: true}
	s := NewMarkerStore(kv, nil)
	ctx := context.Background()

	_, err := s.Add(ctx, newMarker("a", 53.4, 14.5, models.StatusPendingSync))
	require.NoError(t, err)
	assert.Len(t, s.All(), 1)

	// Next successful mutation rewrites the whole collection.
	kv.mu.Lock()
	kv.failPut = false
	kv.mu.Unlock()
	_, err = s.Add(ctx, newMarker("b", 53.41, 14.51, models.StatusPendingSync))
	require.NoError(t, err)

	reloaded := NewMarkerStore(kv, nil)
	n, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMarkerStore_PublishesChanges(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	s := NewMarkerStore(setupKV(t), bus)
	s.Add(context.Background(), newMarker("a", 53.4, 14.5, models.StatusPendingSync))

	select {
	case e := <-ch:
		assert.Equal(t, models.EventMarkersChanged, e.Kind)
		assert.Equal(t, map[string]int{"total": 1, "pending": 1}, e.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected markers.changed event")
	}
}

func TestMarkerStore_PersistedEnvelopeIsVersioned(t *testing.T) {
	kv := setupKV(t)
	s := NewMarkerStore(kv, nil)
	s.Add(context.Background(), newMarker("a", 53.4, 14.5, models.StatusPendingSync))

	data, err := kv.Get(context.Background(), MarkersKey)
	require.NoError(t, err)

	var env struct {
		Version int               `json:"version"`
		Items   []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, persistVersion, env.Version)
	assert.Len(t, env.Items, 1)
}

func TestMarkerStore_ConcurrentMutations(t *testing.T) {
	s := NewMarkerStore(setupKV(t), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m := newMarker(string(rune('a'+n)), 53.4, 14.5, models.StatusPendingSync)
			if _, err := s.Add(ctx, m); err != nil {
				t.Errorf("Add failed: %v", err)
			}
			s.Pending()
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.All(), 20)
}
