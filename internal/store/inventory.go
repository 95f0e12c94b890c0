package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mr1hm/go-civdef-map/internal/events"
	"github.com/mr1hm/go-civdef-map/internal/metrics"
	"github.com/mr1hm/go-civdef-map/internal/models"
	"github.com/mr1hm/go-civdef-map/internal/repository"
	"github.com/mr1hm/go-civdef-map/internal/validate"
)

const InventoryKey = "evac_inventory"

var ErrItemNotFound = errors.New("inventory item not found")

// PresetInventory is the 72h checklist a fresh install starts with.
func PresetInventory() []models.InventoryItem {
	return []models.InventoryItem{
		{ID: "pre-1", Name: "Water (1.5L/day)", Category: models.CategoryWater, Qty: 3},
		{ID: "pre-2", Name: "Iodine Tablets (Lugol)", Category: models.CategoryMedical, Qty: 1},
		{ID: "pre-3", Name: "AM/FM Radio (Battery)", Category: models.CategoryComms, Qty: 1},
		{ID: "pre-4", Name: "N95/P3 Mask", Category: models.CategoryMedical, Qty: 2},
		{ID: "pre-5", Name: "Flashlight + Batteries", Category: models.CategoryTools, Qty: 1},
		{ID: "pre-6", Name: "Powerbank (Charged)", Category: models.CategoryComms, Qty: 1},
		{ID: "pre-7", Name: "Canned Food (72h)", Category: models.CategoryFood, Qty: 3},
	}
}

type InventoryStore struct {
	mu    sync.RWMutex
	kv    repository.KVStore
	pub   events.Publisher
	items []models.InventoryItem
}

func NewInventoryStore(kv repository.KVStore, pub events.Publisher) *InventoryStore {
	if pub == nil {
		pub = events.Discard
	}
	return &InventoryStore{kv: kv, pub: pub, items: []models.InventoryItem{}}
}

// Load rehydrates the checklist, seeding the presets when nothing was ever
// stored. An emptied checklist stays empty.
func (s *InventoryStore) Load(ctx context.Context) (int, error) {
	data, err := s.kv.Get(ctx, InventoryKey)
	if errors.Is(err, repository.ErrNotFound) {
		s.mu.Lock()
		s.items = PresetInventory()
		s.persistLocked(ctx)
		n := len(s.items)
		s.mu.Unlock()

		slog.Info("inventory seeded", "count", n)
		return n, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error loading inventory: %w", err)
	}

	raws, err := decodeEnvelope(data)
	if err != nil {
		slog.Warn("discarding unreadable inventory", "error", err)
	}

	loaded := make([]models.InventoryItem, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	discarded := 0
	for _, raw := range raws {
		var it models.InventoryItem
		if err := json.Unmarshal(raw, &it); err != nil || it.ID == "" || validate.Struct(it) != nil {
			discarded++
			continue
		}
		if _, dup := seen[it.ID]; dup {
			discarded++
			continue
		}
		seen[it.ID] = struct{}{}
		loaded = append(loaded, it)
	}
	if discarded > 0 {
		metrics.StoreLoadDiscarded.WithLabelValues("inventory").Add(float64(discarded))
		slog.Warn("excluded invalid inventory items on load", "count", discarded)
	}

	s.mu.Lock()
	s.items = loaded
	s.mu.Unlock()
	return len(loaded), nil
}

func (s *InventoryStore) All() []models.InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Readiness is the packed share of the checklist in whole percent.
func (s *InventoryStore) Readiness() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return 0
	}
	packed := 0
	for _, it := range s.items {
		if it.Packed {
			packed++
		}
	}
	return int(math.Round(float64(packed) / float64(len(s.items)) * 100))
}

// Add appends a custom item. Category defaults to tools and quantity to 1.
func (s *InventoryStore) Add(ctx context.Context, it models.InventoryItem) (models.InventoryItem, error) {
	it.ID = uuid.NewString()
	it.Name = strings.TrimSpace(it.Name)
	it.Packed = false
	if it.Category == "" {
		it.Category = models.CategoryTools
	}
	if it.Qty == 0 {
		it.Qty = 1
	}
	if err := validate.Struct(it); err != nil {
		return models.InventoryItem{}, fmt.Errorf("invalid inventory item: %w", err)
	}

	s.mu.Lock()
	s.items = append(s.items, it)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.changed()
	return it, nil
}

// Toggle flips the packed flag and returns the updated item.
func (s *InventoryStore) Toggle(ctx context.Context, id string) (models.InventoryItem, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return models.InventoryItem{}, ErrItemNotFound
	}
	s.items[i].Packed = !s.items[i].Packed
	it := s.items[i]
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.changed()
	return it, nil
}

func (s *InventoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.changed()
	return nil
}

func (s *InventoryStore) indexLocked(id string) int {
	return slices.IndexFunc(s.items, func(it models.InventoryItem) bool {
		return it.ID == id
	})
}

func (s *InventoryStore) changed() {
	s.pub.Publish(models.NewEvent(models.EventInventoryChanged, map[string]int{"readiness": s.Readiness()}))
}

func (s *InventoryStore) persistLocked(ctx context.Context) {
	data, err := encodeEnvelope(s.items)
	if err == nil {
		err = s.kv.Put(context.WithoutCancel(ctx), InventoryKey, data)
	}
	if err != nil {
		metrics.StorePersistFailures.WithLabelValues("inventory").Inc()
		slog.Error("failed to persist inventory", "count", len(s.items), "error", err)
	}
}
