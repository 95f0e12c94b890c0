package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/mr1hm/go-civdef-map/internal/events"
	"github.com/mr1hm/go-civdef-map/internal/metrics"
	"github.com/mr1hm/go-civdef-map/internal/models"
	"github.com/mr1hm/go-civdef-map/internal/repository"
	"github.com/mr1hm/go-civdef-map/internal/validate"
)

const ContactsKey = "szczecin_evac_contacts"

var ErrContactNotFound = errors.New("contact not found")

type ContactStore struct {
	mu       sync.RWMutex
	kv       repository.KVStore
	pub      events.Publisher
	contacts []models.EmergencyContact
}

func NewContactStore(kv repository.KVStore, pub events.Publisher) *ContactStore {
	if pub == nil {
		pub = events.Discard
	}
	return &ContactStore{kv: kv, pub: pub, contacts: []models.EmergencyContact{}}
}

func (s *ContactStore) Load(ctx context.Context) (int, error) {
	data, err := s.kv.Get(ctx, ContactsKey)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error loading contacts: %w", err)
	}

	items, err := decodeEnvelope(data)
	if err != nil {
		slog.Warn("discarding unreadable contact roster", "error", err)
	}

	loaded := make([]models.EmergencyContact, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	discarded := 0
	for _, raw := range items {
		var c models.EmergencyContact
		if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" || validate.Contact(c) != nil {
			discarded++
			continue
		}
		// First occurrence wins.
		if _, dup := seen[c.ID]; dup {
			discarded++
			continue
		}
		seen[c.ID] = struct{}{}
		loaded = append(loaded, c)
	}
	if discarded > 0 {
		metrics.StoreLoadDiscarded.WithLabelValues("contacts").Add(float64(discarded))
		slog.Warn("excluded invalid contacts on load", "count", discarded)
	}

	s.mu.Lock()
	s.contacts = loaded
	s.mu.Unlock()
	return len(loaded), nil
}

func (s *ContactStore) All() []models.EmergencyContact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.contacts)
}

func (s *ContactStore) Add(ctx context.Context, c models.EmergencyContact) (models.EmergencyContact, error) {
	if err := validate.Contact(c); err != nil {
		return models.EmergencyContact{}, fmt.Errorf("invalid contact: %w", err)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	s.mu.Lock()
	if s.indexLocked(c.ID) >= 0 {
		s.mu.Unlock()
		return models.EmergencyContact{}, ErrDuplicateID
	}
	s.contacts = append(s.contacts, c)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.pub.Publish(models.NewEvent(models.EventContactsChanged, nil))
	return c, nil
}

func (s *ContactStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrContactNotFound
	}
	s.contacts = slices.Delete(s.contacts, i, i+1)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.pub.Publish(models.NewEvent(models.EventContactsChanged, nil))
	return nil
}

// Import merges an explicitly accepted roster. The whole set is validated
// first; contacts whose ID is already present are skipped.
func (s *ContactStore) Import(ctx context.Context, incoming []models.EmergencyContact) (int, error) {
	for i, c := range incoming {
		if err := validate.Contact(c); err != nil {
			return 0, fmt.Errorf("invalid contact at index %d: %w", i, err)
		}
	}

	s.mu.Lock()
	added := 0
	for _, c := range incoming {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if s.indexLocked(c.ID) >= 0 {
			continue
		}
		s.contacts = append(s.contacts, c)
		added++
	}
	if added > 0 {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	if added > 0 {
		s.pub.Publish(models.NewEvent(models.EventContactsChanged, nil))
	}
	return added, nil
}

func (s *ContactStore) indexLocked(id string) int {
	return slices.IndexFunc(s.contacts, func(c models.EmergencyContact) bool {
		return c.ID == id
	})
}

func (s *ContactStore) persistLocked(ctx context.Context) {
	data, err := encodeEnvelope(s.contacts)
	if err == nil {
		err = s.kv.Put(context.WithoutCancel(ctx), ContactsKey, data)
	}
	if err != nil {
		metrics.StorePersistFailures.WithLabelValues("contacts").Inc()
		slog.Error("failed to persist contacts", "count", len(s.contacts), "error", err)
	}
}
