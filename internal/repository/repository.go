package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("key not found")
	ErrLeaseHeld = errors.New("lease held by another process")
)

// WriterLease names the lease a process must hold before it mutates the
// persisted marker collection.
const WriterLease = "collection-writer"

// KVStore is the durable local storage behind the stores: one opaque
// serialized value per stable key, written whole.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type LeaseStore interface {
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, name, owner string) error
}

// Lease is a held lease kept alive in the background until Release.
type Lease struct {
	store LeaseStore
	name  string
	owner string

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// HoldLease acquires name and renews it every ttl/3. A process that dies
// without releasing loses the lease once ttl passes.
func HoldLease(ctx context.Context, store LeaseStore, name string, ttl time.Duration) (*Lease, error) {
	host, _ := os.Hostname()
	owner := fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString())
	if err := store.AcquireLease(ctx, name, owner, ttl); err != nil {
		return nil, err
	}

	l := &Lease{store: store, name: name, owner: owner, stop: make(chan struct{})}
	l.wg.Add(1)
	go l.renew(ttl)
	slog.Debug("lease acquired", "name", name, "owner", owner)
	return l, nil
}

func (l *Lease) renew(ttl time.Duration) {
	defer l.wg.Done()
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
			err := l.store.AcquireLease(ctx, l.name, l.owner, ttl)
			cancel()
			if err != nil {
				slog.Error("failed to renew lease", "name", l.name, "error", err)
			}
		}
	}
}

func (l *Lease) Owner() string {
	return l.owner
}

func (l *Lease) Release() {
	l.once.Do(func() {
		close(l.stop)
		l.wg.Wait()
		if err := l.store.ReleaseLease(context.Background(), l.name, l.owner); err != nil {
			slog.Error("failed to release lease", "name", l.name, "error", err)
		}
	})
}
