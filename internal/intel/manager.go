// Package intel keeps the situational picture (hazard zones, headlines,
// readiness level, official alerts) and the simulated radio log fresh.
package intel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mr1hm/go-civdef-map/internal/config"
	"github.com/mr1hm/go-civdef-map/internal/events"
	"github.com/mr1hm/go-civdef-map/internal/metrics"
	"github.com/mr1hm/go-civdef-map/internal/models"
	"github.com/mr1hm/go-civdef-map/internal/worker"
)

const (
	sourceAnalysis  = "analysis"
	sourceBroadcast = "broadcast"

	broadcastLogSize = 16

	MinBroadcastFrequency = 10 * time.Second
)

var ErrInvalidBroadcastConfig = errors.New("invalid broadcast config")

type Connectivity interface {
	Online() bool
}

type Subscriber interface {
	Subscribe() (uint64, <-chan models.Event)
	Unsubscribe(id uint64)
}

// job carries exactly one of its fields.
type job struct {
	report    *models.IntelReport
	broadcast *models.BroadcastMessage
}

type Manager struct {
	cfg     config.IntelConfig
	workers config.WorkerConfig
	gen     Generator
	conn    Connectivity
	pub     events.Publisher

	pool   *worker.Pool[job]
	wg     sync.WaitGroup
	wake   map[string]chan struct{}
	retune map[string]chan struct{}

	mu         sync.RWMutex
	report     models.IntelReport
	broadcasts []models.BroadcastMessage

	radioMu       sync.RWMutex
	radioEnabled  bool
	radioInterval time.Duration
	channels      []models.BroadcastChannel
}

func NewManager(cfg config.IntelConfig, workers config.WorkerConfig, gen Generator, conn Connectivity, pub events.Publisher) *Manager {
	if pub == nil {
		pub = events.Discard
	}

	var channels []models.BroadcastChannel
	for _, c := range cfg.BroadcastChannels {
		if ch := models.BroadcastChannel(c); knownChannel(ch) {
			channels = append(channels, ch)
		} else {
			slog.Warn("ignoring unknown broadcast channel", "channel", c)
		}
	}
	if len(channels) == 0 {
		channels = []models.BroadcastChannel{models.ChannelCivil}
	}

	return &Manager{
		cfg:           cfg,
		workers:       workers,
		gen:           gen,
		conn:          conn,
		pub:           pub,
		report:        DefaultReport(),
		radioEnabled:  true,
		radioInterval: cfg.BroadcastInterval,
		channels:      channels,
		wake: map[string]chan struct{}{
			sourceAnalysis:  make(chan struct{}, 1),
			sourceBroadcast: make(chan struct{}, 1),
		},
		retune: map[string]chan struct{}{
			sourceAnalysis:  make(chan struct{}, 1),
			sourceBroadcast: make(chan struct{}, 1),
		},
	}
}

func knownChannel(ch models.BroadcastChannel) bool {
	switch ch {
	case models.ChannelCivil, models.ChannelMilitary, models.ChannelWeather, models.ChannelMedical:
		return true
	}
	return false
}

// Start launches the worker pool and both pollers. When bus is non-nil the
// pollers also run immediately whenever connectivity comes back.
func (m *Manager) Start(ctx context.Context, bus Subscriber) {
	m.pool = worker.NewPool("intel", m.workers.Count, m.workers.BufferSize, m.process)
	m.pool.Start(ctx)

	m.wg.Add(2)
	go m.runPoller(ctx, sourceAnalysis)
	go m.runPoller(ctx, sourceBroadcast)

	if bus != nil {
		id, ch := bus.Subscribe()
		m.wg.Add(1)
		go m.watchConnectivity(ctx, bus, id, ch)
	}
}

func (m *Manager) watchConnectivity(ctx context.Context, bus Subscriber, id uint64, ch <-chan models.Event) {
	defer m.wg.Done()
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Kind == models.EventConnectivityOnline {
				m.Refresh()
			}
		}
	}
}

// Refresh asks both pollers to run now.
func (m *Manager) Refresh() {
	for _, w := range m.wake {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// BroadcastConfig reports the radio settings in effect.
func (m *Manager) BroadcastConfig() models.BroadcastConfig {
	m.radioMu.RLock()
	defer m.radioMu.RUnlock()
	return models.BroadcastConfig{
		Enabled:   m.radioEnabled,
		Frequency: int(m.radioInterval / time.Second),
		Types:     slices.Clone(m.channels),
	}
}

// SetBroadcastConfig retunes the radio poller. Frequencies below
// MinBroadcastFrequency are raised to it; an empty type list means civil.
// When enabled the poller restarts its interval and transmits at once.
func (m *Manager) SetBroadcastConfig(c models.BroadcastConfig) (models.BroadcastConfig, error) {
	if c.Frequency < 0 {
		return models.BroadcastConfig{}, fmt.Errorf("%w: frequency must not be negative", ErrInvalidBroadcastConfig)
	}
	var channels []models.BroadcastChannel
	for _, ch := range c.Types {
		if !knownChannel(ch) {
			return models.BroadcastConfig{}, fmt.Errorf("%w: unknown channel %q", ErrInvalidBroadcastConfig, ch)
		}
		if !slices.Contains(channels, ch) {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		channels = []models.BroadcastChannel{models.ChannelCivil}
	}
	interval := max(time.Duration(c.Frequency)*time.Second, MinBroadcastFrequency)

	m.radioMu.Lock()
	m.radioEnabled = c.Enabled
	m.radioInterval = interval
	m.channels = channels
	m.radioMu.Unlock()

	select {
	case m.retune[sourceBroadcast] <- struct{}{}:
	default:
	}

	applied := m.BroadcastConfig()
	slog.Info("broadcast config updated", "enabled", applied.Enabled, "frequency", applied.Frequency, "types", applied.Types)
	m.pub.Publish(models.NewEvent(models.EventBroadcastConfigured, applied))
	return applied, nil
}

func (m *Manager) interval(source string) time.Duration {
	if source == sourceBroadcast {
		m.radioMu.RLock()
		defer m.radioMu.RUnlock()
		return m.radioInterval
	}
	return m.cfg.PollInterval
}

func (m *Manager) runPoller(ctx context.Context, source string) {
	defer m.wg.Done()
	interval := m.interval(source)
	slog.Info("starting poller", "source", source, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.poll(ctx, source)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "source", source)
			return
		case <-ticker.C:
			m.poll(ctx, source)
		case <-m.wake[source]:
			m.poll(ctx, source)
		case <-m.retune[source]:
			interval = m.interval(source)
			ticker.Reset(interval)
			slog.Debug("poller retuned", "source", source, "interval", interval)
			m.poll(ctx, source)
		}
	}
}

func (m *Manager) poll(ctx context.Context, source string) {
	if m.conn != nil && !m.conn.Online() {
		slog.Debug("offline, skipping poll", "source", source)
		metrics.IntelPolls.WithLabelValues(source, "skipped").Inc()
		return
	}
	slog.Debug("polling", "source", source)

	var (
		j      job
		genErr error
	)
	switch source {
	case sourceAnalysis:
		r, err := m.gen.Analysis(ctx)
		if err != nil {
			genErr = err
			r, _ = Fallback{}.Analysis(ctx)
		}
		j.report = &r
	case sourceBroadcast:
		m.radioMu.RLock()
		enabled, channels := m.radioEnabled, slices.Clone(m.channels)
		m.radioMu.RUnlock()
		if !enabled {
			metrics.IntelPolls.WithLabelValues(source, "disabled").Inc()
			return
		}

		b, err := m.gen.Broadcast(ctx, channels)
		if err != nil {
			genErr = err
			if b, err = (Fallback{}).Broadcast(ctx, channels); err != nil {
				slog.Error("poll failed", "source", source, "error", err)
				metrics.IntelPolls.WithLabelValues(source, "error").Inc()
				return
			}
		}
		j.broadcast = &b
	}

	if genErr != nil {
		slog.Warn("generator failed, using fallback", "source", source, "error", genErr)
		metrics.IntelPolls.WithLabelValues(source, "fallback").Inc()
	} else {
		metrics.IntelPolls.WithLabelValues(source, "ok").Inc()
	}

	m.pool.Submit(ctx, j)
}

func (m *Manager) process(ctx context.Context, j job) error {
	switch {
	case j.report != nil:
		r, dropped := sanitize(*j.report)
		if dropped > 0 {
			metrics.IntelDropped.Add(float64(dropped))
			slog.Warn("dropped intel entries with invalid positions", "count", dropped)
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = time.Now()
		}

		m.mu.Lock()
		m.report = r
		m.mu.Unlock()

		slog.Info("intel updated", "zones", len(r.Zones), "alerts", len(r.OfficialAlerts), "defcon", r.Defcon.Level, "fallback", r.Fallback)
		m.pub.Publish(models.NewEvent(models.EventIntelUpdated, r))

	case j.broadcast != nil:
		b := *j.broadcast

		m.mu.Lock()
		m.broadcasts = append(m.broadcasts, b)
		if n := len(m.broadcasts); n > broadcastLogSize {
			m.broadcasts = slices.Clone(m.broadcasts[n-broadcastLogSize:])
		}
		m.mu.Unlock()

		slog.Debug("broadcast received", "channel", b.Channel, "severity", b.Severity)
		m.pub.Publish(models.NewEvent(models.EventBroadcastReceived, b))
	}
	return nil
}

// Snapshot returns the current report. Before the first successful poll it
// is the fallback report.
func (m *Manager) Snapshot() models.IntelReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := m.report
	r.Zones = slices.Clone(r.Zones)
	r.Headlines = slices.Clone(r.Headlines)
	r.OfficialAlerts = slices.Clone(r.OfficialAlerts)
	return r
}

// Broadcasts returns the retained radio log, oldest first.
func (m *Manager) Broadcasts() []models.BroadcastMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.broadcasts)
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("intel manager stopped")
}
