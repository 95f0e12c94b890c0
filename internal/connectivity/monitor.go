// Package connectivity tracks the online/offline signal and grades link
// quality with a latency probe.
package connectivity

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mr1hm/go-civdef-map/internal/config"
	"github.com/mr1hm/go-civdef-map/internal/events"
	"github.com/mr1hm/go-civdef-map/internal/metrics"
	"github.com/mr1hm/go-civdef-map/internal/models"
)

type Quality string

const (
	QualityHigh    Quality = "high"
	QualityMedium  Quality = "medium"
	QualityLow     Quality = "low"
	QualityOffline Quality = "offline"
)

const (
	highLatency   = 100 * time.Millisecond
	mediumLatency = 500 * time.Millisecond
)

// Grade maps a probe round trip to a quality level.
func Grade(latency time.Duration) Quality {
	switch {
	case latency < highLatency:
		return QualityHigh
	case latency < mediumLatency:
		return QualityMedium
	default:
		return QualityLow
	}
}

type Status struct {
	Online    bool      `json:"online"`
	Quality   Quality   `json:"quality"`
	LatencyMS int64     `json:"latencyMs"`
	CheckedAt time.Time `json:"checkedAt"`
}

type Monitor struct {
	cfg    config.ConnectivityConfig
	pub    events.Publisher
	client *http.Client
	group  singleflight.Group

	mu        sync.RWMutex
	online    bool
	quality   Quality
	latency   time.Duration
	checkedAt time.Time
	// epoch increments on every transition so a late probe can tell the
	// link changed underneath it.
	epoch uint64
}

// NewMonitor starts in the given state. No events are published for it.
func NewMonitor(cfg config.ConnectivityConfig, pub events.Publisher, online bool) *Monitor {
	if pub == nil {
		pub = events.Discard
	}
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	m := &Monitor{
		cfg:     cfg,
		pub:     pub,
		client:  &http.Client{Timeout: timeout},
		online:  online,
		quality: QualityOffline,
	}
	if online {
		m.quality = QualityLow
	}
	setGauge(online)
	return m
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

func (m *Monitor) Quality() Quality {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quality
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Online:    m.online,
		Quality:   m.quality,
		LatencyMS: m.latency.Milliseconds(),
		CheckedAt: m.checkedAt,
	}
}

// SetOnline reports the platform signal. Only transitions publish events; a
// transition to online also runs a probe before returning.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.epoch++
	if !online {
		m.quality = QualityOffline
		m.checkedAt = time.Now()
	}
	m.mu.Unlock()

	setGauge(online)
	if online {
		slog.Info("connectivity restored")
		m.pub.Publish(models.NewEvent(models.EventConnectivityOnline, nil))
		m.Probe(ctx)
		return
	}

	slog.Warn("connectivity lost")
	m.pub.Publish(models.NewEvent(models.EventConnectivityOffline, nil))
	m.pub.Publish(models.NewEvent(models.EventConnectivityQuality, QualityOffline))
}

// Probe grades the link. Concurrent callers share one request. The result
// is discarded if the link went offline while the probe was in flight.
func (m *Monitor) Probe(ctx context.Context) Quality {
	m.mu.RLock()
	online, epoch := m.online, m.epoch
	m.mu.RUnlock()
	if !online {
		return QualityOffline
	}

	v, _, _ := m.group.Do("probe", func() (any, error) {
		return m.measure(context.WithoutCancel(ctx)), nil
	})
	latency := v.(time.Duration)

	q := QualityLow
	if latency >= 0 {
		q = Grade(latency)
	}
	metrics.ConnectivityProbeLatency.Observe(max(latency, 0).Seconds())

	m.mu.Lock()
	if !m.online || m.epoch != epoch {
		m.mu.Unlock()
		return m.Quality()
	}
	m.quality = q
	m.latency = max(latency, 0)
	m.checkedAt = time.Now()
	m.mu.Unlock()

	slog.Debug("connectivity probed", "quality", q, "latency", latency)
	m.pub.Publish(models.NewEvent(models.EventConnectivityQuality, q))
	return q
}

// measure returns the round trip, or -1 when the probe failed.
func (m *Monitor) measure(ctx context.Context) time.Duration {
	u, err := url.Parse(m.cfg.ProbeURL)
	if err != nil {
		slog.Warn("invalid probe URL", "url", m.cfg.ProbeURL, "error", err)
		return -1
	}
	// Cache buster; keeps whatever query the URL already carries.
	q := u.Query()
	q.Set("t", strconv.FormatInt(time.Now().UnixNano(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		slog.Warn("error creating probe request", "error", err)
		return -1
	}
	req.Header.Set("Cache-Control", "no-store")

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		slog.Debug("probe failed", "error", err)
		return -1
	}
	resp.Body.Close()
	return time.Since(start)
}

// Watch dials CheckAddr every WatchInterval and feeds the result into
// SetOnline. It returns immediately when no address is configured.
func (m *Monitor) Watch(ctx context.Context) {
	if m.cfg.CheckAddr == "" {
		return
	}

	interval := m.cfg.WatchInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	d := net.Dialer{Timeout: m.client.Timeout}
	conn, err := d.DialContext(ctx, "tcp", m.cfg.CheckAddr)
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		conn.Close()
	}
	m.SetOnline(ctx, err == nil)
}

func setGauge(online bool) {
	if online {
		metrics.ConnectivityOnline.Set(1)
	} else {
		metrics.ConnectivityOnline.Set(0)
	}
}
