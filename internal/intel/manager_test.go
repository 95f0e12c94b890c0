package intel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-civdef-map/internal/config"
	"github.com/mr1hm/go-civdef-map/internal/events"
	"github.com/mr1hm/go-civdef-map/internal/genai/genaitest"
	"github.com/mr1hm/go-civdef-map/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type stubGenerator struct {
	analyses   atomic.Int64
	broadcasts atomic.Int64
	report     models.IntelReport
	err        error
}

func (g *stubGenerator) Analysis(context.Context) (models.IntelReport, error) {
	g.analyses.Add(1)
	return g.report, g.err
}

func (g *stubGenerator) Broadcast(_ context.Context, channels []models.BroadcastChannel) (models.BroadcastMessage, error) {
	n := g.broadcasts.Add(1)
	if g.err != nil {
		return models.BroadcastMessage{}, g.err
	}
	return models.BroadcastMessage{ID: fmt.Sprint(n), Channel: channels[0], Text: "test"}, nil
}

type fakeConn struct{ online atomic.Bool }

func (f *fakeConn) Online() bool { return f.online.Load() }

func testConfig() (config.IntelConfig, config.WorkerConfig) {
	return config.IntelConfig{
			PollInterval:      time.Hour,
			BroadcastInterval: time.Hour,
			BroadcastChannels: []string{"weather", "bogus"},
		}, config.WorkerConfig{
			Count:      1,
			BufferSize: 4,
		}
}

func TestManager_PollsAndPublishes(t *testing.T) {
	gen := &stubGenerator{report: models.IntelReport{
		Zones: []models.HazardZone{
			zone("z1", 53.40, 14.50, 200),
			zone("z2", math.NaN(), 14.50, 200),
		},
		Headlines: []string{"Ferry delayed"},
		Defcon:    models.Defcon{Level: 4, Description: "Elevated"},
	}}
	conn := &fakeConn{}
	conn.online.Store(true)

	bus := events.NewBus()
	defer bus.Close()
	_, ch := bus.Subscribe()

	cfg, wcfg := testConfig()
	m := NewManager(cfg, wcfg, gen, conn, bus)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx, nil)

	waitFor(t, ch, models.EventIntelUpdated)
	waitFor(t, ch, models.EventBroadcastReceived)

	snap := m.Snapshot()
	require.Len(t, snap.Zones, 1)
	assert.Equal(t, "z1", snap.Zones[0].ID)
	assert.Equal(t, 4, snap.Defcon.Level)
	assert.False(t, snap.Fallback)

	logs := m.Broadcasts()
	require.Len(t, logs, 1)
	assert.Equal(t, models.ChannelWeather, logs[0].Channel)

	cancel()
	m.Stop()
}

func TestManager_SkipsWhileOffline(t *testing.T) {
	gen := &stubGenerator{}
	conn := &fakeConn{}

	cfg, wcfg := testConfig()
	m := NewManager(cfg, wcfg, gen, conn, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx, nil)
	time.Sleep(50 * time.Millisecond)
	cancel()
	m.Stop()

	assert.Zero(t, gen.analyses.Load())
	assert.Zero(t, gen.broadcasts.Load())
	assert.True(t, m.Snapshot().Fallback)
	assert.Empty(t, m.Broadcasts())
}

func TestManager_RefreshOnReconnect(t *testing.T) {
	gen := &stubGenerator{report: models.IntelReport{Zones: []models.HazardZone{zone("z1", 53.4, 14.5, 100)}}}
	conn := &fakeConn{}

	bus := events.NewBus()
	defer bus.Close()
	_, ch := bus.Subscribe()

	cfg, wcfg := testConfig()
	m := NewManager(cfg, wcfg, gen, conn, bus)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx, bus)

	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	conn.online.Store(true)
	bus.Publish(models.NewEvent(models.EventConnectivityOnline, nil))

	waitFor(t, ch, models.EventIntelUpdated)
	assert.Equal(t, int64(1), gen.analyses.Load())

	cancel()
	m.Stop()
}

func TestManager_GeneratorErrorUsesFallback(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota")}
	conn := &fakeConn{}
	conn.online.Store(true)

	bus := events.NewBus()
	defer bus.Close()
	_, ch := bus.Subscribe()

	cfg, wcfg := testConfig()
	m := NewManager(cfg, wcfg, gen, conn, bus)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx, nil)

	e := waitFor(t, ch, models.EventIntelUpdated)
	assert.True(t, e.Payload.(models.IntelReport).Fallback)
	waitFor(t, ch, models.EventBroadcastReceived)
	assert.Len(t, m.Broadcasts(), 1)

	cancel()
	m.Stop()
}

func TestManager_SetBroadcastConfigRetunes(t *testing.T) {
	gen := &stubGenerator{}
	conn := &fakeConn{}
	conn.online.Store(true)

	bus := events.NewBus()
	defer bus.Close()
	_, ch := bus.Subscribe()

	cfg, wcfg := testConfig()
	m := NewManager(cfg, wcfg, gen, conn, bus)
	assert.Equal(t, models.BroadcastConfig{Enabled: true, Frequency: 3600, Types: []models.BroadcastChannel{models.ChannelWeather}}, m.BroadcastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx, nil)
	waitFor(t, ch, models.EventBroadcastReceived)

	applied, err := m.SetBroadcastConfig(models.BroadcastConfig{
		Enabled:   true,
		Frequency: 3,
		Types:     []models.BroadcastChannel{models.ChannelMilitary, models.ChannelMilitary},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, applied.Frequency)
	assert.Equal(t, []models.BroadcastChannel{models.ChannelMilitary}, applied.Types)

	e := waitFor(t, ch, models.EventBroadcastReceived)
	assert.Equal(t, models.ChannelMilitary, e.Payload.(models.BroadcastMessage).Channel)

	_, err = m.SetBroadcastConfig(models.BroadcastConfig{Enabled: false, Frequency: 60, Types: []models.BroadcastChannel{models.ChannelCivil}})
	require.NoError(t, err)
	waitFor(t, ch, models.EventBroadcastConfigured)
	before := gen.broadcasts.Load()

	m.Refresh()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, gen.broadcasts.Load())
	assert.False(t, m.BroadcastConfig().Enabled)

	cancel()
	m.Stop()
}

func TestManager_SetBroadcastConfigRejectsInvalid(t *testing.T) {
	cfg, wcfg := testConfig()
	m := NewManager(cfg, wcfg, Fallback{}, nil, nil)

	_, err := m.SetBroadcastConfig(models.BroadcastConfig{Enabled: true, Frequency: 30, Types: []models.BroadcastChannel{"pirate"}})
	assert.ErrorIs(t, err, ErrInvalidBroadcastConfig)

	_, err = m.SetBroadcastConfig(models.BroadcastConfig{Enabled: true, Frequency: -1})
	assert.ErrorIs(t, err, ErrInvalidBroadcastConfig)

	applied, err := m.SetBroadcastConfig(models.BroadcastConfig{Enabled: true, Frequency: 45})
	require.NoError(t, err)
	assert.Equal(t, []models.BroadcastChannel{models.ChannelCivil}, applied.Types)
	assert.Equal(t, 45, applied.Frequency)
}

func TestManager_BroadcastLogKeepsLatest(t *testing.T) {
	cfg, wcfg := testConfig()
	m := NewManager(cfg, wcfg, Fallback{}, nil, nil)

	for i := range 20 {
		b := models.BroadcastMessage{ID: fmt.Sprint(i)}
		require.NoError(t, m.process(context.Background(), job{broadcast: &b}))
	}

	logs := m.Broadcasts()
	require.Len(t, logs, 16)
	assert.Equal(t, "4", logs[0].ID)
	assert.Equal(t, "19", logs[15].ID)
}

func TestManager_ConcurrentReads(t *testing.T) {
	cfg, wcfg := testConfig()
	m := NewManager(cfg, wcfg, Fallback{}, nil, nil)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r := DefaultReport()
			m.process(context.Background(), job{report: &r})
		}()
		go func() {
			defer wg.Done()
			_ = m.Snapshot()
			b := models.BroadcastMessage{ID: fmt.Sprint(i)}
			m.process(context.Background(), job{broadcast: &b})
		}()
	}
	wg.Wait()
	assert.Len(t, m.Broadcasts(), 10)
}

func TestAIGenerator_Analysis(t *testing.T) {
	client, _ := genaitest.New(t, genaitest.JSON(map[string]any{
		"zones": []map[string]any{
			{"lat": 53.45, "lng": 14.58, "radius": 600, "riskLevel": "high", "category": "chemical", "description": "Police chemical plant"},
			{"lng": 14.58, "radius": 600, "riskLevel": "low", "category": "transport", "description": "No latitude"},
		},
		"headlines":      []string{"DRILL: Port evacuation exercise at 10:00", "  "},
		"defcon":         map[string]any{"level": 4, "description": "Heightened"},
		"officialAlerts": []map[string]any{{"title": "Boil water", "body": "Pogodno district", "severity": "warning", "lat": 53.43, "lng": 14.50}},
	}))
	gen := NewGenerator(client)

	r, err := gen.Analysis(context.Background())
	require.NoError(t, err)

	require.Len(t, r.Zones, 2)
	assert.Equal(t, "ai-zone-0", r.Zones[0].ID)
	assert.True(t, math.IsNaN(r.Zones[1].Position.Lat))
	assert.Equal(t, []string{"DRILL: Port evacuation exercise at 10:00"}, r.Headlines)
	assert.Equal(t, 4, r.Defcon.Level)
	require.Len(t, r.OfficialAlerts, 1)
	require.NotNil(t, r.OfficialAlerts[0].Position)

	clean, dropped := sanitize(r)
	assert.Equal(t, 1, dropped)
	assert.Len(t, clean.Zones, 1)
}

func TestAIGenerator_AnalysisToleratesStringNumbers(t *testing.T) {
	client, _ := genaitest.New(t, genaitest.JSON(map[string]any{
		"zones": []map[string]any{
			{"lat": "53.43", "lng": 14.55, "radius": "800", "riskLevel": "medium", "category": "transport", "description": "Port rail yard"},
			{"lat": "north", "lng": 14.60, "radius": 500, "riskLevel": "high", "category": "industrial", "description": "Unplaceable"},
			{"lat": 53.40, "lng": 14.52, "radius": 300, "riskLevel": "low", "category": "strategic", "description": "Bridge"},
		},
		"headlines":      []string{"Ferry service suspended"},
		"defcon":         map[string]any{"level": "3", "description": "Elevated"},
		"officialAlerts": []map[string]any{{"title": "Road closed", "severity": "info", "lat": "53.42", "lng": "14.53"}},
	}))
	gen := NewGenerator(client)

	r, err := gen.Analysis(context.Background())
	require.NoError(t, err)
	require.Len(t, r.Zones, 3)
	assert.Equal(t, 53.43, r.Zones[0].Position.Lat)
	assert.Equal(t, 800.0, r.Zones[0].Radius)
	assert.Equal(t, 3, r.Defcon.Level)
	require.NotNil(t, r.OfficialAlerts[0].Position)
	assert.Equal(t, 14.53, r.OfficialAlerts[0].Position.Lng)

	clean, dropped := sanitize(r)
	assert.Equal(t, 1, dropped)
	require.Len(t, clean.Zones, 2)
	assert.Equal(t, "Port rail yard", clean.Zones[0].Description)
	assert.Equal(t, "Bridge", clean.Zones[1].Description)
	assert.False(t, clean.Fallback)
}

func TestAIGenerator_Broadcast(t *testing.T) {
	client, _ := genaitest.New(t, genaitest.JSON(map[string]any{"severity": "loud", "text": "Convoy passing Gumieńce."}))
	gen := NewGenerator(client)

	b, err := gen.Broadcast(context.Background(), []models.BroadcastChannel{models.ChannelMilitary})
	require.NoError(t, err)
	assert.Equal(t, models.ChannelMilitary, b.Channel)
	assert.Equal(t, models.SeverityInfo, b.Severity)
	assert.Equal(t, "Convoy passing Gumieńce.", b.Text)
	assert.NotEmpty(t, b.ID)
}

func TestAIGenerator_Failure(t *testing.T) {
	client, _ := genaitest.New(t, func(string) (int, string) {
		return http.StatusTooManyRequests, "quota"
	})
	gen := NewGenerator(client)

	_, err := gen.Analysis(context.Background())
	assert.Error(t, err)
	_, err = gen.Broadcast(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewGenerator_NilClient(t *testing.T) {
	gen := NewGenerator(nil)
	r, err := gen.Analysis(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Fallback)

	b, err := gen.Broadcast(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelCivil, b.Channel)
	assert.NotEmpty(t, b.Text)
}

func waitFor(t *testing.T, ch <-chan models.Event, kind models.EventKind) models.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
			return models.Event{}
		}
	}
}
