package intel

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-civdef-map/internal/genai"
	"github.com/mr1hm/go-civdef-map/internal/models"
)

// Generator produces the situational picture and simulated radio traffic.
type Generator interface {
	Analysis(ctx context.Context) (models.IntelReport, error)
	Broadcast(ctx context.Context, channels []models.BroadcastChannel) (models.BroadcastMessage, error)
}

// NewGenerator returns the AI-backed generator, or the static fallback when
// client is nil.
func NewGenerator(client *genai.Client) Generator {
	if client == nil {
		return Fallback{}
	}
	return &AIGenerator{client: client}
}

// DefaultReport is served whenever no usable analysis is available.
func DefaultReport() models.IntelReport {
	return models.IntelReport{
		Zones: []models.HazardZone{
			{
				ID:          "h1",
				Position:    models.Coordinates{Lat: 53.4295, Lng: 14.5670},
				Radius:      800,
				RiskLevel:   models.RiskHigh,
				Category:    models.HazardTransport,
				Description: "Port Area: Heavy Transport",
			},
			{
				ID:          "h2",
				Position:    models.Coordinates{Lat: 53.4180, Lng: 14.5510},
				Radius:      500,
				RiskLevel:   models.RiskMedium,
				Category:    models.HazardStrategic,
				Description: "Rail Hub: Congestion Risk",
			},
		},
		Headlines: []string{
			"SYSTEM: Monitoring Port Channels...",
			"WEATHER: High winds expected in Downtown sector.",
			"TRAFFIC: Congestion on Castle Route (Trasa Zamkowa).",
		},
		Defcon:    models.Defcon{Level: 5, Description: "Normal readiness"},
		Fallback:  true,
		UpdatedAt: time.Now(),
	}
}

var fallbackBroadcasts = map[models.BroadcastChannel][]string{
	models.ChannelCivil: {
		"Civil defense siren test scheduled for 12:00. No action required.",
		"Public shelters in Śródmieście are open for inspection until 18:00.",
		"Residents are reminded to keep a 72-hour emergency kit ready.",
	},
	models.ChannelMilitary: {
		"Military convoy movement on the S3 expressway. Expect delays.",
		"Restricted airspace over the port remains in effect.",
	},
	models.ChannelWeather: {
		"Strong wind gusts expected near the Odra riverbanks this evening.",
		"Fog reducing visibility on Trasa Zamkowa.",
	},
	models.ChannelMedical: {
		"Blood donation point at Pomorzany hospital is accepting donors.",
		"Pharmacy on Plac Rodła operating extended hours.",
	},
}

// Fallback is the credential-free generator.
type Fallback struct{}

func (Fallback) Analysis(context.Context) (models.IntelReport, error) {
	return DefaultReport(), nil
}

func (Fallback) Broadcast(_ context.Context, channels []models.BroadcastChannel) (models.BroadcastMessage, error) {
	ch := pickChannel(channels)
	texts := fallbackBroadcasts[ch]
	if len(texts) == 0 {
		return models.BroadcastMessage{}, fmt.Errorf("no fallback traffic for channel %q", ch)
	}
	return models.BroadcastMessage{
		ID:        uuid.NewString(),
		Channel:   ch,
		Severity:  models.SeverityInfo,
		Text:      texts[rand.IntN(len(texts))],
		Timestamp: time.Now(),
	}, nil
}

func pickChannel(channels []models.BroadcastChannel) models.BroadcastChannel {
	if len(channels) == 0 {
		return models.ChannelCivil
	}
	return channels[rand.IntN(len(channels))]
}
