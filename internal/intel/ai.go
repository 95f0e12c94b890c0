package intel

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-civdef-map/internal/genai"
	"github.com/mr1hm/go-civdef-map/internal/models"
)

type AIGenerator struct {
	client *genai.Client
}

var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"zones": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"lat":         {Type: genai.TypeNumber},
					"lng":         {Type: genai.TypeNumber},
					"radius":      {Type: genai.TypeNumber, Description: "Radius in meters"},
					"riskLevel":   {Type: genai.TypeString, Enum: []string{"high", "medium", "low"}},
					"description": {Type: genai.TypeString},
					"category":    {Type: genai.TypeString, Enum: []string{"chemical", "transport", "industrial", "strategic"}},
				},
			},
		},
		"headlines": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"defcon": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"level":       {Type: genai.TypeInteger},
				"description": {Type: genai.TypeString},
			},
		},
		"officialAlerts": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":    {Type: genai.TypeString},
					"body":     {Type: genai.TypeString},
					"severity": {Type: genai.TypeString, Enum: []string{"info", "warning", "critical"}},
					"lat":      {Type: genai.TypeNumber},
					"lng":      {Type: genai.TypeNumber},
				},
			},
		},
	},
}

// looseFloat accepts a JSON number or a numeric string. Anything else
// decodes as NaN so the guard drops only the entry that carries it.
type looseFloat struct {
	v   float64
	set bool
}

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	f.set = true
	s = strings.TrimSpace(strings.Trim(s, `"`))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		v = math.NaN()
	}
	f.v = v
	return nil
}

func (f looseFloat) value() float64 {
	if !f.set {
		return math.NaN()
	}
	return f.v
}

type analysisResponse struct {
	Zones []struct {
		Lat         looseFloat `json:"lat"`
		Lng         looseFloat `json:"lng"`
		Radius      looseFloat `json:"radius"`
		RiskLevel   string     `json:"riskLevel"`
		Description string     `json:"description"`
		Category    string     `json:"category"`
	} `json:"zones"`
	Headlines []string `json:"headlines"`
	Defcon    *struct {
		Level       looseFloat `json:"level"`
		Description string     `json:"description"`
	} `json:"defcon"`
	OfficialAlerts []struct {
		Title    string     `json:"title"`
		Body     string     `json:"body"`
		Severity string     `json:"severity"`
		Lat      looseFloat `json:"lat"`
		Lng      looseFloat `json:"lng"`
	} `json:"officialAlerts"`
}

const analysisPrompt = `Act as the "Szczecin Defense AI".
1. Identify 3 potential hazard zones in Szczecin (industrial, transport hubs, chemical risks) based on general geographical knowledge.
2. Generate 3 short "Breaking News" headlines relevant to civil safety in Szczecin (simulate realistic scenarios like traffic, weather warnings, or industrial drills).
3. Give a DEFCON-style readiness level from 1 (maximum) to 5 (normal) with a short description.
4. List up to 2 official alerts a city authority might issue today, with a location when relevant.
Return JSON.`

func (g *AIGenerator) Analysis(ctx context.Context) (models.IntelReport, error) {
	var resp analysisResponse
	if err := g.client.GenerateJSON(ctx, analysisPrompt, analysisSchema, &resp); err != nil {
		return models.IntelReport{}, fmt.Errorf("error generating analysis: %w", err)
	}

	now := time.Now()
	report := models.IntelReport{UpdatedAt: now}
	for i, z := range resp.Zones {
		report.Zones = append(report.Zones, models.HazardZone{
			ID:          fmt.Sprintf("ai-zone-%d", i),
			Position:    models.Coordinates{Lat: z.Lat.value(), Lng: z.Lng.value()},
			Radius:      z.Radius.value(),
			RiskLevel:   models.RiskLevel(z.RiskLevel),
			Category:    models.HazardCategory(z.Category),
			Description: z.Description,
		})
	}
	for _, h := range resp.Headlines {
		if h = strings.TrimSpace(h); h != "" {
			report.Headlines = append(report.Headlines, h)
		}
	}
	if resp.Defcon != nil {
		level := resp.Defcon.Level.value()
		if math.IsNaN(level) {
			level = 0
		}
		report.Defcon = models.Defcon{Level: int(level), Description: resp.Defcon.Description}
	}
	for i, a := range resp.OfficialAlerts {
		alert := models.OfficialAlert{
			ID:       fmt.Sprintf("ai-alert-%d", i),
			Title:    a.Title,
			Body:     a.Body,
			Severity: models.Severity(a.Severity),
			IssuedAt: now,
		}
		if a.Lat.set || a.Lng.set {
			alert.Position = &models.Coordinates{Lat: a.Lat.value(), Lng: a.Lng.value()}
		}
		report.OfficialAlerts = append(report.OfficialAlerts, alert)
	}
	return report, nil
}

var broadcastSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"severity": {Type: genai.TypeString, Enum: []string{"info", "warning", "critical"}},
		"text":     {Type: genai.TypeString},
	},
	Required: []string{"severity", "text"},
}

func (g *AIGenerator) Broadcast(ctx context.Context, channels []models.BroadcastChannel) (models.BroadcastMessage, error) {
	ch := pickChannel(channels)
	prompt := fmt.Sprintf(`You are a radio operator on the %s emergency channel in Szczecin, Poland.
Write one short, realistic radio transmission (max 30 words) of the kind heard during a civil defense readiness period.
Do not cause panic. Return JSON.`, ch)

	var resp struct {
		Severity string `json:"severity"`
		Text     string `json:"text"`
	}
	if err := g.client.GenerateJSON(ctx, prompt, broadcastSchema, &resp); err != nil {
		return models.BroadcastMessage{}, fmt.Errorf("error generating broadcast: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return models.BroadcastMessage{}, genai.ErrEmptyResponse
	}

	sev := models.Severity(resp.Severity)
	switch sev {
	case models.SeverityInfo, models.SeverityWarning, models.SeverityCritical:
	default:
		sev = models.SeverityInfo
	}
	return models.BroadcastMessage{
		ID:        uuid.NewString(),
		Channel:   ch,
		Severity:  sev,
		Text:      text,
		Timestamp: time.Now(),
	}, nil
}
