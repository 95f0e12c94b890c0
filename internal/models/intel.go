package models

import "time"

type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

type HazardCategory string

const (
	HazardChemical   HazardCategory = "chemical"
	HazardTransport  HazardCategory = "transport"
	HazardIndustrial HazardCategory = "industrial"
	HazardStrategic  HazardCategory = "strategic"
)

type HazardZone struct {
	ID          string         `json:"id"`
	Position    Coordinates    `json:"position"`
	Radius      float64        `json:"radius"` // meters
	RiskLevel   RiskLevel      `json:"riskLevel"`
	Category    HazardCategory `json:"category"`
	Description string         `json:"description"`
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type OfficialAlert struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Body     string       `json:"body"`
	Severity Severity     `json:"severity"`
	Position *Coordinates `json:"position,omitempty"`
	IssuedAt time.Time    `json:"issuedAt"`
}

type Defcon struct {
	Level       int    `json:"level"`
	Description string `json:"description"`
}

// IntelReport is the externally supplied situational picture. It is
// replaced wholesale and never mutated locally.
type IntelReport struct {
	Zones          []HazardZone    `json:"zones"`
	Headlines      []string        `json:"headlines"`
	Defcon         Defcon          `json:"defcon"`
	OfficialAlerts []OfficialAlert `json:"officialAlerts"`
	Fallback       bool            `json:"fallback"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type BroadcastChannel string

const (
	ChannelCivil    BroadcastChannel = "civil"
	ChannelMilitary BroadcastChannel = "military"
	ChannelWeather  BroadcastChannel = "weather"
	ChannelMedical  BroadcastChannel = "medical"
)

type BroadcastMessage struct {
	ID        string           `json:"id"`
	Channel   BroadcastChannel `json:"channel"`
	Severity  Severity         `json:"severity"`
	Text      string           `json:"text"`
	Timestamp time.Time        `json:"timestamp"`
}

// BroadcastConfig tunes the simulated radio. Frequency is in seconds.
type BroadcastConfig struct {
	Enabled   bool               `json:"enabled"`
	Frequency int                `json:"frequency"`
	Types     []BroadcastChannel `json:"types"`
}
