package api

import (
	"github.com/mr1hm/go-civdef-map/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func point(p models.Coordinates) Geometry {
	return Geometry{
		Type:        "Point",
		Coordinates: []float64{p.Lng, p.Lat},
	}
}

// markersToGeoJSON skips anything without a valid position; encoding a NaN
// would fail the whole response.
func markersToGeoJSON(markers []models.Marker) FeatureCollection {
	features := make([]Feature, 0, len(markers))

	for _, m := range markers {
		if !m.Position.Valid() {
			continue
		}
		f := Feature{
			Type:     "Feature",
			Geometry: point(m.Position),
			Properties: map[string]any{
				"id":                    m.ID,
				"name":                  m.Name,
				"description":           m.Description,
				"type":                  m.Type,
				"verificationStatus":    m.VerificationStatus,
				"authorName":            m.AuthorName,
				"aiVerificationDetails": m.AIVerificationDetails,
				"createdAt":             m.CreatedAt,
				"revision":              m.Revision,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

func zonesToGeoJSON(zones []models.HazardZone) FeatureCollection {
	features := make([]Feature, 0, len(zones))

	for _, z := range zones {
		if !z.Position.Valid() {
			continue
		}
		f := Feature{
			Type:     "Feature",
			Geometry: point(z.Position),
			Properties: map[string]any{
				"id":          z.ID,
				"radius":      z.Radius,
				"riskLevel":   z.RiskLevel,
				"category":    z.Category,
				"description": z.Description,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
