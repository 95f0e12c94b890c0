package store

import (
	"time"

	"github.com/mr1hm/go-civdef-map/internal/models"
)

var seedTime = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultSeed is written on first run only, when nothing has been persisted yet.
func DefaultSeed() []models.Marker {
	return []models.Marker{
		{
			ID:                 "seed-shelter-dworzec",
			Name:               "Schron pod Dworcem Głównym",
			Description:        "Historic underground shelter beneath the main railway station. Capacity approx. 500.",
			Position:           models.Coordinates{Lat: 53.4197, Lng: 14.5504},
			Type:               models.MarkerTypeUnderground,
			VerificationStatus: models.StatusVerified,
			AuthorName:         "Civil Defense HQ",
		},
		{
			ID:                 "seed-gathering-jasne-blonia",
			Name:               "Jasne Błonia",
			Description:        "Open-air assembly area for the northern districts.",
			Position:           models.Coordinates{Lat: 53.4426, Lng: 14.5356},
			Type:               models.MarkerTypeGatheringPoint,
			VerificationStatus: models.StatusVerified,
			AuthorName:         "Civil Defense HQ",
		},
		{
			ID:                 "seed-medical-arkonska",
			Name:               "Szpital Arkońska",
			Description:        "Regional hospital, emergency department open 24/7.",
			Position:           models.Coordinates{Lat: 53.4478, Lng: 14.5156},
			Type:               models.MarkerTypeMedical,
			VerificationStatus: models.StatusVerified,
			AuthorName:         "Civil Defense HQ",
		},
		{
			ID:                 "seed-gathering-waly",
			Name:               "Wały Chrobrego",
			Description:        "Riverside terrace, gathering point for the city centre.",
			Position:           models.Coordinates{Lat: 53.4301, Lng: 14.5637},
			Type:               models.MarkerTypeGatheringPoint,
			VerificationStatus: models.StatusVerified,
			AuthorName:         "Civil Defense HQ",
		},
	}
}

func withSeedDefaults(markers []models.Marker) []models.Marker {
	out := make([]models.Marker, len(markers))
	for i, m := range markers {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = seedTime
		}
		m.Revision = 1
		out[i] = m
	}
	return out
}
