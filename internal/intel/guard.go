package intel

import (
	"math"

	"github.com/mr1hm/go-civdef-map/internal/models"
)

// sanitize drops every zone and alert a map could not place and fills in
// defaults for anything left empty. It returns the number of entries dropped
// for bad coordinates.
func sanitize(r models.IntelReport) (models.IntelReport, int) {
	dropped := 0
	defaults := DefaultReport()

	zones := make([]models.HazardZone, 0, len(r.Zones))
	for _, z := range r.Zones {
		if !validZone(z) {
			dropped++
			continue
		}
		zones = append(zones, z)
	}

	alerts := make([]models.OfficialAlert, 0, len(r.OfficialAlerts))
	for _, a := range r.OfficialAlerts {
		if a.Position != nil && !a.Position.Valid() {
			dropped++
			continue
		}
		if a.Title == "" {
			continue
		}
		alerts = append(alerts, a)
	}

	r.OfficialAlerts = alerts
	if len(zones) == 0 {
		zones = defaults.Zones
		r.Fallback = true
	}
	r.Zones = zones
	if len(r.Headlines) == 0 {
		r.Headlines = defaults.Headlines
		r.Fallback = true
	}
	if r.Defcon.Level < 1 || r.Defcon.Level > 5 {
		r.Defcon = defaults.Defcon
	}
	return r, dropped
}

func validZone(z models.HazardZone) bool {
	if !z.Position.Valid() {
		return false
	}
	if math.IsNaN(z.Radius) || math.IsInf(z.Radius, 0) || z.Radius <= 0 {
		return false
	}
	switch z.RiskLevel {
	case models.RiskHigh, models.RiskMedium, models.RiskLow:
	default:
		return false
	}
	return true
}
