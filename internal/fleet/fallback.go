package fleet

import (
	"fmt"
	"time"

	"github.com/pavemetrics/overwatch/pkg/models"
)

// SyntheticFleet builds a plausible fallback fleet: five trucks plus two
// employee handhelds around the given site. Used when both the pull
// endpoint and the push channel have nothing to offer.
func SyntheticFleet(now time.Time, site models.GeoPoint) models.FleetSnapshot {
	snap := make(models.FleetSnapshot, 7)
	baseLat, baseLon := site.Latitude, site.Longitude

	speeds := []float64{27, 31, 0, 24, 29}
	for i, speed := range speeds {
		idx := i + 1
		offset := float64(idx-3) * 0.01
		status := models.DeviceStatusActive
		if speed <= 2 {
			status = models.DeviceStatusIdle
		}

		id := fmt.Sprintf("veh-%d", idx)
		snap[id] = models.TelemetrySnapshot{
			DeviceID:  id,
			Timestamp: now,
			Position: models.Position{
				Latitude:  baseLat + offset,
				Longitude: baseLon + offset*1.2,
				Altitude:  12,
				Heading:   float64(idx * 45 % 360),
				Speed:     speed,
				Accuracy:  8,
			},
			Status:   status,
			IsMoving: speed > 1,
		}
	}

	snap["emp-1"] = models.TelemetrySnapshot{
		DeviceID:  "emp-1",
		Timestamp: now,
		Position: models.Position{
			Latitude:  baseLat + 0.015,
			Longitude: baseLon - 0.008,
			Heading:   90,
			Speed:     1,
			Accuracy:  12,
		},
		Status:   models.DeviceStatusActive,
		IsMoving: true,
	}
	snap["emp-2"] = models.TelemetrySnapshot{
		DeviceID:  "emp-2",
		Timestamp: now,
		Position: models.Position{
			Latitude:  baseLat - 0.01,
			Longitude: baseLon + 0.006,
			Heading:   45,
			Accuracy:  15,
		},
		Status:   models.DeviceStatusIdle,
		IsMoving: false,
	}

	return snap
}
