// Package analytics aggregates fleet telemetry, sensor readings, and
// weather into the dashboard snapshot. Derivations are pure functions of
// their inputs; the weights and unit costs come from configuration.
package analytics

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/pavemetrics/overwatch/internal/config"
	"github.com/pavemetrics/overwatch/pkg/models"
)

// Engine derives dashboard figures from raw upstream inputs.
type Engine struct {
	cfg config.AnalyticsConfig
}

// NewEngine creates an engine with the given heuristics.
func NewEngine(cfg config.AnalyticsConfig) *Engine {
	return &Engine{cfg: cfg}
}

// FuelEfficiency scores the fleet 0-100 based on cruising speed and the
// fraction of devices actually moving. An empty fleet scores a neutral 85.
func (e *Engine) FuelEfficiency(fleet models.FleetSnapshot) float64 {
	if len(fleet) == 0 {
		return 85
	}

	var totalSpeed float64
	var moving int
	for _, d := range fleet {
		totalSpeed += d.Position.Speed
		if d.IsMoving {
			moving++
		}
	}

	avg := totalSpeed / float64(len(fleet))

	// 25-35 mph is the efficient paving band; outside it the score decays
	// toward a floor of 60.
	speedEff := 100.0
	if avg < 25 || avg > 35 {
		speedEff = math.Max(60, 100-math.Abs(avg-30)*2)
	}

	movingFraction := float64(moving) / float64(len(fleet))
	return math.Round(speedEff * movingFraction)
}

// WeatherImpactFactor scores current conditions 0-0.5, where 0 is no
// operational impact. Precipitation dominates; wind, temperature extremes,
// and low visibility contribute smaller terms.
func (e *Engine) WeatherImpactFactor(w models.WeatherConditions) float64 {
	impact := w.Precipitation * 0.2
	if w.WindSpeed > 15 {
		impact += (w.WindSpeed - 15) * 0.01
	}
	if w.TempF < 32 || w.TempF > 95 {
		impact += 0.1
	}
	if w.Visibility < 5000 {
		impact += (5000 - w.Visibility) / 50000
	}
	return math.Min(impact, 0.5)
}

// SensorReliability is the fraction of good-quality readings, 0-1.
// Fair and poor readings count against it equally.
func SensorReliability(readings []models.SensorReading) float64 {
	return goodFraction(readings)
}

// DetectionAccuracy is the same good fraction reported as the defect
// detection proxy. Shares the formula with SensorReliability but the two
// feed different dashboard fields.
func DetectionAccuracy(readings []models.SensorReading) float64 {
	return goodFraction(readings)
}

// goodFraction defaults to 0.95 on an empty set: the sensor client's
// fallback means no readings is absence of evidence, not total failure.
func goodFraction(readings []models.SensorReading) float64 {
	if len(readings) == 0 {
		return 0.95
	}
	var good int
	for _, r := range readings {
		if r.Quality == models.QualityGood {
			good++
		}
	}
	return float64(good) / float64(len(readings))
}

// ActiveFraction is the share of devices reporting active status.
func ActiveFraction(fleet models.FleetSnapshot) float64 {
	if len(fleet) == 0 {
		return 0
	}
	var active int
	for _, d := range fleet {
		if d.Status == models.DeviceStatusActive {
			active++
		}
	}
	return float64(active) / float64(len(fleet))
}

// OperationalEfficiency blends fuel efficiency, sensor reliability, and
// weather into a single 0-100 score.
func (e *Engine) OperationalEfficiency(fuel, reliability, weatherFactor float64) int {
	raw := fuel*e.cfg.FuelWeight +
		reliability*100*e.cfg.SensorWeight +
		(1-weatherFactor)*100*e.cfg.WeatherWeight
	return clampPct(int(math.Round(raw)))
}

// SystemHealth blends sensor reliability with the active-device fraction.
func (e *Engine) SystemHealth(reliability, activeFraction float64) int {
	raw := reliability*100*e.cfg.HealthSensorWeight +
		activeFraction*100*e.cfg.HealthFleetWeight
	return clampPct(int(math.Round(raw)))
}

type defectClass int

const (
	defectNone defectClass = iota
	defectMaintenance
	defectCritical
)

// classifyDefect buckets one reading by its kind-specific thresholds.
// Critical is checked first; a reading lands in at most one bucket.
func classifyDefect(r models.SensorReading) defectClass {
	switch r.Kind {
	case models.SensorTemperature:
		if r.Value > 250 {
			return defectCritical
		}
		if r.Value > 200 {
			return defectMaintenance
		}
	case models.SensorPressure:
		if r.Value < 1000 {
			return defectCritical
		}
		if r.Value < 1500 {
			return defectMaintenance
		}
	case models.SensorVibration:
		if r.Value > 12 {
			return defectCritical
		}
		if r.Value > 8 {
			return defectMaintenance
		}
	case models.SensorThickness:
		if r.Value < 2 {
			return defectCritical
		}
		if r.Value < 2.5 {
			return defectMaintenance
		}
	case models.SensorCompaction:
		if r.Value < 90 {
			return defectMaintenance
		}
	}
	return defectNone
}

// DefectCounts tallies critical and maintenance-level defect readings.
func DefectCounts(readings []models.SensorReading) (critical, maintenance int) {
	for _, r := range readings {
		switch classifyDefect(r) {
		case defectCritical:
			critical++
		case defectMaintenance:
			maintenance++
		}
	}
	return critical, maintenance
}

// CostSavings estimates dollars saved by early defect detection plus
// efficiency above baseline. Never negative.
func (e *Engine) CostSavings(critical, maintenance int, fuel float64, opEff int) decimal.Decimal {
	savings := decimal.NewFromInt(int64(critical)).Mul(decimal.NewFromFloat(e.cfg.CriticalDefectCost))
	savings = savings.Add(decimal.NewFromInt(int64(maintenance)).Mul(decimal.NewFromFloat(e.cfg.MaintenanceDefectCost)))
	savings = savings.Add(decimal.NewFromFloat(fuel - e.cfg.FuelSavingsBaseline).Mul(decimal.NewFromFloat(e.cfg.FuelSavingsPerPoint)))
	savings = savings.Add(decimal.NewFromInt(int64(opEff)).Sub(decimal.NewFromFloat(e.cfg.OpSavingsBaseline)).Mul(decimal.NewFromFloat(e.cfg.OpSavingsPerPoint)))

	if savings.IsNegative() {
		return decimal.Zero
	}
	return savings.Round(2)
}

// BuildLiveMetrics assembles the immediately-displayable counters.
func BuildLiveMetrics(fleet models.FleetSnapshot, readings []models.SensorReading, weather models.WeatherConditions, alertCount int) models.LiveMetrics {
	var activeDevices int
	var totalSpeed float64
	for _, d := range fleet {
		if d.Status == models.DeviceStatusActive {
			activeDevices++
		}
		totalSpeed += d.Position.Speed
	}

	var activeSensors int
	for _, r := range readings {
		if r.Quality == models.QualityGood {
			activeSensors++
		}
	}

	var avgSpeed int
	if len(fleet) > 0 {
		avgSpeed = int(math.Round(totalSpeed / float64(len(fleet))))
	}

	return models.LiveMetrics{
		ActiveDevices:     activeDevices,
		ActiveSensors:     activeSensors,
		WeatherConditions: weather.Label,
		AlertCount:        alertCount,
		AvgSpeed:          avgSpeed,
		FuelEstimate:      int(math.Round(totalSpeed * 0.01)),
	}
}

func clampPct(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
