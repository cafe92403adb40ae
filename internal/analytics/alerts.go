package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/pavemetrics/overwatch/pkg/models"
)

// Rule identifiers double as alert IDs so repeated evaluations of the
// same condition converge on one stored alert.
const (
	alertCriticalDefects = "critical-defects"
	alertHeavyRain       = "heavy-precipitation"
	alertDevicesOffline  = "devices-offline"
	alertSensorQuality   = "sensor-quality"
)

// AlertInputs are the tallies the alert rules evaluate.
type AlertInputs struct {
	CriticalDefects    int
	MaintenanceDefects int
	OfflineDevices     int
	PoorReadings       int
	Weather            models.WeatherConditions
}

// BuildAlerts applies the fixed rule set and returns alerts sorted by
// severity, highest first. Same inputs, same alerts.
func BuildAlerts(in AlertInputs, now time.Time) []models.Alert {
	var alerts []models.Alert

	if in.CriticalDefects > 0 {
		alerts = append(alerts, models.Alert{
			ID:             alertCriticalDefects,
			Category:       models.AlertMaintenance,
			Severity:       models.SeverityCritical,
			Message:        fmt.Sprintf("%d sensor(s) reporting critical defect readings", in.CriticalDefects),
			Timestamp:      now,
			Recommendation: "Dispatch maintenance crew to affected sections immediately",
		})
	}

	if in.Weather.Precipitation > 2 {
		alerts = append(alerts, models.Alert{
			ID:             alertHeavyRain,
			Category:       models.AlertWeather,
			Severity:       models.SeverityHigh,
			Message:        "Heavy precipitation may affect paving operations",
			Timestamp:      now,
			Recommendation: "Consider pausing surface work until conditions improve",
		})
	}

	if in.OfflineDevices > 2 {
		alerts = append(alerts, models.Alert{
			ID:             alertDevicesOffline,
			Category:       models.AlertPerformance,
			Severity:       models.SeverityMedium,
			Message:        fmt.Sprintf("%d fleet devices are offline", in.OfflineDevices),
			Timestamp:      now,
			Recommendation: "Check device connectivity and power",
		})
	}

	if in.PoorReadings > 3 {
		alerts = append(alerts, models.Alert{
			ID:             alertSensorQuality,
			Category:       models.AlertMaintenance,
			Severity:       models.SeverityMedium,
			Message:        fmt.Sprintf("%d sensors reporting poor signal quality", in.PoorReadings),
			Timestamp:      now,
			Recommendation: "Schedule sensor calibration",
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity.Rank() > alerts[j].Severity.Rank()
	})
	return alerts
}

// BuildRecommendations produces plain-text operator guidance. When
// nothing needs attention a single all-nominal line is returned.
func BuildRecommendations(opEff, sysHealth int, weatherFactor float64, critical, maintenance int) []string {
	var recs []string

	if opEff < 80 {
		recs = append(recs, "Review fleet routing and idle time to lift operational efficiency")
	}
	if sysHealth < 85 {
		recs = append(recs, "Inspect sensor network; system health is below target")
	}
	if weatherFactor > 0.3 {
		recs = append(recs, "Adjust paving schedule around adverse weather")
	}
	if critical > 0 {
		recs = append(recs, "Prioritize repair of sections with critical defect readings")
	}
	if maintenance > 5 {
		recs = append(recs, "Plan a maintenance sweep; defect backlog is growing")
	}

	if len(recs) == 0 {
		recs = append(recs, "All systems operating within normal parameters")
	}
	return recs
}

// Fixed per-slot offsets keep the illustrative series deterministic for
// a given set of inputs.
var (
	dailyOffsets   = [7]int{-2, 1, 3, 0, 4, 2, 5}
	defectOffsets  = [7]int{2, 1, 0, 1, 0, 0, 1}
	monthlyOffsets = [12]int{-4, -3, -3, -2, -1, -1, 0, 0, 1, 1, 2, 2}
)

// BuildTrends derives the dashboard trend series from current figures.
// The series are illustrative, not historical.
func BuildTrends(opEff, critical, maintenance, activeDevices int) models.TrendSeries {
	trends := models.TrendSeries{
		DailyOperations:   make([]int, 7),
		WeeklyDefects:     make([]int, 7),
		MonthlyEfficiency: make([]int, 12),
	}

	defects := critical + maintenance
	for i := 0; i < 7; i++ {
		trends.DailyOperations[i] = maxInt(0, activeDevices*8+dailyOffsets[i])
		trends.WeeklyDefects[i] = maxInt(0, defects+defectOffsets[i])
	}
	for i := 0; i < 12; i++ {
		trends.MonthlyEfficiency[i] = clampPct(opEff + monthlyOffsets[i])
	}
	return trends
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
