package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DeviceStatus represents the reported status of a tracked device
type DeviceStatus string

const (
	DeviceStatusActive  DeviceStatus = "active"
	DeviceStatusIdle    DeviceStatus = "idle"
	DeviceStatusOffline DeviceStatus = "offline"
)

// Position is a GPS fix for a device
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Heading   float64 `json:"heading"`
	Speed     float64 `json:"speed"`
	Accuracy  float64 `json:"accuracy"`
}

// TelemetrySnapshot is one device's last-known state
type TelemetrySnapshot struct {
	DeviceID  string       `json:"device_id"`
	Timestamp time.Time    `json:"timestamp"`
	Position  Position     `json:"position"`
	Status    DeviceStatus `json:"status"`
	IsMoving  bool         `json:"is_moving"`
}

// FleetSnapshot maps device IDs to their last-known telemetry
type FleetSnapshot map[string]TelemetrySnapshot

// Clone returns an independent copy so subscribers can't mutate shared state
func (f FleetSnapshot) Clone() FleetSnapshot {
	out := make(FleetSnapshot, len(f))
	for id, snap := range f {
		out[id] = snap
	}
	return out
}

// SensorKind identifies the instrument type of a reading
type SensorKind string

const (
	SensorTemperature SensorKind = "temperature"
	SensorPressure    SensorKind = "pressure"
	SensorVibration   SensorKind = "vibration"
	SensorThickness   SensorKind = "thickness"
	SensorCompaction  SensorKind = "compaction"
)

// ReadingQuality grades a sensor sample
type ReadingQuality string

const (
	QualityGood ReadingQuality = "good"
	QualityFair ReadingQuality = "fair"
	QualityPoor ReadingQuality = "poor"
)

// GeoPoint is a bare coordinate pair
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SensorReading is one instrument sample. Readings are ephemeral; each
// poll produces a fresh full set.
type SensorReading struct {
	SensorID  string         `json:"sensor_id"`
	Kind      SensorKind     `json:"kind"`
	Value     float64        `json:"value"`
	Unit      string         `json:"unit"`
	Timestamp time.Time      `json:"timestamp"`
	Location  GeoPoint       `json:"location"`
	Quality   ReadingQuality `json:"quality"`
	Alerts    []string       `json:"alerts,omitempty"`
}

// WeatherConditions is the current weather as reported by the upstream feed
type WeatherConditions struct {
	Label         string    `json:"label"`
	TempF         float64   `json:"temp_f"`
	Humidity      float64   `json:"humidity"`
	WindSpeed     float64   `json:"wind_speed"`
	Visibility    float64   `json:"visibility"`
	Precipitation float64   `json:"precipitation"` // mm over the last hour
	ObservedAt    time.Time `json:"observed_at"`
}

// AlertCategory classifies an operational alert
type AlertCategory string

const (
	AlertPerformance AlertCategory = "performance"
	AlertWeather     AlertCategory = "weather"
	AlertMaintenance AlertCategory = "maintenance"
	AlertSafety      AlertCategory = "safety"
	AlertCost        AlertCategory = "cost"
)

// AlertSeverity orders alerts from low to critical
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// severityRank maps severities to a comparable order, critical highest
var severityRank = map[AlertSeverity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the comparable order of a severity, critical highest
func (s AlertSeverity) Rank() int {
	return severityRank[s]
}

// Alert is an operational alert produced by the analytics service.
// Acknowledgement is a one-way transition owned by the alert store.
type Alert struct {
	ID             string        `json:"id"`
	Category       AlertCategory `json:"category"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
	Timestamp      time.Time     `json:"timestamp"`
	Acknowledged   bool          `json:"acknowledged"`
	Recommendation string        `json:"recommendation,omitempty"`
}

// LiveMetrics holds the immediately-displayable dashboard counters
type LiveMetrics struct {
	ActiveDevices     int    `json:"active_devices"`
	ActiveSensors     int    `json:"active_sensors"`
	WeatherConditions string `json:"weather_conditions"`
	AlertCount        int    `json:"alert_count"`
	AvgSpeed          int    `json:"avg_speed"`
	FuelEstimate      int    `json:"fuel_estimate"`
}

// TrendSeries carries illustrative series derived from current inputs,
// not authoritative history.
type TrendSeries struct {
	DailyOperations   []int `json:"daily_operations"`   // 7 entries
	WeeklyDefects     []int `json:"weekly_defects"`     // 7 entries
	MonthlyEfficiency []int `json:"monthly_efficiency"` // 12 entries
}

// AnalyticsSnapshot is the aggregated dashboard view. All percentage
// fields are clamped to [0,100]; CostSavingsEstimate is never negative.
type AnalyticsSnapshot struct {
	OperationalEfficiency int             `json:"operational_efficiency"`
	SystemHealth          int             `json:"system_health"`
	WeatherImpact         int             `json:"weather_impact"`
	FleetUtilization      int             `json:"fleet_utilization"`
	DefectDetectionRate   int             `json:"defect_detection_rate"`
	CostSavingsEstimate   decimal.Decimal `json:"cost_savings_estimate"`
	LiveMetrics           LiveMetrics     `json:"live_metrics"`
	Trends                TrendSeries     `json:"trends"`
	Alerts                []Alert         `json:"alerts"`
	Recommendations       []string        `json:"recommendations"`
	GeneratedAt           time.Time       `json:"generated_at"`
}

// OperationMethod is the HTTP verb of a queued write
type OperationMethod string

const (
	MethodPost   OperationMethod = "POST"
	MethodPut    OperationMethod = "PUT"
	MethodDelete OperationMethod = "DELETE"
)

// PendingOperation describes a write a caller wants delivered later.
// Body is opaque at this layer; callers use typed request builders above it.
type PendingOperation struct {
	Method OperationMethod `json:"method"`
	Target string          `json:"target"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// QueuedOperation is a pending write persisted by the outbox. All fields
// are immutable once created; only queue membership changes.
type QueuedOperation struct {
	ID        string          `json:"id"`
	Method    OperationMethod `json:"method"`
	Target    string          `json:"target"`
	Body      json.RawMessage `json:"body,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
