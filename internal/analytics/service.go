package analytics

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pavemetrics/overwatch/internal/config"
	"github.com/pavemetrics/overwatch/pkg/models"
)

// FleetSource provides the current fleet snapshot.
type FleetSource interface {
	FetchSnapshot(ctx context.Context) models.FleetSnapshot
}

// SensorSource provides the current sensor reading set.
type SensorSource interface {
	Current(ctx context.Context) []models.SensorReading
}

// WeatherSource provides current conditions at a coordinate.
type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) models.WeatherConditions
}

// AlertRecorder persists newly generated alerts.
type AlertRecorder interface {
	Record(alerts []models.Alert) error
}

// Service builds the aggregated dashboard snapshot. Results are cached
// for a short TTL and concurrent rebuilds are coalesced into one.
type Service struct {
	engine  *Engine
	ttl     time.Duration
	site    models.GeoPoint
	fleet   FleetSource
	sensors SensorSource
	weather WeatherSource
	alerts  AlertRecorder

	group singleflight.Group

	mu       sync.Mutex
	cached   models.AnalyticsSnapshot
	cachedAt time.Time
}

// NewService wires the aggregation service. alerts may be nil when no
// alert store is attached.
func NewService(cfg config.AnalyticsConfig, site models.GeoPoint, fleet FleetSource, sensors SensorSource, weather WeatherSource, alerts AlertRecorder) *Service {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 2 * time.Minute
	}
	return &Service{
		engine:  NewEngine(cfg),
		ttl:     ttl,
		site:    site,
		fleet:   fleet,
		sensors: sensors,
		weather: weather,
		alerts:  alerts,
	}
}

// Snapshot returns the aggregated dashboard view. Within the cache
// window no upstream calls are made; concurrent cache misses share a
// single rebuild.
func (s *Service) Snapshot(ctx context.Context) models.AnalyticsSnapshot {
	s.mu.Lock()
	if !s.cachedAt.IsZero() && time.Since(s.cachedAt) < s.ttl {
		snap := s.cached
		s.mu.Unlock()
		return snap
	}
	s.mu.Unlock()

	v, _, _ := s.group.Do("snapshot", func() (interface{}, error) {
		snap := s.build(ctx)
		s.mu.Lock()
		s.cached = snap
		s.cachedAt = time.Now()
		s.mu.Unlock()
		return snap, nil
	})
	return v.(models.AnalyticsSnapshot)
}

// Invalidate drops the cached snapshot so the next Snapshot rebuilds.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cachedAt = time.Time{}
	s.mu.Unlock()
}

// build fetches all three upstreams concurrently and derives the
// snapshot. Each source degrades internally, so build always succeeds.
func (s *Service) build(ctx context.Context) models.AnalyticsSnapshot {
	var (
		fleet    models.FleetSnapshot
		readings []models.SensorReading
		weather  models.WeatherConditions
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		fleet = s.fleet.FetchSnapshot(ctx)
	}()
	go func() {
		defer wg.Done()
		readings = s.sensors.Current(ctx)
	}()
	go func() {
		defer wg.Done()
		weather = s.weather.Current(ctx, s.site.Latitude, s.site.Longitude)
	}()
	wg.Wait()

	now := time.Now().UTC()

	fuel := s.engine.FuelEfficiency(fleet)
	weatherFactor := s.engine.WeatherImpactFactor(weather)
	reliability := SensorReliability(readings)
	activeFrac := ActiveFraction(fleet)
	critical, maintenance := DefectCounts(readings)
	opEff := s.engine.OperationalEfficiency(fuel, reliability, weatherFactor)
	sysHealth := s.engine.SystemHealth(reliability, activeFrac)

	var offline, poor int
	for _, d := range fleet {
		if d.Status == models.DeviceStatusOffline {
			offline++
		}
	}
	for _, r := range readings {
		if r.Quality == models.QualityPoor {
			poor++
		}
	}

	alerts := BuildAlerts(AlertInputs{
		CriticalDefects:    critical,
		MaintenanceDefects: maintenance,
		OfflineDevices:     offline,
		PoorReadings:       poor,
		Weather:            weather,
	}, now)

	if s.alerts != nil {
		if err := s.alerts.Record(alerts); err != nil {
			log.Printf("analytics: recording alerts: %v", err)
		}
	}

	live := BuildLiveMetrics(fleet, readings, weather, len(alerts))

	return models.AnalyticsSnapshot{
		OperationalEfficiency: opEff,
		SystemHealth:          sysHealth,
		WeatherImpact:         int(math.Round(weatherFactor * 100)),
		FleetUtilization:      int(math.Round(activeFrac * 100)),
		DefectDetectionRate:   int(math.Round(DetectionAccuracy(readings) * 100)),
		CostSavingsEstimate:   s.engine.CostSavings(critical, maintenance, fuel, opEff),
		LiveMetrics:           live,
		Trends:                BuildTrends(opEff, critical, maintenance, live.ActiveDevices),
		Alerts:                alerts,
		Recommendations:       BuildRecommendations(opEff, sysHealth, weatherFactor, critical, maintenance),
		GeneratedAt:           now,
	}
}
