package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pavemetrics/overwatch/pkg/models"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Site      models.GeoPoint `yaml:"site"`
	Upstreams UpstreamsConfig `yaml:"upstreams"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Fleet     FleetConfig     `yaml:"fleet"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
	JWTSecret   string `yaml:"jwt_secret"`
}

type UpstreamsConfig struct {
	WriteBaseURL   string        `yaml:"write_base_url"`
	FleetURL       string        `yaml:"fleet_url"`
	FleetWSURL     string        `yaml:"fleet_ws_url"`
	SensorURL      string        `yaml:"sensor_url"`
	WeatherURL     string        `yaml:"weather_url"`
	FleetTimeout   time.Duration `yaml:"fleet_timeout"`
	SensorTimeout  time.Duration `yaml:"sensor_timeout"`
	WeatherTimeout time.Duration `yaml:"weather_timeout"`
}

type OutboxConfig struct {
	Path            string        `yaml:"path"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

type FleetConfig struct {
	ReconnectBase time.Duration `yaml:"reconnect_base"`
	ReconnectMax  time.Duration `yaml:"reconnect_max"`
}

// AnalyticsConfig carries the aggregation heuristics. The weights and unit
// costs are product heuristics with no documented derivation; they are kept
// configurable rather than hard-coded.
type AnalyticsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`

	FuelWeight    float64 `yaml:"fuel_weight"`
	SensorWeight  float64 `yaml:"sensor_weight"`
	WeatherWeight float64 `yaml:"weather_weight"`

	HealthSensorWeight float64 `yaml:"health_sensor_weight"`
	HealthFleetWeight  float64 `yaml:"health_fleet_weight"`

	CriticalDefectCost    float64 `yaml:"critical_defect_cost"`
	MaintenanceDefectCost float64 `yaml:"maintenance_defect_cost"`
	FuelSavingsBaseline   float64 `yaml:"fuel_savings_baseline"`
	FuelSavingsPerPoint   float64 `yaml:"fuel_savings_per_point"`
	OpSavingsBaseline     float64 `yaml:"op_savings_baseline"`
	OpSavingsPerPoint     float64 `yaml:"op_savings_per_point"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)
	return &cfg, nil
}

func LoadFromEnv() *Config {
	cfg := &Config{}
	setDefaults(cfg)

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Server.JWTSecret = secret
	}
	if url := os.Getenv("WRITE_BASE_URL"); url != "" {
		cfg.Upstreams.WriteBaseURL = url
	}
	if url := os.Getenv("FLEET_URL"); url != "" {
		cfg.Upstreams.FleetURL = url
	}
	if url := os.Getenv("FLEET_WS_URL"); url != "" {
		cfg.Upstreams.FleetWSURL = url
	}
	if url := os.Getenv("SENSOR_URL"); url != "" {
		cfg.Upstreams.SensorURL = url
	}
	if url := os.Getenv("WEATHER_URL"); url != "" {
		cfg.Upstreams.WeatherURL = url
	}
	if path := os.Getenv("OUTBOX_PATH"); path != "" {
		cfg.Outbox.Path = path
	}

	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}

	// Reference coordinates for weather lookups and synthetic fallbacks.
	if cfg.Site.Latitude == 0 && cfg.Site.Longitude == 0 {
		cfg.Site = models.GeoPoint{Latitude: 40.7128, Longitude: -74.0060}
	}

	if cfg.Upstreams.WriteBaseURL == "" {
		cfg.Upstreams.WriteBaseURL = "http://localhost:3001"
	}
	if cfg.Upstreams.FleetURL == "" {
		cfg.Upstreams.FleetURL = "http://localhost:8080/api/fleet/devices"
	}
	if cfg.Upstreams.FleetWSURL == "" {
		cfg.Upstreams.FleetWSURL = "ws://localhost:8080/ws/fleet"
	}
	if cfg.Upstreams.SensorURL == "" {
		cfg.Upstreams.SensorURL = "http://localhost:8080/api/sensors/current"
	}
	if cfg.Upstreams.WeatherURL == "" {
		cfg.Upstreams.WeatherURL = "http://localhost:8080/api/weather/current"
	}
	if cfg.Upstreams.FleetTimeout == 0 {
		cfg.Upstreams.FleetTimeout = 6 * time.Second
	}
	if cfg.Upstreams.SensorTimeout == 0 {
		cfg.Upstreams.SensorTimeout = 8 * time.Second
	}
	if cfg.Upstreams.WeatherTimeout == 0 {
		cfg.Upstreams.WeatherTimeout = 10 * time.Second
	}

	if cfg.Outbox.Path == "" {
		cfg.Outbox.Path = "./data"
	}
	if cfg.Outbox.DeliveryTimeout == 0 {
		cfg.Outbox.DeliveryTimeout = 15 * time.Second
	}

	if cfg.Fleet.ReconnectBase == 0 {
		cfg.Fleet.ReconnectBase = time.Second
	}
	if cfg.Fleet.ReconnectMax == 0 {
		cfg.Fleet.ReconnectMax = 30 * time.Second
	}

	if cfg.Analytics.CacheTTL == 0 {
		cfg.Analytics.CacheTTL = 2 * time.Minute
	}
	if cfg.Analytics.FuelWeight == 0 {
		cfg.Analytics.FuelWeight = 0.3
	}
	if cfg.Analytics.SensorWeight == 0 {
		cfg.Analytics.SensorWeight = 0.4
	}
	if cfg.Analytics.WeatherWeight == 0 {
		cfg.Analytics.WeatherWeight = 0.3
	}
	if cfg.Analytics.HealthSensorWeight == 0 {
		cfg.Analytics.HealthSensorWeight = 0.6
	}
	if cfg.Analytics.HealthFleetWeight == 0 {
		cfg.Analytics.HealthFleetWeight = 0.4
	}
	if cfg.Analytics.CriticalDefectCost == 0 {
		cfg.Analytics.CriticalDefectCost = 2000
	}
	if cfg.Analytics.MaintenanceDefectCost == 0 {
		cfg.Analytics.MaintenanceDefectCost = 500
	}
	if cfg.Analytics.FuelSavingsBaseline == 0 {
		cfg.Analytics.FuelSavingsBaseline = 80
	}
	if cfg.Analytics.FuelSavingsPerPoint == 0 {
		cfg.Analytics.FuelSavingsPerPoint = 50
	}
	if cfg.Analytics.OpSavingsBaseline == 0 {
		cfg.Analytics.OpSavingsBaseline = 85
	}
	if cfg.Analytics.OpSavingsPerPoint == 0 {
		cfg.Analytics.OpSavingsPerPoint = 100
	}
}
