// Package weather pulls current conditions from the weather feed, with a
// short per-coordinate cache and a moderate synthetic baseline when the
// feed is unreachable.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/pavemetrics/overwatch/pkg/models"
)

// CacheTTL bounds how long a fetched observation is reused.
const CacheTTL = 5 * time.Minute

// Client pulls weather conditions over HTTP.
type Client struct {
	url    string
	client *http.Client

	mu    sync.Mutex
	cache map[string]cachedConditions
}

type cachedConditions struct {
	conditions models.WeatherConditions
	fetchedAt  time.Time
}

// NewClient creates a weather client with a bounded per-call timeout.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
		cache:  make(map[string]cachedConditions),
	}
}

// Current returns conditions at the given coordinates. Within the cache
// window the cached observation is reused without an upstream call. On
// failure the moderate baseline is returned; it never errors.
func (c *Client) Current(ctx context.Context, lat, lon float64) models.WeatherConditions {
	key := cacheKey(lat, lon)

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && time.Since(entry.fetchedAt) < CacheTTL {
		c.mu.Unlock()
		return entry.conditions
	}
	c.mu.Unlock()

	conditions, err := c.pull(ctx, lat, lon)
	if err != nil {
		log.Printf("weather: pull failed, using baseline: %v", err)
		return Baseline(time.Now().UTC())
	}

	c.mu.Lock()
	c.cache[key] = cachedConditions{conditions: conditions, fetchedAt: time.Now()}
	c.mu.Unlock()

	return conditions
}

func (c *Client) pull(ctx context.Context, lat, lon float64) (models.WeatherConditions, error) {
	url := fmt.Sprintf("%s?lat=%.3f&lon=%.3f", c.url, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.WeatherConditions{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return models.WeatherConditions{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.WeatherConditions{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var conditions models.WeatherConditions
	if err := json.NewDecoder(resp.Body).Decode(&conditions); err != nil {
		return models.WeatherConditions{}, err
	}
	return conditions, nil
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.3f,%.3f", lat, lon)
}

// Baseline is the synthetic moderate default: mild, dry, and clear, so
// every weather-impact penalty term evaluates to zero.
func Baseline(now time.Time) models.WeatherConditions {
	return models.WeatherConditions{
		Label:      "Partly Cloudy",
		TempF:      68,
		Humidity:   55,
		WindSpeed:  8,
		Visibility: 10000,
		ObservedAt: now,
	}
}
