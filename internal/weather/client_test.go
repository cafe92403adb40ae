package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pavemetrics/overwatch/pkg/models"
)

func TestClient_CurrentPullsConditions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.WeatherConditions{Label: "Rain", TempF: 54, Precipitation: 3.1})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	got := client.Current(context.Background(), 40.7, -74.0)

	if got.Label != "Rain" || got.Precipitation != 3.1 {
		t.Errorf("expected pulled conditions, got %+v", got)
	}
}

func TestClient_CacheSkipsUpstream(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		json.NewEncoder(w).Encode(models.WeatherConditions{Label: "Clear", TempF: 70})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	client.Current(context.Background(), 40.7, -74.0)
	client.Current(context.Background(), 40.7, -74.0)

	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Errorf("expected single upstream call within cache window, got %d", n)
	}

	// Different coordinates are cached independently.
	client.Current(context.Background(), 41.9, -87.6)
	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Errorf("expected second call for new coordinates, got %d", n)
	}
}

func TestClient_CurrentFallsBackToBaseline(t *testing.T) {
	client := NewClient("http://127.0.0.1:1/weather", time.Second)
	got := client.Current(context.Background(), 40.7, -74.0)

	if got.Label != "Partly Cloudy" {
		t.Errorf("expected baseline conditions, got %+v", got)
	}
	if got.Precipitation != 0 || got.Visibility != 10000 {
		t.Errorf("baseline must carry zero impact terms, got %+v", got)
	}
}
