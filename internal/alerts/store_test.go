package alerts

import (
	"errors"
	"testing"
	"time"

	"github.com/pavemetrics/overwatch/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func alert(id string, severity models.AlertSeverity, at time.Time) models.Alert {
	return models.Alert{
		ID:        id,
		Category:  models.AlertMaintenance,
		Severity:  severity,
		Message:   "test alert " + id,
		Timestamp: at,
	}
}

func TestStore_RecordAndActive(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	err := store.Record([]models.Alert{
		alert("devices-offline", models.SeverityMedium, now),
		alert("critical-defects", models.SeverityCritical, now.Add(-time.Minute)),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	active, err := store.Active()
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active alerts, got %d", len(active))
	}
	if active[0].ID != "critical-defects" {
		t.Errorf("expected highest severity first, got %s", active[0].ID)
	}
}

func TestStore_ActiveOrderWithinSeverity(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	err := store.Record([]models.Alert{
		alert("sensor-quality", models.SeverityMedium, now.Add(-2*time.Minute)),
		alert("devices-offline", models.SeverityMedium, now),
		alert("critical-defects", models.SeverityCritical, now.Add(-time.Hour)),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	active, err := store.Active()
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active alerts, got %d", len(active))
	}

	// Critical first, then newest-first within the same severity.
	want := []string{"critical-defects", "devices-offline", "sensor-quality"}
	for i, id := range want {
		if active[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, active[i].ID)
		}
	}
}

func TestStore_RecordIgnoresExistingID(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	if err := store.Record([]models.Alert{alert("sensor-quality", models.SeverityMedium, now)}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Acknowledge("sensor-quality"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	// Re-recording the same rule must not resurrect the alert.
	if err := store.Record([]models.Alert{alert("sensor-quality", models.SeverityMedium, now.Add(time.Hour))}); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	active, err := store.Active()
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected acknowledged alert to stay acknowledged, got %v", active)
	}
}

func TestStore_AcknowledgeOneWay(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	if err := store.Record([]models.Alert{alert("heavy-precipitation", models.SeverityHigh, now)}); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := store.Acknowledge("heavy-precipitation"); err != nil {
		t.Fatalf("first acknowledge: %v", err)
	}
	// Second acknowledge is a no-op, not an error.
	if err := store.Acknowledge("heavy-precipitation"); err != nil {
		t.Fatalf("second acknowledge: %v", err)
	}

	all, err := store.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 || !all[0].Acknowledged {
		t.Errorf("expected one acknowledged alert in history, got %v", all)
	}
}

func TestStore_AcknowledgeUnknownID(t *testing.T) {
	store := openTestStore(t)

	err := store.Acknowledge("no-such-alert")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_DurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	if err := store.Record([]models.Alert{alert("critical-defects", models.SeverityCritical, now)}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Acknowledge("critical-defects"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	store.Close()

	reopened, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer reopened.Close()

	all, err := reopened.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 || !all[0].Acknowledged {
		t.Errorf("expected acknowledged alert to survive reopen, got %v", all)
	}
}
