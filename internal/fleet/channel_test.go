package fleet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pavemetrics/overwatch/pkg/models"
)

// pushServer is a websocket test endpoint that hands each accepted
// connection to the test over a channel.
type pushServer struct {
	server *httptest.Server
	conns  chan *websocket.Conn
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}

	ps.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.conns <- conn
	}))
	t.Cleanup(ps.server.Close)
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.server.URL, "http")
}

func (ps *pushServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ps.conns:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func deviceFrame(t *testing.T, ids ...string) []byte {
	t.Helper()
	devices := make([]models.TelemetrySnapshot, 0, len(ids))
	for _, id := range ids {
		devices = append(devices, models.TelemetrySnapshot{
			DeviceID:  id,
			Timestamp: time.Now().UTC(),
			Position:  models.Position{Speed: 28},
			Status:    models.DeviceStatusActive,
			IsMoving:  true,
		})
	}
	data, err := json.Marshal(devices)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return data
}

func waitSnapshot(t *testing.T, ch chan models.FleetSnapshot) models.FleetSnapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestChannel_FanOut(t *testing.T) {
	ps := newPushServer(t)
	ch := NewChannel(Config{
		PushURL:       ps.wsURL(),
		ReconnectBase: 10 * time.Millisecond,
		ReconnectMax:  50 * time.Millisecond,
	})

	received := make(chan models.FleetSnapshot, 8)
	sub := ch.Subscribe(func(snap models.FleetSnapshot) { received <- snap })
	defer sub.Cancel()

	conn := ps.accept(t)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, deviceFrame(t, "veh-1", "veh-2")); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	snap := waitSnapshot(t, received)
	if len(snap) != 2 {
		t.Errorf("expected 2 devices, got %d", len(snap))
	}
	if _, ok := snap["veh-1"]; !ok {
		t.Error("expected veh-1 in snapshot")
	}
}

func TestChannel_ReconnectResumesFanOut(t *testing.T) {
	ps := newPushServer(t)
	ch := NewChannel(Config{
		PushURL:       ps.wsURL(),
		ReconnectBase: 10 * time.Millisecond,
		ReconnectMax:  50 * time.Millisecond,
	})

	received := make(chan models.FleetSnapshot, 8)
	sub := ch.Subscribe(func(snap models.FleetSnapshot) { received <- snap })
	defer sub.Cancel()

	conn1 := ps.accept(t)
	conn1.WriteMessage(websocket.TextMessage, deviceFrame(t, "veh-1"))
	waitSnapshot(t, received)

	// Simulated transport drop.
	conn1.Close()

	// The channel must reconnect on its own; the subscriber keeps
	// receiving without re-subscribing.
	conn2 := ps.accept(t)
	defer conn2.Close()
	conn2.WriteMessage(websocket.TextMessage, deviceFrame(t, "veh-2"))

	snap := waitSnapshot(t, received)
	if _, ok := snap["veh-2"]; !ok {
		t.Error("expected veh-2 after reconnect")
	}
}

func TestChannel_MalformedFrameSkipped(t *testing.T) {
	ps := newPushServer(t)
	ch := NewChannel(Config{
		PushURL:       ps.wsURL(),
		ReconnectBase: 10 * time.Millisecond,
	})

	received := make(chan models.FleetSnapshot, 8)
	sub := ch.Subscribe(func(snap models.FleetSnapshot) { received <- snap })
	defer sub.Cancel()

	conn := ps.accept(t)
	defer conn.Close()

	// A malformed frame is dropped without tearing the connection down.
	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	conn.WriteMessage(websocket.TextMessage, deviceFrame(t, "veh-3"))

	snap := waitSnapshot(t, received)
	if _, ok := snap["veh-3"]; !ok {
		t.Error("expected valid frame after malformed one")
	}

	select {
	case conn := <-ps.conns:
		conn.Close()
		t.Error("channel should not have reconnected after a decode failure")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannel_SubscriberOrder(t *testing.T) {
	ps := newPushServer(t)
	ch := NewChannel(Config{
		PushURL:       ps.wsURL(),
		ReconnectBase: 10 * time.Millisecond,
	})

	var order []int
	done := make(chan struct{}, 4)
	sub1 := ch.Subscribe(func(models.FleetSnapshot) {
		order = append(order, 1)
		done <- struct{}{}
	})
	defer sub1.Cancel()
	sub2 := ch.Subscribe(func(models.FleetSnapshot) {
		order = append(order, 2)
		done <- struct{}{}
	})
	defer sub2.Cancel()

	conn := ps.accept(t)
	defer conn.Close()
	conn.WriteMessage(websocket.TextMessage, deviceFrame(t, "veh-1"))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for fan-out")
		}
	}

	// Fan-out is synchronous and in registration order, so no further
	// synchronization is needed to inspect the slice.
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected registration-order fan-out, got %v", order)
	}
}

func TestChannel_TeardownOnLastUnsubscribe(t *testing.T) {
	ps := newPushServer(t)
	ch := NewChannel(Config{
		PushURL:       ps.wsURL(),
		ReconnectBase: 10 * time.Millisecond,
	})

	sub := ch.Subscribe(func(models.FleetSnapshot) {})
	conn := ps.accept(t)
	defer conn.Close()

	sub.Cancel()

	if state := ch.State(); state != StateDisconnected {
		t.Errorf("expected disconnected after last unsubscribe, got %s", state)
	}
}

func TestChannel_FetchSnapshotPull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(deviceFrame(t, "veh-9"))
	}))
	defer server.Close()

	ch := NewChannel(Config{PullURL: server.URL})
	snap := ch.FetchSnapshot(context.Background())

	if _, ok := snap["veh-9"]; !ok {
		t.Errorf("expected pulled device, got %v", snap)
	}
}

func TestChannel_FetchSnapshotFallsBackToLastKnown(t *testing.T) {
	var fail bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(deviceFrame(t, "veh-4"))
	}))
	defer server.Close()

	ch := NewChannel(Config{PullURL: server.URL})

	first := ch.FetchSnapshot(context.Background())
	if _, ok := first["veh-4"]; !ok {
		t.Fatal("expected successful first pull")
	}

	fail = true
	second := ch.FetchSnapshot(context.Background())
	if _, ok := second["veh-4"]; !ok {
		t.Error("expected last-known snapshot when pull fails")
	}
}

func TestChannel_FetchSnapshotSyntheticFallback(t *testing.T) {
	// Nothing reachable and nothing last-known: callers still get a
	// usable fleet.
	ch := NewChannel(Config{PullURL: "http://127.0.0.1:1/fleet", PullTimeout: time.Second})

	snap := ch.FetchSnapshot(context.Background())
	if len(snap) == 0 {
		t.Fatal("expected synthetic fallback fleet")
	}
	if _, ok := snap["veh-1"]; !ok {
		t.Error("expected synthetic vehicle in fallback")
	}
}

func TestSyntheticFleet(t *testing.T) {
	site := models.GeoPoint{Latitude: 40.7128, Longitude: -74.0060}
	snap := SyntheticFleet(time.Now().UTC(), site)

	if len(snap) != 7 {
		t.Errorf("expected 7 synthetic devices, got %d", len(snap))
	}

	var moving int
	for _, d := range snap {
		if d.IsMoving {
			moving++
		}
		if d.Position.Latitude < site.Latitude-0.1 || d.Position.Latitude > site.Latitude+0.1 {
			t.Errorf("device %s: position not anchored to site, lat %v", d.DeviceID, d.Position.Latitude)
		}
	}
	if moving == 0 {
		t.Error("expected some synthetic devices to be moving")
	}
}

func TestDecodeFleet_Errors(t *testing.T) {
	if _, err := decodeFleet([]byte("{broken")); err == nil {
		t.Error("expected error for malformed payload")
	}
	snap, err := decodeFleet([]byte("[]"))
	if err != nil {
		t.Errorf("empty array should decode: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %d", len(snap))
	}
}
