// Package fleet maintains a live subscription to the device-telemetry
// feed and fans updates out to subscribers. The connection survives
// transport failure via jittered exponential backoff; a pull endpoint
// serves as fallback when no live connection is available.
package fleet

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pavemetrics/overwatch/pkg/models"
)

// State is the connection state of the channel
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Config holds channel endpoints and reconnect tuning. Site anchors the
// synthetic fallback fleet.
type Config struct {
	PushURL       string
	PullURL       string
	PullTimeout   time.Duration
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	Site          models.GeoPoint
}

// Subscription is a registered fan-out target. Cancel deregisters it;
// the last cancellation tears the connection down.
type Subscription struct {
	ch *Channel
	fn func(models.FleetSnapshot)
}

// Cancel removes the subscription from the channel.
func (s *Subscription) Cancel() {
	s.ch.unsubscribe(s)
}

// Channel is the reconnecting telemetry channel. Zero subscribers means
// no connection; the first Subscribe dials, the last Cancel hangs up.
type Channel struct {
	cfg    Config
	dialer *websocket.Dialer
	client *http.Client

	mu        sync.Mutex
	subs      []*Subscription
	state     State
	lastKnown models.FleetSnapshot
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewChannel creates a channel for the given endpoints.
func NewChannel(cfg Config) *Channel {
	if cfg.PullTimeout == 0 {
		cfg.PullTimeout = 6 * time.Second
	}
	if cfg.ReconnectBase == 0 {
		cfg.ReconnectBase = time.Second
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 30 * time.Second
	}

	return &Channel{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		client: &http.Client{Timeout: cfg.PullTimeout},
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers a fan-out target for live push updates. The first
// subscription establishes the connection.
func (c *Channel) Subscribe(fn func(models.FleetSnapshot)) *Subscription {
	sub := &Subscription{ch: c, fn: fn}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.subs = append(c.subs, sub)
	if len(c.subs) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.done = make(chan struct{})
		go c.run(ctx, c.done)
	}
	return sub
}

func (c *Channel) unsubscribe(sub *Subscription) {
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	teardown := len(c.subs) == 0 && c.cancel != nil
	var cancel context.CancelFunc
	var done chan struct{}
	if teardown {
		cancel = c.cancel
		done = c.done
		c.cancel = nil
		c.done = nil
	}
	c.mu.Unlock()

	if teardown {
		cancel()
		<-done
		c.setState(StateDisconnected)
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// run is the connection-management loop: dial, pump messages, and on any
// error schedule a reconnect with jittered exponential backoff.
func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	backoff := c.cfg.ReconnectBase
	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)
		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.PushURL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			c.setState(StateReconnecting)
			if !sleepWithJitter(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.cfg.ReconnectMax)
			continue
		}

		c.setState(StateConnected)
		backoff = c.cfg.ReconnectBase

		c.pump(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Printf("fleet: connection lost, reconnecting in ~%s", backoff)
		c.setState(StateReconnecting)
		if !sleepWithJitter(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, c.cfg.ReconnectMax)
	}
}

// pump reads push frames until the connection errors or the context ends.
// A malformed frame is logged and skipped; it never tears the connection.
func (c *Channel) pump(ctx context.Context, conn *websocket.Conn) {
	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		snap, err := decodeFleet(data)
		if err != nil {
			log.Printf("fleet: dropping malformed push frame: %v", err)
			continue
		}

		c.deliver(snap)
	}
}

// deliver updates the last-known snapshot and fans the update out to
// subscribers synchronously, in registration order.
func (c *Channel) deliver(snap models.FleetSnapshot) {
	c.mu.Lock()
	c.lastKnown = snap
	subs := make([]*Subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap.Clone())
	}
}

// LastKnown returns the most recent push snapshot, or nil if none arrived.
func (c *Channel) LastKnown() models.FleetSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastKnown == nil {
		return nil
	}
	return c.lastKnown.Clone()
}

// FetchSnapshot pulls the current fleet state from the remote source.
// On failure it degrades: last-known push snapshot first, then a
// synthetic fallback fleet. It never returns an error; visible
// dashboards should not show a hard failure for a transient blip.
func (c *Channel) FetchSnapshot(ctx context.Context) models.FleetSnapshot {
	snap, err := c.pull(ctx)
	if err != nil {
		log.Printf("fleet: pull failed, degrading: %v", err)
		if last := c.LastKnown(); last != nil {
			return last
		}
		return SyntheticFleet(time.Now().UTC(), c.cfg.Site)
	}

	c.mu.Lock()
	c.lastKnown = snap
	c.mu.Unlock()
	return snap.Clone()
}

func (c *Channel) pull(ctx context.Context) (models.FleetSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.PullURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodeFleet(data)
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.status)
}

// decodeFleet parses a push frame or pull body: a JSON array of device
// snapshots, keyed into a FleetSnapshot by device id.
func decodeFleet(data []byte) (models.FleetSnapshot, error) {
	var devices []models.TelemetrySnapshot
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, err
	}

	snap := make(models.FleetSnapshot, len(devices))
	for _, d := range devices {
		snap[d.DeviceID] = d
	}
	return snap, nil
}

// sleepWithJitter waits between delay/2 and delay, or returns false if
// the context ends first.
func sleepWithJitter(ctx context.Context, delay time.Duration) bool {
	half := delay / 2
	wait := half + time.Duration(rand.Int63n(int64(half)+1))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
