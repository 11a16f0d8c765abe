// Package hub implements the telemetry relay between the rehab device and
// any number of dashboard connections. It owns the single latest device
// state and fans messages out without interpreting control semantics.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// State is the latest known device telemetry. It is replaced wholesale on
// every sensor frame, never merged field by field.
type State struct {
	Angle        float64 `json:"angle"`
	Rep          int     `json:"rep"`
	Running      bool    `json:"running"`
	DeviceStatus string  `json:"deviceStatus,omitempty"`
}

// sendQueueSize bounds each connection's outbound queue. A connection that
// cannot drain this many frames is torn down rather than slowing the others.
const sendQueueSize = 64

// Conn is one participant attached to the hub. Device and dashboard
// connections are not distinguished; either may send sensor or control
// frames.
type Conn struct {
	send chan []byte
}

// Send returns the channel of outbound frames for this connection. The
// channel is closed when the connection is removed from the hub.
func (c *Conn) Send() <-chan []byte {
	return c.send
}

type Hub struct {
	mu     sync.Mutex
	state  State
	conns  map[*Conn]struct{}
	logger *slog.Logger
}

func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[*Conn]struct{}),
		logger: logger,
	}
}

// State returns a copy of the latest device state.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Join registers a new connection and immediately queues the current device
// state so a late-joining dashboard converges without waiting for the next
// sensor frame.
func (h *Hub) Join() *Conn {
	c := &Conn{send: make(chan []byte, sendQueueSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
	if frame, err := sensorFrame(h.state); err == nil {
		h.enqueueLocked(c, frame)
	}
	return c
}

// Leave removes a connection and closes its send channel. Safe to call more
// than once.
func (h *Hub) Leave(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
}

func (h *Hub) leaveLocked(c *Conn) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	close(c.send)
}

// ConnCount reports the number of attached connections.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// sensorPayload uses pointer fields so a frame with missing required fields
// can be told apart from one carrying zero values.
type sensorPayload struct {
	Angle        *float64 `json:"angle"`
	Rep          *int     `json:"rep"`
	Running      *bool    `json:"running"`
	DeviceStatus string   `json:"deviceStatus"`
}

func sensorFrame(s State) ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Payload State  `json:"payload"`
	}{Type: "sensor", Payload: s})
}

// Route dispatches one inbound frame from sender.
//
// Sensor frames replace the shared state and are re-broadcast to every
// connection including the sender, so all dashboards converge on the same
// ground truth. Control frames are forwarded verbatim to everyone except the
// sender; their fields are opaque to the hub. Malformed frames are dropped
// with a log line and unknown types are ignored.
func (h *Hub) Route(sender *Conn, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.logger.Debug("hub: dropping malformed frame", "error", err)
		return
	}

	switch env.Type {
	case "sensor":
		var p sensorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Debug("hub: dropping malformed sensor payload", "error", err)
			return
		}
		if p.Angle == nil || p.Rep == nil || p.Running == nil {
			h.logger.Debug("hub: dropping sensor payload with missing fields")
			return
		}
		next := State{
			Angle:        *p.Angle,
			Rep:          *p.Rep,
			Running:      *p.Running,
			DeviceStatus: p.DeviceStatus,
		}
		frame, err := sensorFrame(next)
		if err != nil {
			return
		}

		// State replacement and broadcast enqueue are atomic with respect
		// to other senders, so every connection sees states in write order.
		h.mu.Lock()
		h.state = next
		h.broadcastLocked(frame, nil)
		h.mu.Unlock()

	case "control":
		h.mu.Lock()
		h.broadcastLocked(raw, sender)
		h.mu.Unlock()

	default:
		// Unknown frame types are ignored.
	}
}

// broadcastLocked queues frame for every connection except skip. Callers
// hold h.mu. Actual socket writes happen in per-connection pump goroutines,
// so no network I/O occurs under the lock.
func (h *Hub) broadcastLocked(frame []byte, skip *Conn) {
	var overflowed []*Conn
	for c := range h.conns {
		if c == skip {
			continue
		}
		if !h.enqueueLocked(c, frame) {
			overflowed = append(overflowed, c)
		}
	}
	for _, c := range overflowed {
		h.logger.Warn("hub: connection queue overflow, dropping connection")
		h.leaveLocked(c)
	}
}

func (h *Hub) enqueueLocked(c *Conn, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
