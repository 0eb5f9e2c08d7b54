package traffic

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Level string

const (
	LevelNormal   Level = "normal"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Status is the admission-control signal pushed to clients and attached to
// rejected create_room responses.
type Status struct {
	Level               Level  `json:"level"`
	RoomCreationEnabled bool   `json:"roomCreationEnabled"`
	Message             string `json:"message,omitempty"`
	RetryAfter          int    `json:"retryAfter,omitempty"`
}

type Thresholds struct {
	HighRooms       int
	CriticalRooms   int
	HighClients     int
	CriticalClients int
	RetryAfterSecs  int
}

// Controller tracks server load and derives the traffic level from live
// room and connection counts. The same counts back the exported gauges, so
// dashboards and admission control can never disagree.
type Controller struct {
	mu         sync.Mutex
	thresholds Thresholds
	rooms      int
	clients    int
	level      Level

	onChange func(Status)

	roomsActive      prometheus.Gauge
	clientsConnected prometheus.Gauge
	roomsCreated     prometheus.Counter
	clientsTotal     prometheus.Counter
}

func NewController(th Thresholds, reg prometheus.Registerer) *Controller {
	factory := promauto.With(reg)
	return &Controller{
		thresholds: th,
		level:      LevelNormal,
		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cardparty_rooms_active",
			Help: "Number of live rooms.",
		}),
		clientsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cardparty_clients_connected",
			Help: "Number of open websocket connections.",
		}),
		roomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardparty_rooms_created_total",
			Help: "Total rooms created.",
		}),
		clientsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardparty_connections_total",
			Help: "Total websocket connections accepted.",
		}),
	}
}

// OnChange registers a callback fired whenever the traffic level changes.
// The server broadcasts the new status to every connected client.
func (c *Controller) OnChange(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *Controller) RoomOpened() {
	c.mu.Lock()
	c.rooms++
	c.roomsActive.Inc()
	c.roomsCreated.Inc()
	c.recalcLocked()
	c.mu.Unlock()
}

func (c *Controller) RoomClosed() {
	c.mu.Lock()
	if c.rooms > 0 {
		c.rooms--
		c.roomsActive.Dec()
	}
	c.recalcLocked()
	c.mu.Unlock()
}

func (c *Controller) ClientConnected() {
	c.mu.Lock()
	c.clients++
	c.clientsConnected.Inc()
	c.clientsTotal.Inc()
	c.recalcLocked()
	c.mu.Unlock()
}

func (c *Controller) ClientDisconnected() {
	c.mu.Lock()
	if c.clients > 0 {
		c.clients--
		c.clientsConnected.Dec()
	}
	c.recalcLocked()
	c.mu.Unlock()
}

// Status returns the current admission signal.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// RoomCreationAllowed implements the registry's Admission check.
func (c *Controller) RoomCreationAllowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level != LevelCritical
}

func (c *Controller) statusLocked() Status {
	s := Status{Level: c.level, RoomCreationEnabled: c.level != LevelCritical}
	switch c.level {
	case LevelHigh:
		s.Message = "High traffic detected. Some delays may occur."
	case LevelCritical:
		s.Message = "Room creation temporarily paused due to high traffic. Please try again shortly."
		s.RetryAfter = c.thresholds.RetryAfterSecs
	}
	return s
}

// recalcLocked derives the level and fires onChange on transitions. The
// callback runs under the lock deliberately: it only enqueues a broadcast.
func (c *Controller) recalcLocked() {
	level := LevelNormal
	switch {
	case c.rooms >= c.thresholds.CriticalRooms || c.clients >= c.thresholds.CriticalClients:
		level = LevelCritical
	case c.rooms >= c.thresholds.HighRooms || c.clients >= c.thresholds.HighClients:
		level = LevelHigh
	}
	if level == c.level {
		return
	}
	c.level = level
	if c.onChange != nil {
		c.onChange(c.statusLocked())
	}
}
