package presence

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Tracker watches per-player heartbeats and reports players who have gone
// silent past the timeout. It never touches room state itself; the server
// feeds timeouts into the same leave transition used for voluntary exits.
//
// Heartbeats are idempotent and freely droppable, so Touch takes the lock
// only long enough to stamp a map entry.
type Tracker struct {
	mu   sync.Mutex
	seen map[string]map[string]time.Time

	clock     clockwork.Clock
	timeout   time.Duration
	sweep     time.Duration
	onTimeout func(roomCode, playerID string)
}

func NewTracker(clock clockwork.Clock, timeout, sweep time.Duration, onTimeout func(roomCode, playerID string)) *Tracker {
	return &Tracker{
		seen:      make(map[string]map[string]time.Time),
		clock:     clock,
		timeout:   timeout,
		sweep:     sweep,
		onTimeout: onTimeout,
	}
}

// Track registers a player as alive right now. Touch is the same operation;
// the two names mark intent at call sites.
func (t *Tracker) Track(roomCode, playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room := t.seen[roomCode]
	if room == nil {
		room = make(map[string]time.Time)
		t.seen[roomCode] = room
	}
	room[playerID] = t.clock.Now()
}

func (t *Tracker) Touch(roomCode, playerID string) {
	t.Track(roomCode, playerID)
}

// Rebind moves a player's liveness entry to a new connection id, as part
// of rejoin. The new id starts fresh.
func (t *Tracker) Rebind(roomCode, oldID, newID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room := t.seen[roomCode]
	if room == nil {
		room = make(map[string]time.Time)
		t.seen[roomCode] = room
	}
	delete(room, oldID)
	room[newID] = t.clock.Now()
}

// Forget drops a player without treating them as timed out. Used when a
// player leaves or is kicked through the normal transitions.
func (t *Tracker) Forget(roomCode, playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if room := t.seen[roomCode]; room != nil {
		delete(room, playerID)
		if len(room) == 0 {
			delete(t.seen, roomCode)
		}
	}
}

// ForgetRoom drops a whole room, typically after teardown.
func (t *Tracker) ForgetRoom(roomCode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, roomCode)
}

// Run sweeps for silent players until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.sweepOnce()
		}
	}
}

type expiredEntry struct {
	roomCode string
	playerID string
}

func (t *Tracker) sweepOnce() {
	now := t.clock.Now()

	t.mu.Lock()
	var expired []expiredEntry
	for roomCode, players := range t.seen {
		for playerID, last := range players {
			if now.Sub(last) > t.timeout {
				delete(players, playerID)
				expired = append(expired, expiredEntry{roomCode, playerID})
			}
		}
		if len(players) == 0 {
			delete(t.seen, roomCode)
		}
	}
	t.mu.Unlock()

	// Removal transitions run outside the tracker lock; they take room
	// locks and broadcast.
	for _, e := range expired {
		log.Info().Str("room", e.roomCode).Str("player", e.playerID).Msg("heartbeat timeout")
		t.onTimeout(e.roomCode, e.playerID)
	}
}
