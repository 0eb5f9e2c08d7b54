package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"cardparty/internal/game"
)

var (
	ErrCreationDisabled = errors.New("room creation is temporarily disabled")
	ErrCodeSpace        = errors.New("failed to generate unique room code")
)

// Admission gates room creation under load. The traffic controller
// implements it; tests stub it.
type Admission interface {
	RoomCreationAllowed() bool
}

// Store is the registry of live rooms, keyed by code. Per-room state is
// serialized by each room's own mutex; the store's lock only guards the map.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*game.Room

	clock     clockwork.Clock
	idleTTL   time.Duration
	admission Admission

	// onExpire is invoked outside the store lock for every room removed
	// by the idle sweep, so the caller can notify members.
	onExpire func(room *game.Room)
}

func NewStore(clock clockwork.Clock, idleTTL time.Duration, admission Admission) *Store {
	return &Store{
		rooms:     make(map[string]*game.Room),
		clock:     clock,
		idleTTL:   idleTTL,
		admission: admission,
	}
}

// OnExpire registers the idle-teardown callback. Must be set before Run.
func (s *Store) OnExpire(fn func(room *game.Room)) {
	s.onExpire = fn
}

// Create registers a new room with the given player as host. Codes are
// checked for uniqueness against the live registry and regenerated on
// collision.
func (s *Store) Create(hostID, hostName string) (*game.Room, *game.Player, error) {
	if s.admission != nil && !s.admission.RoomCreationAllowed() {
		return nil, nil, ErrCreationDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Try up to 10 times to generate a unique code.
	for range 10 {
		code, err := GenerateCode()
		if err != nil {
			return nil, nil, fmt.Errorf("generating room code: %w", err)
		}
		if _, exists := s.rooms[code]; exists {
			continue
		}

		room, host, err := game.NewRoom(s.clock, code, hostID, hostName)
		if err != nil {
			return nil, nil, err
		}
		s.rooms[code] = room
		return room, host, nil
	}
	return nil, nil, ErrCodeSpace
}

// Get returns the room for a code, or nil. Codes are accepted
// case-insensitively.
func (s *Store) Get(code string) *game.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[strings.ToUpper(strings.TrimSpace(code))]
}

// Delete removes a room and reports whether this call removed it. Callers
// that maintain per-room counters key off the return value so racing
// teardowns of the same room count once.
func (s *Store) Delete(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := s.rooms[key]; !ok {
		return false
	}
	delete(s.rooms, key)
	return true
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Store) List() []*game.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*game.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		list = append(list, r)
	}
	return list
}

// Run sweeps idle rooms until the context is cancelled. Rooms normally die
// when their last player leaves; the sweep is a backstop for rooms whose
// members all vanished without the presence layer noticing.
func (s *Store) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.sweepIdle()
		}
	}
}

func (s *Store) sweepIdle() {
	now := s.clock.Now()

	s.mu.Lock()
	var expired []*game.Room
	for _, room := range s.rooms {
		if now.Sub(room.LastActive()) > s.idleTTL {
			expired = append(expired, room)
		}
	}
	s.mu.Unlock()

	// The map entry is removed by the expiry callback's teardown (via
	// Delete), not here, so the callback and a racing last-player leave
	// contend on a single authoritative removal.
	for _, room := range expired {
		log.Info().Str("room", room.Code()).Msg("idle room swept")
		if s.onExpire != nil {
			s.onExpire(room)
		} else {
			s.Delete(room.Code())
		}
	}
}
