package rooms

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"cardparty/internal/game"
)

type allowAll struct{}

func (allowAll) RoomCreationAllowed() bool { return true }

type denyAll struct{}

func (denyAll) RoomCreationAllowed() bool { return false }

func newTestStore() *Store {
	return NewStore(clockwork.NewFakeClock(), time.Hour, allowAll{})
}

func TestStore_Create(t *testing.T) {
	s := newTestStore()

	room, host, err := s.Create("conn-1", "Alex")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if room.Code() == "" {
		t.Error("room code should not be empty")
	}
	if !host.IsHost {
		t.Error("creator should be host")
	}
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}
}

func TestStore_Create_EmptyName(t *testing.T) {
	s := newTestStore()
	if _, _, err := s.Create("conn-1", "  "); err == nil {
		t.Error("Create() with blank name should fail")
	}
	if s.Count() != 0 {
		t.Error("failed create should not register a room")
	}
}

func TestStore_Create_AdmissionBlocked(t *testing.T) {
	s := NewStore(clockwork.NewFakeClock(), time.Hour, denyAll{})

	_, _, err := s.Create("conn-1", "Alex")
	if err != ErrCreationDisabled {
		t.Fatalf("Create() error = %v, want ErrCreationDisabled", err)
	}
	if s.Count() != 0 {
		t.Error("blocked create must not register a room")
	}
}

func TestStore_Get_CaseInsensitive(t *testing.T) {
	s := newTestStore()
	room, _, _ := s.Create("conn-1", "Alex")

	if got := s.Get(strings.ToLower(room.Code())); got == nil {
		t.Error("Get() should accept lowercase codes")
	}
	if got := s.Get(" " + room.Code() + " "); got == nil {
		t.Error("Get() should trim whitespace")
	}
	if got := s.Get("ZZZZZZ"); got != nil {
		t.Error("Get() should return nil for nonexistent room")
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore()
	room, _, _ := s.Create("conn-1", "Alex")

	if !s.Delete(room.Code()) {
		t.Error("Delete() should report removing a live room")
	}
	if s.Get(room.Code()) != nil {
		t.Error("room should be deleted")
	}
	if s.Delete(room.Code()) {
		t.Error("repeat Delete() must report nothing removed")
	}
}

func TestStore_CodesAreUnique(t *testing.T) {
	s := newTestStore()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		room, _, err := s.Create("conn-1", "Alex")
		if err != nil {
			t.Fatal(err)
		}
		if seen[room.Code()] {
			t.Fatalf("duplicate live room code %q", room.Code())
		}
		seen[room.Code()] = true
	}
}

func TestStore_ConcurrentCreate(t *testing.T) {
	s := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Create("conn", "Alex")
		}()
	}
	wg.Wait()

	if s.Count() != 50 {
		t.Errorf("concurrent creates: Count() = %d, want 50", s.Count())
	}
}

func TestStore_SweepIdle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewStore(clock, time.Minute, allowAll{})

	var swept []string
	s.OnExpire(func(r *game.Room) {
		swept = append(swept, r.Code())
		s.Delete(r.Code())
	})

	room, _, _ := s.Create("conn-1", "Alex")

	clock.Advance(2 * time.Minute)
	s.sweepIdle()

	if s.Get(room.Code()) != nil {
		t.Error("idle room should have been swept")
	}
	if len(swept) != 1 || swept[0] != room.Code() {
		t.Errorf("OnExpire calls = %v, want [%s]", swept, room.Code())
	}
}

func TestStore_SweepIdle_KeepsActiveRooms(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewStore(clock, time.Minute, allowAll{})
	room, _, _ := s.Create("conn-1", "Alex")

	clock.Advance(30 * time.Second)
	s.sweepIdle()

	if s.Get(room.Code()) == nil {
		t.Error("active room must survive the sweep")
	}
}

func TestStore_SweepIdle_NoCallbackDeletesDirectly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewStore(clock, time.Minute, allowAll{})
	room, _, _ := s.Create("conn-1", "Alex")

	clock.Advance(2 * time.Minute)
	s.sweepIdle()

	if s.Get(room.Code()) != nil {
		t.Error("idle room should have been removed without a callback")
	}
}

func TestStore_SweepIdle_HeartbeatDefersExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewStore(clock, time.Minute, allowAll{})
	room, _, _ := s.Create("conn-1", "Alex")

	clock.Advance(45 * time.Second)
	room.Touch()
	clock.Advance(45 * time.Second)
	s.sweepIdle()

	if s.Get(room.Code()) == nil {
		t.Error("touched room must survive the sweep")
	}
}
