package game

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MaxPlayers caps room membership. Turn order degrades into noise in
// larger groups, and the lobby UI lists players vertically.
const MaxPlayers = 12

var (
	ErrEmptyName       = errors.New("player name cannot be empty")
	ErrNameTaken       = errors.New("that name is already taken in this room")
	ErrRoomFull        = errors.New("room is full")
	ErrGameStarted     = errors.New("game has already started")
	ErrGameNotStarted  = errors.New("game has not started yet")
	ErrGameFinished    = errors.New("game is already finished")
	ErrNotHost         = errors.New("only the host can do that")
	ErrNotYourTurn     = errors.New("it is not your turn")
	ErrAlreadyFlipped  = errors.New("card is already flipped")
	ErrNotFlipped      = errors.New("card has not been flipped")
	ErrNoPackSelected  = errors.New("select a question pack first")
	ErrNeedMorePlayers = errors.New("need at least 2 players to start")
	ErrPlayerNotFound  = errors.New("player not found in room")
	ErrCannotKickSelf  = errors.New("the host cannot kick themselves")
	ErrEmptyQuestion   = errors.New("question cannot be empty")
	ErrQuestionTooLong = errors.New("question is too long")
)

const maxQuestionLen = 280

type Player struct {
	ID     string
	Name   string
	IsHost bool
}

type CustomQuestion struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Room is the authoritative state of one play session. All mutation goes
// through its methods, which serialize on a single mutex; the server never
// holds the lock across I/O.
type Room struct {
	mu    sync.Mutex
	clock clockwork.Clock

	id   string
	code string

	players         []*Player
	selectedPack    string
	customQuestions []CustomQuestion
	nextQuestionID  int

	// Question pool, frozen at start: pack questions followed by custom
	// questions. Indices into this slice are what answeredQuestions and
	// currentQuestionIndex refer to.
	pool     []string
	answered []int

	currentPlayerIndex   int
	currentQuestionIndex int

	isStarted       bool
	isFinished      bool
	isFlipped       bool
	isTransitioning bool

	version    uint64
	createdAt  time.Time
	startedAt  time.Time
	lastActive time.Time
}

// NewRoom creates a room in the lobby phase with the given player as host.
// All timestamps come from the given clock so the registry's idle sweep can
// be driven by a fake clock in tests.
func NewRoom(clock clockwork.Clock, code, hostID, hostName string) (*Room, *Player, error) {
	name := strings.TrimSpace(hostName)
	if name == "" {
		return nil, nil, ErrEmptyName
	}
	host := &Player{ID: hostID, Name: name, IsHost: true}
	now := clock.Now()
	r := &Room{
		clock:                clock,
		id:                   uuid.New().String(),
		code:                 code,
		players:              []*Player{host},
		currentQuestionIndex: -1,
		nextQuestionID:       1,
		version:              1,
		createdAt:            now,
		lastActive:           now,
	}
	return r, host, nil
}

func (r *Room) Code() string { return r.code }

func (r *Room) CreatedAt() time.Time { return r.createdAt }

// SelectedPack returns the id of the selected question pack, or "" when
// none has been chosen yet.
func (r *Room) SelectedPack() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectedPack
}

// StartedAt returns the zero time until the game has started.
func (r *Room) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// LastActive reports when the room last processed a successful transition
// or heartbeat. The registry's idle sweep reads it.
func (r *Room) LastActive() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive
}

// Touch refreshes the idle clock without a state transition. Heartbeats
// route here.
func (r *Room) Touch() {
	r.mu.Lock()
	r.lastActive = r.clock.Now()
	r.mu.Unlock()
}

// touchLocked must be called with r.mu held, after every mutation.
func (r *Room) touchLocked() {
	r.version++
	r.lastActive = r.clock.Now()
}

// MemberIDByName returns the connection id bound to a member name, matched
// case-insensitively. Rejoin uses it to migrate presence state.
func (r *Room) MemberIDByName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		if strings.EqualFold(p.Name, name) {
			return p.ID, true
		}
	}
	return "", false
}

// HasPlayer reports whether the given connection id is a current member.
func (r *Room) HasPlayer(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(playerID) != nil
}

// PlayerCount returns current membership size.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

func (r *Room) findLocked(playerID string) *Player {
	for _, p := range r.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (r *Room) indexOfLocked(playerID string) int {
	for i, p := range r.players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}
