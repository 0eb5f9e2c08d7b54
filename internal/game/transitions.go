package game

import (
	"math/rand/v2"
	"strings"
)

// Join appends a player in lobby phase. Join order is turn order.
func (r *Room) Join(playerID, playerName string) (PlayerSnapshot, RoomSnapshot, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return PlayerSnapshot{}, RoomSnapshot{}, ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isStarted {
		return PlayerSnapshot{}, RoomSnapshot{}, ErrGameStarted
	}
	if len(r.players) >= MaxPlayers {
		return PlayerSnapshot{}, RoomSnapshot{}, ErrRoomFull
	}
	for _, p := range r.players {
		if strings.EqualFold(p.Name, name) {
			return PlayerSnapshot{}, RoomSnapshot{}, ErrNameTaken
		}
	}

	p := &Player{ID: playerID, Name: name}
	r.players = append(r.players, p)
	r.touchLocked()
	return playerSnapshot(p), r.snapshotLocked(), nil
}

// Rejoin rebinds a returning player's identity to a new connection id.
// It is idempotent: replaying it finds the same entry and rebinds again
// rather than duplicating the player. If the entry was already purged,
// a lobby-phase room treats it as a fresh join.
func (r *Room) Rejoin(newPlayerID, playerName string) (PlayerSnapshot, RoomSnapshot, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return PlayerSnapshot{}, RoomSnapshot{}, ErrEmptyName
	}

	r.mu.Lock()
	for _, p := range r.players {
		if strings.EqualFold(p.Name, name) {
			p.ID = newPlayerID
			r.touchLocked()
			ps, snap := playerSnapshot(p), r.snapshotLocked()
			r.mu.Unlock()
			return ps, snap, nil
		}
	}
	r.mu.Unlock()

	// Entry already purged; only a lobby can accept them back as new.
	return r.Join(newPlayerID, name)
}

// SelectPack sets the shared question pack. Host only, lobby only.
func (r *Room) SelectPack(byID, packID string) (RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireHostLocked(byID); err != nil {
		return RoomSnapshot{}, err
	}
	if r.isStarted {
		return RoomSnapshot{}, ErrGameStarted
	}
	r.selectedPack = packID
	r.touchLocked()
	return r.snapshotLocked(), nil
}

// AddCustomQuestion appends a host-written question to the pool-to-be.
func (r *Room) AddCustomQuestion(byID, text string) (RoomSnapshot, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return RoomSnapshot{}, ErrEmptyQuestion
	}
	if len(text) > maxQuestionLen {
		return RoomSnapshot{}, ErrQuestionTooLong
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireHostLocked(byID); err != nil {
		return RoomSnapshot{}, err
	}
	if r.isStarted {
		return RoomSnapshot{}, ErrGameStarted
	}
	r.customQuestions = append(r.customQuestions, CustomQuestion{ID: r.nextQuestionID, Text: text})
	r.nextQuestionID++
	r.touchLocked()
	return r.snapshotLocked(), nil
}

// RemoveCustomQuestion deletes a custom question by id. Unknown ids are a
// no-op rather than an error so a doubled click cannot surface a failure.
func (r *Room) RemoveCustomQuestion(byID string, questionID int) (RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireHostLocked(byID); err != nil {
		return RoomSnapshot{}, err
	}
	if r.isStarted {
		return RoomSnapshot{}, ErrGameStarted
	}
	for i, q := range r.customQuestions {
		if q.ID == questionID {
			r.customQuestions = append(r.customQuestions[:i], r.customQuestions[i+1:]...)
			break
		}
	}
	r.touchLocked()
	return r.snapshotLocked(), nil
}

// Start freezes the question pool and begins the game. The pack's
// questions are passed in by the caller; the room itself never talks to
// the pack library.
func (r *Room) Start(byID string, packQuestions []string) (RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireHostLocked(byID); err != nil {
		return RoomSnapshot{}, err
	}
	if r.isStarted {
		return RoomSnapshot{}, ErrGameStarted
	}
	if r.selectedPack == "" {
		return RoomSnapshot{}, ErrNoPackSelected
	}
	if len(r.players) < 2 {
		return RoomSnapshot{}, ErrNeedMorePlayers
	}

	pool := make([]string, 0, len(packQuestions)+len(r.customQuestions))
	pool = append(pool, packQuestions...)
	for _, q := range r.customQuestions {
		pool = append(pool, q.Text)
	}
	r.pool = pool
	r.answered = nil
	r.isStarted = true
	r.currentPlayerIndex = 0
	r.currentQuestionIndex = rand.IntN(len(pool))
	r.isFlipped = false
	r.startedAt = r.clock.Now()
	r.touchLocked()
	return r.snapshotLocked(), nil
}

// Flip reveals the current question. Current-turn player only.
func (r *Room) Flip(byID string) (RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireTurnLocked(byID); err != nil {
		return RoomSnapshot{}, err
	}
	if r.isFlipped {
		return RoomSnapshot{}, ErrAlreadyFlipped
	}
	r.isFlipped = true
	r.isTransitioning = false
	r.touchLocked()
	return r.snapshotLocked(), nil
}

// Next marks the revealed question answered, then either finishes the game
// or draws uniformly at random from the unanswered remainder and passes the
// turn. Random-per-draw (rather than a fixed shuffle) tolerates the pool
// having grown in the lobby after the pack was picked.
func (r *Room) Next(byID string) (RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireTurnLocked(byID); err != nil {
		return RoomSnapshot{}, err
	}
	if !r.isFlipped {
		return RoomSnapshot{}, ErrNotFlipped
	}

	r.answered = append(r.answered, r.currentQuestionIndex)

	remaining := r.remainingLocked()
	if len(remaining) == 0 {
		r.isFinished = true
		r.isFlipped = false
		r.isTransitioning = false
		r.currentQuestionIndex = -1
		r.touchLocked()
		return r.snapshotLocked(), nil
	}

	r.currentQuestionIndex = remaining[rand.IntN(len(remaining))]
	r.currentPlayerIndex = (r.currentPlayerIndex + 1) % len(r.players)
	r.isFlipped = false
	r.isTransitioning = true
	r.touchLocked()
	return r.snapshotLocked(), nil
}

// ClearTransition ends the brief card-swap window opened by Next. Returns
// false when there is nothing to clear.
func (r *Room) ClearTransition() (RoomSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isTransitioning {
		return RoomSnapshot{}, false
	}
	r.isTransitioning = false
	r.touchLocked()
	return r.snapshotLocked(), true
}

func (r *Room) remainingLocked() []int {
	answered := make(map[int]bool, len(r.answered))
	for _, idx := range r.answered {
		answered[idx] = true
	}
	var remaining []int
	for i := range r.pool {
		if !answered[i] {
			remaining = append(remaining, i)
		}
	}
	return remaining
}

func (r *Room) requireHostLocked(playerID string) error {
	p := r.findLocked(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	if !p.IsHost {
		return ErrNotHost
	}
	return nil
}

func (r *Room) requireTurnLocked(playerID string) error {
	if !r.isStarted {
		return ErrGameNotStarted
	}
	if r.isFinished {
		return ErrGameFinished
	}
	idx := r.indexOfLocked(playerID)
	if idx == -1 {
		return ErrPlayerNotFound
	}
	if idx != r.currentPlayerIndex {
		return ErrNotYourTurn
	}
	return nil
}
