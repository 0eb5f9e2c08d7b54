package game

// PlayerSnapshot is the wire shape of a player. Clients compare IDs against
// their own connection id, so field names match the client mirror exactly.
type PlayerSnapshot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

// RoomSnapshot is the full canonical room state sent on every broadcast.
// Clients replace their local mirror wholesale with it; there is no
// partial patching, so it must always be complete and self-consistent.
type RoomSnapshot struct {
	ID                   string           `json:"id"`
	Code                 string           `json:"code"`
	Players              []PlayerSnapshot `json:"players"`
	SelectedPack         *string          `json:"selectedPack"`
	CustomQuestions      []CustomQuestion `json:"customQuestions"`
	CurrentPlayerIndex   int              `json:"currentPlayerIndex"`
	CurrentQuestionIndex *int             `json:"currentQuestionIndex"`
	CurrentQuestion      string           `json:"currentQuestion,omitempty"`
	AnsweredQuestions    []int            `json:"answeredQuestions"`
	TotalQuestions       int              `json:"totalQuestions"`
	IsStarted            bool             `json:"isStarted"`
	IsFinished           bool             `json:"isFinished"`
	IsFlipped            bool             `json:"isFlipped"`
	IsTransitioning      bool             `json:"isTransitioning"`
	Version              uint64           `json:"version"`
}

// Snapshot returns the current canonical state.
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() RoomSnapshot {
	players := make([]PlayerSnapshot, len(r.players))
	for i, p := range r.players {
		players[i] = PlayerSnapshot{ID: p.ID, Name: p.Name, IsHost: p.IsHost}
	}

	custom := make([]CustomQuestion, len(r.customQuestions))
	copy(custom, r.customQuestions)

	answered := make([]int, len(r.answered))
	copy(answered, r.answered)

	snap := RoomSnapshot{
		ID:                 r.id,
		Code:               r.code,
		Players:            players,
		CustomQuestions:    custom,
		CurrentPlayerIndex: r.currentPlayerIndex,
		AnsweredQuestions:  answered,
		TotalQuestions:     len(r.pool),
		IsStarted:          r.isStarted,
		IsFinished:         r.isFinished,
		IsFlipped:          r.isFlipped,
		IsTransitioning:    r.isTransitioning,
		Version:            r.version,
	}
	if r.selectedPack != "" {
		pack := r.selectedPack
		snap.SelectedPack = &pack
	}
	if r.currentQuestionIndex >= 0 {
		idx := r.currentQuestionIndex
		snap.CurrentQuestionIndex = &idx
		if idx < len(r.pool) {
			snap.CurrentQuestion = r.pool[idx]
		}
	}
	return snap
}

func playerSnapshot(p *Player) PlayerSnapshot {
	return PlayerSnapshot{ID: p.ID, Name: p.Name, IsHost: p.IsHost}
}
