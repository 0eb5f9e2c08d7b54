package game

// Departure describes the outcome of any player-removal transition. Kicks,
// voluntary leaves, and presence timeouts all flow through the same path so
// host migration and turn re-clamping cannot diverge between them.
type Departure struct {
	Player    PlayerSnapshot
	NewHost   *PlayerSnapshot
	Kicked    bool
	RoomEmpty bool
	Room      RoomSnapshot
}

// Kick removes a player at the host's request. The host cannot kick
// themselves; they leave instead.
func (r *Room) Kick(byID, targetID string) (Departure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireHostLocked(byID); err != nil {
		return Departure{}, err
	}
	if byID == targetID {
		return Departure{}, ErrCannotKickSelf
	}
	if r.findLocked(targetID) == nil {
		return Departure{}, ErrPlayerNotFound
	}

	dep := r.removeLocked(targetID)
	dep.Kicked = true
	return dep, nil
}

// Leave removes a player. Voluntary exits and confirmed-dead heartbeats
// both land here.
func (r *Room) Leave(playerID string) (Departure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findLocked(playerID) == nil {
		return Departure{}, ErrPlayerNotFound
	}
	return r.removeLocked(playerID), nil
}

func (r *Room) removeLocked(playerID string) Departure {
	idx := r.indexOfLocked(playerID)
	removed := r.players[idx]
	dep := Departure{Player: playerSnapshot(removed)}

	r.players = append(r.players[:idx], r.players[idx+1:]...)

	if len(r.players) == 0 {
		dep.RoomEmpty = true
		r.touchLocked()
		dep.Room = r.snapshotLocked()
		return dep
	}

	if removed.IsHost {
		// Earliest-joined remaining player inherits the room.
		r.players[0].IsHost = true
		host := playerSnapshot(r.players[0])
		dep.NewHost = &host
	}

	// Re-clamp the turn pointer. Removing someone before the current
	// player shifts the order left; removing the current player hands the
	// turn to whoever slid into their slot, wrapping at the end.
	if idx < r.currentPlayerIndex {
		r.currentPlayerIndex--
	} else if idx == r.currentPlayerIndex {
		r.currentPlayerIndex = r.currentPlayerIndex % len(r.players)
		if r.isStarted && !r.isFinished {
			r.isFlipped = false
			r.isTransitioning = false
		}
	}

	r.touchLocked()
	dep.Room = r.snapshotLocked()
	return dep
}
