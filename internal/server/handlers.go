package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cardparty/internal/db"
	"cardparty/internal/game"
	"cardparty/internal/protocol"
	"cardparty/internal/rooms"
	"cardparty/internal/wshub"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// transitionDelay is how long the dealing animation runs on clients before
// the next question is revealed.
const transitionDelay = 600 * time.Millisecond

type removalReason int

const (
	removalVoluntary removalReason = iota
	removalKicked
	removalTimeout
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	client := &wshub.Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, 64),
	}
	s.Hub.Register(client)
	s.Traffic.ClientConnected()
	log.Debug().Str("conn", client.ID).Msg("client connected")

	// Push the current admission state so the landing page can disable
	// room creation before the user tries.
	s.Hub.SendEvent(client.ID, protocol.EventTrafficStatus, s.Traffic.Status())

	ctx := r.Context()
	go client.WritePump(ctx)
	s.readLoop(ctx, client)

	// Membership is intentionally NOT dropped here. The presence timeout
	// governs removal so a refresh or brief network blip can rejoin.
	s.Hub.Unregister(client.ID)
	s.Traffic.ClientDisconnected()
	conn.Close(websocket.StatusNormalClosure, "")
	log.Debug().Str("conn", client.ID).Msg("client disconnected")
}

func (s *Server) readLoop(ctx context.Context, client *wshub.Client) {
	limiter := rate.NewLimiter(rate.Limit(20), 40)

	for {
		_, data, err := client.Conn.Read(ctx)
		if err != nil {
			return
		}
		if !limiter.Allow() {
			s.Hub.SendEvent(client.ID, protocol.EventError, protocol.ErrorEvent{
				Message: "Too many requests, slow down",
			})
			continue
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Hub.SendEvent(client.ID, protocol.EventError, protocol.ErrorEvent{
				Message: "Invalid message format",
			})
			continue
		}
		s.dispatch(client, msg)
	}
}

func (s *Server) dispatch(c *wshub.Client, msg protocol.ClientMessage) {
	switch msg.Type {
	case protocol.OpCreateRoom:
		s.opCreateRoom(c, msg)
	case protocol.OpJoinRoom:
		s.opJoinRoom(c, msg)
	case protocol.OpRejoinRoom:
		s.opRejoinRoom(c, msg)
	case protocol.OpLeaveRoom:
		s.opLeaveRoom(c, msg)
	case protocol.OpSelectPack:
		s.opSelectPack(c, msg)
	case protocol.OpAddCustomQuestion:
		s.opAddCustomQuestion(c, msg)
	case protocol.OpRemoveCustomQuestion:
		s.opRemoveCustomQuestion(c, msg)
	case protocol.OpStartGame:
		s.opStartGame(c, msg)
	case protocol.OpFlipCard:
		s.opFlipCard(c, msg)
	case protocol.OpNextQuestion:
		s.opNextQuestion(c, msg)
	case protocol.OpKickPlayer:
		s.opKickPlayer(c, msg)
	case protocol.OpHeartbeat:
		s.opHeartbeat(c, msg)
	case protocol.OpCheckMembership:
		s.opCheckMembership(c, msg)
	case protocol.OpGetRoomState:
		s.opGetRoomState(c, msg)
	case protocol.OpListPacks:
		s.opListPacks(c, msg)
	default:
		s.Hub.SendEvent(c.ID, protocol.EventError, protocol.ErrorEvent{
			Message: "Unknown operation: " + msg.Type,
		})
	}
}

// reply acks a request when the client asked for one, and falls back to a
// targeted error event for failed fire-and-forget operations.
func (s *Server) reply(c *wshub.Client, seq uint64, resp protocol.Response) {
	if seq != 0 {
		s.Hub.SendAck(c.ID, seq, resp)
		return
	}
	if !resp.Success {
		s.Hub.SendEvent(c.ID, protocol.EventError, protocol.ErrorEvent{Message: resp.Message})
	}
}

func decode[T any](raw json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

func (s *Server) opCreateRoom(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.CreateRoomRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room, host, err := s.Rooms.Create(c.ID, req.PlayerName)
	if errors.Is(err, rooms.ErrCreationDisabled) {
		st := s.Traffic.Status()
		s.reply(c, msg.Seq, protocol.Response{
			Success:       false,
			Message:       "Room creation is temporarily disabled due to high traffic",
			HighTraffic:   true,
			TrafficStatus: &st,
		})
		return
	}
	if err != nil {
		s.reply(c, msg.Seq, protocol.Fail(err.Error()))
		return
	}

	s.Traffic.RoomOpened()
	s.Hub.JoinRoom(c.ID, room.Code())
	s.Presence.Track(room.Code(), c.ID)
	log.Info().Str("room", room.Code()).Str("host", host.Name).Msg("room created")

	hostSnap := game.PlayerSnapshot{ID: host.ID, Name: host.Name, IsHost: host.IsHost}
	s.reply(c, msg.Seq, protocol.OKRoomPlayer(room.Snapshot(), hostSnap))
}

func (s *Server) opJoinRoom(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.JoinRoomRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil {
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}

	player, snap, err := room.Join(c.ID, req.PlayerName)
	if errors.Is(err, game.ErrGameStarted) {
		// A mid-game room is unjoinable. The client treats it like a
		// missing room and routes home with the code pre-filled, so it
		// gets the not-found signal rather than a validation failure.
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}
	if err != nil {
		s.reply(c, msg.Seq, protocol.Fail(err.Error()))
		return
	}

	s.Hub.JoinRoom(c.ID, room.Code())
	s.Presence.Track(room.Code(), c.ID)
	log.Info().Str("room", room.Code()).Str("player", player.Name).Msg("player joined")

	s.reply(c, msg.Seq, protocol.OKRoomPlayer(snap, player))
	s.Hub.Broadcast(room.Code(), protocol.EventRoomUpdated, snap)
}

func (s *Server) opRejoinRoom(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.RejoinRoomRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil {
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}

	oldID, rebinding := room.MemberIDByName(req.PlayerName)
	player, snap, err := room.Rejoin(c.ID, req.PlayerName)
	if err != nil {
		s.reply(c, msg.Seq, protocol.Fail(err.Error()))
		return
	}

	s.Hub.JoinRoom(c.ID, room.Code())
	if rebinding && oldID != c.ID {
		s.Presence.Rebind(room.Code(), oldID, c.ID)
		s.Hub.LeaveRoom(oldID)
	} else {
		s.Presence.Track(room.Code(), c.ID)
	}
	log.Info().Str("room", room.Code()).Str("player", player.Name).Msg("player rejoined")

	s.reply(c, msg.Seq, protocol.OKRoomPlayer(snap, player))
	s.Hub.Broadcast(room.Code(), protocol.EventRoomUpdated, snap)
}

func (s *Server) opLeaveRoom(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.RoomRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil {
		// Leaving a dead room is a success from the client's view.
		s.reply(c, msg.Seq, protocol.OK())
		return
	}

	s.removePlayer(room, c.ID, removalVoluntary)
	s.reply(c, msg.Seq, protocol.OK())
}

func (s *Server) opSelectPack(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.SelectPackRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil {
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}
	if s.Packs.Get(req.PackID) == nil {
		s.reply(c, msg.Seq, protocol.Fail("Unknown question pack"))
		return
	}

	snap, err := room.SelectPack(c.ID, req.PackID)
	if err != nil {
		s.reply(c, msg.Seq, protocol.Fail(err.Error()))
		return
	}

	s.reply(c, msg.Seq, protocol.OKRoom(snap))
	s.Hub.Broadcast(room.Code(), protocol.EventRoomUpdated, snap)
}

func (s *Server) opAddCustomQuestion(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.AddCustomQuestionRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil {
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}

	snap, err := room.AddCustomQuestion(c.ID, req.Question)
	if err != nil {
		s.reply(c, msg.Seq, protocol.Fail(err.Error()))
		return
	}

	s.reply(c, msg.Seq, protocol.OKRoom(snap))
	s.Hub.Broadcast(room.Code(), protocol.EventRoomUpdated, snap)
}

func (s *Server) opRemoveCustomQuestion(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.RemoveCustomQuestionRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil {
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}

	snap, err := room.RemoveCustomQuestion(c.ID, req.QuestionID)
	if err != nil {
		s.reply(c, msg.Seq, protocol.Fail(err.Error()))
		return
	}

	s.reply(c, msg.Seq, protocol.OKRoom(snap))
	s.Hub.Broadcast(room.Code(), protocol.EventRoomUpdated, snap)
}

func (s *Server) opStartGame(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.RoomRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil {
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}

	var packQuestions []string
	if pack := s.Packs.Get(room.SelectedPack()); pack != nil {
		packQuestions = pack.Questions
	}

	snap, err := room.Start(c.ID, packQuestions)
	if err != nil {
		s.reply(c, msg.Seq, protocol.Fail(err.Error()))
		return
	}
	log.Info().Str("room", room.Code()).Int("players", len(snap.Players)).Msg("game started")

	s.reply(c, msg.Seq, protocol.OKRoom(snap))
	s.Hub.Broadcast(room.Code(), protocol.EventGameStarted, snap)
}

func (s *Server) opFlipCard(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.RoomRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil {
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}

	snap, err := room.Flip(c.ID)
	if err != nil {
		s.reply(c, msg.Seq, protocol.Fail(err.Error()))
		return
	}

	s.reply(c, msg.Seq, protocol.OKRoom(snap))
	s.Hub.Broadcast(room.Code(), protocol.EventRoomUpdated, snap)
}

func (s *Server) opNextQuestion(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.RoomRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil {
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}

	snap, err := room.Next(c.ID)
	if err != nil {
		s.reply(c, msg.Seq, protocol.Fail(err.Error()))
		return
	}

	s.reply(c, msg.Seq, protocol.OKRoom(snap))
	s.Hub.Broadcast(room.Code(), protocol.EventRoomUpdated, snap)

	if snap.IsFinished {
		log.Info().Str("room", room.Code()).Msg("game finished")
		s.recordGame(room, snap, true)
		return
	}

	// Clients animate the deal for transitionDelay, then the cleared state
	// reveals the question.
	time.AfterFunc(transitionDelay, func() {
		if cleared, ok := room.ClearTransition(); ok {
			s.Hub.Broadcast(room.Code(), protocol.EventRoomUpdated, cleared)
		}
	})
}

func (s *Server) opKickPlayer(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.KickPlayerRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil {
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}

	dep, err := room.Kick(c.ID, req.PlayerIDToKick)
	if err != nil {
		s.reply(c, msg.Seq, protocol.Fail(err.Error()))
		return
	}
	log.Info().Str("room", room.Code()).Str("player", dep.Player.Name).Msg("player kicked")

	s.reply(c, msg.Seq, protocol.Response{Success: true, Message: "Player removed", Room: &dep.Room})
	s.finishRemoval(room.Code(), dep, removalKicked)
}

func (s *Server) opHeartbeat(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.RoomRequest](msg.Data)
	if !ok {
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil || !room.HasPlayer(c.ID) {
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}

	s.Presence.Touch(room.Code(), c.ID)
	room.Touch()
	s.reply(c, msg.Seq, protocol.OK())
}

func (s *Server) opCheckMembership(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.RoomRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	inRoom := false
	if room := s.Rooms.Get(req.RoomCode); room != nil {
		inRoom = room.HasPlayer(c.ID)
	}
	s.reply(c, msg.Seq, protocol.Response{Success: true, InRoom: &inRoom})
}

func (s *Server) opGetRoomState(c *wshub.Client, msg protocol.ClientMessage) {
	req, ok := decode[protocol.RoomRequest](msg.Data)
	if !ok {
		s.reply(c, msg.Seq, protocol.Fail("Invalid request"))
		return
	}

	room := s.Rooms.Get(req.RoomCode)
	if room == nil {
		s.notifyRoomGone(c, msg.Seq, req.RoomCode)
		return
	}
	s.reply(c, msg.Seq, protocol.OKRoom(room.Snapshot()))
}

func (s *Server) opListPacks(c *wshub.Client, msg protocol.ClientMessage) {
	list := s.Packs.List()
	summaries := make([]protocol.PackSummary, 0, len(list))
	for _, p := range list {
		summaries = append(summaries, protocol.PackSummary{
			ID:            p.ID,
			Name:          p.Name,
			Description:   p.Description,
			Icon:          p.Icon,
			Color:         p.Color,
			QuestionCount: len(p.Questions),
		})
	}
	s.reply(c, msg.Seq, protocol.Response{Success: true, Packs: summaries})
}

// notifyRoomGone answers a request against a missing room: a failure ack
// plus a room_not_found event so the client clears its stale local state.
func (s *Server) notifyRoomGone(c *wshub.Client, seq uint64, code string) {
	if seq != 0 {
		s.Hub.SendAck(c.ID, seq, protocol.Fail("Room not found"))
	}
	s.Hub.SendEvent(c.ID, protocol.EventRoomNotFound, protocol.RoomNotFoundEvent{RoomCode: code})
}

// removePlayer takes a player out of a room and runs all the follow-up:
// presence cleanup, hub unsubscription, departure broadcasts, and room
// teardown when the last member is gone.
func (s *Server) removePlayer(room *game.Room, playerID string, reason removalReason) {
	dep, err := room.Leave(playerID)
	if err != nil {
		// Already removed, e.g. a timeout racing a voluntary leave.
		return
	}
	s.finishRemoval(room.Code(), dep, reason)
}

func (s *Server) finishRemoval(code string, dep game.Departure, reason removalReason) {
	s.Presence.Forget(code, dep.Player.ID)
	s.Hub.LeaveRoom(dep.Player.ID)

	switch reason {
	case removalKicked:
		s.Hub.SendEvent(dep.Player.ID, protocol.EventPlayerKicked, protocol.RemovedEvent{
			RoomCode: code,
			Message:  "You have been removed from the room by the host",
		})
	case removalTimeout:
		s.Hub.SendEvent(dep.Player.ID, protocol.EventPlayerRemoved, protocol.RemovedEvent{
			RoomCode: code,
			Message:  "You were removed from the room due to inactivity",
		})
	}

	if dep.RoomEmpty {
		log.Info().Str("room", code).Msg("room empty, closing")
		// Finished games were already recorded when the deck ran out.
		if room := s.Rooms.Get(code); room != nil && !dep.Room.IsFinished {
			s.recordGame(room, dep.Room, false)
		}
		s.teardownRoom(code)
		return
	}

	s.Hub.Broadcast(code, protocol.EventPlayerLeft, protocol.PlayerLeftEvent{
		LeavingPlayer: dep.Player,
		NewHost:       dep.NewHost,
		Room:          dep.Room,
		Kicked:        reason == removalKicked,
	})
}

// recordGame writes session telemetry for a started game. Finished games
// are recorded when the deck runs out; abandoned ones when the room closes.
func (s *Server) recordGame(room *game.Room, snap game.RoomSnapshot, finished bool) {
	if s.DB == nil || !snap.IsStarted {
		return
	}
	rec := db.GameRecord{
		RoomCode:            snap.Code,
		PackID:              room.SelectedPack(),
		PlayerCount:         len(snap.Players),
		CustomQuestionCount: len(snap.CustomQuestions),
		QuestionsAnswered:   len(snap.AnsweredQuestions),
		TotalQuestions:      snap.TotalQuestions,
		Finished:            finished,
		StartedAt:           room.StartedAt(),
	}
	if err := s.DB.RecordGame(rec); err != nil {
		log.Warn().Err(err).Str("room", snap.Code).Msg("failed to record game")
	}
}
