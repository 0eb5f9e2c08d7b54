package protocol

import (
	"encoding/json"

	"cardparty/internal/game"
	"cardparty/internal/traffic"
)

// ClientMessage is the JSON envelope received from clients. Requests that
// expect a reply carry a client-chosen Seq; the server echoes it on the ack.
type ClientMessage struct {
	Type string          `json:"t"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

// ServerMessage is the JSON envelope sent to clients, both for acks
// (Type = "ack", Seq echoed) and for named broadcast events.
type ServerMessage struct {
	Type string `json:"t"`
	Seq  uint64 `json:"seq,omitempty"`
	Data any    `json:"d,omitempty"`
}

// Client → server operation names.
const (
	OpCreateRoom           = "create_room"
	OpJoinRoom             = "join_room"
	OpRejoinRoom           = "rejoin_room"
	OpLeaveRoom            = "leave_room"
	OpSelectPack           = "select_pack"
	OpAddCustomQuestion    = "add_custom_question"
	OpRemoveCustomQuestion = "remove_custom_question"
	OpStartGame            = "start_game"
	OpFlipCard             = "flip_card"
	OpNextQuestion         = "next_question"
	OpKickPlayer           = "kick_player"
	OpHeartbeat            = "heartbeat"
	OpCheckMembership      = "check_membership"
	OpGetRoomState         = "get_room_state"
	OpListPacks            = "list_packs"
)

// Server → client event names. room_updated and room_state_sync carry the
// same full snapshot; the latter is the periodic reconciliation clients use
// to detect a dead room.
const (
	EventAck           = "ack"
	EventRoomUpdated   = "room_updated"
	EventRoomStateSync = "room_state_sync"
	EventGameStarted   = "game_started"
	EventPlayerLeft    = "player_left"
	EventPlayerKicked  = "player_kicked"
	EventPlayerRemoved = "player_removed_from_room"
	EventRoomNotFound  = "room_not_found"
	EventRoomDeleted   = "room_deleted"
	EventTrafficStatus = "traffic_status"
	EventError         = "error"
)

type CreateRoomRequest struct {
	PlayerName string `json:"playerName"`
}

type JoinRoomRequest struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type RejoinRoomRequest struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

// RoomRequest covers every operation whose payload is just the room code:
// start_game, flip_card, next_question, heartbeat, leave_room,
// check_membership, get_room_state.
type RoomRequest struct {
	RoomCode string `json:"roomCode"`
}

type SelectPackRequest struct {
	RoomCode string `json:"roomCode"`
	PackID   string `json:"packId"`
}

type AddCustomQuestionRequest struct {
	RoomCode string `json:"roomCode"`
	Question string `json:"question"`
}

type RemoveCustomQuestionRequest struct {
	RoomCode   string `json:"roomCode"`
	QuestionID int    `json:"questionId"`
}

type KickPlayerRequest struct {
	RoomCode       string `json:"roomCode"`
	PlayerIDToKick string `json:"playerIdToKick"`
}

// Response is the discriminated request/response result. Exactly the shape
// the web client's socket-responses module expects.
type Response struct {
	Success       bool                 `json:"success"`
	Message       string               `json:"message,omitempty"`
	HighTraffic   bool                 `json:"highTraffic,omitempty"`
	Room          *game.RoomSnapshot   `json:"room,omitempty"`
	Player        *game.PlayerSnapshot `json:"player,omitempty"`
	InRoom        *bool                `json:"inRoom,omitempty"`
	Packs         []PackSummary        `json:"packs,omitempty"`
	TrafficStatus *traffic.Status      `json:"trafficStatus,omitempty"`
}

// PackSummary is the lobby-facing view of a pack: everything but the
// questions, which stay server-side until revealed.
type PackSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Icon          string `json:"icon"`
	Color         string `json:"color"`
	QuestionCount int    `json:"questionCount"`
}

// PlayerLeftEvent is broadcast to remaining members whenever someone is
// removed, whatever the reason.
type PlayerLeftEvent struct {
	LeavingPlayer game.PlayerSnapshot  `json:"leavingPlayer"`
	NewHost       *game.PlayerSnapshot `json:"newHost,omitempty"`
	Room          game.RoomSnapshot    `json:"room"`
	Kicked        bool                 `json:"kicked,omitempty"`
}

// RemovedEvent targets a client that is no longer a room member and so
// will not see room-wide broadcasts.
type RemovedEvent struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
}

type RoomNotFoundEvent struct {
	RoomCode string `json:"roomCode,omitempty"`
}

type RoomDeletedEvent struct {
	Message string `json:"message"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func OK() Response {
	return Response{Success: true}
}

func OKRoom(room game.RoomSnapshot) Response {
	return Response{Success: true, Room: &room}
}

func OKRoomPlayer(room game.RoomSnapshot, player game.PlayerSnapshot) Response {
	return Response{Success: true, Room: &room, Player: &player}
}

func Fail(message string) Response {
	return Response{Success: false, Message: message}
}
