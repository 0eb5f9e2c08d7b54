package server

import (
	"context"
	"net/http"
	"time"

	"cardparty/internal/config"
	"cardparty/internal/db"
	"cardparty/internal/game"
	"cardparty/internal/packs"
	"cardparty/internal/presence"
	"cardparty/internal/protocol"
	"cardparty/internal/rooms"
	"cardparty/internal/traffic"
	"cardparty/internal/wshub"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Server struct {
	Cfg      config.Config
	Rooms    *rooms.Store
	Hub      *wshub.Hub
	Packs    *packs.Library
	Presence *presence.Tracker
	Traffic  *traffic.Controller
	DB       *db.DB // nil if no database configured
}

func Run() error {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	library, err := packs.Load()
	if err != nil {
		return err
	}

	trafficCtl := traffic.NewController(traffic.Thresholds{
		HighRooms:       cfg.HighTrafficRooms,
		CriticalRooms:   cfg.CriticalRooms,
		HighClients:     cfg.HighTrafficClients,
		CriticalClients: cfg.CriticalClients,
		RetryAfterSecs:  cfg.RetryAfterSecs,
	}, prometheus.DefaultRegisterer)

	clock := clockwork.NewRealClock()
	store := rooms.NewStore(clock, cfg.RoomIdleTTL, trafficCtl)

	srv := &Server{
		Cfg:     cfg,
		Rooms:   store,
		Hub:     wshub.NewHub(),
		Packs:   library,
		Traffic: trafficCtl,
	}

	srv.Presence = presence.NewTracker(clock, cfg.PresenceTimeout, cfg.PresenceSweep, srv.handlePresenceTimeout)
	store.OnExpire(srv.handleRoomExpired)
	trafficCtl.OnChange(func(st traffic.Status) {
		log.Info().Str("level", string(st.Level)).Msg("traffic level changed")
		srv.Hub.BroadcastAll(protocol.EventTrafficStatus, st)
	})

	// Optional database connection
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("database connect failed, running without database")
		} else {
			if err := database.Migrate(); err != nil {
				log.Warn().Err(err).Msg("migration failed")
			}
			srv.DB = database
			log.Info().Msg("database connected and migrations applied")
		}
	} else {
		log.Info().Msg("DATABASE_URL not set, running without database")
	}

	ctx := context.Background()
	go srv.Presence.Run(ctx)
	go store.Run(ctx)
	go srv.syncLoop(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWS)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	addr := "0.0.0.0:" + cfg.Port
	log.Info().Str("addr", addr).Msg("server listening")
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// syncLoop periodically rebroadcasts every room's canonical state so
// clients that missed an update converge, and clients of a torn-down room
// learn about it via the room_not_found path on their next request.
func (s *Server) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(s.Cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce()
		}
	}
}

func (s *Server) syncOnce() {
	for _, room := range s.Rooms.List() {
		s.Hub.Broadcast(room.Code(), protocol.EventRoomStateSync, room.Snapshot())
	}
}

// handlePresenceTimeout runs when a player misses heartbeats for the full
// timeout window. It funnels into the same removal path as a voluntary
// leave, so host migration and turn reclamping behave identically.
func (s *Server) handlePresenceTimeout(roomCode, playerID string) {
	room := s.Rooms.Get(roomCode)
	if room == nil {
		return
	}
	log.Info().Str("room", roomCode).Str("player", playerID).Msg("presence timeout")
	s.removePlayer(room, playerID, removalTimeout)
}

// handleRoomExpired runs when the idle sweep tears down a room nobody has
// touched within the TTL.
func (s *Server) handleRoomExpired(room *game.Room) {
	code := room.Code()
	log.Info().Str("room", code).Msg("room expired")
	s.Hub.Broadcast(code, protocol.EventRoomDeleted, protocol.RoomDeletedEvent{
		Message: "Room closed due to inactivity",
	})
	s.teardownRoom(code)
}

// teardownRoom clears every registry the room participates in. The traffic
// counter follows the store entry: only the caller that actually removes
// the room decrements, so a last-player leave racing the idle sweep counts
// the room closed once.
func (s *Server) teardownRoom(code string) {
	for _, id := range s.Hub.RoomMembers(code) {
		s.Hub.LeaveRoom(id)
	}
	if s.Rooms.Delete(code) {
		s.Traffic.RoomClosed()
	}
	s.Presence.ForgetRoom(code)
}
