package server

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/decred/slog"

	"ridebus/pkg/game"
)

// request is a client action. Every request is answered with an ack carrying
// the same seq.
type request struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Code string `json:"code,omitempty"`
	Rank int    `json:"rank,omitempty"`
}

// ack is the synchronous outcome of a request. A rejected action is surfaced
// to the requester only, never broadcast.
type ack struct {
	Type     string `json:"type"`
	Seq      int64  `json:"seq"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
	Rank     int    `json:"rank,omitempty"`
}

// Server is the session gateway: it binds websocket connections to a room
// and player identity, validates that actions come from whoever is
// authorized, and relays room events to all subscribers of a room.
type Server struct {
	log       slog.Logger
	registry  *Registry
	processor *EventProcessor

	sessionsMu  sync.RWMutex
	subscribers map[string]map[string]*session // roomCode -> playerID -> session
}

// NewServer creates a gateway around the given registry and starts its event
// pipeline.
func NewServer(log slog.Logger, registry *Registry) *Server {
	if log == nil {
		log = slog.NewBackend(io.Discard).Logger("GWAY")
	}

	s := &Server{
		log:         log,
		registry:    registry,
		subscribers: make(map[string]map[string]*session),
	}

	s.processor = NewEventProcessor(log, 1024, 1, s.handleEvent)
	registry.SetEventChannel(s.processor.Channel())
	s.processor.Start()

	return s
}

// Stop drains the event pipeline.
func (s *Server) Stop() {
	s.processor.Stop()
}

// Registry returns the room registry the gateway serves.
func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) subscribe(c *session, code string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	subs, ok := s.subscribers[code]
	if !ok {
		subs = make(map[string]*session)
		s.subscribers[code] = subs
	}
	subs[c.playerID] = c
}

// dropSession is called when a connection dies: the seat stays, only the
// connected flag degrades, and the registry sweeper handles the rest. The
// session must be unpublished from subscribers before close so that the
// fan-out paths, which enqueue under sessionsMu, never see a closed channel.
func (s *Server) dropSession(c *session) {
	s.sessionsMu.Lock()
	if c.roomCode != "" {
		if subs, ok := s.subscribers[c.roomCode]; ok {
			delete(subs, c.playerID)
			if len(subs) == 0 {
				delete(s.subscribers, c.roomCode)
			}
		}
	}
	s.sessionsMu.Unlock()

	if c.roomCode != "" {
		if room, err := s.registry.LookupRoom(c.roomCode); err == nil {
			_ = room.SetConnected(c.playerID, false)
		}
	}

	c.close()
}

// handleRequest dispatches one client action to completion. A panic in a
// single handler is contained: it is logged and acknowledged as an internal
// error, leaving room state and other rooms untouched.
func (s *Server) handleRequest(c *session, req *request) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("panic handling %q from %s: %v", req.Type, c.playerID, r)
			s.nack(c, req, "internal server error")
		}
	}()

	switch req.Type {
	case "create_room":
		s.handleCreate(c, req)
	case "join_room":
		s.handleJoin(c, req)
	case "start_game", "restart_game", "peek", "guess_first", "guess_second", "rename":
		s.handleRoomAction(c, req)
	default:
		s.nack(c, req, "unknown action")
	}
}

func (s *Server) handleCreate(c *session, req *request) {
	if c.roomCode != "" {
		s.nack(c, req, "already in a room")
		return
	}

	room, err := s.registry.CreateRoom(c.playerID, req.Name)
	if err != nil {
		s.nack(c, req, err.Error())
		return
	}

	c.roomCode = room.Code()
	s.subscribe(c, room.Code())
	s.sendAck(c, &ack{Seq: req.Seq, OK: true, Code: room.Code(), PlayerID: c.playerID})
	s.pushSnapshot(c, room)
}

func (s *Server) handleJoin(c *session, req *request) {
	if c.roomCode != "" {
		s.nack(c, req, "already in a room")
		return
	}

	room, err := s.registry.JoinRoom(req.Code, c.playerID, req.Name)
	if err != nil {
		s.nack(c, req, err.Error())
		return
	}

	c.roomCode = room.Code()
	s.subscribe(c, room.Code())
	s.sendAck(c, &ack{Seq: req.Seq, OK: true, Code: room.Code(), PlayerID: c.playerID})

	// The join broadcast raced our subscription; hand the joiner the
	// current state directly.
	s.pushSnapshot(c, room)
}

func (s *Server) handleRoomAction(c *session, req *request) {
	if c.roomCode == "" {
		s.nack(c, req, "join a room first")
		return
	}

	room, err := s.registry.LookupRoom(c.roomCode)
	if err != nil {
		s.nack(c, req, err.Error())
		return
	}

	resp := &ack{Seq: req.Seq, OK: true}

	switch req.Type {
	case "start_game":
		err = room.StartGame(c.playerID)
	case "restart_game":
		err = room.RestartGame(c.playerID)
	case "peek":
		var rank game.Rank
		rank, err = room.Peek(c.playerID)
		resp.Rank = int(rank)
	case "guess_first":
		_, err = room.GuessFirst(c.playerID, game.Rank(req.Rank))
	case "guess_second":
		_, err = room.GuessSecond(c.playerID, game.Rank(req.Rank))
	case "rename":
		err = room.RenamePlayer(c.playerID, req.Name)
	}

	if err != nil {
		s.nack(c, req, err.Error())
		return
	}
	s.sendAck(c, resp)
}

func (s *Server) sendAck(c *session, a *ack) {
	a.Type = "ack"
	data, err := json.Marshal(a)
	if err != nil {
		s.log.Errorf("marshal ack: %v", err)
		return
	}
	c.enqueue(data)
}

func (s *Server) nack(c *session, req *request, msg string) {
	s.sendAck(c, &ack{Seq: req.Seq, OK: false, Error: msg})
}
