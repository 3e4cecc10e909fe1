package server

import (
	"encoding/json"

	"ridebus/pkg/game"
)

// pushMessage is the envelope for server-to-client pushes.
type pushMessage struct {
	Type    string      `json:"type"`
	Room    string      `json:"room"`
	Payload interface{} `json:"payload,omitempty"`
}

// handleEvent fans one room event out to its subscribers. Targeted events
// (the dealer peek) go to a single player; everything else is room-wide.
func (s *Server) handleEvent(ev game.Event) {
	data, err := json.Marshal(pushMessage{
		Type:    string(ev.Type),
		Room:    ev.RoomCode,
		Payload: ev.Payload,
	})
	if err != nil {
		s.log.Errorf("marshal %s event for room %s: %v", ev.Type, ev.RoomCode, err)
		return
	}

	if ev.TargetID != "" {
		s.sendToPlayer(ev.RoomCode, ev.TargetID, data)
		return
	}
	s.broadcastToRoom(ev.RoomCode, data)
}

// sendToPlayer delivers a push to one subscriber of a room, if connected.
// The enqueue happens under the lock: a session's send channel is closed only
// after it has been unpublished from subscribers, so a push can never hit a
// closed channel.
func (s *Server) sendToPlayer(code, playerID string, msg []byte) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()

	sess := s.subscribers[code][playerID]
	if sess == nil {
		return
	}
	if !sess.enqueue(msg) {
		s.log.Debugf("dropping push to slow session %s in room %s", playerID, code)
	}
}

// broadcastToRoom delivers a push to every current subscriber of a room.
func (s *Server) broadcastToRoom(code string, msg []byte) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()

	for playerID, sess := range s.subscribers[code] {
		if !sess.enqueue(msg) {
			s.log.Debugf("dropping push to slow session %s in room %s", playerID, code)
		}
	}
}

// pushSnapshot sends the current room snapshot to a single session, outside
// the event pipeline.
func (s *Server) pushSnapshot(c *session, room *game.Room) {
	data, err := json.Marshal(pushMessage{
		Type:    string(game.EventRoomUpdated),
		Room:    room.Code(),
		Payload: room.Snapshot(),
	})
	if err != nil {
		s.log.Errorf("marshal snapshot for room %s: %v", room.Code(), err)
		return
	}
	c.enqueue(data)
}
