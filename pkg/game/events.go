package game

// EventType classifies a room event.
type EventType string

const (
	EventRoomUpdated EventType = "room_update"
	EventDealerPeek  EventType = "dealer_peek"
	EventGuess       EventType = "guess"
	EventRoundResult EventType = "round_result"
	EventGameOver    EventType = "game_over"
)

// Event represents a room event with type and payload. TargetID is empty for
// room-wide broadcasts and holds a player id for targeted pushes (the dealer
// peek is the only targeted event).
type Event struct {
	Type     EventType
	RoomCode string
	TargetID string
	Payload  interface{}
}

// EventManager handles notification publication for room events.
type EventManager struct {
	eventChannel chan<- Event
}

// SetEventChannel sets the event channel for the event manager.
func (em *EventManager) SetEventChannel(eventChannel chan<- Event) {
	em.eventChannel = eventChannel
}

// PublishEvent publishes an event to the channel (non-blocking). Events are
// dropped when no channel is attached or the channel is full; the room never
// blocks on its subscribers.
func (em *EventManager) PublishEvent(eventType EventType, roomCode, targetID string, payload interface{}) {
	if em.eventChannel == nil {
		return
	}
	select {
	case em.eventChannel <- Event{
		Type:     eventType,
		RoomCode: roomCode,
		TargetID: targetID,
		Payload:  payload,
	}:
	default:
	}
}

// GuessAnnouncement is broadcast the moment a guess is submitted, before the
// round resolves.
type GuessAnnouncement struct {
	Phase    Phase  `json:"phase"`
	PlayerID string `json:"player_id"`
	Rank     Rank   `json:"rank"`
}

// PeekNotice carries the concealed rank to the dealer.
type PeekNotice struct {
	Rank Rank `json:"rank"`
}

// GameOverNotice is broadcast when the deck empties.
type GameOverNotice struct {
	Tally map[string]int `json:"tally"`
}
