package game

import "errors"

// Validation failures returned synchronously to the requester. None are
// fatal; a rejected action leaves all room state untouched.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrGameAlreadyEnded = errors.New("game already ended")
	ErrDuplicateName    = errors.New("display name already taken in this room")
	ErrNotOwner         = errors.New("only the room owner may do that")
	ErrNotEnoughPlayers = errors.New("at least 2 players required")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrWrongPhase       = errors.New("action not valid in the current phase")
	ErrInvalidRank      = errors.New("rank must be between 2 and 14")

	// ErrEmptyDeck should be unreachable: the room transitions to ended
	// the moment the deck runs out.
	ErrEmptyDeck = errors.New("deck is empty")

	ErrPlayerNotInRoom = errors.New("player not in room")
)
