package game

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"

	"ridebus/pkg/statemachine"
)

// Room status strings.
const (
	StatusLobby   = "lobby"
	StatusPlaying = "playing"
	StatusEnded   = "ended"
)

// DefaultFailStreakLimit is the number of consecutive second-wrong rounds
// that forces a dealer change.
const DefaultFailStreakLimit = 3

const maxNameLen = 20

// RoomStateFn represents a room state function following Rob Pike's pattern.
type RoomStateFn = statemachine.StateFn[Room]

// Player is a seat in a room. Seat order is fixed at join time and is
// significant for turn rotation; a disconnect only clears Connected so that
// dealer/turn indices stay valid.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// RoomConfig holds configuration for a new room.
type RoomConfig struct {
	Code string
	Log  slog.Logger
	Rng  *rand.Rand

	// FailStreakLimit overrides DefaultFailStreakLimit when positive.
	FailStreakLimit int

	// RotateEveryCard switches to the variant where the dealer rotates
	// after every resolved card regardless of the fail streak.
	RotateEveryCard bool
}

// Room is the aggregate root: players, dealer/turn pointers, deck, round,
// history, tally and fail streak. All mutation happens under mu; events are
// published non-blocking while the lock is held.
type Room struct {
	log slog.Logger
	cfg RoomConfig

	mu      sync.RWMutex
	ownerID string
	players []*Player

	dealerIdx  int
	turnIdx    int
	deck       *Deck
	round      *Round
	history    []RevealedCard
	tally      map[string]int
	failStreak int

	rng        *rand.Rand
	createdAt  time.Time
	emptySince time.Time

	eventManager *EventManager
	stateMachine *statemachine.StateMachine[Room]
}

// NewRoom creates a room in the lobby state with the creator seated as sole
// player and owner.
func NewRoom(cfg RoomConfig, ownerID, ownerName string) *Room {
	if cfg.Log == nil {
		cfg.Log = slog.NewBackend(io.Discard).Logger("ROOM")
	}
	if cfg.Rng == nil {
		cfg.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	r := &Room{
		log:     cfg.Log,
		cfg:     cfg,
		ownerID: ownerID,
		players: []*Player{{
			ID:        ownerID,
			Name:      cleanName(ownerName),
			Connected: true,
		}},
		rng:          cfg.Rng,
		createdAt:    time.Now(),
		eventManager: &EventManager{},
	}

	r.stateMachine = statemachine.NewStateMachine(r, roomStateLobby)

	return r
}

// State functions. Each performs its work and returns the next state.

func roomStateLobby(entity *Room) RoomStateFn {
	// Waits for the owner's start trigger.
	return roomStateLobby
}

func roomStatePlaying(entity *Room) RoomStateFn {
	// The game ends exactly when the deck is exhausted, never earlier.
	if entity.deck != nil && entity.deck.Remaining() == 0 && entity.round == nil {
		return roomStateEnded
	}
	return roomStatePlaying
}

func roomStateEnded(entity *Room) RoomStateFn {
	// Terminal unless the owner restarts, which dispatches playing directly.
	return roomStateEnded
}

// Status returns the room status string (lobby, playing or ended).
func (r *Room) Status() string {
	currentState := r.stateMachine.GetCurrentState()
	if currentState == nil {
		return StatusEnded
	}

	// Use function pointer comparison to determine state
	switch fmt.Sprintf("%p", currentState) {
	case fmt.Sprintf("%p", roomStateLobby):
		return StatusLobby
	case fmt.Sprintf("%p", roomStatePlaying):
		return StatusPlaying
	case fmt.Sprintf("%p", roomStateEnded):
		return StatusEnded
	default:
		return "unknown"
	}
}

// SetEventChannel attaches the channel room events are published to.
func (r *Room) SetEventChannel(eventChannel chan<- Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventManager.SetEventChannel(eventChannel)
}

// Code returns the immutable room code.
func (r *Room) Code() string {
	return r.cfg.Code
}

// OwnerID returns the id of the player who created the room.
func (r *Room) OwnerID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ownerID
}

// CreatedAt returns the room creation time.
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// nextNonDealerSeat returns the seat after fromIdx, wrapping, skipping the
// dealer's seat. It is the single rotation primitive used everywhere so the
// dealer-never-holds-turn invariant cannot be violated by a missed call site.
func nextNonDealerSeat(fromIdx, dealerIdx, playerCount int) int {
	idx := (fromIdx + 1) % playerCount
	if idx == dealerIdx {
		idx = (idx + 1) % playerCount
	}
	return idx
}

func absDelta(a, b Rank) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > maxNameLen {
		name = string(runes[:maxNameLen])
	}
	if name == "" {
		name = "Player"
	}
	return name
}

// AddPlayer seats a new player. Joining is refused only once the game has
// ended; a join during play is allowed but the newcomer has no tally entry
// until the next start.
func (r *Room) AddPlayer(id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status() == StatusEnded {
		return ErrGameAlreadyEnded
	}

	name = cleanName(name)
	for _, p := range r.players {
		if p.Connected && strings.EqualFold(p.Name, name) {
			return ErrDuplicateName
		}
	}

	r.players = append(r.players, &Player{ID: id, Name: name, Connected: true})
	r.emptySince = time.Time{}

	r.log.Debugf("room %s: player %s (%q) joined, %d seated", r.cfg.Code, id, name, len(r.players))
	r.publishSnapshotLocked()
	return nil
}

// RenamePlayer updates a player's display name. A blank name keeps the old
// one.
func (r *Room) RenamePlayer(id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.playerLocked(id)
	if p == nil {
		return ErrPlayerNotInRoom
	}

	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > maxNameLen {
		name = string(runes[:maxNameLen])
	}
	if name != "" {
		p.Name = name
	}

	r.publishSnapshotLocked()
	return nil
}

// SetConnected flags a player as connected or disconnected. The seat and any
// tally entry survive; only the flag degrades.
func (r *Room) SetConnected(id string, connected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.playerLocked(id)
	if p == nil {
		return ErrPlayerNotInRoom
	}

	p.Connected = connected
	if connected {
		r.emptySince = time.Time{}
	} else if r.allDisconnectedLocked() && r.emptySince.IsZero() {
		r.emptySince = time.Now()
	}

	r.publishSnapshotLocked()
	return nil
}

// EmptySince reports when the room lost its last connected player. The
// second return is false while anyone is still connected.
func (r *Room) EmptySince() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.allDisconnectedLocked() || r.emptySince.IsZero() {
		return time.Time{}, false
	}
	return r.emptySince, true
}

// HasPlayer reports whether id holds a seat in the room.
func (r *Room) HasPlayer(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playerLocked(id) != nil
}

// StartGame starts a game from the lobby. Owner-only, needs at least two
// seated players.
func (r *Room) StartGame(requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status() != StatusLobby {
		return ErrWrongPhase
	}
	return r.startLocked(requesterID)
}

// RestartGame starts a fresh game from the ended state. It behaves exactly
// like the initial start: fresh shuffle, fresh tally, random dealer.
func (r *Room) RestartGame(requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status() != StatusEnded {
		return ErrWrongPhase
	}
	return r.startLocked(requesterID)
}

func (r *Room) startLocked(requesterID string) error {
	if requesterID != r.ownerID {
		return ErrNotOwner
	}
	if len(r.players) < 2 {
		return ErrNotEnoughPlayers
	}

	r.deck = NewDeck(r.rng)
	r.history = nil
	r.tally = make(map[string]int, len(r.players))
	for _, p := range r.players {
		r.tally[p.ID] = 0
	}
	r.failStreak = 0
	r.dealerIdx = r.rng.Intn(len(r.players))
	r.turnIdx = nextNonDealerSeat(r.dealerIdx, r.dealerIdx, len(r.players))

	r.stateMachine.Dispatch(roomStatePlaying)
	r.startRoundLocked()

	r.log.Infof("room %s: game started, dealer=%d turn=%d", r.cfg.Code, r.dealerIdx, r.turnIdx)
	r.publishSnapshotLocked()
	return nil
}

// startRoundLocked opens a round on the current top card and privately
// notifies the dealer.
func (r *Room) startRoundLocked() {
	top, ok := r.deck.PeekTop()
	if !ok {
		r.round = nil
		r.stateMachine.Dispatch(roomStatePlaying)
		return
	}

	r.round = newRound(top)
	r.eventManager.PublishEvent(EventDealerPeek, r.cfg.Code, r.players[r.dealerIdx].ID, PeekNotice{Rank: top})
}

// Peek returns the concealed rank to the current dealer. Read-only.
func (r *Room) Peek(requesterID string) (Rank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.round == nil {
		return 0, ErrWrongPhase
	}
	if r.players[r.dealerIdx].ID != requesterID {
		return 0, ErrNotYourTurn
	}
	return r.round.Concealed(), nil
}

// guardGuessLocked enforces the guess preconditions in order: a round must
// be live, the requester must hold the turn, the phase must match and the
// rank must be playable. Any violation mutates nothing.
func (r *Room) guardGuessLocked(requesterID string, phase Phase, rank Rank) error {
	if r.Status() != StatusPlaying || r.round == nil {
		return ErrWrongPhase
	}
	if r.players[r.turnIdx].ID != requesterID {
		return ErrNotYourTurn
	}
	if r.round.Phase() != phase {
		return ErrWrongPhase
	}
	if !rank.Valid() {
		return ErrInvalidRank
	}
	return nil
}

// GuessFirst submits the first guess of the round. On an exact hit the
// dealer drinks the card's face value and the round resolves; otherwise the
// round moves to the second phase with a directional hint and the returned
// result is nil.
func (r *Room) GuessFirst(requesterID string, rank Rank) (*RoundResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.guardGuessLocked(requesterID, PhaseFirst, rank); err != nil {
		return nil, err
	}

	r.eventManager.PublishEvent(EventGuess, r.cfg.Code, "", GuessAnnouncement{
		Phase:    PhaseFirst,
		PlayerID: requesterID,
		Rank:     rank,
	})

	actual := r.round.Concealed()
	if rank != actual {
		r.round.advanceToSecond(rank)
		r.publishSnapshotLocked()
		return nil, nil
	}

	dealerID := r.players[r.dealerIdx].ID
	result := &RoundResult{
		Outcome:   OutcomeFirstCorrect,
		Actual:    actual,
		Penalty:   actual.Value(),
		PayerID:   dealerID,
		GuesserID: requesterID,
	}
	r.addPenaltyLocked(dealerID, result.Penalty)
	r.failStreak = 0

	if err := r.resolveRoundLocked(result); err != nil {
		return nil, err
	}
	return result, nil
}

// GuessSecond submits the second guess. A hit makes the dealer drink the
// distance between the first guess and the card; a miss makes the guesser
// drink the distance between this guess and the card and bumps the fail
// streak.
func (r *Room) GuessSecond(requesterID string, rank Rank) (*RoundResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.guardGuessLocked(requesterID, PhaseSecond, rank); err != nil {
		return nil, err
	}

	r.eventManager.PublishEvent(EventGuess, r.cfg.Code, "", GuessAnnouncement{
		Phase:    PhaseSecond,
		PlayerID: requesterID,
		Rank:     rank,
	})

	actual := r.round.Concealed()
	firstGuess, _ := r.round.FirstGuess()

	var result *RoundResult
	if rank == actual {
		dealerID := r.players[r.dealerIdx].ID
		result = &RoundResult{
			Outcome:   OutcomeSecondCorrect,
			Actual:    actual,
			Penalty:   absDelta(firstGuess, actual),
			PayerID:   dealerID,
			GuesserID: requesterID,
		}
		r.addPenaltyLocked(dealerID, result.Penalty)
		r.failStreak = 0
	} else {
		result = &RoundResult{
			Outcome:   OutcomeSecondWrong,
			Actual:    actual,
			Penalty:   absDelta(rank, actual),
			PayerID:   requesterID,
			GuesserID: requesterID,
		}
		r.addPenaltyLocked(requesterID, result.Penalty)
		r.failStreak++
	}

	if err := r.resolveRoundLocked(result); err != nil {
		return nil, err
	}
	return result, nil
}

// addPenaltyLocked credits drinks to a tally entry. The key set is frozen at
// game start, so a mid-game joiner accrues nothing.
func (r *Room) addPenaltyLocked(id string, drinks int) {
	if _, ok := r.tally[id]; ok {
		r.tally[id] += drinks
	}
}

// resolveRoundLocked consumes the revealed card from the deck, records it in
// history, and either ends the game or rotates into the next round.
func (r *Room) resolveRoundLocked(result *RoundResult) error {
	if _, ok := r.deck.Draw(); !ok {
		// A live round implies an undrawn card; this is an invariant break.
		r.log.Errorf("room %s: %v during round resolution", r.cfg.Code, ErrEmptyDeck)
		return ErrEmptyDeck
	}

	r.history = append(r.history, RevealedCard{
		Rank:       result.Actual,
		RevealedBy: result.GuesserID,
	})

	r.eventManager.PublishEvent(EventRoundResult, r.cfg.Code, "", result)
	r.round = nil

	if r.deck.Remaining() == 0 {
		r.stateMachine.Dispatch(roomStatePlaying)
		r.log.Infof("room %s: deck exhausted, game over", r.cfg.Code)
		r.eventManager.PublishEvent(EventGameOver, r.cfg.Code, "", GameOverNotice{Tally: r.tallyCopyLocked()})
		r.publishSnapshotLocked()
		return nil
	}

	n := len(r.players)
	switch {
	case r.cfg.RotateEveryCard:
		r.dealerIdx = (r.dealerIdx + 1) % n
		r.turnIdx = nextNonDealerSeat(r.dealerIdx, r.dealerIdx, n)
		r.failStreak = 0
	case r.failStreak >= r.failStreakLimit():
		r.dealerIdx = (r.dealerIdx + 1) % n
		r.turnIdx = nextNonDealerSeat(r.dealerIdx, r.dealerIdx, n)
		r.failStreak = 0
		r.log.Debugf("room %s: fail streak hit, dealer rotated to seat %d", r.cfg.Code, r.dealerIdx)
	default:
		r.turnIdx = nextNonDealerSeat(r.turnIdx, r.dealerIdx, n)
	}

	r.startRoundLocked()
	r.publishSnapshotLocked()
	return nil
}

func (r *Room) failStreakLimit() int {
	if r.cfg.FailStreakLimit > 0 {
		return r.cfg.FailStreakLimit
	}
	return DefaultFailStreakLimit
}

func (r *Room) playerLocked(id string) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) allDisconnectedLocked() bool {
	for _, p := range r.players {
		if p.Connected {
			return false
		}
	}
	return true
}

func (r *Room) tallyCopyLocked() map[string]int {
	tally := make(map[string]int, len(r.tally))
	for id, drinks := range r.tally {
		tally[id] = drinks
	}
	return tally
}

// Snapshot returns the projected room state for broadcast.
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() RoomSnapshot {
	players := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, *p)
	}

	var round *RoundSnapshot
	if r.round != nil {
		rs := &RoundSnapshot{Phase: r.round.Phase()}
		if firstGuess, ok := r.round.FirstGuess(); ok {
			fg := firstGuess
			rs.FirstGuess = &fg
		}
		if hint, ok := r.round.Hint(); ok {
			h := hint
			rs.Hint = &h
		}
		round = rs
	}

	deckRemaining := 0
	if r.deck != nil {
		deckRemaining = r.deck.Remaining()
	}

	return RoomSnapshot{
		Code:          r.cfg.Code,
		Status:        r.Status(),
		OwnerID:       r.ownerID,
		Players:       players,
		DealerIndex:   r.dealerIdx,
		TurnIndex:     r.turnIdx,
		DeckRemaining: deckRemaining,
		Round:         round,
		History:       append([]RevealedCard(nil), r.history...),
		Tally:         r.tallyCopyLocked(),
		FailStreak:    r.failStreak,
	}
}

func (r *Room) publishSnapshotLocked() {
	r.eventManager.PublishEvent(EventRoomUpdated, r.cfg.Code, "", r.snapshotLocked())
}
