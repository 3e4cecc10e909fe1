package game

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seatNames = []string{"Alice", "Bob", "Cara", "Dave", "Eve"}

// seatedRoom creates a lobby room with the given number of players. Player
// ids are p0 (the owner) through p<n-1>.
func seatedRoom(t *testing.T, seed int64, players int, mods ...func(*RoomConfig)) *Room {
	t.Helper()

	cfg := RoomConfig{
		Code: "TEST42",
		Rng:  rand.New(rand.NewSource(seed)),
	}
	for _, mod := range mods {
		mod(&cfg)
	}

	r := NewRoom(cfg, "p0", seatNames[0])
	for i := 1; i < players; i++ {
		require.NoError(t, r.AddPlayer(fmt.Sprintf("p%d", i), seatNames[i]))
	}
	return r
}

func startedRoom(t *testing.T, seed int64, players int, mods ...func(*RoomConfig)) *Room {
	t.Helper()
	r := seatedRoom(t, seed, players, mods...)
	require.NoError(t, r.StartGame("p0"))
	return r
}

func dealerID(r *Room) string {
	snap := r.Snapshot()
	return snap.Players[snap.DealerIndex].ID
}

func turnID(r *Room) string {
	snap := r.Snapshot()
	return snap.Players[snap.TurnIndex].ID
}

// concealed learns the hidden rank the way the dealer would.
func concealed(t *testing.T, r *Room) Rank {
	t.Helper()
	rank, err := r.Peek(dealerID(r))
	require.NoError(t, err)
	return rank
}

func wrongRank(actual Rank) Rank {
	if actual == MaxRank {
		return MinRank
	}
	return actual + 1
}

// playAllFirstCorrect drives the game to deck exhaustion with an exact first
// guess on every card, checking the core invariants along the way.
func playAllFirstCorrect(t *testing.T, r *Room) {
	t.Helper()
	for r.Status() == StatusPlaying {
		res, err := r.GuessFirst(turnID(r), concealed(t, r))
		require.NoError(t, err)
		require.NotNil(t, res)
		require.Equal(t, OutcomeFirstCorrect, res.Outcome)

		snap := r.Snapshot()
		require.Equal(t, DeckSize, len(snap.History)+snap.DeckRemaining,
			"revealed plus remaining must always cover the full deck")
		if snap.Status == StatusPlaying {
			require.NotEqual(t, snap.DealerIndex, snap.TurnIndex,
				"dealer must never hold the guessing turn")
		}
	}
}

func TestStartGameValidation(t *testing.T) {
	r := seatedRoom(t, 1, 1)

	err := r.StartGame("p0")
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	require.NoError(t, r.AddPlayer("p1", "Bob"))

	err = r.StartGame("p1")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, StatusLobby, r.Status())

	require.NoError(t, r.StartGame("p0"))
	assert.Equal(t, StatusPlaying, r.Status())

	snap := r.Snapshot()
	assert.NotEqual(t, snap.DealerIndex, snap.TurnIndex)
	assert.NotNil(t, snap.Round)
	assert.Equal(t, PhaseFirst, snap.Round.Phase)
	assert.Equal(t, DeckSize, snap.DeckRemaining)
	assert.Len(t, snap.Tally, 2)

	// Starting twice is rejected.
	err = r.StartGame("p0")
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestFirstGuessCorrect(t *testing.T) {
	r := startedRoom(t, 2, 2)

	dealer := dealerID(r)
	guesser := turnID(r)
	rank := concealed(t, r)

	res, err := r.GuessFirst(guesser, rank)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, OutcomeFirstCorrect, res.Outcome)
	assert.Equal(t, rank, res.Actual)
	assert.Equal(t, rank.Value(), res.Penalty)
	assert.Equal(t, dealer, res.PayerID)
	assert.Equal(t, guesser, res.GuesserID)

	snap := r.Snapshot()
	assert.Equal(t, rank.Value(), snap.Tally[dealer])
	assert.Zero(t, snap.Tally[guesser])
	assert.Zero(t, snap.FailStreak)
	assert.Equal(t, DeckSize-1, snap.DeckRemaining)
	require.Len(t, snap.History, 1)
	assert.Equal(t, RevealedCard{Rank: rank, RevealedBy: guesser}, snap.History[0])

	// A new round opened immediately on the next card.
	require.NotNil(t, snap.Round)
	assert.Equal(t, PhaseFirst, snap.Round.Phase)
}

func TestSecondGuessCorrect(t *testing.T) {
	r := startedRoom(t, 3, 2)

	dealer := dealerID(r)
	guesser := turnID(r)
	rank := concealed(t, r)
	first := wrongRank(rank)

	res, err := r.GuessFirst(guesser, first)
	require.NoError(t, err)
	assert.Nil(t, res, "a wrong first guess must not resolve the round")

	snap := r.Snapshot()
	require.NotNil(t, snap.Round)
	assert.Equal(t, PhaseSecond, snap.Round.Phase)
	require.NotNil(t, snap.Round.FirstGuess)
	assert.Equal(t, first, *snap.Round.FirstGuess)
	require.NotNil(t, snap.Round.Hint)
	if first < rank {
		assert.Equal(t, HintHigher, *snap.Round.Hint)
	} else {
		assert.Equal(t, HintLower, *snap.Round.Hint)
	}

	res, err = r.GuessSecond(guesser, rank)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, OutcomeSecondCorrect, res.Outcome)
	assert.Equal(t, absDelta(first, rank), res.Penalty)
	assert.Equal(t, dealer, res.PayerID)

	snap = r.Snapshot()
	assert.Equal(t, absDelta(first, rank), snap.Tally[dealer])
	assert.Zero(t, snap.FailStreak, "a correct second guess resets the streak")
}

func TestSecondGuessWrong(t *testing.T) {
	r := startedRoom(t, 4, 2)

	dealer := dealerID(r)
	guesser := turnID(r)
	rank := concealed(t, r)
	wrong := wrongRank(rank)

	_, err := r.GuessFirst(guesser, wrong)
	require.NoError(t, err)

	res, err := r.GuessSecond(guesser, wrong)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, OutcomeSecondWrong, res.Outcome)
	assert.Equal(t, absDelta(wrong, rank), res.Penalty)
	assert.Equal(t, guesser, res.PayerID, "a second miss lands on the guesser")

	snap := r.Snapshot()
	assert.Equal(t, absDelta(wrong, rank), snap.Tally[guesser])
	assert.Zero(t, snap.Tally[dealer])
	assert.Equal(t, 1, snap.FailStreak)
}

func TestFailStreakRotatesDealer(t *testing.T) {
	r := startedRoom(t, 5, 3)

	before := r.Snapshot()
	oldDealer := before.DealerIndex

	// Three consecutive second-phase misses, by whoever holds the turn.
	for i := 0; i < DefaultFailStreakLimit; i++ {
		guesser := turnID(r)
		wrong := wrongRank(concealed(t, r))

		_, err := r.GuessFirst(guesser, wrong)
		require.NoError(t, err)
		res, err := r.GuessSecond(guesser, wrong)
		require.NoError(t, err)
		require.Equal(t, OutcomeSecondWrong, res.Outcome)

		snap := r.Snapshot()
		if i < DefaultFailStreakLimit-1 {
			assert.Equal(t, i+1, snap.FailStreak)
			assert.Equal(t, oldDealer, snap.DealerIndex)
		}
	}

	snap := r.Snapshot()
	assert.Equal(t, (oldDealer+1)%3, snap.DealerIndex, "streak must rotate the dealer one seat")
	assert.Zero(t, snap.FailStreak, "rotation resets the streak")
	assert.NotEqual(t, snap.DealerIndex, snap.TurnIndex)
}

func TestStreakResetOnAnyCorrectGuess(t *testing.T) {
	r := startedRoom(t, 6, 3)

	// Two misses, then an exact first guess.
	for i := 0; i < 2; i++ {
		guesser := turnID(r)
		wrong := wrongRank(concealed(t, r))
		_, err := r.GuessFirst(guesser, wrong)
		require.NoError(t, err)
		_, err = r.GuessSecond(guesser, wrong)
		require.NoError(t, err)
	}
	require.Equal(t, 2, r.Snapshot().FailStreak)

	_, err := r.GuessFirst(turnID(r), concealed(t, r))
	require.NoError(t, err)
	assert.Zero(t, r.Snapshot().FailStreak)
}

func TestFullGameDeckExhaustion(t *testing.T) {
	r := startedRoom(t, 7, 3)

	playAllFirstCorrect(t, r)

	snap := r.Snapshot()
	assert.Equal(t, StatusEnded, snap.Status)
	assert.Nil(t, snap.Round)
	assert.Zero(t, snap.DeckRemaining)
	require.Len(t, snap.History, DeckSize)

	// Every card's face value went to some dealer, nothing else.
	wantDrinks := 0
	for _, card := range snap.History {
		wantDrinks += card.Rank.Value()
	}
	gotDrinks := 0
	for _, drinks := range snap.Tally {
		gotDrinks += drinks
	}
	assert.Equal(t, wantDrinks, gotDrinks)

	// Ended rooms accept no more play or joins.
	_, err := r.GuessFirst(turnID(r), MinRank)
	assert.ErrorIs(t, err, ErrWrongPhase)
	_, err = r.Peek(dealerID(r))
	assert.ErrorIs(t, err, ErrWrongPhase)
	err = r.AddPlayer("late", "Zoe")
	assert.ErrorIs(t, err, ErrGameAlreadyEnded)
}

func TestEmptyDeckDuringResolutionMutatesNothing(t *testing.T) {
	r := startedRoom(t, 20, 2)

	// Force the unreachable state: a live round over an exhausted deck.
	r.mu.Lock()
	r.deck = &Deck{}
	r.mu.Unlock()

	rank := concealed(t, r)
	before := len(r.Snapshot().History)

	_, err := r.GuessFirst(turnID(r), rank)
	require.ErrorIs(t, err, ErrEmptyDeck)
	assert.Len(t, r.Snapshot().History, before, "the failed resolution must not record a card")
}

func TestRejectedActionsLeaveStateUntouched(t *testing.T) {
	r := startedRoom(t, 8, 3)

	before := r.Snapshot()
	turn := before.Players[before.TurnIndex].ID
	dealer := before.Players[before.DealerIndex].ID

	var other string
	for _, p := range before.Players {
		if p.ID != turn && p.ID != dealer {
			other = p.ID
		}
	}

	_, err := r.GuessFirst(other, MinRank)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = r.GuessFirst(dealer, MinRank)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = r.GuessFirst(turn, Rank(1))
	assert.ErrorIs(t, err, ErrInvalidRank)

	_, err = r.GuessFirst(turn, Rank(15))
	assert.ErrorIs(t, err, ErrInvalidRank)

	_, err = r.GuessSecond(turn, MinRank)
	assert.ErrorIs(t, err, ErrWrongPhase, "second guess during the first phase")

	_, err = r.Peek(other)
	assert.ErrorIs(t, err, ErrNotYourTurn, "only the dealer may peek")

	err = r.StartGame("p0")
	assert.ErrorIs(t, err, ErrWrongPhase)

	err = r.RestartGame("p0")
	assert.ErrorIs(t, err, ErrWrongPhase)

	assert.Equal(t, before, r.Snapshot(), "rejected actions must not mutate the room")
}

func TestRestartGame(t *testing.T) {
	r := startedRoom(t, 9, 2)
	playAllFirstCorrect(t, r)
	require.Equal(t, StatusEnded, r.Status())

	err := r.RestartGame("p1")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, StatusEnded, r.Status())

	require.NoError(t, r.RestartGame("p0"))

	snap := r.Snapshot()
	assert.Equal(t, StatusPlaying, snap.Status)
	assert.Empty(t, snap.History)
	assert.Equal(t, DeckSize, snap.DeckRemaining)
	assert.Zero(t, snap.FailStreak)
	require.NotNil(t, snap.Round)
	for id, drinks := range snap.Tally {
		assert.Zerof(t, drinks, "tally for %s must reset", id)
	}
}

func TestJoinDuringPlay(t *testing.T) {
	r := startedRoom(t, 10, 2)

	require.NoError(t, r.AddPlayer("p2", "Cara"))

	snap := r.Snapshot()
	require.Len(t, snap.Players, 3)
	_, ok := snap.Tally["p2"]
	assert.False(t, ok, "a mid-game joiner gets no tally entry until the next start")

	// Play a card; the joiner still has no entry.
	_, err := r.GuessFirst(turnID(r), concealed(t, r))
	require.NoError(t, err)
	_, ok = r.Snapshot().Tally["p2"]
	assert.False(t, ok)

	// A restart deals them in.
	playAllFirstCorrect(t, r)
	require.NoError(t, r.RestartGame("p0"))
	_, ok = r.Snapshot().Tally["p2"]
	assert.True(t, ok)
}

func TestDuplicateNames(t *testing.T) {
	r := seatedRoom(t, 11, 2)

	err := r.AddPlayer("px", "alice")
	assert.ErrorIs(t, err, ErrDuplicateName, "name matching is case-insensitive")

	// A disconnected player's name is up for grabs.
	require.NoError(t, r.SetConnected("p1", false))
	require.NoError(t, r.AddPlayer("py", "Bob"))
}

func TestEmptySince(t *testing.T) {
	r := seatedRoom(t, 12, 2)

	_, empty := r.EmptySince()
	assert.False(t, empty)

	require.NoError(t, r.SetConnected("p0", false))
	_, empty = r.EmptySince()
	assert.False(t, empty, "one player still connected")

	require.NoError(t, r.SetConnected("p1", false))
	since, empty := r.EmptySince()
	assert.True(t, empty)
	assert.False(t, since.IsZero())

	require.NoError(t, r.SetConnected("p0", true))
	_, empty = r.EmptySince()
	assert.False(t, empty, "a reconnect clears the countdown")
}

func TestRotateEveryCard(t *testing.T) {
	r := startedRoom(t, 13, 3, func(cfg *RoomConfig) {
		cfg.RotateEveryCard = true
	})

	oldDealer := r.Snapshot().DealerIndex

	_, err := r.GuessFirst(turnID(r), concealed(t, r))
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, (oldDealer+1)%3, snap.DealerIndex)
	assert.NotEqual(t, snap.DealerIndex, snap.TurnIndex)
}

func TestRenamePlayer(t *testing.T) {
	r := seatedRoom(t, 14, 2)

	require.NoError(t, r.RenamePlayer("p1", "  Zoe  "))
	assert.Equal(t, "Zoe", r.Snapshot().Players[1].Name)

	require.NoError(t, r.RenamePlayer("p1", "   "))
	assert.Equal(t, "Zoe", r.Snapshot().Players[1].Name, "a blank rename keeps the old name")

	long := "abcdefghijklmnopqrstuvwxyz"
	require.NoError(t, r.RenamePlayer("p1", long))
	assert.Equal(t, long[:maxNameLen], r.Snapshot().Players[1].Name)

	err := r.RenamePlayer("ghost", "Boo")
	assert.ErrorIs(t, err, ErrPlayerNotInRoom)
}

func TestJoinNameCleaning(t *testing.T) {
	r := seatedRoom(t, 15, 1)

	require.NoError(t, r.AddPlayer("p1", "   "))
	assert.Equal(t, "Player", r.Snapshot().Players[1].Name)

	require.NoError(t, r.AddPlayer("p2", "abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "abcdefghijklmnopqrst", r.Snapshot().Players[2].Name)
}

func TestRoomEvents(t *testing.T) {
	r := seatedRoom(t, 16, 2)
	events := make(chan Event, 128)
	r.SetEventChannel(events)

	require.NoError(t, r.StartGame("p0"))

	dealer := dealerID(r)
	guesser := turnID(r)
	rank := concealed(t, r)
	_, err := r.GuessFirst(guesser, rank)
	require.NoError(t, err)

	drained := make([]Event, 0, len(events))
	for len(events) > 0 {
		drained = append(drained, <-events)
	}

	guessIdx, resultIdx, peekIdx := -1, -1, -1
	for i, ev := range drained {
		assert.Equal(t, "TEST42", ev.RoomCode)
		switch ev.Type {
		case EventDealerPeek:
			if peekIdx == -1 {
				peekIdx = i
				assert.Equal(t, dealer, ev.TargetID, "the peek goes to the dealer only")
				assert.Equal(t, PeekNotice{Rank: rank}, ev.Payload)
			}
		case EventGuess:
			guessIdx = i
			assert.Empty(t, ev.TargetID)
		case EventRoundResult:
			resultIdx = i
		}
	}

	require.NotEqual(t, -1, peekIdx, "dealer peek not published")
	require.NotEqual(t, -1, guessIdx, "guess announcement not published")
	require.NotEqual(t, -1, resultIdx, "round result not published")
	assert.Less(t, guessIdx, resultIdx, "the guess is announced before the round resolves")
}

func TestGameOverEvent(t *testing.T) {
	r := startedRoom(t, 17, 2)
	events := make(chan Event, 1024)
	r.SetEventChannel(events)

	playAllFirstCorrect(t, r)

	var over *GameOverNotice
	for len(events) > 0 {
		ev := <-events
		if ev.Type == EventGameOver {
			notice := ev.Payload.(GameOverNotice)
			over = &notice
		}
	}

	require.NotNil(t, over, "game over not published")
	assert.Equal(t, r.Snapshot().Tally, over.Tally)
}
