package game

// Phase identifies which guess the round is waiting on.
type Phase string

const (
	PhaseFirst  Phase = "first"
	PhaseSecond Phase = "second"
)

// Hint is the directional hint exposed after a wrong first guess.
type Hint string

const (
	HintHigher Hint = "higher"
	HintLower  Hint = "lower"
)

// Round is the per-card scratch state while a room is playing. A nil *Round
// means no card is in play. The concealed rank is unexported so it can only
// leave the room through the dealer peek path; firstGuess and hint are only
// set once the round has moved to the second phase, so the illegal
// combinations (a hint during the first phase, a first-phase round with a
// recorded guess) cannot be represented.
type Round struct {
	phase      Phase
	concealed  Rank
	firstGuess Rank
	hint       Hint
}

func newRound(concealed Rank) *Round {
	return &Round{
		phase:     PhaseFirst,
		concealed: concealed,
	}
}

// Phase returns the current round phase.
func (r *Round) Phase() Phase {
	return r.phase
}

// Concealed returns the concealed rank. Callers are responsible for only
// revealing it to the dealer.
func (r *Round) Concealed() Rank {
	return r.concealed
}

// FirstGuess returns the recorded first guess, valid only in the second phase.
func (r *Round) FirstGuess() (Rank, bool) {
	if r.phase != PhaseSecond {
		return 0, false
	}
	return r.firstGuess, true
}

// Hint returns the directional hint, exposed only from the second phase on.
func (r *Round) Hint() (Hint, bool) {
	if r.phase != PhaseSecond {
		return "", false
	}
	return r.hint, true
}

// advanceToSecond records a wrong first guess and computes the hint. The
// hint is advisory; the second guess is never constrained by it.
func (r *Round) advanceToSecond(guess Rank) {
	r.firstGuess = guess
	if guess < r.concealed {
		r.hint = HintHigher
	} else {
		r.hint = HintLower
	}
	r.phase = PhaseSecond
}
