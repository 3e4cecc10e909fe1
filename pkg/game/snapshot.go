package game

// Outcome classifies how a round resolved.
type Outcome string

const (
	OutcomeFirstCorrect  Outcome = "first-correct"
	OutcomeSecondCorrect Outcome = "second-correct"
	OutcomeSecondWrong   Outcome = "second-wrong"
)

// RoundResult describes a resolved round: who revealed the card, who drinks
// and how much.
type RoundResult struct {
	Outcome   Outcome `json:"outcome"`
	Actual    Rank    `json:"actual"`
	Penalty   int     `json:"penalty"`
	PayerID   string  `json:"payer_id"`
	GuesserID string  `json:"guesser_id"`
}

// RevealedCard is one history entry, recorded exactly once per completed card.
type RevealedCard struct {
	Rank       Rank   `json:"rank"`
	RevealedBy string `json:"revealed_by"`
}

// RoundSnapshot is the projected round state. The concealed rank is
// deliberately absent; it only travels on the dealer peek path.
type RoundSnapshot struct {
	Phase      Phase `json:"phase"`
	FirstGuess *Rank `json:"first_guess,omitempty"`
	Hint       *Hint `json:"hint,omitempty"`
}

// RoomSnapshot is the full projected room state broadcast after every
// state-changing action.
type RoomSnapshot struct {
	Code          string         `json:"code"`
	Status        string         `json:"status"`
	OwnerID       string         `json:"owner_id"`
	Players       []Player       `json:"players"`
	DealerIndex   int            `json:"dealer_index"`
	TurnIndex     int            `json:"turn_index"`
	DeckRemaining int            `json:"deck_remaining"`
	Round         *RoundSnapshot `json:"round,omitempty"`
	History       []RevealedCard `json:"history"`
	Tally         map[string]int `json:"tally"`
	FailStreak    int            `json:"fail_streak"`
}
