package game

import "strconv"

// Rank represents a card rank. Suits carry no meaning in this game, so a
// card is nothing more than its rank.
type Rank int

// Rank bounds. 11-14 are Jack, Queen, King and Ace.
const (
	MinRank Rank = 2
	MaxRank Rank = 14
)

// Valid reports whether r is a playable rank.
func (r Rank) Valid() bool {
	return r >= MinRank && r <= MaxRank
}

// Value returns the numeric drink value of the rank (2-14).
func (r Rank) Value() int {
	return int(r)
}

// String returns the face name of the rank.
func (r Rank) String() string {
	switch r {
	case 11:
		return "J"
	case 12:
		return "Q"
	case 13:
		return "K"
	case 14:
		return "A"
	default:
		return strconv.Itoa(int(r))
	}
}
