package game

import (
	"math/rand"
)

// copiesPerRank is how many cards of each rank a fresh deck holds.
const copiesPerRank = 4

// DeckSize is the number of cards in a fresh deck.
const DeckSize = int(MaxRank-MinRank+1) * copiesPerRank

// Deck represents an ordered, shuffled multiset of ranks. It is owned by a
// single room, consumed strictly from the front and never replenished.
type Deck struct {
	cards []Rank
	rng   *rand.Rand
}

// NewDeck creates a new shuffled deck with the given random number generator.
func NewDeck(rng *rand.Rand) *Deck {
	deck := &Deck{
		cards: make([]Rank, 0, DeckSize),
		rng:   rng,
	}

	for r := MinRank; r <= MaxRank; r++ {
		for i := 0; i < copiesPerRank; i++ {
			deck.cards = append(deck.cards, r)
		}
	}

	deck.shuffle()

	return deck
}

// shuffle randomizes the order of the remaining cards.
func (d *Deck) shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// PeekTop returns the next undrawn rank without consuming it. Used for the
// dealer's private look at the concealed card.
func (d *Deck) PeekTop() (Rank, bool) {
	if len(d.cards) == 0 {
		return 0, false
	}
	return d.cards[0], true
}

// Draw removes and returns the top rank from the deck.
func (d *Deck) Draw() (Rank, bool) {
	if len(d.cards) == 0 {
		return 0, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// Remaining returns the number of undrawn cards.
func (d *Deck) Remaining() int {
	return len(d.cards)
}
