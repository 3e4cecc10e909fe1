package game

import (
	"math/rand"
	"testing"
)

func TestNewDeckComposition(t *testing.T) {
	deck := NewDeck(rand.New(rand.NewSource(1)))

	if deck.Remaining() != DeckSize {
		t.Fatalf("expected %d cards, got %d", DeckSize, deck.Remaining())
	}

	counts := make(map[Rank]int)
	for {
		card, ok := deck.Draw()
		if !ok {
			break
		}
		if !card.Valid() {
			t.Fatalf("drew invalid rank %d", card)
		}
		counts[card]++
	}

	for r := MinRank; r <= MaxRank; r++ {
		if counts[r] != 4 {
			t.Errorf("rank %s: expected 4 copies, got %d", r, counts[r])
		}
	}
}

func TestDeckSeededDeterminism(t *testing.T) {
	a := NewDeck(rand.New(rand.NewSource(42)))
	b := NewDeck(rand.New(rand.NewSource(42)))

	for i := 0; i < DeckSize; i++ {
		ca, _ := a.Draw()
		cb, _ := b.Draw()
		if ca != cb {
			t.Fatalf("decks with the same seed diverged at card %d: %s vs %s", i, ca, cb)
		}
	}
}

func TestDeckPeekDoesNotConsume(t *testing.T) {
	deck := NewDeck(rand.New(rand.NewSource(7)))

	top, ok := deck.PeekTop()
	if !ok {
		t.Fatal("peek on a fresh deck failed")
	}
	if deck.Remaining() != DeckSize {
		t.Fatalf("peek consumed a card: %d remaining", deck.Remaining())
	}

	again, _ := deck.PeekTop()
	if again != top {
		t.Fatalf("repeated peek changed: %s then %s", top, again)
	}

	drawn, ok := deck.Draw()
	if !ok || drawn != top {
		t.Fatalf("draw returned %s, peek promised %s", drawn, top)
	}
	if deck.Remaining() != DeckSize-1 {
		t.Fatalf("expected %d remaining after draw, got %d", DeckSize-1, deck.Remaining())
	}
}

func TestDeckDrawToEmpty(t *testing.T) {
	deck := NewDeck(rand.New(rand.NewSource(3)))

	for i := 0; i < DeckSize; i++ {
		if _, ok := deck.Draw(); !ok {
			t.Fatalf("draw %d failed with cards remaining", i)
		}
	}

	if deck.Remaining() != 0 {
		t.Fatalf("expected empty deck, %d remaining", deck.Remaining())
	}
	if _, ok := deck.Draw(); ok {
		t.Fatal("draw from an empty deck succeeded")
	}
	if _, ok := deck.PeekTop(); ok {
		t.Fatal("peek on an empty deck succeeded")
	}
}

func TestDeckShuffleVaries(t *testing.T) {
	// Across many seeds every rank should surface on top at least once and
	// none should dominate. Expected frequency per rank is 1/13.
	const trials = 1000
	tops := make(map[Rank]int)
	for seed := int64(0); seed < trials; seed++ {
		deck := NewDeck(rand.New(rand.NewSource(seed)))
		top, _ := deck.PeekTop()
		tops[top]++
	}

	for r := MinRank; r <= MaxRank; r++ {
		if tops[r] == 0 {
			t.Errorf("rank %s never appeared on top in %d shuffles", r, trials)
		}
		if tops[r] > trials/4 {
			t.Errorf("rank %s appeared on top %d/%d times", r, tops[r], trials)
		}
	}
}
