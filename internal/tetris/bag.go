// internal/tetris/bag.go
package tetris

import "math/rand"

// BagGenerator deals tetrominoes using the 7-bag rule: each refill is a
// Fisher-Yates shuffle of all seven kinds, so every run of seven pieces
// contains each kind exactly once. Both players of a room draw from one
// shared generator, which is what makes equal-seed games fair.
//
// BagGenerator is not safe for concurrent use; the game's mutex serializes
// access.
type BagGenerator struct {
	rng   *rand.Rand
	queue []Kind
}

// NewBagGenerator seeds a generator. Equal seeds produce equal deal
// sequences.
func NewBagGenerator(seed int64) *BagGenerator {
	return newBagGeneratorSource(rand.NewSource(seed))
}

func newBagGeneratorSource(src rand.Source) *BagGenerator {
	g := &BagGenerator{rng: rand.New(src)}
	g.refill()
	return g
}

func (g *BagGenerator) refill() {
	bag := kinds
	for i := len(bag) - 1; i > 0; i-- {
		j := g.rng.Intn(i + 1)
		bag[i], bag[j] = bag[j], bag[i]
	}
	g.queue = append(g.queue, bag[:]...)
}

// Next deals the next piece, refilling the bag when it runs dry.
func (g *BagGenerator) Next() Kind {
	if len(g.queue) == 0 {
		g.refill()
	}
	k := g.queue[0]
	g.queue = g.queue[1:]
	return k
}
