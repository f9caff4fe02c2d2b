package shape

import (
	"math/rand"
	"sync"
	"time"
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithSeed makes generation reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // gameplay randomness, not security
	}
}

// WithRand sets the random source. A nil value is ignored.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		if r != nil {
			g.rng = r
		}
	}
}

// Generator draws random inventories. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator seeded from the clock unless overridden.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // gameplay randomness, not security
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate draws between MinShapes and MaxShapes shapes, each with a uniform
// kind and a uniform size in [MinSize, MaxSize]. Groups are counted in the
// same pass so the result is consistent by construction.
func (g *Generator) Generate() Inventory {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.rng.Intn(MaxShapes-MinShapes+1) + MinShapes
	inv := Inventory{
		Shapes: make([]Shape, 0, n),
		Groups: make(map[Kind]Group, len(Kinds)),
	}
	for i := 0; i < n; i++ {
		kind := Kinds[g.rng.Intn(len(Kinds))]
		size := g.rng.Intn(MaxSize-MinSize+1) + MinSize
		inv.Shapes = append(inv.Shapes, Shape{Kind: kind, Size: size})
		grp := inv.Groups[kind]
		grp.Count++
		inv.Groups[kind] = grp
	}
	return inv
}
