// Package puzzle generates the arithmetic questions behind each challenge and
// draws them as noisy SVG images.
package puzzle

import (
	"math/rand/v2"
	"strconv"
	"sync"
)

const (
	MinA, MaxA = 1, 20
	MinB, MaxB = 1, 15
)

type Op int

const (
	Add Op = iota
	Mul
	Sub
)

var ops = [...]Op{Add, Mul, Sub}

func (o Op) String() string {
	switch o {
	case Add:
		return "+"
	case Mul:
		return "×"
	case Sub:
		return "−"
	default:
		return "?"
	}
}

// Puzzle is one question. For Sub, A is never smaller than B.
type Puzzle struct {
	A, B int
	Op   Op
}

func (p Puzzle) Result() int {
	switch p.Op {
	case Mul:
		return p.A * p.B
	case Sub:
		return p.A - p.B
	default:
		return p.A + p.B
	}
}

// Answer is the expected reply, a base 10 integer without padding.
func (p Puzzle) Answer() string {
	return strconv.Itoa(p.Result())
}

// Expression is what the user gets to read.
func (p Puzzle) Expression() string {
	return strconv.Itoa(p.A) + " " + p.Op.String() + " " + strconv.Itoa(p.B) + " = ?"
}

// Generator makes puzzles and their images. It is safe for concurrent use.
type Generator struct {
	lock sync.Mutex
	rng  *rand.Rand
}

// NewGenerator returns a Generator reading from src. A nil src selects a
// randomly seeded PCG.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}

	return &Generator{rng: rand.New(src)}
}

// between returns a uniformly distributed int in [lo, hi]. Callers hold g.lock.
func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *Generator) New() Puzzle {
	g.lock.Lock()
	defer g.lock.Unlock()

	p := Puzzle{
		A:  g.between(MinA, MaxA),
		B:  g.between(MinB, MaxB),
		Op: ops[g.rng.IntN(len(ops))],
	}

	if p.Op == Sub && p.A < p.B {
		p.A, p.B = p.B, p.A
	}

	return p
}
