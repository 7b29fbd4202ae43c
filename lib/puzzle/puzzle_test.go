package puzzle

import (
	"math/rand/v2"
	"testing"
)

func TestNewRanges(t *testing.T) {
	g := NewGenerator(rand.NewPCG(1, 2))
	seen := map[Op]int{}

	for range 5000 {
		p := g.New()
		seen[p.Op]++

		switch p.Op {
		case Sub:
			if p.A < p.B {
				t.Fatalf("subtraction with smaller minuend: %+v", p)
			}
			if p.Result() < 0 {
				t.Fatalf("negative result: %+v", p)
			}
			// Operands may have been swapped, so check against the union of both ranges.
			if p.A < MinA || p.A > MaxA || p.B < MinB || p.B > MaxA {
				t.Fatalf("operand out of range: %+v", p)
			}
		default:
			if p.A < MinA || p.A > MaxA {
				t.Fatalf("a out of range: %+v", p)
			}
			if p.B < MinB || p.B > MaxB {
				t.Fatalf("b out of range: %+v", p)
			}
		}
	}

	for _, op := range ops {
		if seen[op] < 1000 {
			t.Errorf("operator %s only chosen %d times out of 5000", op, seen[op])
		}
	}
}

func TestOperandBounds(t *testing.T) {
	g := NewGenerator(rand.NewPCG(3, 4))
	var sawMinA, sawMaxA, sawMinB, sawMaxB bool

	for range 20000 {
		p := g.New()
		if p.Op != Add {
			continue
		}

		sawMinA = sawMinA || p.A == MinA
		sawMaxA = sawMaxA || p.A == MaxA
		sawMinB = sawMinB || p.B == MinB
		sawMaxB = sawMaxB || p.B == MaxB
	}

	if !sawMinA || !sawMaxA || !sawMinB || !sawMaxB {
		t.Errorf("bounds are not inclusive: minA=%v maxA=%v minB=%v maxB=%v", sawMinA, sawMaxA, sawMinB, sawMaxB)
	}
}

func TestAnswer(t *testing.T) {
	for _, tt := range []struct {
		p          Puzzle
		answer     string
		expression string
	}{
		{p: Puzzle{A: 7, B: 5, Op: Add}, answer: "12", expression: "7 + 5 = ?"},
		{p: Puzzle{A: 20, B: 15, Op: Mul}, answer: "300", expression: "20 × 15 = ?"},
		{p: Puzzle{A: 9, B: 9, Op: Sub}, answer: "0", expression: "9 − 9 = ?"},
		{p: Puzzle{A: 14, B: 3, Op: Sub}, answer: "11", expression: "14 − 3 = ?"},
	} {
		t.Run(tt.expression, func(t *testing.T) {
			if got := tt.p.Answer(); got != tt.answer {
				t.Errorf("wanted answer %q, got %q", tt.answer, got)
			}

			if got := tt.p.Expression(); got != tt.expression {
				t.Errorf("wanted expression %q, got %q", tt.expression, got)
			}
		})
	}
}

func TestSeeded(t *testing.T) {
	a := NewGenerator(rand.NewPCG(42, 42))
	b := NewGenerator(rand.NewPCG(42, 42))

	for range 100 {
		if pa, pb := a.New(), b.New(); pa != pb {
			t.Fatalf("same seed gave different puzzles: %+v vs %+v", pa, pb)
		}
	}
}
