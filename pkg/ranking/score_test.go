package ranking

import (
	"math"
	"testing"
	"time"
)

func TestScoreExample(t *testing.T) {
	if got := Score(5, 0); got != 1.414214 {
		t.Fatalf("score(5, 0) = %v, want 1.414214", got)
	}
}

func TestScoreNewUnvotedItemIsNegative(t *testing.T) {
	if got := Score(0, 0); got >= 0 {
		t.Fatalf("fresh item with no votes should score below zero, got %v", got)
	}
}

func TestScoreDecreasesWithAge(t *testing.T) {
	prev := Score(10, 0)
	for _, age := range []float64{0.5, 1, 2, 6, 24, 72, 500} {
		cur := Score(10, age)
		if cur >= prev {
			t.Fatalf("score at %vh (%v) should be below previous (%v)", age, cur, prev)
		}
		prev = cur
	}
}

func TestScoreAtUsesFractionalHours(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-90 * time.Minute)
	if got, want := ScoreAt(3, created, now), Score(3, 1.5); got != want {
		t.Fatalf("score at = %v, want %v", got, want)
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	if got := Round(-2.5, 0); got != -3 {
		t.Fatalf("round -2.5 = %v", got)
	}
	if got := Round(2.5, 0); got != 3 {
		t.Fatalf("round 2.5 = %v", got)
	}
	if got := Round(1.2345674, 6); got != 1.234567 {
		t.Fatalf("round 1.2345674 = %v", got)
	}
}

// Doubles just below a decimal tie round on their 15-digit decimal form,
// matching ROUND(x::numeric, 6) in Postgres.
func TestRoundUsesFifteenSignificantDigits(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.0000025, 1.000003},
		{0.5000005, 0.500001},
		{-1.0000025, -1.000003},
		{0.0000004, 0},
		{-0.0000004, 0},
		{0.0000005, 0.000001},
		{123456.1234564, 123456.123456},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Round(tt.in, Precision); got != tt.want {
			t.Fatalf("Round(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := Round(math.Inf(1), Precision); !math.IsInf(got, 1) {
		t.Fatalf("Round(+Inf) = %v", got)
	}
}
