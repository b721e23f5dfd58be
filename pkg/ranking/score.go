// Package ranking implements the time-decayed popularity score used to order
// the unfiltered feed.
package ranking

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// Gravity controls how fast old items sink.
	Gravity = 1.5
	// AgeOffsetHours keeps very young items from dividing by ~0.
	AgeOffsetHours = 2.0
	// Precision is the number of decimals kept in a score.
	Precision = 6

	significantDigits = 15
)

// Score returns round((points-1) / (ageHours+2)^1.5, 6).
// Negative ages are clamped to zero.
func Score(points int, ageHours float64) float64 {
	if ageHours < 0 || math.IsNaN(ageHours) {
		ageHours = 0
	}
	raw := float64(points-1) / math.Pow(ageHours+AgeOffsetHours, Gravity)
	return Round(raw, Precision)
}

// ScoreAt scores an item created at createdAt as seen at now.
func ScoreAt(points int, createdAt, now time.Time) float64 {
	return Score(points, AgeHours(createdAt, now))
}

// AgeHours returns the fractional hours between createdAt and now.
func AgeHours(createdAt, now time.Time) float64 {
	return now.Sub(createdAt).Hours()
}

// Round rounds half away from zero to the given number of decimals. Like a
// Postgres float8 to numeric cast, v is first cut to 15 significant digits
// and the rounding is done on that decimal, so both stores agree on ties.
func Round(v float64, decimals int) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	sci := strconv.FormatFloat(math.Abs(v), 'e', significantDigits-1, 64)
	mantissa, exp, _ := strings.Cut(sci, "e")
	digits := strings.Replace(mantissa, ".", "", 1)
	e, err := strconv.Atoi(exp)
	if err != nil {
		return v
	}
	keep := e + 1 + decimals
	switch {
	case keep < 0:
		return 0
	case keep >= len(digits):
		return v
	}
	n := int64(0)
	if keep > 0 {
		n, _ = strconv.ParseInt(digits[:keep], 10, 64)
	}
	if digits[keep] >= '5' {
		n++
	}
	if n == 0 {
		return 0
	}
	out, _ := strconv.ParseFloat(strconv.FormatInt(n, 10)+"e-"+strconv.Itoa(decimals), 64)
	if v < 0 {
		out = -out
	}
	return out
}
