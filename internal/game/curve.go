// Package game implements the round state machine, the board, and the payout
// curve. One hazard hides on a 5x5 grid; every safe reveal moves the
// multiplier along an ease-in curve and the player banks wager times
// multiplier by cashing out before hitting the hazard.
package game

import (
	"math"

	"github.com/shopspring/decimal"
)

// Board geometry. The shape is fixed; the names exist for clarity, not
// configurability.
const (
	Size       = 5
	TotalTiles = Size * Size
	SafeTiles  = TotalTiles - 1
)

// CurveGamma is the ease-in exponent: early reveals move the multiplier
// slowly, late reveals steeply.
const CurveGamma = 2.2

var (
	// MinMultiplier applies before the first safe reveal.
	MinMultiplier = decimal.RequireFromString("1.00")
	// MaxMultiplier applies with every safe tile revealed.
	MaxMultiplier = decimal.RequireFromString("20.00")
	// MinWager is the smallest wager a round can start with.
	MinWager = decimal.NewFromInt(1)

	curveBase = decimal.RequireFromString("1.05")
	curveSpan = MaxMultiplier.Sub(curveBase)
)

// Multiplier returns the payout multiplier after safeRevealed safe reveals.
// Zero reveals pay exactly 1.00; otherwise the value follows
// 1.05 + (20.00 - 1.05) * t^2.2 with t = safeRevealed/SafeTiles, rounded to
// 2 decimals half away from zero. The jump from 1.00 to the curve at the
// first reveal is intentional.
func Multiplier(safeRevealed int) decimal.Decimal {
	if safeRevealed <= 0 {
		return MinMultiplier
	}
	t := float64(safeRevealed) / float64(SafeTiles)
	if t > 1 {
		t = 1
	}
	eased := decimal.NewFromFloat(math.Pow(t, CurveGamma))
	return curveBase.Add(curveSpan.Mul(eased)).Round(2)
}
