package game

import (
	"sort"

	"github.com/trapgrid/trapgrid-go/internal/rng"
)

// Board is one round's grid: a single hazard tile plus the set of revealed
// tiles. Tile indices run 0..TotalTiles-1 in row-major order.
type Board struct {
	hazard   int
	revealed map[int]struct{}
}

func newBoard(src rng.Source) *Board {
	return &Board{
		hazard:   src.NextInt(TotalTiles),
		revealed: make(map[int]struct{}),
	}
}

// InBounds reports whether idx addresses a tile.
func InBounds(idx int) bool {
	return idx >= 0 && idx < TotalTiles
}

func (b *Board) isRevealed(idx int) bool {
	_, ok := b.revealed[idx]
	return ok
}

func (b *Board) reveal(idx int) {
	b.revealed[idx] = struct{}{}
}

// Revealed returns the revealed tile indices in ascending order.
func (b *Board) Revealed() []int {
	out := make([]int, 0, len(b.revealed))
	for idx := range b.revealed {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Hazard returns the hazard tile index.
func (b *Board) Hazard() int {
	return b.hazard
}
