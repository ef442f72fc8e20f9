package game

import "github.com/trapgrid/trapgrid-go/internal/rng"

// VerifyHazard recomputes the hazard tile for a seed triple. It draws the
// same single integer a round start draws, so a revealed server seed lets
// anyone check where the hazard sat in a recorded round.
func VerifyHazard(serverSeed, clientSeed string, nonce uint64) int {
	return rng.Seeded(serverSeed, clientSeed, nonce).NextInt(TotalTiles)
}
