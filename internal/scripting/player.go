package scripting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trapgrid/trapgrid-go/internal/game"
)

// LocalPlayer drives the in-process game engine, converting between the
// script's float64 amounts and the engine's decimals. Rounds it plays
// land in the history ledger through the engine's own recorder.
type LocalPlayer struct {
	engine *game.Engine
}

// NewLocalPlayer wraps the game engine for scripted play.
func NewLocalPlayer(engine *game.Engine) *LocalPlayer {
	return &LocalPlayer{engine: engine}
}

func (p *LocalPlayer) StartRound(ctx context.Context, wager float64) (*RoundResult, error) {
	if p.engine.State() == game.StatePlaying {
		return nil, fmt.Errorf("a round is already open")
	}
	snap, err := p.engine.StartRound(decimal.NewFromFloat(wager))
	if err != nil {
		return nil, err
	}
	if snap.State != game.StatePlaying {
		return nil, fmt.Errorf("round did not start (state %s)", snap.State)
	}
	return &RoundResult{
		Wager:      snap.Wager.InexactFloat64(),
		Multiplier: snap.Multiplier.InexactFloat64(),
		Hazard:     -1,
	}, nil
}

func (p *LocalPlayer) RevealTile(ctx context.Context, tile int) (*RoundResult, bool, error) {
	snap, sig := p.engine.RevealTile(tile)
	if sig == "" {
		return nil, false, fmt.Errorf("reveal of tile %d rejected", tile)
	}

	result := &RoundResult{
		Wager:        snap.Wager.InexactFloat64(),
		Multiplier:   snap.Multiplier.InexactFloat64(),
		SafeRevealed: snap.SafeRevealed,
		Hazard:       -1,
	}
	if sig == game.SignalSafe {
		return result, true, nil
	}

	// Busted. The wager is gone and the hazard is now public.
	if hazard, ok := p.engine.HazardPosition(); ok {
		result.Hazard = hazard
	}
	return result, false, nil
}

func (p *LocalPlayer) CashOut(ctx context.Context) (*RoundResult, error) {
	snap, payout := p.engine.CashOut()
	if snap.State != game.StateCashedOut {
		return nil, fmt.Errorf("cashout rejected (state %s)", snap.State)
	}
	result := &RoundResult{
		Wager:        snap.Wager.InexactFloat64(),
		Payout:       payout.InexactFloat64(),
		Multiplier:   snap.Multiplier.InexactFloat64(),
		Win:          true,
		SafeRevealed: snap.SafeRevealed,
		Hazard:       -1,
	}
	if hazard, ok := p.engine.HazardPosition(); ok {
		result.Hazard = hazard
	}
	return result, nil
}
