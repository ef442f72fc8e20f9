package scripting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/trapgrid/trapgrid-go/internal/game"
)

// State represents the scripting engine's lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateError   State = "error"
)

// RoundPlayer is the interface the engine plays rounds through.
// Implementations bridge to the local game engine. Every call returns
// the round's state folded into a RoundResult; Win and Payout are
// meaningful only once the round has ended.
type RoundPlayer interface {
	// StartRound begins a round. The returned result carries the wager
	// actually placed after clamping.
	StartRound(ctx context.Context, wager float64) (*RoundResult, error)
	// RevealTile reveals one tile. live is false when it hit the hazard,
	// in which case the result is final.
	RevealTile(ctx context.Context, tile int) (result *RoundResult, live bool, err error)
	// CashOut ends the round and returns the final result.
	CashOut(ctx context.Context) (*RoundResult, error)
}

// EventEmitter pushes engine state and script logs to the caller.
type EventEmitter interface {
	EmitScriptState(state EngineSnapshot)
	EmitScriptLog(entries []LogEntry)
}

// EngineSnapshot is a serializable snapshot of the engine state.
type EngineSnapshot struct {
	State           State        `json:"state"`
	Error           string       `json:"error,omitempty"`
	Stats           *Statistics  `json:"stats"`
	Chart           []ChartPoint `json:"chart"`
	RoundsPerSecond float64      `json:"roundsPerSecond"`
}

// Engine orchestrates the scripted round lifecycle: play a round through
// the RoundPlayer, update statistics, call dobet(), repeat.
type Engine struct {
	mu     sync.RWMutex
	state  State
	err    error
	cancel context.CancelFunc

	vm    *VM
	vars  *Variables
	stats *Statistics
	chart *ChartBuffer

	player  RoundPlayer
	emitter EventEmitter

	startTime time.Time
	lastEmit  time.Time
}

// NewEngine creates a scripting engine over the given player.
func NewEngine(player RoundPlayer, emitter EventEmitter) *Engine {
	return &Engine{
		state:   StateIdle,
		player:  player,
		emitter: emitter,
	}
}

// Start executes the script source once to register dobet() and
// optionally round(), then begins the round loop in the background.
func (e *Engine) Start(script string, startBalance float64) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}

	e.stats = NewStatistics(startBalance)
	e.chart = NewChartBuffer(500)
	e.vars = NewVariables(e.stats)
	e.vm = NewVM()
	e.state = StateRunning
	e.err = nil
	e.startTime = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	e.vm.SetVariables(e.vars)

	if err := e.vm.Execute(script); err != nil {
		e.setError(err)
		cancel()
		return err
	}

	// Pick up variables the script set during initialization.
	e.vm.SyncVariables(e.vars)

	dobetVal := e.vm.runtime.Get("dobet")
	if dobetVal == nil || isUndefinedOrNull(dobetVal) {
		err := fmt.Errorf("script must define a dobet() function")
		e.setError(err)
		cancel()
		return err
	}

	e.vars.Running = true
	e.vm.SetVariables(e.vars)

	e.emitState()

	go e.roundLoop(ctx)

	return nil
}

// Stop gracefully stops the engine.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine is not running")
	}

	if e.cancel != nil {
		e.cancel()
	}
	e.state = StateStopped
	e.vars.Running = false
	e.mu.Unlock()

	e.emitState()
	e.emitLogs()
	return nil
}

// GetState returns the current engine snapshot.
func (e *Engine) GetState() EngineSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot()
}

// GetLogs returns the script log buffer.
func (e *Engine) GetLogs() []LogEntry {
	if e.vm == nil {
		return nil
	}
	return e.vm.GetLogs()
}

// roundLoop runs in a goroutine until the script stops, errors, or the
// session is cancelled.
func (e *Engine) roundLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.setError(fmt.Errorf("script panic: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			e.markStopped()
			return
		default:
		}

		if e.vm.IsStopRequested() {
			e.markStopped()
			return
		}

		e.mu.RLock()
		nextBet := e.vars.NextBet
		e.mu.RUnlock()

		if nextBet <= 0 {
			e.setError(fmt.Errorf("nextbet must be > 0, got %f", nextBet))
			return
		}

		result, err := e.playRound(ctx, nextBet)
		if err != nil {
			if ctx.Err() != nil {
				e.markStopped()
				return
			}
			e.setError(fmt.Errorf("round failed: %w", err))
			return
		}

		e.mu.Lock()
		e.stats.RecordRound(*result)

		e.vars.Win = result.Win
		e.vars.PreviousBet = result.Wager
		e.vars.Balance = e.stats.Balance
		e.vars.CurrentRound = map[string]interface{}{
			"active":       false,
			"safeRevealed": result.SafeRevealed,
			"multiplier":   result.Multiplier,
			"nextTile":     -1,
		}
		e.vars.LastRound = map[string]interface{}{
			"wager":        result.Wager,
			"payout":       result.Payout,
			"multiplier":   result.Multiplier,
			"win":          result.Win,
			"safeRevealed": result.SafeRevealed,
			"hazard":       result.Hazard,
		}
		e.vm.SetVariables(e.vars)

		e.chart.Push(ChartPoint{
			RoundNumber: e.stats.Rounds,
			Profit:      e.stats.Profit,
			Win:         result.Win,
		})
		e.mu.Unlock()

		if err := e.vm.CallDobet(); err != nil {
			e.setError(err)
			return
		}

		e.mu.Lock()
		e.vm.SyncVariables(e.vars)
		e.mu.Unlock()

		if e.vm.IsResetStatsRequested() {
			e.mu.Lock()
			e.stats.Reset()
			e.chart.Reset()
			e.vm.SetVariables(e.vars)
			e.mu.Unlock()
		}

		if e.vm.IsStopRequested() {
			e.markStopped()
			return
		}

		e.mu.RLock()
		stopOnWin := e.vars.StopOnWin
		e.mu.RUnlock()
		if stopOnWin && result.Win {
			e.markStopped()
			return
		}

		e.throttledEmitState()

		sleepMs := e.vm.GetSleepTime()
		e.vm.ResetSleepTime()
		if sleepMs > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(sleepMs) * time.Millisecond):
			}
		}
	}
}

// playRound plays one full round: start, reveal tile by tile, end by
// hazard or cashout. With a round() callback the script decides before
// each reveal; without one the round cashes out after autotiles safe
// reveals.
func (e *Engine) playRound(ctx context.Context, wager float64) (*RoundResult, error) {
	result, err := e.player.StartRound(ctx, wager)
	if err != nil {
		return nil, err
	}

	revealed := make(map[int]bool, game.TotalTiles)
	hasRound := e.vm.HasRoundFunc()

	for reveals := 0; reveals < game.TotalTiles; reveals++ {
		select {
		case <-ctx.Done():
			// Settle the open round so the game engine is not left
			// mid-play.
			e.player.CashOut(ctx)
			return nil, ctx.Err()
		default:
		}

		if e.vm.IsStopRequested() {
			return e.player.CashOut(ctx)
		}

		if result.SafeRevealed >= game.SafeTiles {
			return e.player.CashOut(ctx)
		}

		e.mu.RLock()
		picks := append([]int(nil), e.vars.Picks...)
		autoTiles := e.vars.AutoTiles
		e.mu.RUnlock()

		tile := nextTile(picks, revealed)
		if tile < 0 {
			return e.player.CashOut(ctx)
		}

		if hasRound {
			e.mu.Lock()
			e.vars.CurrentRound = map[string]interface{}{
				"active":       true,
				"safeRevealed": result.SafeRevealed,
				"multiplier":   result.Multiplier,
				"nextTile":     tile,
			}
			e.vm.SetVariables(e.vars)
			e.mu.Unlock()

			decision, err := e.vm.CallRound()
			if err != nil {
				return nil, err
			}

			e.mu.Lock()
			e.vm.SyncVariables(e.vars)
			e.mu.Unlock()

			reveal := false
			if decision != nil && !isUndefinedOrNull(decision) {
				reveal = decision.ToBoolean()
			}
			if !reveal {
				return e.player.CashOut(ctx)
			}
		} else if result.SafeRevealed >= autoTiles {
			return e.player.CashOut(ctx)
		}

		next, live, err := e.player.RevealTile(ctx, tile)
		if err != nil {
			return nil, err
		}
		revealed[tile] = true
		result = next
		if !live {
			return result, nil
		}
	}

	// Every tile touched; nothing left but to cash out.
	return e.player.CashOut(ctx)
}

// nextTile returns the first preferred pick not yet revealed, falling
// back to the lowest untouched index. -1 means the board is exhausted.
func nextTile(picks []int, revealed map[int]bool) int {
	for _, p := range picks {
		if game.InBounds(p) && !revealed[p] {
			return p
		}
	}
	for i := 0; i < game.TotalTiles; i++ {
		if !revealed[i] {
			return i
		}
	}
	return -1
}

func (e *Engine) markStopped() {
	e.mu.Lock()
	if e.state == StateRunning {
		e.state = StateStopped
	}
	e.vars.Running = false
	e.mu.Unlock()
	e.emitState()
}

func (e *Engine) setError(err error) {
	e.mu.Lock()
	e.state = StateError
	e.err = err
	if e.vars != nil {
		e.vars.Running = false
	}
	e.mu.Unlock()
	e.emitState()
	e.emitLogs()
}

func (e *Engine) snapshot() EngineSnapshot {
	snap := EngineSnapshot{
		State: e.state,
	}
	if e.err != nil {
		snap.Error = e.err.Error()
	}
	if e.stats != nil {
		statsCopy := *e.stats
		snap.Stats = &statsCopy
	}
	if e.chart != nil {
		snap.Chart = append([]ChartPoint(nil), e.chart.Points...)
	}
	if e.state == StateRunning && e.stats != nil && e.stats.Rounds > 0 {
		elapsed := time.Since(e.startTime).Seconds()
		if elapsed > 0 {
			snap.RoundsPerSecond = float64(e.stats.Rounds) / elapsed
		}
	}
	return snap
}

func (e *Engine) emitState() {
	if e.emitter == nil {
		return
	}
	e.mu.RLock()
	snap := e.snapshot()
	e.mu.RUnlock()
	e.emitter.EmitScriptState(snap)
	e.lastEmit = time.Now()
}

func (e *Engine) emitLogs() {
	if e.emitter == nil || e.vm == nil {
		return
	}
	if logs := e.vm.GetLogs(); len(logs) > 0 {
		e.emitter.EmitScriptLog(logs)
	}
}

// throttledEmitState emits at most every 100ms.
func (e *Engine) throttledEmitState() {
	if time.Since(e.lastEmit) < 100*time.Millisecond {
		return
	}
	e.emitState()
}

func isUndefinedOrNull(v interface{}) bool {
	if v == nil {
		return true
	}
	if gv, ok := v.(goja.Value); ok {
		return goja.IsUndefined(gv) || goja.IsNull(gv)
	}
	return false
}
