package game

import (
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trapgrid/trapgrid-go/internal/rng"
	"github.com/trapgrid/trapgrid-go/internal/wallet"
)

// State is the round lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StatePlaying   State = "playing"
	StateCashedOut State = "cashed_out"
	StateBusted    State = "busted"
)

// Signal marks the outcome of a single tile reveal.
type Signal string

const (
	SignalSafe   Signal = "safe"
	SignalHazard Signal = "hazard"
)

// Snapshot is the externally visible engine state after an operation.
type Snapshot struct {
	State        State           `json:"state"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	Balance      decimal.Decimal `json:"balance"`
	SafeRevealed int             `json:"safe_revealed"`
	Wager        decimal.Decimal `json:"wager"`
	Revealed     []int           `json:"revealed"`
}

// Emitter receives reveal signals and post-mutation snapshots. Callbacks run
// under the engine lock and must not call back into the engine. A nil
// Emitter drops everything.
type Emitter interface {
	EmitSignal(sig Signal, tile int)
	EmitSnapshot(snap Snapshot)
}

// Fairness identifies the seed triple behind a round. The zero value means
// the round was not seeded.
type Fairness struct {
	ServerSeedHash string `json:"server_seed_hash,omitempty"`
	ClientSeed     string `json:"client_seed,omitempty"`
	Nonce          uint64 `json:"nonce,omitempty"`
}

// Dealer hands the engine a hazard source for each new round together with
// the fairness triple describing it.
type Dealer interface {
	Deal() (rng.Source, Fairness)
}

// CryptoDealer deals crypto/rand sources with no fairness triple. It is the
// fallback when no seed manager is wired in.
type CryptoDealer struct{}

func (CryptoDealer) Deal() (rng.Source, Fairness) {
	return rng.Crypto(), Fairness{}
}

// RoundRecord describes a resolved round for the history ledger.
type RoundRecord struct {
	Outcome      State
	Wager        decimal.Decimal
	Payout       decimal.Decimal
	Multiplier   decimal.Decimal
	SafeRevealed int
	Hazard       int
	Fairness     Fairness
}

// Recorder receives resolved rounds. A nil Recorder drops them.
type Recorder interface {
	RecordRound(rec RoundRecord)
}

// Config wires the engine's collaborators. Wallet is required; a nil Dealer
// falls back to CryptoDealer, nil Emitter and Recorder are silent.
type Config struct {
	Wallet   *wallet.Wallet
	Dealer   Dealer
	Emitter  Emitter
	Recorder Recorder
}

// Engine is the round state machine: idle -> playing -> cashed_out | busted,
// with a new round startable from any non-playing state. Every operation is
// total: out-of-state calls return the current snapshot and change nothing.
// One mutex serializes all operations; wallet access goes through it too.
type Engine struct {
	mu       sync.Mutex
	wallet   *wallet.Wallet
	dealer   Dealer
	emitter  Emitter
	recorder Recorder

	state        State
	board        *Board
	wager        decimal.Decimal
	safeRevealed int
	fairness     Fairness
}

// NewEngine creates an idle engine.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		wallet:   cfg.Wallet,
		dealer:   cfg.Dealer,
		emitter:  cfg.Emitter,
		recorder: cfg.Recorder,
		state:    StateIdle,
		wager:    decimal.Zero,
	}
	if e.dealer == nil {
		e.dealer = CryptoDealer{}
	}
	return e
}

// StartRound deducts the wager and deals a fresh board. The wager is clamped
// to [MinWager, balance]; a balance in (0, 1) wagers the whole balance. With
// no balance at all it returns wallet.ErrNoFunds and changes nothing. Called
// mid-round it is a silent no-op.
func (e *Engine) StartRound(requested decimal.Decimal) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StatePlaying {
		return e.snapshotLocked(), nil
	}
	if !e.wallet.Balance().IsPositive() {
		return e.snapshotLocked(), wallet.ErrNoFunds
	}

	w := requested
	if w.LessThan(MinWager) {
		w = MinWager
	}
	if w.GreaterThan(e.wallet.Balance()) {
		w = e.wallet.Balance()
	}
	if err := e.wallet.Deduct(w); err != nil {
		// Unreachable through the clamp, but the wallet has the last word.
		return e.snapshotLocked(), err
	}

	src, fairness := e.dealer.Deal()
	e.board = newBoard(src)
	e.wager = w
	e.safeRevealed = 0
	e.fairness = fairness
	e.state = StatePlaying

	snap := e.snapshotLocked()
	e.emitSnapshot(snap)
	return snap, nil
}

// RevealTile reveals one tile. Hitting the hazard busts the round and
// forfeits the wager; a safe tile advances the multiplier. The returned
// Signal is empty when the call was a no-op (bad index, duplicate reveal, or
// no round in play).
func (e *Engine) RevealTile(idx int) (Snapshot, Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying || !InBounds(idx) || e.board.isRevealed(idx) {
		return e.snapshotLocked(), ""
	}

	e.board.reveal(idx)
	var sig Signal
	if idx == e.board.hazard {
		sig = SignalHazard
		e.state = StateBusted
		e.recordRoundLocked(decimal.Zero)
	} else {
		sig = SignalSafe
		e.safeRevealed++
	}

	e.emitSignal(sig, idx)
	snap := e.snapshotLocked()
	e.emitSnapshot(snap)
	return snap, sig
}

// CashOut banks wager times multiplier. The payout is zero when there is no
// round to cash out, and the call changes nothing.
func (e *Engine) CashOut() (Snapshot, decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		return e.snapshotLocked(), decimal.Zero
	}

	payout := e.wager.Mul(Multiplier(e.safeRevealed)).Round(2)
	if err := e.wallet.Credit(payout); err != nil {
		log.Printf("[game] credit payout: %v", err)
	}
	e.state = StateCashedOut
	e.recordRoundLocked(payout)

	snap := e.snapshotLocked()
	e.emitSnapshot(snap)
	return snap, payout
}

// ResetRound clears the round and returns to idle. Resetting mid-round
// forfeits the wager and records the round as busted; the ledger must not
// lose a wager that was already deducted. No source is drawn here, the next
// StartRound deals the fresh board.
func (e *Engine) ResetRound() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StatePlaying {
		e.state = StateBusted
		e.recordRoundLocked(decimal.Zero)
	}

	e.board = nil
	e.wager = decimal.Zero
	e.safeRevealed = 0
	e.fairness = Fairness{}
	e.state = StateIdle

	snap := e.snapshotLocked()
	e.emitSnapshot(snap)
	return snap
}

// Claim credits the stipend when the cooldown has elapsed at now. Inside the
// cooldown it reports false and changes nothing.
func (e *Engine) Claim(now time.Time) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.wallet.Claim(now) {
		return e.snapshotLocked(), false
	}
	snap := e.snapshotLocked()
	e.emitSnapshot(snap)
	return snap, true
}

// CanClaim reports whether the stipend is claimable at now.
func (e *Engine) CanClaim(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wallet.CanClaim(now)
}

// TimeUntilClaim returns the remaining stipend cooldown at now.
func (e *Engine) TimeUntilClaim(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wallet.TimeUntilClaim(now)
}

// Snapshot returns the current state without mutating anything.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Balance returns the wallet balance.
func (e *Engine) Balance() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wallet.Balance()
}

// CurrentMultiplier returns the multiplier for the current reveal count.
func (e *Engine) CurrentMultiplier() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Multiplier(e.safeRevealed)
}

// Wager returns the active round's wager, zero when idle.
func (e *Engine) Wager() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wager
}

// SafeRevealed returns the number of safe reveals this round.
func (e *Engine) SafeRevealed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.safeRevealed
}

// Revealed returns the revealed tile indices in ascending order.
func (e *Engine) Revealed() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.board == nil {
		return []int{}
	}
	return e.board.Revealed()
}

// HazardPosition returns the hazard tile of a resolved round. It reports
// false while a round is in play or after a reset; the hazard stays hidden
// until the round ends.
func (e *Engine) HazardPosition() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.board == nil || e.state == StatePlaying || e.state == StateIdle {
		return 0, false
	}
	return e.board.hazard, true
}

// Fairness returns the seed triple of the current or last round.
func (e *Engine) Fairness() Fairness {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fairness
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:        e.state,
		Multiplier:   Multiplier(e.safeRevealed),
		Balance:      e.wallet.Balance(),
		SafeRevealed: e.safeRevealed,
		Wager:        e.wager,
		Revealed:     []int{},
	}
	if e.board != nil {
		snap.Revealed = e.board.Revealed()
	}
	return snap
}

func (e *Engine) recordRoundLocked(payout decimal.Decimal) {
	if e.recorder == nil {
		return
	}
	e.recorder.RecordRound(RoundRecord{
		Outcome:      e.state,
		Wager:        e.wager,
		Payout:       payout,
		Multiplier:   Multiplier(e.safeRevealed),
		SafeRevealed: e.safeRevealed,
		Hazard:       e.board.hazard,
		Fairness:     e.fairness,
	})
}

func (e *Engine) emitSignal(sig Signal, tile int) {
	if e.emitter == nil {
		return
	}
	e.emitter.EmitSignal(sig, tile)
}

func (e *Engine) emitSnapshot(snap Snapshot) {
	if e.emitter == nil {
		return
	}
	e.emitter.EmitSnapshot(snap)
}
