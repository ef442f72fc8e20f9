package store

import (
	"context"
	"log"
	"sync"

	"github.com/trapgrid/trapgrid-go/internal/game"
)

// Recorder feeds resolved rounds from the engine into the ledger. Rounds are
// buffered and batch-inserted so the reveal path never waits on SQLite; call
// Flush before shutdown to persist the tail.
type Recorder struct {
	db        *DB
	mu        sync.Mutex
	buffer    []Round
	flushSize int
}

// NewRecorder creates a recorder. flushSize controls how many rounds buffer
// before a background batch insert.
func NewRecorder(db *DB, flushSize int) *Recorder {
	if flushSize <= 0 {
		flushSize = 25
	}
	return &Recorder{
		db:        db,
		buffer:    make([]Round, 0, flushSize),
		flushSize: flushSize,
	}
}

// RecordRound buffers a resolved round. It runs under the engine lock, so it
// must stay cheap.
func (r *Recorder) RecordRound(rec game.RoundRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, Round{
		Outcome:        string(rec.Outcome),
		Wager:          rec.Wager.String(),
		Payout:         rec.Payout.String(),
		Multiplier:     rec.Multiplier.String(),
		SafeRevealed:   rec.SafeRevealed,
		Hazard:         rec.Hazard,
		ServerSeedHash: rec.Fairness.ServerSeedHash,
		ClientSeed:     rec.Fairness.ClientSeed,
		Nonce:          rec.Fairness.Nonce,
	})

	if len(r.buffer) >= r.flushSize {
		rounds := r.takeLocked()
		go r.insert(rounds)
	}
}

// Flush synchronously persists any buffered rounds.
func (r *Recorder) Flush() {
	r.mu.Lock()
	rounds := r.takeLocked()
	r.mu.Unlock()
	r.insert(rounds)
}

func (r *Recorder) takeLocked() []Round {
	if len(r.buffer) == 0 {
		return nil
	}
	rounds := make([]Round, len(r.buffer))
	copy(rounds, r.buffer)
	r.buffer = r.buffer[:0]
	return rounds
}

func (r *Recorder) insert(rounds []Round) {
	if len(rounds) == 0 {
		return
	}
	if err := r.db.InsertRounds(context.Background(), rounds); err != nil {
		log.Printf("[store] flush rounds: %v", err)
	}
}
