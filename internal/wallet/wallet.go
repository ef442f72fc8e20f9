// Package wallet tracks the player balance and the stipend claim cooldown.
// State lives in memory; every mutation is written through to the persistence
// store after the in-memory change, with write failures logged and swallowed.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds is returned when a deduction exceeds the balance.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	// ErrNoFunds is returned when a round cannot start on an empty balance.
	ErrNoFunds = errors.New("wallet: no funds")
	// ErrNegativeAmount is returned for negative deduction or credit amounts.
	ErrNegativeAmount = errors.New("wallet: negative amount")
)

// ClaimInterval is the cooldown between stipend claims.
const ClaimInterval = 6 * time.Hour

var (
	// DefaultBalance seeds a fresh wallet with no persisted state.
	DefaultBalance = decimal.NewFromInt(1000)
	// ClaimAmount is credited by every successful stipend claim.
	ClaimAmount = decimal.NewFromInt(100)
)

// Store keys. A fresh store has neither; defaults apply.
const (
	keyBalance   = "balance"
	keyLastClaim = "last_claim_ms"
)

// KV is the slice of the persistence store the wallet writes through to.
// A nil KV leaves the wallet purely in memory.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Wallet holds the balance and last claim time. It performs no locking of its
// own; callers serialize access.
type Wallet struct {
	kv          KV
	balance     decimal.Decimal
	lastClaimMS int64
}

// New creates a wallet with the default balance and an immediately available
// claim, without touching the store.
func New(kv KV) *Wallet {
	return &Wallet{kv: kv, balance: DefaultBalance}
}

// Load restores wallet state from the store, falling back to defaults for
// absent keys. Malformed stored values are load errors, not silent resets.
func Load(ctx context.Context, kv KV) (*Wallet, error) {
	w := New(kv)
	if kv == nil {
		return w, nil
	}

	if raw, ok, err := kv.Get(ctx, keyBalance); err != nil {
		return nil, fmt.Errorf("wallet: load balance: %w", err)
	} else if ok {
		bal, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("wallet: parse stored balance %q: %w", raw, err)
		}
		if bal.IsNegative() {
			return nil, fmt.Errorf("wallet: stored balance %q is negative", raw)
		}
		w.balance = bal
	}

	if raw, ok, err := kv.Get(ctx, keyLastClaim); err != nil {
		return nil, fmt.Errorf("wallet: load last claim: %w", err)
	} else if ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("wallet: parse stored last claim %q: %w", raw, err)
		}
		w.lastClaimMS = ms
	}

	return w, nil
}

// Balance returns the current balance.
func (w *Wallet) Balance() decimal.Decimal {
	return w.balance
}

// LastClaimMillis returns the epoch milliseconds of the last successful
// claim, 0 when no claim has happened.
func (w *Wallet) LastClaimMillis() int64 {
	return w.lastClaimMS
}

// Deduct removes amount from the balance. The balance never goes negative.
func (w *Wallet) Deduct(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if amount.GreaterThan(w.balance) {
		return ErrInsufficientFunds
	}
	w.balance = w.balance.Sub(amount)
	w.persistBalance()
	return nil
}

// Credit adds amount to the balance.
func (w *Wallet) Credit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	w.balance = w.balance.Add(amount)
	w.persistBalance()
	return nil
}

// CanClaim reports whether the stipend cooldown has elapsed at now.
func (w *Wallet) CanClaim(now time.Time) bool {
	return now.UnixMilli()-w.lastClaimMS >= ClaimInterval.Milliseconds()
}

// Claim credits the stipend and restarts the cooldown. Inside the cooldown it
// is a no-op reporting false.
func (w *Wallet) Claim(now time.Time) bool {
	if !w.CanClaim(now) {
		return false
	}
	w.balance = w.balance.Add(ClaimAmount)
	w.lastClaimMS = now.UnixMilli()
	w.persistBalance()
	w.persistLastClaim()
	return true
}

// TimeUntilClaim returns the remaining cooldown at now, 0 when a claim is
// available.
func (w *Wallet) TimeUntilClaim(now time.Time) time.Duration {
	elapsed := time.Duration(now.UnixMilli()-w.lastClaimMS) * time.Millisecond
	if elapsed >= ClaimInterval {
		return 0
	}
	return ClaimInterval - elapsed
}

func (w *Wallet) persistBalance() {
	if w.kv == nil {
		return
	}
	if err := w.kv.Set(context.Background(), keyBalance, w.balance.String()); err != nil {
		log.Printf("[wallet] persist balance: %v", err)
	}
}

func (w *Wallet) persistLastClaim() {
	if w.kv == nil {
		return
	}
	value := strconv.FormatInt(w.lastClaimMS, 10)
	if err := w.kv.Set(context.Background(), keyLastClaim, value); err != nil {
		log.Printf("[wallet] persist last claim: %v", err)
	}
}
