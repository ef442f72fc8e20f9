// Package profile persists player preferences as a small YAML blob in
// the key/value store. Missing or unreadable blobs degrade to defaults
// so a corrupt profile never blocks play.
package profile

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/trapgrid/trapgrid-go/internal/game"
)

const profileKey = "profile"

var fallbackWager = decimal.NewFromInt(10)

// KV is the slice of the store the profile needs.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Profile is the player preference blob. Amounts are kept as strings so
// the YAML and JSON forms stay exact.
type Profile struct {
	DefaultWager   string `yaml:"defaultWager" json:"default_wager"`
	AutoCashoutAt  string `yaml:"autoCashoutAt,omitempty" json:"auto_cashout_at,omitempty"`
	PreferredPicks []int  `yaml:"preferredPicks,omitempty" json:"preferred_picks,omitempty"`
}

// Default returns the profile used before the player saves one.
func Default() Profile {
	return Profile{DefaultWager: fallbackWager.String()}
}

// Validate checks the blob field by field. Empty fields mean "unset"
// and always pass.
func (p Profile) Validate() error {
	if p.DefaultWager != "" {
		wager, err := decimal.NewFromString(p.DefaultWager)
		if err != nil {
			return fmt.Errorf("profile: default wager %q: %w", p.DefaultWager, err)
		}
		if wager.LessThan(game.MinWager) {
			return fmt.Errorf("profile: default wager %s below minimum %s", wager, game.MinWager)
		}
	}
	if p.AutoCashoutAt != "" {
		target, err := decimal.NewFromString(p.AutoCashoutAt)
		if err != nil {
			return fmt.Errorf("profile: auto cashout %q: %w", p.AutoCashoutAt, err)
		}
		if target.LessThanOrEqual(game.MinMultiplier) {
			return fmt.Errorf("profile: auto cashout %s must exceed %s", target, game.MinMultiplier)
		}
		if target.GreaterThan(game.MaxMultiplier) {
			return fmt.Errorf("profile: auto cashout %s above maximum %s", target, game.MaxMultiplier)
		}
	}
	seen := make(map[int]struct{}, len(p.PreferredPicks))
	for _, tile := range p.PreferredPicks {
		if !game.InBounds(tile) {
			return fmt.Errorf("profile: pick %d out of range", tile)
		}
		if _, dup := seen[tile]; dup {
			return fmt.Errorf("profile: pick %d listed twice", tile)
		}
		seen[tile] = struct{}{}
	}
	return nil
}

// Manager holds the active profile and writes changes through to the
// store. A nil KV leaves it memory-only.
type Manager struct {
	mu      sync.RWMutex
	kv      KV
	profile Profile
}

// NewManager loads the saved profile, falling back to defaults when
// nothing is stored or the stored blob does not decode.
func NewManager(ctx context.Context, kv KV) *Manager {
	m := &Manager{kv: kv, profile: Default()}
	if err := m.load(ctx); err != nil {
		log.Printf("[profile] load: %v (using defaults)", err)
	}
	return m
}

func (m *Manager) load(ctx context.Context) error {
	if m.kv == nil {
		return nil
	}
	raw, ok, err := m.kv.Get(ctx, profileKey)
	if err != nil {
		return fmt.Errorf("profile: load: %w", err)
	}
	if !ok {
		return nil
	}
	var loaded Profile
	if err := yaml.Unmarshal([]byte(raw), &loaded); err != nil {
		return fmt.Errorf("profile: decode: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	m.profile = loaded
	return nil
}

// Current returns a copy of the active profile.
func (m *Manager) Current() Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile.clone()
}

// Update replaces the active profile and persists it.
func (m *Manager) Update(ctx context.Context, p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = p.clone()
	return m.save(ctx)
}

func (m *Manager) save(ctx context.Context) error {
	if m.kv == nil {
		return nil
	}
	data, err := yaml.Marshal(m.profile)
	if err != nil {
		return fmt.Errorf("profile: encode: %w", err)
	}
	if err := m.kv.Set(ctx, profileKey, string(data)); err != nil {
		return fmt.Errorf("profile: save: %w", err)
	}
	return nil
}

// DefaultWager returns the preferred wager, or the built-in fallback
// when the player never set one.
func (m *Manager) DefaultWager() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wager, err := decimal.NewFromString(m.profile.DefaultWager)
	if err != nil || !wager.IsPositive() {
		return fallbackWager
	}
	return wager
}

// AutoCashoutAt reports the multiplier at which autoplay cashes out.
// ok is false when the player has not set one.
func (m *Manager) AutoCashoutAt() (decimal.Decimal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile.AutoCashoutAt == "" {
		return decimal.Decimal{}, false
	}
	target, err := decimal.NewFromString(m.profile.AutoCashoutAt)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return target, true
}

// PreferredPicks returns the saved reveal order, possibly empty.
func (m *Manager) PreferredPicks() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	picks := make([]int, len(m.profile.PreferredPicks))
	copy(picks, m.profile.PreferredPicks)
	return picks
}

func (p Profile) clone() Profile {
	out := p
	if p.PreferredPicks != nil {
		out.PreferredPicks = make([]int, len(p.PreferredPicks))
		copy(out.PreferredPicks, p.PreferredPicks)
	}
	return out
}
