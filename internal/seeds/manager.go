package seeds

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/trapgrid/trapgrid-go/internal/game"
	"github.com/trapgrid/trapgrid-go/internal/rng"
)

// Client seeds use a 64-character charset; '_' and '-' take the slots the
// base64 alphabet would give '+' and '/'.
const charset = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const maxClientSeedLen = 64

// Store keys for the non-secret fairness state.
const (
	keyClientSeed = "client_seed"
	keyNonce      = "fair_nonce"
)

// KV is the slice of the persistence store the manager keeps its non-secret
// state in. The server seed never goes here.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Info is the public view of the fairness state.
type Info struct {
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`
}

// Manager holds the active seed pair and deals one seeded source per round,
// incrementing the nonce each time. It implements the game engine's Dealer.
type Manager struct {
	mu     sync.Mutex
	vault  *Vault
	kv     KV
	server string
	client string
	nonce  uint64
}

// Open loads the fairness state, generating and persisting fresh seeds when
// none exist.
func Open(ctx context.Context, vault *Vault, kv KV) (*Manager, error) {
	m := &Manager{vault: vault, kv: kv}

	server, ok, err := vault.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		server = NewServerSeed()
		if err := vault.Store(server); err != nil {
			return nil, err
		}
	}
	m.server = server

	if kv != nil {
		if raw, ok, err := kv.Get(ctx, keyClientSeed); err != nil {
			return nil, fmt.Errorf("seeds: load client seed: %w", err)
		} else if ok {
			m.client = raw
		}
		if raw, ok, err := kv.Get(ctx, keyNonce); err != nil {
			return nil, fmt.Errorf("seeds: load nonce: %w", err)
		} else if ok {
			nonce, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("seeds: parse stored nonce %q: %w", raw, err)
			}
			m.nonce = nonce
		}
	}

	if m.client == "" {
		m.client = NewClientSeed()
		m.persistClientLocked()
	}

	return m, nil
}

// Info returns the hash of the active server seed, the client seed, and the
// next nonce.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Info{
		ServerSeedHash: HashSeed(m.server),
		ClientSeed:     m.client,
		Nonce:          m.nonce,
	}
}

// Deal hands out the source for the next round and advances the nonce.
func (m *Manager) Deal() (rng.Source, game.Fairness) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := rng.Seeded(m.server, m.client, m.nonce)
	fairness := game.Fairness{
		ServerSeedHash: HashSeed(m.server),
		ClientSeed:     m.client,
		Nonce:          m.nonce,
	}
	m.nonce++
	m.persistNonceLocked()
	return src, fairness
}

// SetClientSeed replaces the client seed. The nonce keeps counting; only a
// server seed rotation resets it.
func (m *Manager) SetClientSeed(seed string) error {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return fmt.Errorf("seeds: client seed is required")
	}
	if len(seed) > maxClientSeedLen {
		return fmt.Errorf("seeds: client seed longer than %d characters", maxClientSeedLen)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = seed
	m.persistClientLocked()
	return nil
}

// Rotate installs a fresh server seed and resets the nonce. The retired
// seed's plaintext is returned exactly once so recorded rounds can be
// verified against it.
func (m *Manager) Rotate() (revealed string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.server
	next := NewServerSeed()
	if err := m.vault.Store(next); err != nil {
		return "", err
	}
	m.server = next
	m.nonce = 0
	m.persistNonceLocked()
	return old, nil
}

func (m *Manager) persistClientLocked() {
	if m.kv == nil {
		return
	}
	if err := m.kv.Set(context.Background(), keyClientSeed, m.client); err != nil {
		log.Printf("[seeds] persist client seed: %v", err)
	}
}

func (m *Manager) persistNonceLocked() {
	if m.kv == nil {
		return
	}
	if err := m.kv.Set(context.Background(), keyNonce, strconv.FormatUint(m.nonce, 10)); err != nil {
		log.Printf("[seeds] persist nonce: %v", err)
	}
}

// HashSeed returns the SHA-256 hex digest of a seed.
func HashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// NewServerSeed generates a 64-character hex server seed from crypto/rand.
func NewServerSeed() string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Fallback should never happen with crypto/rand
		return strings.Repeat("0", 64)
	}
	return hex.EncodeToString(buf[:])
}

// NewClientSeed generates a 10-character random string suitable as a default
// client seed.
func NewClientSeed() string {
	return randomString(10)
}

func randomString(length int) string {
	b := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// Fallback should never happen with crypto/rand
			b[i] = charset[0]
			continue
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}
