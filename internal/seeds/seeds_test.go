package seeds

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/trapgrid/trapgrid-go/internal/game"
	"github.com/trapgrid/trapgrid-go/internal/store"
)

var _ game.Dealer = (*Manager)(nil)

func testVault(t *testing.T) *Vault {
	t.Helper()
	v := NewVault("trapgrid-test", filepath.Join(t.TempDir(), "secrets.json"))
	t.Cleanup(func() { v.Delete() })
	return v
}

func TestVaultRoundTrip(t *testing.T) {
	v := testVault(t)

	if _, ok, err := v.Load(); err != nil || ok {
		t.Fatalf("Load() on empty vault = ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	if err := v.Store("seed-123"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	seed, ok, err := v.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok || seed != "seed-123" {
		t.Errorf("Load() = %q ok=%v, want %q ok=true", seed, ok, "seed-123")
	}

	if err := v.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := v.Load(); ok {
		t.Error("Load() after delete reports ok=true")
	}
}

func TestHashSeed(t *testing.T) {
	const want = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if got := HashSeed("test"); got != want {
		t.Errorf("HashSeed(test) = %s, want %s", got, want)
	}
}

func TestNewServerSeed(t *testing.T) {
	seed := NewServerSeed()
	if len(seed) != 64 {
		t.Fatalf("server seed length = %d, want 64", len(seed))
	}
	for _, c := range seed {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Fatalf("server seed %q contains non-hex character %q", seed, c)
		}
	}
	if NewServerSeed() == seed {
		t.Error("two generated server seeds are identical")
	}
}

func TestNewClientSeed(t *testing.T) {
	seed := NewClientSeed()
	if len(seed) != 10 {
		t.Fatalf("client seed length = %d, want 10", len(seed))
	}
}

func TestOpenGeneratesState(t *testing.T) {
	v := testVault(t)
	kv := store.NewMemoryKV()

	m, err := Open(context.Background(), v, kv)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if len(m.server) != 64 {
		t.Errorf("generated server seed length = %d, want 64", len(m.server))
	}
	info := m.Info()
	if info.ServerSeedHash != HashSeed(m.server) {
		t.Error("Info() hash does not match the active server seed")
	}
	if len(info.ClientSeed) != 10 {
		t.Errorf("generated client seed length = %d, want 10", len(info.ClientSeed))
	}
	if info.Nonce != 0 {
		t.Errorf("fresh nonce = %d, want 0", info.Nonce)
	}

	// The vault now holds the generated seed.
	stored, ok, err := v.Load()
	if err != nil || !ok {
		t.Fatalf("vault Load() = ok=%v err=%v, want stored seed", ok, err)
	}
	if stored != m.server {
		t.Error("vault seed differs from the manager's")
	}
}

func TestStatePersistsAcrossOpen(t *testing.T) {
	v := testVault(t)
	kv := store.NewMemoryKV()
	ctx := context.Background()

	m1, err := Open(ctx, v, kv)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	m1.Deal()
	m1.Deal()
	first := m1.Info()

	m2, err := Open(ctx, v, kv)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	second := m2.Info()

	if second.ServerSeedHash != first.ServerSeedHash {
		t.Error("server seed changed across reopen")
	}
	if second.ClientSeed != first.ClientSeed {
		t.Error("client seed changed across reopen")
	}
	if second.Nonce != 2 {
		t.Errorf("nonce after reopen = %d, want 2", second.Nonce)
	}
}

func TestDealAdvancesNonce(t *testing.T) {
	v := testVault(t)
	m, err := Open(context.Background(), v, store.NewMemoryKV())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	src, fairness := m.Deal()
	if fairness.Nonce != 0 {
		t.Errorf("first deal nonce = %d, want 0", fairness.Nonce)
	}
	if fairness.ServerSeedHash != m.Info().ServerSeedHash {
		t.Error("deal hash does not match the active server seed")
	}

	// The dealt source is the verification stream for the same triple.
	want := game.VerifyHazard(m.server, fairness.ClientSeed, 0)
	if got := src.NextInt(25); got != want {
		t.Errorf("dealt source drew %d, verification says %d", got, want)
	}

	_, fairness = m.Deal()
	if fairness.Nonce != 1 {
		t.Errorf("second deal nonce = %d, want 1", fairness.Nonce)
	}
	if m.Info().Nonce != 2 {
		t.Errorf("Info() nonce = %d, want 2", m.Info().Nonce)
	}
}

func TestSetClientSeed(t *testing.T) {
	v := testVault(t)
	kv := store.NewMemoryKV()
	m, err := Open(context.Background(), v, kv)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := m.SetClientSeed("my_lucky_seed"); err != nil {
		t.Fatalf("SetClientSeed() error = %v", err)
	}
	if m.Info().ClientSeed != "my_lucky_seed" {
		t.Errorf("client seed = %q, want my_lucky_seed", m.Info().ClientSeed)
	}

	if err := m.SetClientSeed("   "); err == nil {
		t.Error("SetClientSeed(blank) accepted, want error")
	}
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	if err := m.SetClientSeed(string(long)); err == nil {
		t.Error("SetClientSeed(65 chars) accepted, want error")
	}
}

func TestRotate(t *testing.T) {
	v := testVault(t)
	m, err := Open(context.Background(), v, store.NewMemoryKV())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	m.Deal()
	m.Deal()
	before := m.Info()

	revealed, err := m.Rotate()
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	// The revealed plaintext hashes to the previously published hash.
	if HashSeed(revealed) != before.ServerSeedHash {
		t.Error("revealed seed does not hash to the retired hash")
	}

	after := m.Info()
	if after.ServerSeedHash == before.ServerSeedHash {
		t.Error("server seed hash unchanged after rotation")
	}
	if after.Nonce != 0 {
		t.Errorf("nonce after rotation = %d, want 0", after.Nonce)
	}

	// The vault holds the new seed.
	stored, ok, err := v.Load()
	if err != nil || !ok {
		t.Fatalf("vault Load() = ok=%v err=%v, want stored seed", ok, err)
	}
	if HashSeed(stored) != after.ServerSeedHash {
		t.Error("vault seed does not match the rotated hash")
	}
}
