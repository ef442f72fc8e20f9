package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// mapKV is an in-memory store with injectable failures.
type mapKV struct {
	values map[string]string
	getErr error
	setErr error
}

func newMapKV() *mapKV {
	return &mapKV{values: make(map[string]string)}
}

func (m *mapKV) Get(_ context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mapKV) Set(_ context.Context, key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func TestLoadDefaults(t *testing.T) {
	w, err := Load(context.Background(), newMapKV())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !w.Balance().Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Balance() = %s, want 1000", w.Balance())
	}
	if w.LastClaimMillis() != 0 {
		t.Errorf("LastClaimMillis() = %d, want 0", w.LastClaimMillis())
	}
	if !w.CanClaim(time.UnixMilli(1700000000000)) {
		t.Error("fresh wallet should be claimable immediately")
	}
}

func TestLoadPersistedState(t *testing.T) {
	kv := newMapKV()
	kv.values["balance"] = "250.75"
	kv.values["last_claim_ms"] = "1700000000000"

	w, err := Load(context.Background(), kv)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !w.Balance().Equal(decimal.RequireFromString("250.75")) {
		t.Errorf("Balance() = %s, want 250.75", w.Balance())
	}
	if w.LastClaimMillis() != 1700000000000 {
		t.Errorf("LastClaimMillis() = %d, want 1700000000000", w.LastClaimMillis())
	}
}

func TestLoadRejectsBadState(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{name: "malformed balance", values: map[string]string{"balance": "not-a-number"}},
		{name: "negative balance", values: map[string]string{"balance": "-5"}},
		{name: "malformed last claim", values: map[string]string{"last_claim_ms": "later"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newMapKV()
			kv.values = tt.values
			if _, err := Load(context.Background(), kv); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestLoadStoreError(t *testing.T) {
	kv := newMapKV()
	kv.getErr = errors.New("disk gone")

	if _, err := Load(context.Background(), kv); err == nil {
		t.Error("Load() expected error, got nil")
	}
}

func TestDeduct(t *testing.T) {
	tests := []struct {
		name        string
		amount      string
		wantErr     error
		wantBalance string
	}{
		{name: "normal deduction", amount: "50", wantErr: nil, wantBalance: "950"},
		{name: "entire balance", amount: "1000", wantErr: nil, wantBalance: "0"},
		{name: "over balance", amount: "1000.01", wantErr: ErrInsufficientFunds, wantBalance: "1000"},
		{name: "negative amount", amount: "-1", wantErr: ErrNegativeAmount, wantBalance: "1000"},
		{name: "zero amount", amount: "0", wantErr: nil, wantBalance: "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(newMapKV())
			err := w.Deduct(decimal.RequireFromString(tt.amount))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Deduct() error = %v, want %v", err, tt.wantErr)
			}
			if !w.Balance().Equal(decimal.RequireFromString(tt.wantBalance)) {
				t.Errorf("Balance() = %s, want %s", w.Balance(), tt.wantBalance)
			}
		})
	}
}

func TestCredit(t *testing.T) {
	w := New(newMapKV())
	if err := w.Credit(decimal.RequireFromString("53.50")); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if !w.Balance().Equal(decimal.RequireFromString("1053.50")) {
		t.Errorf("Balance() = %s, want 1053.50", w.Balance())
	}

	if err := w.Credit(decimal.NewFromInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("Credit(-1) error = %v, want ErrNegativeAmount", err)
	}
}

func TestDeductWritesThrough(t *testing.T) {
	kv := newMapKV()
	w := New(kv)

	if err := w.Deduct(decimal.NewFromInt(60)); err != nil {
		t.Fatalf("Deduct() error = %v", err)
	}
	if got := kv.values["balance"]; got != "940" {
		t.Errorf("stored balance = %q, want %q", got, "940")
	}
}

func TestClaim(t *testing.T) {
	kv := newMapKV()
	w := New(kv)
	now := time.UnixMilli(1700000000000)

	if !w.Claim(now) {
		t.Fatal("first Claim() = false, want true")
	}
	if !w.Balance().Equal(decimal.NewFromInt(1100)) {
		t.Errorf("Balance() = %s, want 1100", w.Balance())
	}
	if w.LastClaimMillis() != now.UnixMilli() {
		t.Errorf("LastClaimMillis() = %d, want %d", w.LastClaimMillis(), now.UnixMilli())
	}
	if got := kv.values["last_claim_ms"]; got != "1700000000000" {
		t.Errorf("stored last claim = %q, want %q", got, "1700000000000")
	}

	// Inside the cooldown nothing changes.
	if w.Claim(now.Add(time.Hour)) {
		t.Error("Claim() inside cooldown = true, want false")
	}
	if !w.Balance().Equal(decimal.NewFromInt(1100)) {
		t.Errorf("Balance() after rejected claim = %s, want 1100", w.Balance())
	}

	// The boundary instant is claimable.
	if !w.Claim(now.Add(ClaimInterval)) {
		t.Error("Claim() at cooldown boundary = false, want true")
	}
	if !w.Balance().Equal(decimal.NewFromInt(1200)) {
		t.Errorf("Balance() after second claim = %s, want 1200", w.Balance())
	}
}

func TestTimeUntilClaim(t *testing.T) {
	w := New(newMapKV())
	now := time.UnixMilli(1700000000000)
	w.Claim(now)

	if got := w.TimeUntilClaim(now); got != ClaimInterval {
		t.Errorf("TimeUntilClaim() right after claim = %v, want %v", got, ClaimInterval)
	}
	if got := w.TimeUntilClaim(now.Add(2 * time.Hour)); got != 4*time.Hour {
		t.Errorf("TimeUntilClaim() after 2h = %v, want 4h", got)
	}
	if got := w.TimeUntilClaim(now.Add(ClaimInterval)); got != 0 {
		t.Errorf("TimeUntilClaim() at boundary = %v, want 0", got)
	}
	if got := w.TimeUntilClaim(now.Add(7 * time.Hour)); got != 0 {
		t.Errorf("TimeUntilClaim() past boundary = %v, want 0", got)
	}
}

func TestPersistFailureDoesNotBlockMutation(t *testing.T) {
	kv := newMapKV()
	kv.setErr = errors.New("disk full")
	w := New(kv)

	if err := w.Deduct(decimal.NewFromInt(10)); err != nil {
		t.Fatalf("Deduct() error = %v", err)
	}
	if !w.Balance().Equal(decimal.NewFromInt(990)) {
		t.Errorf("Balance() = %s, want 990", w.Balance())
	}
}

func TestNilStore(t *testing.T) {
	w, err := Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("Load(nil) error = %v", err)
	}
	if err := w.Deduct(decimal.NewFromInt(5)); err != nil {
		t.Fatalf("Deduct() error = %v", err)
	}
	if !w.Balance().Equal(decimal.NewFromInt(995)) {
		t.Errorf("Balance() = %s, want 995", w.Balance())
	}
}
