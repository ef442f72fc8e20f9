package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/trapgrid/trapgrid-go/internal/game"
	"github.com/trapgrid/trapgrid-go/internal/profile"
	"github.com/trapgrid/trapgrid-go/internal/rng"
	"github.com/trapgrid/trapgrid-go/internal/seeds"
	"github.com/trapgrid/trapgrid-go/internal/store"
	"github.com/trapgrid/trapgrid-go/internal/wallet"
)

// fixedSource pins the hazard so round outcomes are deterministic.
type fixedSource struct{ hazard int }

func (f fixedSource) NextInt(bound int) int {
	if f.hazard >= bound {
		return bound - 1
	}
	return f.hazard
}

type fixedDealer struct{ hazard int }

func (d fixedDealer) Deal() (rng.Source, game.Fairness) {
	return fixedSource{hazard: d.hazard}, game.Fairness{}
}

type testEnv struct {
	handler http.Handler
	wallet  *wallet.Wallet
}

// newTestEnv builds a full server over an in-memory database with the hazard
// pinned to the given tile.
func newTestEnv(t *testing.T, hazard int) *testEnv {
	t.Helper()

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open(:memory:) error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	w := wallet.New(nil)
	recorder := store.NewRecorder(db, 25)
	engine := game.NewEngine(game.Config{
		Wallet:   w,
		Dealer:   fixedDealer{hazard: hazard},
		Recorder: recorder,
	})

	vault := seeds.NewVault("trapgrid-api-test", filepath.Join(t.TempDir(), "secrets.json"))
	t.Cleanup(func() { vault.Delete() })
	manager, err := seeds.Open(context.Background(), vault, store.NewMemoryKV())
	if err != nil {
		t.Fatalf("seeds.Open() error: %v", err)
	}

	server := NewServer(Config{
		Engine:   engine,
		Seeds:    manager,
		Profiles: profile.NewManager(context.Background(), store.NewMemoryKV()),
		DB:       db,
		Recorder: recorder,
	})

	return &testEnv{handler: server.Routes(), wallet: w}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func TestRoundFlow(t *testing.T) {
	env := newTestEnv(t, 24)

	rec := env.do(t, "POST", "/api/v1/round/start", StartRoundRequest{Wager: decimal.NewFromInt(50)})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Engine-Version") == "" {
		t.Error("start: expected X-Engine-Version header")
	}
	var started StateResponse
	decodeBody(t, rec, &started)
	if started.Snapshot.State != game.StatePlaying {
		t.Errorf("start: state = %s, want %s", started.Snapshot.State, game.StatePlaying)
	}
	if !started.Snapshot.Balance.Equal(decimal.NewFromInt(950)) {
		t.Errorf("start: balance = %s, want 950", started.Snapshot.Balance)
	}
	if !started.Snapshot.Wager.Equal(decimal.NewFromInt(50)) {
		t.Errorf("start: wager = %s, want 50", started.Snapshot.Wager)
	}

	rec = env.do(t, "POST", "/api/v1/round/reveal", RevealRequest{Tile: 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("reveal: expected status 200, got %d", rec.Code)
	}
	var revealed RevealResponse
	decodeBody(t, rec, &revealed)
	if revealed.Signal != game.SignalSafe {
		t.Errorf("reveal: signal = %q, want %q", revealed.Signal, game.SignalSafe)
	}
	if revealed.Snapshot.SafeRevealed != 1 {
		t.Errorf("reveal: safe_revealed = %d, want 1", revealed.Snapshot.SafeRevealed)
	}
	if !revealed.Snapshot.Multiplier.Equal(decimal.RequireFromString("1.07")) {
		t.Errorf("reveal: multiplier = %s, want 1.07", revealed.Snapshot.Multiplier)
	}
	if revealed.Hazard != nil {
		t.Errorf("reveal: hazard leaked mid-round: %d", *revealed.Hazard)
	}

	rec = env.do(t, "POST", "/api/v1/round/cashout", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cashout: expected status 200, got %d", rec.Code)
	}
	var cashed CashOutResponse
	decodeBody(t, rec, &cashed)
	if cashed.Snapshot.State != game.StateCashedOut {
		t.Errorf("cashout: state = %s, want %s", cashed.Snapshot.State, game.StateCashedOut)
	}
	if !cashed.Payout.Equal(decimal.RequireFromString("53.50")) {
		t.Errorf("cashout: payout = %s, want 53.50", cashed.Payout)
	}
	if !cashed.Snapshot.Balance.Equal(decimal.RequireFromString("1003.50")) {
		t.Errorf("cashout: balance = %s, want 1003.50", cashed.Snapshot.Balance)
	}
	if cashed.Hazard == nil {
		t.Fatal("cashout: expected hazard position after round end")
	}
	if *cashed.Hazard != 24 {
		t.Errorf("cashout: hazard = %d, want 24", *cashed.Hazard)
	}
}

func TestStartRoundUsesProfileDefault(t *testing.T) {
	env := newTestEnv(t, 24)

	rec := env.do(t, "PUT", "/api/v1/profile", profile.Profile{DefaultWager: "25"})
	if rec.Code != http.StatusOK {
		t.Fatalf("profile put: expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/v1/round/start", StartRoundRequest{})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected status 200, got %d", rec.Code)
	}
	var started StateResponse
	decodeBody(t, rec, &started)
	if !started.Snapshot.Wager.Equal(decimal.NewFromInt(25)) {
		t.Errorf("start: wager = %s, want profile default 25", started.Snapshot.Wager)
	}
}

func TestStartRoundNoFunds(t *testing.T) {
	env := newTestEnv(t, 24)
	if err := env.wallet.Deduct(env.wallet.Balance()); err != nil {
		t.Fatalf("drain wallet: %v", err)
	}

	rec := env.do(t, "POST", "/api/v1/round/start", StartRoundRequest{Wager: decimal.NewFromInt(10)})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	var envelope EngineError
	decodeBody(t, rec, &envelope)
	if envelope.Type != ErrTypeNoFunds {
		t.Errorf("error type = %q, want %q", envelope.Type, ErrTypeNoFunds)
	}
}

func TestRevealValidation(t *testing.T) {
	env := newTestEnv(t, 24)

	rec := env.do(t, "POST", "/api/v1/round/reveal", RevealRequest{Tile: 25})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("out-of-range tile: expected status 400, got %d", rec.Code)
	}
	var envelope EngineError
	decodeBody(t, rec, &envelope)
	if envelope.Type != ErrTypeValidation {
		t.Errorf("error type = %q, want %q", envelope.Type, ErrTypeValidation)
	}

	req := httptest.NewRequest("POST", "/api/v1/round/reveal", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: expected status 400, got %d", w.Code)
	}
}

func TestRevealOutsideRoundIsNoOp(t *testing.T) {
	env := newTestEnv(t, 24)

	rec := env.do(t, "POST", "/api/v1/round/reveal", RevealRequest{Tile: 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var revealed RevealResponse
	decodeBody(t, rec, &revealed)
	if revealed.Signal != "" {
		t.Errorf("signal = %q, want empty for idle reveal", revealed.Signal)
	}
	if revealed.Snapshot.State != game.StateIdle {
		t.Errorf("state = %s, want %s", revealed.Snapshot.State, game.StateIdle)
	}
}

func TestClaimFlow(t *testing.T) {
	env := newTestEnv(t, 24)

	// A fresh wallet has never claimed, so the stipend is immediately due
	rec := env.do(t, "GET", "/api/v1/claim", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status: expected 200, got %d", rec.Code)
	}
	var status ClaimStatusResponse
	decodeBody(t, rec, &status)
	if !status.CanClaim {
		t.Error("fresh wallet: can_claim = false, want true")
	}
	if status.TimeUntilClaimMS != 0 {
		t.Errorf("fresh wallet: time_until_claim_ms = %d, want 0", status.TimeUntilClaimMS)
	}

	rec = env.do(t, "POST", "/api/v1/claim", nil)
	var claimed ClaimResponse
	decodeBody(t, rec, &claimed)
	if !claimed.Claimed {
		t.Error("claim: claimed = false, want true")
	}
	if !claimed.Snapshot.Balance.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("claim: balance = %s, want 1100", claimed.Snapshot.Balance)
	}

	rec = env.do(t, "GET", "/api/v1/claim", nil)
	decodeBody(t, rec, &status)
	if status.CanClaim {
		t.Error("after claim: can_claim = true, want false")
	}
	if status.TimeUntilClaimMS <= 0 {
		t.Errorf("after claim: time_until_claim_ms = %d, want > 0", status.TimeUntilClaimMS)
	}

	rec = env.do(t, "POST", "/api/v1/claim", nil)
	decodeBody(t, rec, &claimed)
	if claimed.Claimed {
		t.Error("second claim inside cooldown: claimed = true, want false")
	}
	if !claimed.Snapshot.Balance.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("second claim: balance = %s, want unchanged 1100", claimed.Snapshot.Balance)
	}
}

func TestStateEndpoint(t *testing.T) {
	env := newTestEnv(t, 24)

	rec := env.do(t, "GET", "/api/v1/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var state StateResponse
	decodeBody(t, rec, &state)
	if state.Snapshot.State != game.StateIdle {
		t.Errorf("state = %s, want %s", state.Snapshot.State, game.StateIdle)
	}
	if !state.Snapshot.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("balance = %s, want 1000", state.Snapshot.Balance)
	}
	if len(state.Snapshot.Revealed) != 0 {
		t.Errorf("revealed = %v, want empty", state.Snapshot.Revealed)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t, 0)

	// Round 1 busts on the first reveal
	env.do(t, "POST", "/api/v1/round/start", StartRoundRequest{Wager: decimal.NewFromInt(10)})
	rec := env.do(t, "POST", "/api/v1/round/reveal", RevealRequest{Tile: 0})
	var revealed RevealResponse
	decodeBody(t, rec, &revealed)
	if revealed.Signal != game.SignalHazard {
		t.Fatalf("reveal: signal = %q, want %q", revealed.Signal, game.SignalHazard)
	}
	if revealed.Hazard == nil || *revealed.Hazard != 0 {
		t.Fatalf("reveal: hazard = %v, want 0", revealed.Hazard)
	}

	// Round 2 cashes out immediately at the 1.00 multiplier
	env.do(t, "POST", "/api/v1/round/start", StartRoundRequest{Wager: decimal.NewFromInt(20)})
	env.do(t, "POST", "/api/v1/round/cashout", nil)

	rec = env.do(t, "GET", "/api/v1/history?page=1&perPage=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected status 200, got %d", rec.Code)
	}
	var list store.RoundsList
	decodeBody(t, rec, &list)
	if list.TotalCount != 2 {
		t.Fatalf("history: totalCount = %d, want 2", list.TotalCount)
	}
	if len(list.Rounds) != 2 {
		t.Fatalf("history: got %d rounds, want 2", len(list.Rounds))
	}
	if list.Rounds[0].Outcome != string(game.StateCashedOut) {
		t.Errorf("newest round outcome = %q, want %q", list.Rounds[0].Outcome, game.StateCashedOut)
	}
	if list.Rounds[0].Payout != "20" {
		t.Errorf("newest round payout = %q, want %q", list.Rounds[0].Payout, "20")
	}
	if list.Rounds[1].Outcome != string(game.StateBusted) {
		t.Errorf("older round outcome = %q, want %q", list.Rounds[1].Outcome, game.StateBusted)
	}

	rec = env.do(t, "GET", "/api/v1/history?outcome=busted", nil)
	decodeBody(t, rec, &list)
	if list.TotalCount != 1 {
		t.Errorf("busted filter: totalCount = %d, want 1", list.TotalCount)
	}

	rec = env.do(t, "GET", "/api/v1/history?outcome=sideways", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad outcome filter: expected status 400, got %d", rec.Code)
	}

	rec = env.do(t, "GET", "/api/v1/history/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: expected status 200, got %d", rec.Code)
	}
	var summary store.RoundsSummary
	decodeBody(t, rec, &summary)
	if summary.Rounds != 2 || summary.Busted != 1 || summary.CashedOut != 1 {
		t.Errorf("summary counts = %d/%d/%d, want 2/1/1", summary.Rounds, summary.Busted, summary.CashedOut)
	}
	if !summary.TotalWagered.Equal(decimal.NewFromInt(30)) {
		t.Errorf("summary total_wagered = %s, want 30", summary.TotalWagered)
	}
	if !summary.NetProfit.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("summary net_profit = %s, want -10", summary.NetProfit)
	}
}

func TestFairEndpoints(t *testing.T) {
	env := newTestEnv(t, 24)

	rec := env.do(t, "GET", "/api/v1/fair", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fair: expected status 200, got %d", rec.Code)
	}
	var info seeds.Info
	decodeBody(t, rec, &info)
	if len(info.ServerSeedHash) != 64 {
		t.Errorf("server seed hash length = %d, want 64", len(info.ServerSeedHash))
	}
	if info.ClientSeed == "" {
		t.Error("expected a generated client seed")
	}
	if info.Nonce != 0 {
		t.Errorf("nonce = %d, want 0", info.Nonce)
	}

	rec = env.do(t, "POST", "/api/v1/fair/client-seed", ClientSeedRequest{ClientSeed: "my_lucky_seed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("client-seed: expected status 200, got %d", rec.Code)
	}
	var updated seeds.Info
	decodeBody(t, rec, &updated)
	if updated.ClientSeed != "my_lucky_seed" {
		t.Errorf("client seed = %q, want %q", updated.ClientSeed, "my_lucky_seed")
	}

	rec = env.do(t, "POST", "/api/v1/fair/client-seed", ClientSeedRequest{ClientSeed: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank client seed: expected status 400, got %d", rec.Code)
	}

	rec = env.do(t, "POST", "/api/v1/fair/rotate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rotate: expected status 200, got %d", rec.Code)
	}
	var rotated RotateResponse
	decodeBody(t, rec, &rotated)
	if seeds.HashSeed(rotated.RevealedServerSeed) != info.ServerSeedHash {
		t.Error("revealed seed does not hash to the previously published hash")
	}
	if rotated.Fair.ServerSeedHash == info.ServerSeedHash {
		t.Error("rotation kept the same server seed")
	}
	if rotated.Fair.Nonce != 0 {
		t.Errorf("nonce after rotation = %d, want 0", rotated.Fair.Nonce)
	}

	rec = env.do(t, "POST", "/api/v1/fair/verify", VerifyRequest{
		Server: rotated.RevealedServerSeed,
		Client: "my_lucky_seed",
		Nonce:  0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected status 200, got %d", rec.Code)
	}
	var verified VerifyResponse
	decodeBody(t, rec, &verified)
	want := game.VerifyHazard(rotated.RevealedServerSeed, "my_lucky_seed", 0)
	if verified.Hazard != want {
		t.Errorf("verify hazard = %d, want %d", verified.Hazard, want)
	}
	if verified.Hazard < 0 || verified.Hazard >= game.TotalTiles {
		t.Errorf("verify hazard = %d, out of board range", verified.Hazard)
	}
	if verified.Echo.Server != rotated.RevealedServerSeed {
		t.Error("verify echo does not match request")
	}

	rec = env.do(t, "POST", "/api/v1/fair/verify", VerifyRequest{Client: "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("verify without server seed: expected status 400, got %d", rec.Code)
	}
}

func TestProfileEndpoints(t *testing.T) {
	env := newTestEnv(t, 24)

	rec := env.do(t, "GET", "/api/v1/profile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected status 200, got %d", rec.Code)
	}
	var current profile.Profile
	decodeBody(t, rec, &current)
	if current.DefaultWager != "10" {
		t.Errorf("default wager = %q, want %q", current.DefaultWager, "10")
	}

	rec = env.do(t, "PUT", "/api/v1/profile", profile.Profile{
		DefaultWager:   "25",
		PreferredPicks: []int{12, 6},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put: expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "GET", "/api/v1/profile", nil)
	decodeBody(t, rec, &current)
	if current.DefaultWager != "25" {
		t.Errorf("after put: default wager = %q, want %q", current.DefaultWager, "25")
	}
	if len(current.PreferredPicks) != 2 || current.PreferredPicks[0] != 12 {
		t.Errorf("after put: picks = %v, want [12 6]", current.PreferredPicks)
	}

	rec = env.do(t, "PUT", "/api/v1/profile", profile.Profile{DefaultWager: "0.50"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("sub-minimum wager: expected status 400, got %d", rec.Code)
	}
	var envelope EngineError
	decodeBody(t, rec, &envelope)
	if envelope.Type != ErrTypeValidation {
		t.Errorf("error type = %q, want %q", envelope.Type, ErrTypeValidation)
	}
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t, 24)

	rec := env.do(t, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected status 200, got %d", rec.Code)
	}
	var health HealthCheckResponse
	decodeBody(t, rec, &health)
	if health.Status != HealthStatusHealthy {
		t.Errorf("health status = %s, want %s", health.Status, HealthStatusHealthy)
	}
	if health.Checks["database"].Status != HealthStatusHealthy {
		t.Errorf("database check = %s, want %s", health.Checks["database"].Status, HealthStatusHealthy)
	}
	if health.Checks["engine"].Status != HealthStatusHealthy {
		t.Errorf("engine check = %s, want %s", health.Checks["engine"].Status, HealthStatusHealthy)
	}

	rec = env.do(t, "GET", "/health/live", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("liveness: expected status 200, got %d", rec.Code)
	}

	rec = env.do(t, "GET", "/health/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readiness: expected status 200, got %d", rec.Code)
	}

	rec = env.do(t, "GET", "/api/v1/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("version: expected status 200, got %d", rec.Code)
	}
	var version VersionInfo
	decodeBody(t, rec, &version)
	if version.EngineVersion == "" {
		t.Error("expected engine version in response")
	}
}
