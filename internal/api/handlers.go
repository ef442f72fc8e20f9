package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trapgrid/trapgrid-go/internal/game"
	"github.com/trapgrid/trapgrid-go/internal/profile"
	"github.com/trapgrid/trapgrid-go/internal/seeds"
	"github.com/trapgrid/trapgrid-go/internal/store"
	"github.com/trapgrid/trapgrid-go/internal/wallet"
)

// handleStartRound opens a round, falling back to the profile's default wager
// when the request carries none. An empty balance maps to a 409 no_funds
// envelope.
func (s *Server) handleStartRound(w http.ResponseWriter, r *http.Request) {
	var req StartRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, "Invalid JSON format", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	requested := req.Wager
	if !requested.IsPositive() {
		requested = s.defaultWager()
	}

	snap, err := s.engine.StartRound(requested)
	if err != nil {
		if errors.Is(err, wallet.ErrNoFunds) {
			s.writeError(w, http.StatusConflict, ErrTypeNoFunds, "Balance is empty; claim the stipend to keep playing", map[string]interface{}{
				"balance": snap.Balance,
			})
			return
		}
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	log.Printf("round_start wager=%s balance=%s state=%s", snap.Wager, snap.Balance, snap.State)

	s.writeJSON(w, http.StatusOK, StateResponse{
		Snapshot:      snap,
		EngineVersion: EngineVersion,
	})
}

// handleRevealTile reveals a tile. An empty signal in the response means the
// call was a no-op: duplicate reveal or no round in play.
func (s *Server) handleRevealTile(w http.ResponseWriter, r *http.Request) {
	var req RevealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, "Invalid JSON format", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if !game.InBounds(req.Tile) {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, fmt.Sprintf("tile %d out of range", req.Tile), map[string]interface{}{
			"tile":  req.Tile,
			"tiles": game.TotalTiles,
		})
		return
	}

	snap, sig := s.engine.RevealTile(req.Tile)

	response := RevealResponse{
		Snapshot:      snap,
		Signal:        sig,
		EngineVersion: EngineVersion,
	}
	if sig == game.SignalHazard {
		if hazard, ok := s.engine.HazardPosition(); ok {
			response.Hazard = &hazard
		}
	}

	log.Printf("round_reveal tile=%d signal=%s state=%s", req.Tile, sig, snap.State)

	s.writeJSON(w, http.StatusOK, response)
}

// handleCashOut banks the current round. Outside a round the payout is zero
// and nothing changes.
func (s *Server) handleCashOut(w http.ResponseWriter, r *http.Request) {
	snap, payout := s.engine.CashOut()

	response := CashOutResponse{
		Snapshot:      snap,
		Payout:        payout,
		EngineVersion: EngineVersion,
	}
	if hazard, ok := s.engine.HazardPosition(); ok {
		response.Hazard = &hazard
	}

	log.Printf("round_cashout payout=%s balance=%s state=%s", payout, snap.Balance, snap.State)

	s.writeJSON(w, http.StatusOK, response)
}

// handleResetRound clears the round back to idle.
func (s *Server) handleResetRound(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.ResetRound()

	log.Printf("round_reset balance=%s", snap.Balance)

	s.writeJSON(w, http.StatusOK, StateResponse{
		Snapshot:      snap,
		EngineVersion: EngineVersion,
	})
}

// handleClaim attempts a stipend claim. Inside the cooldown it reports
// claimed=false rather than an error.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	snap, claimed := s.engine.Claim(time.Now())

	log.Printf("claim_attempt claimed=%t balance=%s", claimed, snap.Balance)

	s.writeJSON(w, http.StatusOK, ClaimResponse{
		Snapshot:      snap,
		Claimed:       claimed,
		EngineVersion: EngineVersion,
	})
}

// handleClaimStatus reports stipend availability without claiming.
func (s *Server) handleClaimStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	s.writeJSON(w, http.StatusOK, ClaimStatusResponse{
		CanClaim:         s.engine.CanClaim(now),
		TimeUntilClaimMS: s.engine.TimeUntilClaim(now).Milliseconds(),
		EngineVersion:    EngineVersion,
	})
}

// handleState returns the current snapshot without mutating anything.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StateResponse{
		Snapshot:      s.engine.Snapshot(),
		EngineVersion: EngineVersion,
	})
}

// handleHistory lists resolved rounds, newest first. Buffered rounds are
// flushed first so the page includes rounds that just resolved.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrTypeInternal, "Round history is not enabled", nil)
		return
	}

	outcome := r.URL.Query().Get("outcome")
	if outcome != "" && outcome != string(game.StateCashedOut) && outcome != string(game.StateBusted) {
		s.errorHandler.HandleValidationError(w, r, "outcome", fmt.Sprintf("outcome %q is not a round outcome", outcome))
		return
	}

	if s.recorder != nil {
		s.recorder.Flush()
	}

	list, err := s.db.ListRounds(r.Context(), store.RoundsQuery{
		Outcome: outcome,
		Page:    clampInt(qInt(r, "page", 1), 1, 1_000_000),
		PerPage: clampInt(qInt(r, "perPage", 50), 1, 500),
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, list)
}

// handleHistorySummary aggregates the whole ledger.
func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrTypeInternal, "Round history is not enabled", nil)
		return
	}

	if s.recorder != nil {
		s.recorder.Flush()
	}

	summary, err := s.db.SummarizeRounds(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

// handleFairInfo returns the server seed hash, client seed, and next nonce.
func (s *Server) handleFairInfo(w http.ResponseWriter, r *http.Request) {
	if s.seeds == nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrTypeInternal, "Provably fair seeds are not enabled", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, s.seeds.Info())
}

// handleRotateSeed retires the active server seed, revealing its plaintext
// exactly once in the response.
func (s *Server) handleRotateSeed(w http.ResponseWriter, r *http.Request) {
	if s.seeds == nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrTypeInternal, "Provably fair seeds are not enabled", nil)
		return
	}

	revealed, err := s.seeds.Rotate()
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	info := s.seeds.Info()

	// Log the new hash, never the revealed plaintext
	log.Printf("seed_rotated new_hash=%s", info.ServerSeedHash)

	s.writeJSON(w, http.StatusOK, RotateResponse{
		RevealedServerSeed: revealed,
		Fair:               info,
		EngineVersion:      EngineVersion,
	})
}

// handleClientSeed replaces the player's client seed. The nonce keeps
// counting; only a rotation resets it.
func (s *Server) handleClientSeed(w http.ResponseWriter, r *http.Request) {
	if s.seeds == nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrTypeInternal, "Provably fair seeds are not enabled", nil)
		return
	}

	var req ClientSeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, "Invalid JSON format", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if err := s.seeds.SetClientSeed(req.ClientSeed); err != nil {
		s.errorHandler.HandleValidationError(w, r, "client_seed", err.Error())
		return
	}

	log.Printf("client_seed_updated len=%d", len(req.ClientSeed))

	s.writeJSON(w, http.StatusOK, s.seeds.Info())
}

// handleVerifyRound recomputes the hazard for a revealed seed pair so a
// recorded round can be checked.
func (s *Server) handleVerifyRound(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, "Invalid JSON format", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if req.Server == "" {
		s.errorHandler.HandleValidationError(w, r, "server", "server seed is required")
		return
	}
	if req.Client == "" {
		s.errorHandler.HandleValidationError(w, r, "client", "client seed is required")
		return
	}

	hazard := game.VerifyHazard(req.Server, req.Client, req.Nonce)

	// Log seed hashes, never the seeds themselves
	log.Printf(
		"verify_request server_hash=%s nonce=%d hazard=%d",
		seeds.HashSeed(req.Server)[:16], req.Nonce, hazard,
	)

	s.writeJSON(w, http.StatusOK, VerifyResponse{
		Hazard:        hazard,
		EngineVersion: EngineVersion,
		Echo:          req,
	})
}

// handleGetProfile returns the saved player preferences.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrTypeInternal, "Profiles are not enabled", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, s.profiles.Current())
}

// handlePutProfile validates and persists player preferences.
func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrTypeInternal, "Profiles are not enabled", nil)
		return
	}

	var req profile.Profile
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeValidation, "Invalid JSON format", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if err := req.Validate(); err != nil {
		s.errorHandler.HandleValidationError(w, r, "profile", err.Error())
		return
	}
	if err := s.profiles.Update(r.Context(), req); err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	log.Printf("profile_updated default_wager=%s picks=%d", req.DefaultWager, len(req.PreferredPicks))

	s.writeJSON(w, http.StatusOK, s.profiles.Current())
}

// handleVersion returns build-time version information.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

func (s *Server) defaultWager() decimal.Decimal {
	if s.profiles == nil {
		return game.MinWager
	}
	return s.profiles.DefaultWager()
}

func qInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
