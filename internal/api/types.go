package api

import (
	"github.com/shopspring/decimal"

	"github.com/trapgrid/trapgrid-go/internal/game"
	"github.com/trapgrid/trapgrid-go/internal/seeds"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeValidation = "validation_error"

	// Wallet-related errors
	ErrTypeNoFunds = "no_funds"

	// System errors
	ErrTypeInternal = "internal_error"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryWallet     ErrorCategory = "wallet"
	CategorySystem     ErrorCategory = "system"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation:
		return CategoryValidation
	case ErrTypeNoFunds:
		return CategoryWallet
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// StartRoundRequest opens a round. A missing or zero wager asks for the
// profile's default wager.
type StartRoundRequest struct {
	Wager decimal.Decimal `json:"wager"`
}

// RevealRequest names the tile to reveal.
type RevealRequest struct {
	Tile int `json:"tile"`
}

// StateResponse wraps the engine snapshot returned by the state, start, and
// reset endpoints.
type StateResponse struct {
	Snapshot      game.Snapshot `json:"snapshot"`
	EngineVersion string        `json:"engine_version"`
}

// RevealResponse reports a single tile reveal. Hazard is only set once the
// round has ended; mid-round the hazard stays hidden.
type RevealResponse struct {
	Snapshot      game.Snapshot `json:"snapshot"`
	Signal        game.Signal   `json:"signal,omitempty"`
	Hazard        *int          `json:"hazard,omitempty"`
	EngineVersion string        `json:"engine_version"`
}

// CashOutResponse reports a cash out. Payout is zero when there was no round
// to cash out.
type CashOutResponse struct {
	Snapshot      game.Snapshot   `json:"snapshot"`
	Payout        decimal.Decimal `json:"payout"`
	Hazard        *int            `json:"hazard,omitempty"`
	EngineVersion string          `json:"engine_version"`
}

// ClaimResponse reports a stipend claim attempt.
type ClaimResponse struct {
	Snapshot      game.Snapshot `json:"snapshot"`
	Claimed       bool          `json:"claimed"`
	EngineVersion string        `json:"engine_version"`
}

// ClaimStatusResponse reports whether the stipend is available and how long
// until it is.
type ClaimStatusResponse struct {
	CanClaim         bool   `json:"can_claim"`
	TimeUntilClaimMS int64  `json:"time_until_claim_ms"`
	EngineVersion    string `json:"engine_version"`
}

// ClientSeedRequest replaces the player's client seed.
type ClientSeedRequest struct {
	ClientSeed string `json:"client_seed"`
}

// RotateResponse reveals the retired server seed exactly once, alongside the
// fresh fairness state.
type RotateResponse struct {
	RevealedServerSeed string     `json:"revealed_server_seed"`
	Fair               seeds.Info `json:"fair"`
	EngineVersion      string     `json:"engine_version"`
}

// VerifyRequest recomputes the hazard for a revealed seed pair.
type VerifyRequest struct {
	Server string `json:"server"`
	Client string `json:"client"`
	Nonce  uint64 `json:"nonce"`
}

// VerifyResponse carries the recomputed hazard position.
type VerifyResponse struct {
	Hazard        int           `json:"hazard"`
	EngineVersion string        `json:"engine_version"`
	Echo          VerifyRequest `json:"echo"`
}
