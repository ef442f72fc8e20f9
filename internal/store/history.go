package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Round is one resolved round in the ledger. Money columns hold decimal
// strings, never floats; the fairness columns are empty for unseeded rounds.
type Round struct {
	ID             string    `json:"id"`
	Outcome        string    `json:"outcome"`
	Wager          string    `json:"wager"`
	Payout         string    `json:"payout"`
	Multiplier     string    `json:"multiplier"`
	SafeRevealed   int       `json:"safe_revealed"`
	Hazard         int       `json:"hazard"`
	ServerSeedHash string    `json:"server_seed_hash,omitempty"`
	ClientSeed     string    `json:"client_seed,omitempty"`
	Nonce          uint64    `json:"nonce"`
	CreatedAt      time.Time `json:"created_at"`
}

// RoundsQuery filters and paginates the ledger listing.
type RoundsQuery struct {
	Outcome string `json:"outcome,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// RoundsList is one page of the ledger, newest rounds first.
type RoundsList struct {
	Rounds     []Round `json:"rounds"`
	TotalCount int     `json:"totalCount"`
	Page       int     `json:"page"`
	PerPage    int     `json:"perPage"`
	TotalPages int     `json:"totalPages"`
}

// RoundsSummary aggregates the whole ledger.
type RoundsSummary struct {
	Rounds       int             `json:"rounds"`
	CashedOut    int             `json:"cashed_out"`
	Busted       int             `json:"busted"`
	TotalWagered decimal.Decimal `json:"total_wagered"`
	TotalPaidOut decimal.Decimal `json:"total_paid_out"`
	NetProfit    decimal.Decimal `json:"net_profit"`
}

const defaultRoundsPerPage = 50

// InsertRounds writes a batch of resolved rounds in one transaction. Rounds
// without an ID get one assigned.
func (db *DB) InsertRounds(ctx context.Context, rounds []Round) error {
	if len(rounds) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin insert rounds: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rounds (
		id, outcome, wager, payout, multiplier, safe_revealed, hazard,
		server_seed_hash, client_seed, nonce
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert rounds: %w", err)
	}
	defer stmt.Close()

	for _, r := range rounds {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Outcome, r.Wager, r.Payout, r.Multiplier,
			r.SafeRevealed, r.Hazard,
			r.ServerSeedHash, r.ClientSeed, r.Nonce,
		); err != nil {
			return fmt.Errorf("store: insert round %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// ListRounds returns one page of the ledger, newest first, optionally
// filtered by outcome.
func (db *DB) ListRounds(ctx context.Context, query RoundsQuery) (*RoundsList, error) {
	whereClause := ""
	args := []any{}
	if query.Outcome != "" {
		whereClause = "WHERE outcome = ?"
		args = append(args, query.Outcome)
	}

	var totalCount int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM rounds "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("store: count rounds: %w", err)
	}

	if query.PerPage <= 0 {
		query.PerPage = defaultRoundsPerPage
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	totalPages := (totalCount + query.PerPage - 1) / query.PerPage
	offset := (query.Page - 1) * query.PerPage

	mainQuery := `SELECT
		id, outcome, wager, payout, multiplier, safe_revealed, hazard,
		server_seed_hash, client_seed, nonce, created_at
		FROM rounds ` + whereClause + `
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`
	args = append(args, query.PerPage, offset)

	rows, err := db.conn.QueryContext(ctx, mainQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query rounds: %w", err)
	}
	defer rows.Close()

	var rounds []Round
	for rows.Next() {
		var r Round
		if err := rows.Scan(
			&r.ID, &r.Outcome, &r.Wager, &r.Payout, &r.Multiplier,
			&r.SafeRevealed, &r.Hazard,
			&r.ServerSeedHash, &r.ClientSeed, &r.Nonce, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rounds: %w", err)
	}

	return &RoundsList{
		Rounds:     rounds,
		TotalCount: totalCount,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: totalPages,
	}, nil
}

// SummarizeRounds aggregates the ledger. Sums run over decimals in Go; SQL
// SUM over the text columns would round through floats.
func (db *DB) SummarizeRounds(ctx context.Context) (*RoundsSummary, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT outcome, wager, payout FROM rounds`)
	if err != nil {
		return nil, fmt.Errorf("store: query round totals: %w", err)
	}
	defer rows.Close()

	summary := &RoundsSummary{
		TotalWagered: decimal.Zero,
		TotalPaidOut: decimal.Zero,
	}
	for rows.Next() {
		var outcome, wagerStr, payoutStr string
		if err := rows.Scan(&outcome, &wagerStr, &payoutStr); err != nil {
			return nil, fmt.Errorf("store: scan round totals: %w", err)
		}
		wager, err := decimal.NewFromString(wagerStr)
		if err != nil {
			return nil, fmt.Errorf("store: ledger wager %q: %w", wagerStr, err)
		}
		payout, err := decimal.NewFromString(payoutStr)
		if err != nil {
			return nil, fmt.Errorf("store: ledger payout %q: %w", payoutStr, err)
		}

		summary.Rounds++
		switch outcome {
		case "cashed_out":
			summary.CashedOut++
		case "busted":
			summary.Busted++
		}
		summary.TotalWagered = summary.TotalWagered.Add(wager)
		summary.TotalPaidOut = summary.TotalPaidOut.Add(payout)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate round totals: %w", err)
	}

	summary.NetProfit = summary.TotalPaidOut.Sub(summary.TotalWagered)
	return summary, nil
}
