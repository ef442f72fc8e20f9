package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/trapgrid/trapgrid-go/internal/game"
	"github.com/trapgrid/trapgrid-go/internal/rng"
	"github.com/trapgrid/trapgrid-go/internal/scripting"
	"github.com/trapgrid/trapgrid-go/internal/seeds"
	"github.com/trapgrid/trapgrid-go/internal/wallet"
)

// Flat wager session; the knobs arrive through the prelude and the round
// cap through the -rounds watchdog.
const defaultScript = `
function dobet() {
}
`

var (
	scriptPath = flag.String("script", "", "path to an autoplay script; empty runs the built-in flat-wager script")
	rounds     = flag.Int("rounds", 100, "stop after this many rounds")
	wager      = flag.Float64("wager", 10, "wager per round for the built-in script")
	tiles      = flag.Int("tiles", 3, "safe reveals before cashing out for the built-in script")
	serverSeed = flag.String("server", "a4f2b91c6e8d35071f0e9a2b4c8d6e1f3a5b7c9d1e2f4a6b8c0d2e4f6a8b0c1d", "server seed for the deterministic dealer")
	clientSeed = flag.String("client", "trapgrid-sim", "client seed for the deterministic dealer")
	curve      = flag.Bool("curve", false, "print the multiplier curve and exit")
	verbose    = flag.Bool("verbose", false, "print engine state as the session runs")
)

// seededDealer replays the same hazard sequence for a seed pair, nonce
// counting up from zero. No persistence, no rotation.
type seededDealer struct {
	server string
	client string
	nonce  uint64
}

func (d *seededDealer) Deal() (rng.Source, game.Fairness) {
	src := rng.Seeded(d.server, d.client, d.nonce)
	fairness := game.Fairness{
		ServerSeedHash: seeds.HashSeed(d.server),
		ClientSeed:     d.client,
		Nonce:          d.nonce,
	}
	d.nonce++
	return src, fairness
}

// consoleEmitter prints state transitions; the script log is printed once
// at the end of the session instead of per emit.
type consoleEmitter struct {
	verbose bool
}

func (c *consoleEmitter) EmitScriptState(state scripting.EngineSnapshot) {
	if !c.verbose || state.Stats == nil {
		return
	}
	fmt.Printf("state=%s rounds=%d profit=%+.2f balance=%.2f\n",
		state.State, state.Stats.Rounds, state.Stats.Profit, state.Stats.Balance)
}

func (c *consoleEmitter) EmitScriptLog(entries []scripting.LogEntry) {}

func main() {
	flag.Parse()
	log.SetPrefix("[trapgrid-sim] ")

	if *curve {
		printCurve()
		return
	}

	script := defaultScript
	if *scriptPath != "" {
		raw, err := os.ReadFile(*scriptPath)
		if err != nil {
			log.Fatalf("read script: %v", err)
		}
		script = string(raw)
	}
	prelude := fmt.Sprintf("nextbet = %s;\nautotiles = %d;\n",
		strconv.FormatFloat(*wager, 'f', -1, 64), *tiles)

	w := wallet.New(nil)
	gameEngine := game.NewEngine(game.Config{
		Wallet: w,
		Dealer: &seededDealer{server: *serverSeed, client: *clientSeed},
	})
	player := scripting.NewLocalPlayer(gameEngine)
	engine := scripting.NewEngine(player, &consoleEmitter{verbose: *verbose})

	fmt.Printf("server seed: %s\n", *serverSeed)
	fmt.Printf("client seed: %s\n", *clientSeed)
	fmt.Printf("seed hash:   %s\n", seeds.HashSeed(*serverSeed))
	fmt.Printf("balance:     %s\n\n", w.Balance())

	startBalance := w.Balance().InexactFloat64()
	if err := engine.Start(prelude+script, startBalance); err != nil {
		log.Fatalf("start script: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-ctx.Done():
			engine.Stop()
			break wait
		case <-ticker.C:
			snap := engine.GetState()
			if snap.State != scripting.StateRunning {
				break wait
			}
			if snap.Stats != nil && snap.Stats.Rounds >= *rounds {
				engine.Stop()
				break wait
			}
		}
	}

	printSession(engine)
}

func printSession(engine *scripting.Engine) {
	snap := engine.GetState()

	if logs := engine.GetLogs(); len(logs) > 0 {
		fmt.Println("script log:")
		for _, entry := range logs {
			fmt.Printf("  %s %s\n", entry.Time.Format("15:04:05.000"), entry.Message)
		}
		fmt.Println()
	}

	fmt.Printf("state:          %s\n", snap.State)
	if snap.Error != "" {
		fmt.Printf("error:          %s\n", snap.Error)
	}
	if stats := snap.Stats; stats != nil {
		winRate := 0.0
		if stats.Rounds > 0 {
			winRate = float64(stats.Wins) / float64(stats.Rounds) * 100
		}
		fmt.Printf("rounds:         %d\n", stats.Rounds)
		fmt.Printf("wins/losses:    %d/%d (%.1f%% win rate)\n", stats.Wins, stats.Losses, winRate)
		fmt.Printf("wagered:        %.2f\n", stats.Wagered)
		fmt.Printf("profit:         %+.2f (%+.2f%%)\n", stats.Profit, stats.ProfitPercent())
		fmt.Printf("final balance:  %.2f\n", stats.Balance)
		fmt.Printf("best streak:    %d\n", stats.HighestStreak)
		fmt.Printf("worst streak:   %d\n", stats.LowestStreak)
	}

	if snap.State == scripting.StateError {
		os.Exit(1)
	}
}

func printCurve() {
	fmt.Printf("multiplier curve (gamma %.1f):\n", game.CurveGamma)
	for safe := 0; safe <= game.SafeTiles; safe++ {
		fmt.Printf("  %2d safe: x%s\n", safe, game.Multiplier(safe))
	}
}
