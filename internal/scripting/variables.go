package scripting

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/trapgrid/trapgrid-go/internal/game"
)

// injectConstants sets read-only board constants on the JS runtime.
func injectConstants(vm *goja.Runtime) {
	vm.Set("GRID_SIZE", game.Size)
	vm.Set("TOTAL_TILES", game.TotalTiles)
	vm.Set("SAFE_TILES", game.SafeTiles)
	vm.Set("MIN_WAGER", game.MinWager.InexactFloat64())
	vm.Set("MAX_MULTIPLIER", game.MaxMultiplier.InexactFloat64())
}

// Variables holds the script-visible global state. Amounts are float64
// for JS interop; the engine converts at the game boundary.
type Variables struct {
	// Core wagering
	Balance     float64 `json:"balance"`
	NextBet     float64 `json:"nextbet"`
	BaseBet     float64 `json:"basebet"`
	PreviousBet float64 `json:"previousbet"`
	Win         bool    `json:"win"`
	Running     bool    `json:"running"`

	// Statistics (pointer, shared with the engine)
	Stats *Statistics `json:"-"`

	// Board strategy: Picks is the preferred reveal order, AutoTiles the
	// number of safe reveals to take before cashing out when the script
	// defines no round() callback.
	Picks     []int `json:"picks"`
	AutoTiles int   `json:"autotiles"`

	// State of the reveal in progress, visible to round().
	CurrentRound map[string]interface{} `json:"currentround"`

	// Result of the last finished round.
	LastRound map[string]interface{} `json:"lastround"`

	// Control
	StopOnWin bool `json:"stoponwin"`
	SleepTime int  `json:"sleeptime"`
}

// NewVariables creates a Variables with defaults for a fresh session.
func NewVariables(stats *Statistics) *Variables {
	return &Variables{
		Stats:     stats,
		Balance:   stats.Balance,
		AutoTiles: 1,
		Picks:     []int{},
		CurrentRound: map[string]interface{}{
			"active":       false,
			"safeRevealed": 0,
			"multiplier":   1.0,
			"nextTile":     0,
		},
		LastRound: map[string]interface{}{
			"wager":        0.0,
			"payout":       0.0,
			"multiplier":   0.0,
			"win":          false,
			"safeRevealed": 0,
			"hazard":       -1,
		},
	}
}

// injectVariables pushes the variable state into the JS runtime.
// Read-only semantics are enforced by what syncFromVM reads back, not at
// the JS property level.
func injectVariables(vm *goja.Runtime, vars *Variables) {
	vm.Set("balance", vars.Balance)
	vm.Set("nextbet", vars.NextBet)
	vm.Set("basebet", vars.BaseBet)
	vm.Set("previousbet", vars.PreviousBet)
	vm.Set("win", vars.Win)
	vm.Set("running", vars.Running)

	// Statistics aliases
	vm.Set("bets", vars.Stats.Rounds)
	vm.Set("rounds", vars.Stats.Rounds)
	vm.Set("wins", vars.Stats.Wins)
	vm.Set("losses", vars.Stats.Losses)
	vm.Set("winstreak", vars.Stats.WinStreak)
	vm.Set("losestreak", vars.Stats.LoseStreak)
	vm.Set("currentstreak", vars.Stats.CurrentStreak)
	vm.Set("profit", vars.Stats.Profit)
	vm.Set("currentprofit", vars.Stats.CurrentProfit)
	vm.Set("wagered", vars.Stats.Wagered)
	vm.Set("started_bal", vars.Stats.StartBal)

	// Board strategy
	vm.Set("picks", vars.Picks)
	vm.Set("autotiles", vars.AutoTiles)

	vm.Set("currentround", vars.CurrentRound)
	vm.Set("lastround", vars.LastRound)

	// Control
	vm.Set("stoponwin", vars.StopOnWin)
	vm.Set("sleeptime", vars.SleepTime)
}

// syncFromVM reads mutable variables back from the JS runtime. Only
// variables scripts are allowed to change are read; balance, win and the
// statistics stay engine-owned.
func syncFromVM(vm *goja.Runtime, vars *Variables) {
	vars.NextBet = toFloat64(vm.Get("nextbet"))
	vars.BaseBet = toFloat64(vm.Get("basebet"))
	vars.Picks = toIntSlice(vm.Get("picks"))
	vars.AutoTiles = toInt(vm.Get("autotiles"))
	vars.StopOnWin = toBool(vm.Get("stoponwin"))
	vars.SleepTime = toInt(vm.Get("sleeptime"))
}

// --- Conversion helpers ---

func toFloat64(v goja.Value) float64 {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return v.ToFloat()
}

func toInt(v goja.Value) int {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return int(v.ToInteger())
}

func toBool(v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false
	}
	return v.ToBoolean()
}

func toIntSlice(v goja.Value) []int {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj := v.ToObject(nil)
	if obj == nil {
		return nil
	}
	lengthVal := obj.Get("length")
	if lengthVal == nil || goja.IsUndefined(lengthVal) {
		return nil
	}
	length := int(lengthVal.ToInteger())
	result := make([]int, length)
	for i := 0; i < length; i++ {
		val := obj.Get(fmt.Sprintf("%d", i))
		if val != nil && !goja.IsUndefined(val) {
			result[i] = int(val.ToInteger())
		}
	}
	return result
}
