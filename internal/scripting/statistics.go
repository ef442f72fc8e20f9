package scripting

import "math"

// Statistics tracks session-level round statistics for a scripted run.
type Statistics struct {
	Rounds   int     `json:"rounds"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Wagered  float64 `json:"wagered"`
	Profit   float64 `json:"profit"`
	Balance  float64 `json:"balance"`
	StartBal float64 `json:"startBal"`

	WinStreak  int `json:"winStreak"`
	LoseStreak int `json:"loseStreak"`
	// Positive = win streak, negative = lose streak.
	CurrentStreak int `json:"currentStreak"`

	HighestStreak int     `json:"highestStreak"`
	LowestStreak  int     `json:"lowestStreak"`
	HighestWager  float64 `json:"highestWager"`
	HighestProfit float64 `json:"highestProfit"`
	LowestProfit  float64 `json:"lowestProfit"`

	CurrentProfit float64 `json:"currentProfit"`
	PreviousWager float64 `json:"previousWager"`
}

// NewStatistics creates a Statistics with the starting balance.
func NewStatistics(startBalance float64) *Statistics {
	return &Statistics{
		Balance:  startBalance,
		StartBal: startBalance,
	}
}

// Reset clears all stats and sets the starting balance to current.
func (s *Statistics) Reset() {
	bal := s.Balance
	*s = Statistics{
		Balance:  bal,
		StartBal: bal,
	}
}

// RoundResult holds the outcome of one finished round.
type RoundResult struct {
	Wager        float64 `json:"wager"`
	Payout       float64 `json:"payout"`
	Multiplier   float64 `json:"multiplier"`
	Win          bool    `json:"win"`
	SafeRevealed int     `json:"safeRevealed"`
	Hazard       int     `json:"hazard"`
}

// RecordRound processes a completed round and updates all statistics.
func (s *Statistics) RecordRound(result RoundResult) {
	s.Rounds++

	profit := result.Payout - result.Wager
	s.CurrentProfit = profit
	s.Profit += profit
	s.Wagered += result.Wager
	s.PreviousWager = result.Wager
	s.Balance += profit

	if result.Win {
		s.Wins++
		s.WinStreak++
		s.LoseStreak = 0
		s.CurrentStreak = s.WinStreak
	} else {
		s.Losses++
		s.LoseStreak++
		s.WinStreak = 0
		s.CurrentStreak = -s.LoseStreak
	}

	if result.Wager > s.HighestWager {
		s.HighestWager = result.Wager
	}
	if s.Profit > s.HighestProfit {
		s.HighestProfit = s.Profit
	}
	if s.Profit < s.LowestProfit {
		s.LowestProfit = s.Profit
	}
	if s.CurrentStreak > s.HighestStreak {
		s.HighestStreak = s.CurrentStreak
	}
	if s.CurrentStreak < s.LowestStreak {
		s.LowestStreak = s.CurrentStreak
	}
}

// ProfitPercent returns profit as a percentage of starting balance.
func (s *Statistics) ProfitPercent() float64 {
	if s.StartBal == 0 {
		return 0
	}
	return (s.Profit / math.Abs(s.StartBal)) * 100
}

// ChartPoint is a single data point for the profit chart.
type ChartPoint struct {
	RoundNumber int     `json:"x"`
	Profit      float64 `json:"y"`
	Win         bool    `json:"win"`
}

// ChartBuffer holds a rolling window of chart data points.
type ChartBuffer struct {
	Points []ChartPoint `json:"points"`
	Max    int          `json:"-"`
}

// NewChartBuffer creates a chart buffer with the given max capacity.
func NewChartBuffer(max int) *ChartBuffer {
	if max <= 0 {
		max = 50
	}
	return &ChartBuffer{
		Points: make([]ChartPoint, 0, max),
		Max:    max,
	}
}

// Push adds a data point. When the buffer reaches double Max it decimates
// to every other point, preserving the first and last, so long sessions
// keep a bounded chart.
func (cb *ChartBuffer) Push(p ChartPoint) {
	cb.Points = append(cb.Points, p)

	if len(cb.Points) >= cb.Max*2 {
		decimated := make([]ChartPoint, 0, cb.Max)
		decimated = append(decimated, cb.Points[0])
		for i := 2; i < len(cb.Points)-1; i += 2 {
			decimated = append(decimated, cb.Points[i])
		}
		decimated = append(decimated, cb.Points[len(cb.Points)-1])
		cb.Points = decimated
	}
}

// Reset clears all chart data.
func (cb *ChartBuffer) Reset() {
	cb.Points = cb.Points[:0]
}
