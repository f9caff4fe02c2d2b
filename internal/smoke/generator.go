package smoke

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"

	"github.com/okian/skyscraper/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	heightBandCount    = 4
)

// Height bands: most towers are modest, a few are very tall.
const (
	lowHeightMax    = 120.0
	midHeightMin    = 120.0
	midHeightRange  = 180.0
	highHeightMin   = 300.0
	highHeightRange = 150.0
	eliteHeightMin  = 450.0
	eliteRange      = 100.0
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateSubmissions creates Submissions scores for each of Players players
// named after runID, interleaved so a player's scores are spread over the run.
func generateSubmissions(ctx context.Context, config *Config, runID string, stats *Stats) ([]Submission, error) {
	if config.Players < 1 || config.Submissions < 1 {
		return nil, fmt.Errorf("players and submissions must be positive")
	}
	logger.Get().Info(ctx, "generating submissions",
		logger.Int("players", config.Players),
		logger.Int("perPlayer", config.Submissions))

	players := make([]string, config.Players)
	for i := range players {
		players[i] = fmt.Sprintf("%s%s-%d", PlayerPrefix, runID[:8], i)
	}

	subs := make([]Submission, 0, config.Players*config.Submissions)
	for round := 0; round < config.Submissions; round++ {
		for _, p := range players {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("context cancelled during generation: %w", err)
			}
			subs = append(subs, Submission{Player: p, Score: generateHeight()})
		}
	}

	stats.Generated = len(subs)
	return subs, nil
}

// generateHeight draws a tower height rounded to centimetres.
func generateHeight() float64 {
	band, _ := rand.Int(rand.Reader, big.NewInt(heightBandCount))
	var h float64
	switch band.Int64() {
	case 0:
		h = getRandomFloat() * lowHeightMax
	case 1:
		h = midHeightMin + getRandomFloat()*midHeightRange
	case 2:
		h = highHeightMin + getRandomFloat()*highHeightRange
	default:
		h = eliteHeightMin + getRandomFloat()*eliteRange
	}
	return math.Round(h*100) / 100
}

// bestScores folds submissions into each player's best score.
func bestScores(subs []Submission) map[string]float64 {
	best := make(map[string]float64, len(subs))
	for _, s := range subs {
		if cur, ok := best[s.Player]; !ok || s.Score > cur {
			best[s.Player] = s.Score
		}
	}
	return best
}
