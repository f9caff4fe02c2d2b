// Package smoke drives a running service over HTTP and checks that
// submissions end up on the leaderboard.
package smoke

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skyscraper/pkg/logger"
)

// Run executes the complete smoke run and returns its statistics.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting skyscraper smoke run",
		logger.String("runID", stats.RunID),
		logger.String("baseURL", config.BaseURL),
		logger.Int("players", config.Players),
		logger.Int("submissions", config.Submissions),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Int("topN", config.TopN))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Create a session and read its inventory
	info, err := triggerSession(ctx, config)
	if err != nil {
		return stats, fmt.Errorf("session trigger failed: %w", err)
	}
	stats.SessionID = info.SessionID
	if err := checkInventory(ctx, config, info); err != nil {
		return stats, fmt.Errorf("inventory check failed: %w", err)
	}

	// Step 3: Generate and submit scores
	subs, err := generateSubmissions(ctx, config, stats.RunID, stats)
	if err != nil {
		return stats, fmt.Errorf("generation failed: %w", err)
	}
	if err := submitScores(ctx, config, info.SessionID, subs, stats); err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}

	// Step 4: Read and verify the leaderboard
	board, err := getLeaderboard(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	if err := verifyLeaderboard(bestScores(subs), board); err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	logger.Get().Info(ctx, "smoke run completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout, config.AdminToken)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	// The service answers with Prometheus metrics.
	return decodeResponse(resp, StatusOK, nil)
}

// triggerSession creates a session through the admin API.
func triggerSession(ctx context.Context, config *Config) (SessionInfo, error) {
	client := newHTTPClient(config.Timeout, config.AdminToken)
	resp, err := client.Post(ctx, config.BaseURL+"/admin/sessions", nil)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("request failed: %w", err)
	}
	var info SessionInfo
	if err := decodeResponse(resp, StatusCreated, &info); err != nil {
		return SessionInfo{}, err
	}
	logger.Get().Info(ctx, "session created",
		logger.String("sessionID", info.SessionID),
		logger.String("title", info.Title))
	return info, nil
}

// checkInventory fetches the session inventory and checks that the groups
// add up to the shape list.
func checkInventory(ctx context.Context, config *Config, info SessionInfo) error {
	client := newHTTPClient(config.Timeout, config.AdminToken)
	resp, err := client.Get(ctx, fmt.Sprintf("%s/sessions/%s/inventory", config.BaseURL, url.PathEscape(info.SessionID)))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var inv Inventory
	if err := decodeResponse(resp, StatusOK, &inv); err != nil {
		return err
	}
	if len(inv.Shapes) != info.Shapes {
		return fmt.Errorf("inventory has %d shapes, session reported %d", len(inv.Shapes), info.Shapes)
	}
	total := 0
	for _, g := range inv.ShapeGroups {
		total += g.Count
	}
	if total != len(inv.Shapes) {
		return fmt.Errorf("shape groups count %d shapes, list has %d", total, len(inv.Shapes))
	}
	return nil
}

// getLeaderboard retrieves the top N leaderboard entries.
func getLeaderboard(ctx context.Context, config *Config, stats *Stats) ([]Entry, error) {
	client := newHTTPClient(config.Timeout, config.AdminToken)
	resp, err := client.Get(ctx, fmt.Sprintf("%s/leaderboard?limit=%d", config.BaseURL, config.TopN))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var board []Entry
	if err := decodeResponse(resp, StatusOK, &board); err != nil {
		return nil, err
	}
	stats.LeaderboardEntries = len(board)
	return board, nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var acceptRate, perSecond float64
	if stats.Submitted > 0 {
		acceptRate = float64(stats.Accepted) / float64(stats.Submitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.String("runID", stats.RunID),
		logger.String("sessionID", stats.SessionID),
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("highScores", stats.HighScores),
		logger.Int("failed", stats.Failed),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("submissionsPerSecond", perSecond))
}
