package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/skyscraper/internal/smoke"
)

// Default configuration constants.
const (
	defaultPlayers     = 50
	defaultSubmissions = 4
	defaultTopN        = 20
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 10 * time.Second
	defaultRunTimeout  = 5 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		players     = flag.Int("players", defaultPlayers, "Number of distinct players")
		submissions = flag.Int("submissions", defaultSubmissions, "Scores submitted per player")
		topN        = flag.Int("top", defaultTopN, "Number of leaderboard entries to fetch")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		adminToken  = flag.String("admin-token", os.Getenv("SKY_ADMIN_TOKEN"), "X-Admin-Token for admin routes")
		logFile     = flag.String("log", "", "Log file for run output (default: smoke_log_TIMESTAMP.log)")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		smoke.ShowHelp()
		return
	}

	if err := smoke.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &smoke.Config{
		BaseURL:     *baseURL,
		Players:     *players,
		Submissions: *submissions,
		TopN:        *topN,
		Workers:     *workers,
		Timeout:     *timeout,
		AdminToken:  *adminToken,
		LogFile:     *logFile,
		Verbose:     *verbose,
	}

	if _, err := smoke.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Smoke run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
