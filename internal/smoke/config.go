package smoke

import "time"

// Config holds configuration for a smoke run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Players     int           // Number of distinct players
	Submissions int           // Scores submitted per player
	TopN        int           // Leaderboard entries to fetch
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	AdminToken  string        // X-Admin-Token for admin routes
	LogFile     string        // Log file for run output
	Verbose     bool          // Enable verbose logging
}

// Submission is one score posted for a player.
type Submission struct {
	Player string  `json:"player"`
	Score  float64 `json:"score"`
}

// SubmitResult is the service's answer to a submission.
type SubmitResult struct {
	Player      string `json:"player"`
	Accepted    bool   `json:"accepted"`
	IsHighScore bool   `json:"is_high_score"`
}

// Entry represents a leaderboard entry.
type Entry struct {
	Rank   int     `json:"rank"`
	Player string  `json:"player"`
	Score  float64 `json:"score"`
}

// SessionInfo is returned when a session is triggered.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Shapes    int    `json:"shapes"`
}

// Inventory is the view payload of a session.
type Inventory struct {
	Shapes []struct {
		Type string `json:"type"`
		Size int    `json:"size"`
	} `json:"shapes"`
	ShapeGroups map[string]struct {
		Count int `json:"count"`
	} `json:"shapeGroups"`
}

// Stats holds run statistics.
type Stats struct {
	RunID              string
	SessionID          string
	Generated          int
	Submitted          int
	Accepted           int
	HighScores         int
	Failed             int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
