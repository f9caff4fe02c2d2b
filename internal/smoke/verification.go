package smoke

import (
	"fmt"
	"log"
)

// verifyLeaderboard checks ordering and that every run player on the board
// shows their best submitted score. The board is global, so players from
// other runs may appear too; the run's best player must appear whenever their
// score clears the last entry.
func verifyLeaderboard(best map[string]float64, board []Entry) error {
	log.Println("🔍 Verifying leaderboard...")

	if len(board) == 0 {
		return fmt.Errorf("empty leaderboard")
	}

	for i := 1; i < len(board); i++ {
		prev, cur := board[i-1], board[i]
		if cur.Score > prev.Score {
			return fmt.Errorf("leaderboard not properly sorted: entry %d has higher score than entry %d", i, i-1)
		}
		if cur.Score == prev.Score && cur.Player < prev.Player {
			return fmt.Errorf("tied entries %d and %d are not ordered by player", i-1, i)
		}
	}

	onBoard := make(map[string]bool, len(board))
	for _, e := range board {
		want, ours := best[e.Player]
		if !ours {
			continue
		}
		onBoard[e.Player] = true
		if e.Score != want {
			return fmt.Errorf("player %s shows %.2f, best submitted was %.2f", e.Player, e.Score, want)
		}
	}

	var topPlayer string
	var topScore float64
	for p, s := range best {
		if topPlayer == "" || s > topScore || (s == topScore && p < topPlayer) {
			topPlayer, topScore = p, s
		}
	}
	if topScore > board[len(board)-1].Score && !onBoard[topPlayer] {
		return fmt.Errorf("best run player %s (%.2f) missing from leaderboard", topPlayer, topScore)
	}

	displayTopPlayers(board)
	log.Println("✅ Leaderboard verified")
	return nil
}

// displayTopPlayers shows the head of the leaderboard.
func displayTopPlayers(board []Entry) {
	topN := 10
	if len(board) < topN {
		topN = len(board)
	}
	log.Printf("🥇 Top %d players:", topN)
	for i := 0; i < topN; i++ {
		e := board[i]
		log.Printf("   %d. %s - Height: %.2f", e.Rank, e.Player, e.Score)
	}
}
