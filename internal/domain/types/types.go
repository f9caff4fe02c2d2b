// Package types contains the value types and error kinds shared across layers.
package types

import "sort"

// Entry is one leaderboard row: a player and their best score.
type Entry struct {
	Rank   int     `json:"rank"`
	Player string  `json:"player"`
	Score  float64 `json:"score"`
}

// SortDescending orders entries by score desc, then player asc.
func SortDescending(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Player < entries[j].Player
	})
}

// SortAscending orders entries by score asc, then player asc.
func SortAscending(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score < entries[j].Score
		}
		return entries[i].Player < entries[j].Player
	})
}

// AssignRanks numbers a descending slice starting at 1. Players with equal
// scores share a rank and the next distinct score takes the following rank.
func AssignRanks(entries []Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score {
			rank++
		}
		entries[i].Rank = rank
	}
}
