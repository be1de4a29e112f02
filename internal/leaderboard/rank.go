// Package leaderboard assigns display ranks to leaderboard rows.
package leaderboard

import "shodh/internal/model"

// Rank returns a copy of entries with Rank set to the 1-based row position.
// Rows keep the order they arrived in; ties are not merged.
func Rank(entries []model.LeaderboardEntry) []model.LeaderboardEntry {
	out := make([]model.LeaderboardEntry, len(entries))
	for i, e := range entries {
		e.Rank = i + 1
		out[i] = e
	}
	return out
}
