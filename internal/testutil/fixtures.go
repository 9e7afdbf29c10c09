package testutil

import (
	"fmt"
	"time"
)

var (
	genres  = []string{"rock", "jazz", "pop", "hip-hop", "classical"}
	genders = []string{"female", "male", "non-binary"}
	epoch   = time.Date(2024, time.October, 7, 10, 0, 0, 0, time.UTC)
)

// Users returns n user records with ids 1..n.
func Users(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		id := i + 1
		out[i] = map[string]any{
			"id":              id,
			"first_name":      fmt.Sprintf("First%d", id),
			"last_name":       fmt.Sprintf("Last%d", id),
			"email":           fmt.Sprintf("user%d@example.com", id),
			"gender":          genders[i%len(genders)],
			"favorite_genres": []string{genres[i%len(genres)], genres[(i+1)%len(genres)]},
			"created_at":      epoch.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"updated_at":      epoch.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		}
	}
	return out
}

// Tracks returns n track records with ids 1..n.
func Tracks(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		id := i + 1
		out[i] = map[string]any{
			"id":          id,
			"name":        fmt.Sprintf("Track %d", id),
			"artist":      fmt.Sprintf("Artist %d", id%17),
			"songwriters": fmt.Sprintf("Writer %d, Writer %d", id%5, id%7),
			"duration":    fmt.Sprintf("%d:%02d", 2+id%4, id%60),
			"genres":      []string{genres[i%len(genres)]},
			"album":       fmt.Sprintf("Album %d", id%11),
			"created_at":  epoch.Format(time.RFC3339),
			"updated_at":  epoch.Format(time.RFC3339),
		}
	}
	return out
}

// ListenHistory returns n listen history records for users 1..n, each with
// perUser track ids in play order.
func ListenHistory(n, perUser int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		items := make([]int, perUser)
		for k := range items {
			items[k] = (i*perUser+k)%50 + 1
		}
		out[i] = map[string]any{
			"user_id": i + 1,
			"items":   items,
		}
	}
	return out
}
