package offlinecache

import (
	"context"
	"fmt"
	"strings"
)

// authenticatedMarkers identify responses that belong to a signed-in user.
var authenticatedMarkers = []string{"/api/", "/dashboard"}

// PurgeAuthenticated deletes entries of the dynamic partition whose URL contains
// `/api/` or `/dashboard`, and returns how many were deleted.
// Other entries are kept.
func (w *Worker) PurgeAuthenticated(ctx context.Context) (int, error) {
	p, err := w.storage.Open(w.names.Dynamic)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	entries, err := p.Entries()
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	purged := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if !isAuthenticated(e.URL) {
			continue
		}
		existed, err := p.Delete(e.Key)
		if err != nil {
			w.log.Warn().Err(err).Str("url", e.URL).Msg("Could not purge entry")
			continue
		}
		if existed {
			purged++
		}
	}
	w.metrics.observePurged(purged)
	w.log.Info().Int("purged", purged).Msg("Purged authenticated entries")
	return purged, nil
}

func isAuthenticated(rawURL string) bool {
	for _, marker := range authenticatedMarkers {
		if strings.Contains(rawURL, marker) {
			return true
		}
	}
	return false
}
