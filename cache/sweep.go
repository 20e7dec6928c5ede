package cache

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Sweep deletes every partition whose name is not in allow and returns the deleted names.
// A failing delete is logged and the sweep continues with the remaining partitions;
// only a failure to list partitions aborts it.
func Sweep(s Storage, allow []string, log zerolog.Logger) ([]string, error) {
	keep := make(map[string]struct{}, len(allow))
	for _, name := range allow {
		keep[name] = struct{}{}
	}
	names, err := s.Names()
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	deleted := make([]string, 0)
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		log.Debug().Str("partition", name).Msg("Deleting stale partition")
		existed, err := s.Delete(name)
		if err != nil {
			log.Error().Err(err).Str("partition", name).Msg("Could not delete stale partition")
			continue
		}
		if existed {
			deleted = append(deleted, name)
		}
	}
	return deleted, nil
}
