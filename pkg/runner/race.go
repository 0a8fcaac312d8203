package runner

import (
	"slices"

	"github.com/me/cadence/pkg/future"
)

// RaceResult names the winning entry of a race and the value it settled with.
type RaceResult struct {
	Key   string
	Value any
}

// Race settles with the first entry to settle. Losers are not cancelled and
// keep running. Entries that settle during the same drain are won by the
// first to settle; entries already settled win in key order. An empty race
// never settles.
func Race(entries map[string]future.Awaitable) *future.Future[RaceResult] {
	f := future.New[RaceResult]()
	keys := make([]string, 0, len(entries))
	for k, a := range entries {
		if a != nil {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		entries[k].Subscribe(func(v any) {
			f.Resolve(RaceResult{Key: k, Value: v})
		})
	}
	return f
}
