package eventmonitor

import "github.com/petec4244/arbees/pkg/types"

// ValidTransitions enumerates the Event lifecycle transitions the
// monitor accepts from a refreshed event-state fetch.
var ValidTransitions = map[types.EventState][]types.EventState{
	types.EventScheduled: {types.EventLive, types.EventSuspended, types.EventFinal},
	types.EventLive:      {types.EventSuspended, types.EventFinal},
	types.EventSuspended: {types.EventLive, types.EventFinal},
	types.EventFinal:     {},
}

// CanTransition reports whether from -> to is an allowed lifecycle move.
func CanTransition(from, to types.EventState) bool {
	if from == to {
		return true
	}
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
