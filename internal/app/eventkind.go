package app

import (
	"context"

	"github.com/petec4244/arbees/internal/eventstate"
	"github.com/petec4244/arbees/pkg/types"
)

// EventKindResolver adapts the event-state client into signal.EventKinder,
// letting the Signal Processor apply the non-sport volatility discount
// without owning an event-state collaborator of its own.
type EventKindResolver struct {
	States *eventstate.Client
}

// EventKind implements signal.EventKinder.
func (r EventKindResolver) EventKind(ctx context.Context, eventID string) (types.EventKind, error) {
	event, err := r.States.Fetch(ctx, eventID)
	if err != nil {
		return "", err
	}
	return event.Kind, nil
}
