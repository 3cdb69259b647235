package eventmonitor

import (
	"context"
	"math"

	"github.com/petec4244/arbees/pkg/types"
)

// ProbabilityModel computes the model win probability for the event's
// home entity, p_home, used by both the arbitrage and edge tests.
type ProbabilityModel interface {
	WinProbability(ctx context.Context, event *types.Event) (pHome float64, err error)
}

// ScoreboardModel computes p_home for in-scope sport events by blending
// the pregame prior with score differential, time remaining, and
// possession, per §4.B step 2.
type ScoreboardModel struct {
	ScoreWeight       float64 // logit shift per point of score differential
	UrgencyWeight     float64 // amplifies ScoreWeight as the clock runs down
	PossessionBonus   float64 // logit shift for the entity currently in possession
	RegulationSeconds int     // full game length, used for the time-remaining fraction
}

// WinProbability implements ProbabilityModel.
func (m ScoreboardModel) WinProbability(ctx context.Context, event *types.Event) (float64, error) {
	g := event.Game

	elapsedFrac := 0.0
	if m.RegulationSeconds > 0 {
		elapsedFrac = 1 - float64(g.ClockSeconds)/float64(m.RegulationSeconds)
		elapsedFrac = clampUnit(elapsedFrac)
	}

	scoreDiff := float64(g.ScoreHome - g.ScoreAway)
	adjustment := m.ScoreWeight * scoreDiff * (1 + m.UrgencyWeight*elapsedFrac)

	if g.Possession != "" {
		switch g.Possession {
		case event.EntityHome:
			adjustment += m.PossessionBonus
		case event.EntityAway:
			adjustment -= m.PossessionBonus
		}
	}

	p := sigmoid(logit(clampUnit(event.PregamePrior)) + adjustment)
	return p, nil
}

// PriorProbabilityProvider is the "equivalent probability provider" for
// out-of-scope event kinds: it reports the pregame prior unadjusted,
// since no scoreboard signal is modeled for non-sport events.
type PriorProbabilityProvider struct{}

// WinProbability implements ProbabilityModel.
func (PriorProbabilityProvider) WinProbability(ctx context.Context, event *types.Event) (float64, error) {
	return clampUnit(event.PregamePrior), nil
}

// DispatchModel routes EventKindOther to Other and every other kind, an
// unset one included, to Sport, per §4.B's "for out-of-scope event kinds, delegate to an
// equivalent probability provider."
type DispatchModel struct {
	Sport ProbabilityModel
	Other ProbabilityModel
}

// WinProbability implements ProbabilityModel.
func (d DispatchModel) WinProbability(ctx context.Context, event *types.Event) (float64, error) {
	if event.Kind == types.EventKindOther {
		return d.Other.WinProbability(ctx, event)
	}
	return d.Sport.WinProbability(ctx, event)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(p float64) float64 {
	p = clampUnit(p)
	const eps = 1e-6
	if p < eps {
		p = eps
	}
	if p > 1-eps {
		p = 1 - eps
	}
	return math.Log(p / (1 - p))
}

func clampUnit(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
