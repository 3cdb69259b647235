package kalshi

import (
	"testing"

	"github.com/petec4244/arbees/internal/venue"
	"go.uber.org/zap"
)

func TestBestAskConvertsOppositeSideBid(t *testing.T) {
	b := &book{
		yes: []level{{Price: 40, Quantity: 10}},
		no:  []level{{Price: 55, Quantity: 20}},
	}

	yesAsk, yesSize := b.bestYesAskCents()
	if yesAsk != 45 || yesSize != 20 {
		t.Errorf("expected yes ask 45x20, got %dx%d", yesAsk, yesSize)
	}

	noAsk, noSize := b.bestNoAskCents()
	if noAsk != 60 || noSize != 10 {
		t.Errorf("expected no ask 60x10, got %dx%d", noAsk, noSize)
	}
}

func TestBestAskDefaultsWhenSideEmpty(t *testing.T) {
	b := &book{}

	if ask, size := b.bestYesAskCents(); ask != 100 || size != 0 {
		t.Errorf("expected 100x0 default, got %dx%d", ask, size)
	}
	if ask, size := b.bestNoAskCents(); ask != 100 || size != 0 {
		t.Errorf("expected 100x0 default, got %dx%d", ask, size)
	}
}

func TestApplySnapshotThenDeltaUpdatesBestAsk(t *testing.T) {
	w := New(Config{Logger: zap.NewNop()})

	w.applySnapshot(wsSnapshotMsg{
		Ticker: "KXTEST-1",
		Yes:    [][]int{{40, 10}},
		No:     [][]int{{55, 20}},
	})

	var last venue.QuoteUpdate
	drain := func() {
		for {
			select {
			case u := <-w.updateCh:
				last = u
			default:
				return
			}
		}
	}

	drain()
	if last.YesAskCents != 45 {
		t.Fatalf("expected yes ask 45 after snapshot, got %d", last.YesAskCents)
	}

	w.applyDelta(wsDeltaMsg{Ticker: "KXTEST-1", Side: "no", Price: 55, Delta: -20})
	w.applyDelta(wsDeltaMsg{Ticker: "KXTEST-1", Side: "no", Price: 60, Delta: 15})

	drain()
	if last.YesAskCents != 40 {
		t.Fatalf("expected yes ask 40 after deltas (100-60), got %d", last.YesAskCents)
	}
}
