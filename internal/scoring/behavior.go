package scoring

import (
	"github.com/ayodejiio/gatelink/internal/models"
)

// BehaviorAnalyzer checks whether any human interaction happened inside the
// challenge window. Thresholds are operator-tunable; the zero report (no
// mouse, no keys, no dwell) is the strongest non-human signal short of an
// explicit automation marker.
type BehaviorAnalyzer struct {
	th Thresholds
}

func NewBehaviorAnalyzer(th Thresholds) *BehaviorAnalyzer {
	return &BehaviorAnalyzer{th: th}
}

func (a *BehaviorAnalyzer) Category() models.Category {
	return models.CategoryBehavior
}

func (a *BehaviorAnalyzer) Analyze(report *models.FingerprintReport, rctx *models.RequestContext) models.CategoryScore {
	cs := models.CategoryScore{Category: models.CategoryBehavior}
	b := report.Behavior

	noMouse := b.MouseMoves < a.th.MinMouseMoves
	noKeys := b.KeyPressCount == 0 && b.ClickCount == 0
	noScroll := b.ScrollDepth <= a.th.MinScrollDepth

	if noMouse && noKeys && noScroll {
		cs.Score -= 40
		cs.Flags = append(cs.Flags, models.FlagNoInteraction)
	} else {
		if noMouse {
			cs.Score -= 15
		}
		if noScroll && b.DwellMs > 3000 {
			// Long dwell with zero scroll reads like a parked headless tab.
			cs.Score -= 10
		}
	}

	if b.DwellMs > 0 && b.DwellMs < a.th.MinDwellMs {
		cs.Score -= 20
		cs.Flags = append(cs.Flags, models.FlagShortDwell)
	}
	if b.DwellMs == 0 {
		cs.Score -= 10
		cs.Flags = append(cs.Flags, models.FlagSignalUnavailable("dwell"))
	}

	// Rapid focus flapping shows up with tab automation harnesses.
	if b.FocusChanges > 20 {
		cs.Score -= 10
	}

	return cs
}
