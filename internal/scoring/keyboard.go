package scoring

import (
	"github.com/ayodejiio/gatelink/internal/models"
)

// KeyboardAnalyzer tests typing cadence. Sparse input is neutral; the
// category only bites when there was enough typing to measure.
type KeyboardAnalyzer struct{}

func NewKeyboardAnalyzer() *KeyboardAnalyzer {
	return &KeyboardAnalyzer{}
}

func (a *KeyboardAnalyzer) Category() models.Category {
	return models.CategoryKeyboard
}

func (a *KeyboardAnalyzer) Analyze(report *models.FingerprintReport, rctx *models.RequestContext) models.CategoryScore {
	cs := models.CategoryScore{Category: models.CategoryKeyboard}
	b := report.Behavior

	if b.KeyPressCount == 0 {
		cs.Flags = append(cs.Flags, models.FlagSignalUnavailable("keyboard"))
		return cs
	}

	if b.PasteCount > 0 && b.KeyPressCount < 5 {
		cs.Score -= 20
		cs.Flags = append(cs.Flags, models.FlagPasteOnly)
	}

	if len(b.KeyIntervalsMs) >= 10 {
		avg := mean(b.KeyIntervalsMs)
		sd := stddev(b.KeyIntervalsMs)

		// Sub-50ms sustained inter-key intervals are beyond human typing.
		if avg > 0 && avg < 50 {
			cs.Score -= 35
			cs.Flags = append(cs.Flags, models.FlagRoboticTyping)
		}
		// Metronome cadence: inter-key spread collapses under scripting.
		if sd < 10 {
			cs.Score -= 25
			cs.Flags = append(cs.Flags, models.FlagRoboticTyping)
		}
	}

	if b.KeyPressCount > 10 && (b.KeyDownUpRatio < 0.8 || b.KeyDownUpRatio > 1.2) {
		cs.Score -= 15
		cs.Flags = append(cs.Flags, models.FlagRoboticTyping)
	}

	return cs
}
