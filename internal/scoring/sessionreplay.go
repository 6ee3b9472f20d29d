package scoring

import (
	"strings"

	"github.com/ayodejiio/gatelink/internal/models"
)

// Session-recording vendors whose globals the collector probes for.
// Recording instrumentation on a click-through page means the traffic is
// being harvested or reviewed, not organically browsed.
var replayVendorMarkers = []string{
	"hotjar", "fullstory", "logrocket", "mouseflow", "smartlook",
	"inspectlet", "sessioncam", "luckyorange", "clarity", "rrweb",
	"heap", "quantummetric",
}

type SessionReplayAnalyzer struct{}

func NewSessionReplayAnalyzer() *SessionReplayAnalyzer {
	return &SessionReplayAnalyzer{}
}

func (a *SessionReplayAnalyzer) Category() models.Category {
	return models.CategorySessionReplay
}

func (a *SessionReplayAnalyzer) Analyze(report *models.FingerprintReport, rctx *models.RequestContext) models.CategoryScore {
	cs := models.CategoryScore{Category: models.CategorySessionReplay}

	for _, vendor := range report.ReplayVendors {
		v := strings.ToLower(vendor)
		for _, marker := range replayVendorMarkers {
			if strings.Contains(v, marker) {
				cs.Score -= 30
				cs.Flags = append(cs.Flags, models.FlagSessionReplay)
				return cs
			}
		}
	}

	// Unknown recorder names still count, just lighter.
	if len(report.ReplayVendors) > 0 {
		cs.Score -= 15
		cs.Flags = append(cs.Flags, models.FlagSessionReplay)
	}

	return cs
}
