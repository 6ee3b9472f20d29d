package scoring

import (
	"github.com/ayodejiio/gatelink/internal/models"
	"github.com/ayodejiio/gatelink/pkg/useragent"
)

// UserAgentAnalyzer classifies the UA string and folds in the collector's
// automation markers. It emits the automation category: everything here is
// evidence of tooling rather than a human-operated browser.
//
// Preview crawlers get a light penalty only; whether they are exempted
// entirely is a per-link policy decision, not a scoring one.
type UserAgentAnalyzer struct{}

func NewUserAgentAnalyzer() *UserAgentAnalyzer {
	return &UserAgentAnalyzer{}
}

func (a *UserAgentAnalyzer) Category() models.Category {
	return models.CategoryAutomation
}

func (a *UserAgentAnalyzer) Analyze(report *models.FingerprintReport, rctx *models.RequestContext) models.CategoryScore {
	cs := models.CategoryScore{Category: models.CategoryAutomation}

	info := useragent.Parse(report.UserAgent)
	switch info.Class {
	case useragent.ClassAdVerification:
		cs.Score -= 100
		cs.Flags = append(cs.Flags, models.FlagAdVerificationBot)
	case useragent.ClassSpyTool:
		cs.Score -= 100
		cs.Flags = append(cs.Flags, models.FlagSpyTool)
	case useragent.ClassHeadless:
		cs.Score -= 90
		cs.Flags = append(cs.Flags, models.FlagHeadlessUA)
	case useragent.ClassScriptedClient:
		cs.Score -= 80
		cs.Flags = append(cs.Flags, models.FlagScriptedClient)
	case useragent.ClassSearchCrawler:
		cs.Score -= 50
		cs.Flags = append(cs.Flags, models.FlagSearchCrawler)
	case useragent.ClassPreviewCrawler:
		cs.Score -= 10
		cs.Flags = append(cs.Flags, models.FlagLegitimatePreviewBot)
	case useragent.ClassInAppBrowser:
		cs.Score -= 5
		cs.Flags = append(cs.Flags, models.FlagInAppBrowser)
	}

	// Collector-observed automation markers.
	if report.WebDriver {
		cs.Score -= 100
		cs.Flags = append(cs.Flags, models.FlagWebDriver)
	}
	if report.HeadlessUA && info.Class != useragent.ClassHeadless {
		cs.Score -= 90
		cs.Flags = append(cs.Flags, models.FlagHeadlessUA)
	}
	if report.PhantomPresent || report.SeleniumPresent || report.AutomationPresent {
		cs.Score -= 100
		cs.Flags = append(cs.Flags, models.FlagAutomationTool)
	}
	if report.ChromeMissing && info.Browser == "Chrome" {
		cs.Score -= 40
		cs.Flags = append(cs.Flags, models.FlagDeviceMismatch)
	}
	if !report.ConsistencyOK {
		cs.Score -= 20
		cs.Flags = append(cs.Flags, models.FlagConsistencyFailed)
	}

	return cs
}
