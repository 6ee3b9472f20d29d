package policy

import (
	"net"
	"strings"
	"time"

	"github.com/ayodejiio/gatelink/internal/models"
)

// Rule names recorded in the audit trail. Every matching rule is recorded,
// not just the one that decided the outcome.
const (
	RuleIPDeny        = "ip_deny"
	RuleIPAllow       = "ip_allow"
	RuleQuotaDaily    = "quota_daily"
	RuleQuotaTotal    = "quota_total"
	RuleRateLimit     = "rate_limit"
	RuleHourWindow    = "hour_window"
	RuleCountryDeny   = "country_deny"
	RuleDeviceDeny    = "device_deny"
	RuleLanguageDeny  = "language_deny"
	RuleRefererDeny   = "referer_deny"
	RuleCountryAllow  = "country_allow_miss"
	RuleDeviceAllow   = "device_allow_miss"
	RuleLanguageAllow = "language_allow_miss"
	RuleParamRequired = "param_required_missing"
	RuleParamBlocked  = "param_blocked"
	RuleBotBlock      = "bot_block"
	RuleVPNBlock      = "vpn_block"
	RuleNoInteraction = "interaction_required"
	RuleMinScore      = "min_score"
	RuleDefault       = "default_allow"
)

// EvalResult carries the decision, the rule that produced it, every rule
// that matched, and the webhook event the outcome maps to (empty when the
// visit is unremarkable).
type EvalResult struct {
	Decision models.Decision
	Rule     string
	RuleHits []string
	Event    string
}

// Evaluator applies a link's rule set against a scored request. The clock
// is injectable so hour-window behavior stays testable.
type Evaluator struct {
	now func() time.Time
}

func NewEvaluator() *Evaluator {
	return &Evaluator{now: time.Now}
}

// ruleHit is one matched rule with the decision it would force.
type ruleHit struct {
	name     string
	decision models.Decision
	event    string
}

// Evaluate walks the precedence order and returns the first decisive
// outcome. The order is fixed: IP deny, IP allow, quota, hour window,
// deny-lists, allow-list membership, URL parameters, bot and VPN gates,
// minimum score, then allow. An IP allow-list hit bypasses everything
// after the quota check; quota is operator intent and is never bypassed.
func (e *Evaluator) Evaluate(score *models.TrustScore, rctx *models.RequestContext, pol *models.LinkPolicy, quota models.QuotaState) EvalResult {
	var hits []ruleHit
	add := func(name string, d models.Decision, event string) {
		hits = append(hits, ruleHit{name: name, decision: d, event: event})
	}

	// 1. IP deny-list.
	ipDenied := ipInList(rctx.IP, pol.IPDenyList)
	if ipDenied {
		add(RuleIPDeny, models.DecisionBlock, models.EventBotBlocked)
	}

	// 2. IP allow-list.
	ipAllowed := ipInList(rctx.IP, pol.IPAllowList)
	if ipAllowed {
		add(RuleIPAllow, models.DecisionAllow, "")
	}

	// 3. Quota and rate limits.
	quotaHit := false
	if quota.DailyExceeded {
		add(RuleQuotaDaily, models.DecisionSafe, models.EventQuotaReached)
		quotaHit = true
	}
	if quota.TotalExceeded {
		add(RuleQuotaTotal, models.DecisionSafe, models.EventQuotaReached)
		quotaHit = true
	}
	if quota.RateExceeded {
		add(RuleRateLimit, models.DecisionSafe, models.EventRateLimited)
		quotaHit = true
	}

	// 4. Hour-of-day window.
	if pol.HourWindowEnabled() && !e.insideHourWindow(pol) {
		add(RuleHourWindow, models.DecisionSafe, "")
	}

	// 5. Deny-lists.
	if inList(rctx.Country, pol.BlockedCountries) {
		add(RuleCountryDeny, models.DecisionBlock, "")
	}
	if inList(rctx.DeviceClass, pol.BlockedDevices) {
		add(RuleDeviceDeny, models.DecisionBlock, "")
	}
	lang := primaryLanguage(rctx.AcceptLanguage)
	if langInList(lang, pol.BlockedLanguages) {
		add(RuleLanguageDeny, models.DecisionBlock, "")
	}
	if refererMatches(rctx.Referer, pol.BlockedReferers) {
		add(RuleRefererDeny, models.DecisionBlock, "")
	}

	// 6. Allow-list membership.
	if len(pol.AllowedCountries) > 0 && !inList(rctx.Country, pol.AllowedCountries) {
		add(RuleCountryAllow, models.DecisionSafe, "")
	}
	if len(pol.AllowedDevices) > 0 && !inList(rctx.DeviceClass, pol.AllowedDevices) {
		add(RuleDeviceAllow, models.DecisionSafe, "")
	}
	if len(pol.AllowedLanguages) > 0 && !langInList(lang, pol.AllowedLanguages) {
		add(RuleLanguageAllow, models.DecisionSafe, "")
	}

	// 7. URL parameters.
	for _, p := range pol.RequiredParams {
		if _, ok := rctx.Query[p]; !ok {
			add(RuleParamRequired, models.DecisionBlock, "")
			break
		}
	}
	for _, p := range pol.BlockedParams {
		if _, ok := rctx.Query[p]; ok {
			add(RuleParamBlocked, models.DecisionBlock, "")
			break
		}
	}

	// 8. Bot and VPN gates.
	if pol.BotBlockEnabled && isMaliciousBot(score, rctx, pol) {
		add(RuleBotBlock, models.DecisionBlock, models.EventBotBlocked)
	}
	if pol.VPNBlockEnabled && (score.HasFlag(models.FlagDatacenterIP) || score.HasFlag(models.FlagProxyHeaders)) {
		add(RuleVPNBlock, models.DecisionBlock, models.EventVPNBlocked)
	}

	// 9. Score gate.
	if pol.RequireInteraction && score.HasFlag(models.FlagNoInteraction) {
		add(RuleNoInteraction, models.DecisionSafe, models.EventSuspiciousScore)
	}
	if score.Score < pol.MinScore {
		add(RuleMinScore, models.DecisionSafe, models.EventSuspiciousScore)
	}

	return resolve(hits, ipAllowed, quotaHit)
}

// resolve picks the decisive hit per the precedence contract. hits is
// already in precedence order.
func resolve(hits []ruleHit, ipAllowed, quotaHit bool) EvalResult {
	res := EvalResult{Decision: models.DecisionAllow, Rule: RuleDefault}
	for _, h := range hits {
		res.RuleHits = append(res.RuleHits, h.name)
	}

	for _, h := range hits {
		if h.name == RuleIPDeny {
			res.Decision, res.Rule, res.Event = h.decision, h.name, h.event
			return res
		}
	}

	if ipAllowed {
		// The allow-list bypasses every later gate except quota.
		for _, h := range hits {
			switch h.name {
			case RuleQuotaDaily, RuleQuotaTotal, RuleRateLimit:
				res.Decision, res.Rule, res.Event = h.decision, h.name, h.event
				return res
			}
		}
		res.Rule = RuleIPAllow
		return res
	}

	for _, h := range hits {
		if h.name == RuleIPAllow {
			continue
		}
		res.Decision, res.Rule, res.Event = h.decision, h.name, h.event
		return res
	}
	return res
}

// isMaliciousBot reports whether the trust flags identify a bot that the
// bot-blocking gate should stop. Preview crawlers are exempt when the link
// welcomes social previews and nothing harder was detected.
func isMaliciousBot(score *models.TrustScore, rctx *models.RequestContext, pol *models.LinkPolicy) bool {
	hard := score.HasFlag(models.FlagAutomationTool) ||
		score.HasFlag(models.FlagWebDriver) ||
		score.HasFlag(models.FlagHeadlessUA) ||
		score.HasFlag(models.FlagScriptedClient) ||
		score.HasFlag(models.FlagSpyTool)
	if hard {
		return true
	}
	if score.HasFlag(models.FlagLegitimatePreviewBot) {
		return !pol.AllowSocialPreviews
	}
	if score.HasFlag(models.FlagSearchCrawler) || score.HasFlag(models.FlagAdVerificationBot) {
		return true
	}
	return rctx.DeviceClass == "bot"
}

func (e *Evaluator) insideHourWindow(pol *models.LinkPolicy) bool {
	loc, err := time.LoadLocation(pol.HourTZ)
	if err != nil {
		loc = time.UTC
	}
	h := e.now().In(loc).Hour()
	if pol.HourStart <= pol.HourEnd {
		return h >= pol.HourStart && h < pol.HourEnd
	}
	// Wrap-around window, e.g. 22 to 6.
	return h >= pol.HourStart || h < pol.HourEnd
}

// ipInList matches an address against plain IPs and CIDR entries.
func ipInList(ipStr string, list []string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, entry := range list {
		if strings.Contains(entry, "/") {
			if _, ipNet, err := net.ParseCIDR(entry); err == nil && ipNet.Contains(ip) {
				return true
			}
			continue
		}
		if other := net.ParseIP(entry); other != nil && other.Equal(ip) {
			return true
		}
	}
	return false
}

func inList(v string, list []string) bool {
	for _, entry := range list {
		if strings.EqualFold(v, entry) {
			return true
		}
	}
	return false
}

// langInList matches on the primary subtag, so "en" covers "en-US".
func langInList(lang string, list []string) bool {
	if lang == "" {
		return false
	}
	base, _, _ := strings.Cut(lang, "-")
	for _, entry := range list {
		entryBase, _, _ := strings.Cut(entry, "-")
		if strings.EqualFold(base, entryBase) {
			return true
		}
	}
	return false
}

func primaryLanguage(acceptLanguage string) string {
	first, _, _ := strings.Cut(acceptLanguage, ",")
	lang, _, _ := strings.Cut(strings.TrimSpace(first), ";")
	return lang
}

// refererMatches does substring matching against the referer host, so an
// entry like "facebook.com" also covers subdomains.
func refererMatches(referer string, list []string) bool {
	if referer == "" {
		return false
	}
	ref := strings.ToLower(referer)
	for _, entry := range list {
		if entry == "" {
			continue
		}
		if strings.Contains(ref, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}
