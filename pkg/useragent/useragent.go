package useragent

import (
	"regexp"
	"strings"
)

// Class buckets a User-Agent by traffic intent, ordered roughly by severity
// of the penalty the scoring layer attaches to it.
type Class int

const (
	ClassStandard Class = iota
	ClassInAppBrowser
	ClassPreviewCrawler
	ClassSearchCrawler
	ClassScriptedClient
	ClassHeadless
	ClassSpyTool
	ClassAdVerification
)

var classNames = map[Class]string{
	ClassStandard:       "standard",
	ClassInAppBrowser:   "in_app_browser",
	ClassPreviewCrawler: "preview_crawler",
	ClassSearchCrawler:  "search_crawler",
	ClassScriptedClient: "scripted_client",
	ClassHeadless:       "headless",
	ClassSpyTool:        "spy_tool",
	ClassAdVerification: "ad_verification",
}

func (c Class) String() string {
	return classNames[c]
}

// Info is the parsed view of a User-Agent string.
type Info struct {
	Class    Class
	Matched  string
	Browser  string
	Version  string
	OS       string
	IsMobile bool
}

// IsBot reports whether the class describes non-human traffic of any kind.
func (i Info) IsBot() bool {
	switch i.Class {
	case ClassPreviewCrawler, ClassSearchCrawler, ClassScriptedClient,
		ClassHeadless, ClassSpyTool, ClassAdVerification:
		return true
	}
	return false
}

// Link-preview fetchers for messaging and social platforms. These are the
// only bots a policy may explicitly exempt.
var previewCrawlerPatterns = []string{
	"whatsapp", "telegrambot", "facebookexternalhit", "twitterbot",
	"slackbot", "discordbot", "linkedinbot", "skypeuripreview",
	"viber", "snapchat", "pinterestbot",
}

var searchCrawlerPatterns = []string{
	"googlebot", "bingbot", "duckduckbot", "yandexbot", "baiduspider",
	"applebot", "sogou", "exabot",
}

// Ad-network verification and brand-safety scanners. Heaviest penalty: their
// presence on a cloaked link means the offer page is being inspected.
var adVerificationPatterns = []string{
	"adsbot-google", "google-adwords", "mediapartners-google", "adbeat",
	"geoedge", "integralads", "ias_crawler", "doubleverify", "proximic",
	"grapeshot", "admantx", "zenithoptimedia",
}

var spyToolPatterns = []string{
	"spy", "scrapy", "semrushbot", "ahrefsbot", "mj12bot", "dotbot",
	"dataforseobot", "serpstatbot", "megaindex", "blexbot", "anstrex",
}

var headlessPatterns = []string{
	"headlesschrome", "phantomjs", "selenium", "webdriver", "puppeteer",
	"playwright", "cypress", "nightmare", "electron", "zombie",
}

var scriptedPatterns = []string{
	"curl/", "wget/", "python-requests", "python-urllib", "python/",
	"java/", "okhttp", "go-http-client", "axios/", "node-fetch",
	"libwww", "httpie", "postmanruntime", "insomnia", "apache-httpclient",
	"aiohttp", "got (", "undici",
}

var inAppPatterns = []string{
	"fban/", "fbav/", "instagram", "micromessenger", "line/",
	"musical_ly", "bytedance", "gsa/",
}

var (
	chromeVersionRe  = regexp.MustCompile(`Chrome/(\d+)`)
	firefoxVersionRe = regexp.MustCompile(`Firefox/(\d+)`)
	safariVersionRe  = regexp.MustCompile(`Version/(\d+).*Safari`)
	edgeVersionRe    = regexp.MustCompile(`Edg/(\d+)`)
)

// Parse classifies a raw User-Agent string. An empty UA is treated as a
// scripted client: every real browser sends one.
func Parse(ua string) Info {
	if strings.TrimSpace(ua) == "" {
		return Info{Class: ClassScriptedClient, Matched: "empty_ua"}
	}

	lower := strings.ToLower(ua)

	// Ordering matters: ad-verification UAs often also contain "bot", and
	// in-app browsers carry a full Chrome/Safari product string.
	for _, p := range adVerificationPatterns {
		if strings.Contains(lower, p) {
			return Info{Class: ClassAdVerification, Matched: p}
		}
	}
	for _, p := range spyToolPatterns {
		if strings.Contains(lower, p) {
			return Info{Class: ClassSpyTool, Matched: p}
		}
	}
	for _, p := range headlessPatterns {
		if strings.Contains(lower, p) {
			return Info{Class: ClassHeadless, Matched: p}
		}
	}
	for _, p := range previewCrawlerPatterns {
		if strings.Contains(lower, p) {
			return Info{Class: ClassPreviewCrawler, Matched: p}
		}
	}
	for _, p := range searchCrawlerPatterns {
		if strings.Contains(lower, p) {
			return Info{Class: ClassSearchCrawler, Matched: p}
		}
	}
	for _, p := range scriptedPatterns {
		if strings.Contains(lower, p) {
			return Info{Class: ClassScriptedClient, Matched: p}
		}
	}

	// Generic catch-all after the specific tables so named crawlers keep
	// their class.
	for _, generic := range []string{"bot", "spider", "crawler", "scraper"} {
		if strings.Contains(lower, generic) {
			return Info{Class: ClassScriptedClient, Matched: generic}
		}
	}

	info := Info{Class: ClassStandard}
	for _, p := range inAppPatterns {
		if strings.Contains(lower, p) {
			info.Class = ClassInAppBrowser
			info.Matched = p
			break
		}
	}

	fillBrowser(&info, ua)
	fillOS(&info, ua)
	return info
}

func fillBrowser(info *Info, ua string) {
	if m := edgeVersionRe.FindStringSubmatch(ua); len(m) > 1 {
		info.Browser, info.Version = "Edge", m[1]
	} else if m := chromeVersionRe.FindStringSubmatch(ua); len(m) > 1 {
		info.Browser, info.Version = "Chrome", m[1]
	} else if m := firefoxVersionRe.FindStringSubmatch(ua); len(m) > 1 {
		info.Browser, info.Version = "Firefox", m[1]
	} else if m := safariVersionRe.FindStringSubmatch(ua); len(m) > 1 {
		info.Browser, info.Version = "Safari", m[1]
	}
}

func fillOS(info *Info, ua string) {
	switch {
	case strings.Contains(ua, "Windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		info.OS = "macOS"
	case strings.Contains(ua, "Android"):
		info.OS = "Android"
		info.IsMobile = true
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		info.OS = "iOS"
		info.IsMobile = true
	case strings.Contains(ua, "Linux"):
		info.OS = "Linux"
	}
	if strings.Contains(ua, "Mobile") {
		info.IsMobile = true
	}
}

// DeviceClass maps the parse result onto the coarse device taxonomy used by
// policy allow/deny lists.
func DeviceClass(info Info) string {
	if info.IsBot() {
		return "bot"
	}
	if info.IsMobile {
		return "mobile"
	}
	return "desktop"
}
