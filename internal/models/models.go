package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// FingerprintReport is the signal snapshot submitted by the visitor's
// browser. Every field is best-effort: probes that fail client-side arrive
// zero-valued and are penalized conservatively, never rejected.
type FingerprintReport struct {
	// identity / environment
	UserAgent      string   `json:"user_agent"`
	Platform       string   `json:"platform"`
	Vendor         string   `json:"vendor"`
	Languages      []string `json:"languages"`
	TimeZone       string   `json:"timezone"`
	TimezoneOffset int      `json:"timezone_offset"`

	// screen / display
	ScreenWidth    int     `json:"screen_width"`
	ScreenHeight   int     `json:"screen_height"`
	ViewportWidth  int     `json:"viewport_width"`
	ViewportHeight int     `json:"viewport_height"`
	ColorDepth     int     `json:"color_depth"`
	PixelRatio     float64 `json:"pixel_ratio"`

	// gpu / rendering
	WebGLVendor   string `json:"webgl_vendor"`
	WebGLRenderer string `json:"webgl_renderer"`
	Canvas2DHash  string `json:"canvas_2d_hash"`
	AudioHash     string `json:"audio_hash"`
	FontsHash     string `json:"fonts_hash"`
	PluginsHash   string `json:"plugins_hash"`
	PluginCount   int    `json:"plugin_count"`

	// hardware
	HardwareConcurrency int     `json:"hardware_concurrency"`
	DeviceMemory        float64 `json:"device_memory"`
	MaxTouchPoints      int     `json:"max_touch_points"`

	// network-adjacent hints
	ConnectionType string   `json:"connection_type,omitempty"`
	BatteryPresent bool     `json:"battery_present"`
	BatteryLevel   float64  `json:"battery_level,omitempty"`
	LocalIPs       []string `json:"local_ips,omitempty"`

	// permission states, hashed client-side
	PermissionsHash        string `json:"permissions_hash"`
	NotificationPermission string `json:"notification_permission,omitempty"`

	// automation markers
	WebDriver         bool `json:"webdriver"`
	HeadlessUA        bool `json:"headless_ua"`
	PhantomPresent    bool `json:"phantom_present"`
	SeleniumPresent   bool `json:"selenium_present"`
	AutomationPresent bool `json:"automation_present"`
	ChromeMissing     bool `json:"chrome_missing"`

	// session-replay instrumentation markers discovered on the page
	ReplayVendors []string `json:"replay_vendors,omitempty"`

	// behavioral aggregates
	Behavior BehaviorSample `json:"behavior"`

	// self-reported consistency pre-check from the collector
	ConsistencyOK bool `json:"consistency_ok"`

	// probes the collector could not run (names only)
	UnavailableSignals []string `json:"unavailable_signals,omitempty"`
}

// BehaviorSample aggregates interaction telemetry over the challenge window.
type BehaviorSample struct {
	MouseMoves          int       `json:"mouse_moves"`
	VelocitySamples     []float64 `json:"velocity_samples,omitempty"`
	AccelerationSamples []float64 `json:"acceleration_samples,omitempty"`
	DirectionChanges    int       `json:"direction_changes"`
	MicroTremorScore    float64   `json:"micro_tremor_score"`
	ScrollDepth         float64   `json:"scroll_depth"`
	KeyPressCount       int       `json:"key_press_count"`
	KeyIntervalsMs      []float64 `json:"key_intervals_ms,omitempty"`
	KeyDownUpRatio      float64   `json:"key_down_up_ratio"`
	PasteCount          int       `json:"paste_count"`
	ClickCount          int       `json:"click_count"`
	DwellMs             int64     `json:"dwell_ms"`
	FocusChanges        int       `json:"focus_changes"`
}

// Hash derives the fingerprint hash used to correlate visits. Collisions are
// expected and tolerated; this is a bucket key, not an identity proof.
func (r *FingerprintReport) Hash() string {
	parts := []string{
		r.Canvas2DHash,
		r.AudioHash,
		r.WebGLVendor,
		r.WebGLRenderer,
		r.FontsHash,
		fmt.Sprintf("%d", r.HardwareConcurrency),
		fmt.Sprintf("%.0f", r.DeviceMemory),
		fmt.Sprintf("%dx%d", r.ScreenWidth, r.ScreenHeight),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// RequestContext carries the server-observed side of a visit.
type RequestContext struct {
	IP             string            `json:"ip"`
	Country        string            `json:"country"`
	City           string            `json:"city"`
	ISP            string            `json:"isp"`
	ASN            string            `json:"asn"`
	Referer        string            `json:"referer"`
	AcceptLanguage string            `json:"accept_language"`
	Headers        map[string]string `json:"headers"`
	Slug           string            `json:"slug"`
	Query          map[string]string `json:"query"`
	DeviceClass    string            `json:"device_class"`
}

// Category identifies one scoring dimension.
type Category string

const (
	CategoryNetwork           Category = "network"
	CategoryFingerprint       Category = "fingerprint"
	CategoryBehavior          Category = "behavior"
	CategoryAutomation        Category = "automation"
	CategoryDeviceConsistency Category = "device_consistency"
	CategoryWebRTC            Category = "webrtc"
	CategoryMousePattern      Category = "mouse_pattern"
	CategoryKeyboard          Category = "keyboard"
	CategorySessionReplay     Category = "session_replay"
)

// Categories lists every scoring dimension in evaluation order.
var Categories = []Category{
	CategoryNetwork,
	CategoryFingerprint,
	CategoryBehavior,
	CategoryAutomation,
	CategoryDeviceConsistency,
	CategoryWebRTC,
	CategoryMousePattern,
	CategoryKeyboard,
	CategorySessionReplay,
}

// CategoryScore is the output of a single analyzer. Score is a signed delta
// against the 100-point baseline: penalties are negative, bonuses positive.
type CategoryScore struct {
	Category Category `json:"category"`
	Score    int      `json:"score"`
	Flags    []string `json:"flags,omitempty"`
}

// Well-known flags. Analyzers may emit additional ad-hoc flags using the
// signal_unavailable:<name> convention for failed probes.
const (
	FlagHeadlessUA           = "headless_ua"
	FlagWebDriver            = "webdriver"
	FlagAutomationTool       = "automation_tool"
	FlagScriptedClient       = "scripted_client"
	FlagSpyTool              = "spy_tool"
	FlagAdVerificationBot    = "ad_verification_bot"
	FlagSearchCrawler        = "search_crawler"
	FlagLegitimatePreviewBot = "legitimate_preview_bot"
	FlagInAppBrowser         = "in_app_browser"
	FlagSoftwareRenderer     = "software_renderer"
	FlagCanvasBlocked        = "canvas_blocked"
	FlagDatacenterIP         = "datacenter_ip"
	FlagProxyHeaders         = "proxy_headers"
	FlagMissingHeaders       = "missing_headers"
	FlagLanguageMismatch     = "language_mismatch"
	FlagNoInteraction        = "no_interaction"
	FlagLinearMouse          = "linear_mouse_path"
	FlagNoMicroTremor        = "no_micro_tremor"
	FlagRoboticTyping        = "robotic_typing"
	FlagPasteOnly            = "paste_only_input"
	FlagDeviceMismatch       = "device_mismatch"
	FlagWebRTCMismatch       = "webrtc_ip_mismatch"
	FlagSessionReplay        = "session_replay_present"
	FlagConsistencyFailed    = "consistency_check_failed"
	FlagShortDwell           = "short_dwell"
)

// FlagSignalUnavailable builds the degraded-probe flag for a signal name.
func FlagSignalUnavailable(name string) string {
	return "signal_unavailable:" + name
}

// TrustScore is the deterministic aggregate over all category scores.
type TrustScore struct {
	Score      int             `json:"score"`
	HardFailed bool            `json:"hard_failed"`
	Flags      []string        `json:"flags"`
	Categories []CategoryScore `json:"categories"`
}

// HasFlag reports whether the aggregate carries the named flag.
func (t *TrustScore) HasFlag(flag string) bool {
	for _, f := range t.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Decision is the ternary outcome of policy evaluation.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionSafe  Decision = "safe"
	DecisionBlock Decision = "block"
)

// LinkPolicy is the operator-configured rule set for one protected link.
// The engine reads it; only the management surface mutates it.
type LinkPolicy struct {
	ID      uuid.UUID `json:"id" db:"id"`
	Slug    string    `json:"slug" db:"slug"`
	Enabled bool      `json:"enabled" db:"enabled"`

	TargetURL string `json:"target_url" db:"target_url"`
	SafeURL   string `json:"safe_url" db:"safe_url"`

	MinScore            int  `json:"min_score" db:"min_score"`
	BotBlockEnabled     bool `json:"bot_block_enabled" db:"bot_block_enabled"`
	VPNBlockEnabled     bool `json:"vpn_block_enabled" db:"vpn_block_enabled"`
	AllowSocialPreviews bool `json:"allow_social_previews" db:"allow_social_previews"`
	RequireInteraction  bool `json:"require_interaction" db:"require_interaction"`

	AllowedCountries pq.StringArray `json:"allowed_countries" db:"allowed_countries"`
	BlockedCountries pq.StringArray `json:"blocked_countries" db:"blocked_countries"`
	AllowedDevices   pq.StringArray `json:"allowed_devices" db:"allowed_devices"`
	BlockedDevices   pq.StringArray `json:"blocked_devices" db:"blocked_devices"`
	AllowedLanguages pq.StringArray `json:"allowed_languages" db:"allowed_languages"`
	BlockedLanguages pq.StringArray `json:"blocked_languages" db:"blocked_languages"`
	BlockedReferers  pq.StringArray `json:"blocked_referers" db:"blocked_referers"`

	RequiredParams pq.StringArray `json:"required_params" db:"required_params"`
	BlockedParams  pq.StringArray `json:"blocked_params" db:"blocked_params"`

	IPAllowList pq.StringArray `json:"ip_allow_list" db:"ip_allow_list"`
	IPDenyList  pq.StringArray `json:"ip_deny_list" db:"ip_deny_list"`

	DailyLimit int64 `json:"daily_limit" db:"daily_limit"`
	TotalLimit int64 `json:"total_limit" db:"total_limit"`

	// Allowed hour-of-day window, inclusive start / exclusive end, local to
	// HourTZ. Disabled when both are -1. Wrap-around windows (22 to 6) are
	// valid.
	HourStart int    `json:"hour_start" db:"hour_start"`
	HourEnd   int    `json:"hour_end" db:"hour_end"`
	HourTZ    string `json:"hour_tz" db:"hour_tz"`

	RedirectDelayMs int  `json:"redirect_delay_ms" db:"redirect_delay_ms"`
	RandomizeDelay  bool `json:"randomize_delay" db:"randomize_delay"`
	PassUTM         bool `json:"pass_utm" db:"pass_utm"`

	WebhookEnabled bool           `json:"webhook_enabled" db:"webhook_enabled"`
	WebhookURL     string         `json:"webhook_url" db:"webhook_url"`
	WebhookEvents  pq.StringArray `json:"webhook_events" db:"webhook_events"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate rejects malformed policies at load time so the request path never
// has to re-check field shape.
func (p *LinkPolicy) Validate() error {
	if p.Slug == "" {
		return fmt.Errorf("policy %s: slug is required", p.ID)
	}
	if p.TargetURL == "" || p.SafeURL == "" {
		return fmt.Errorf("policy %s: target_url and safe_url are required", p.Slug)
	}
	if p.MinScore < 0 || p.MinScore > 100 {
		return fmt.Errorf("policy %s: min_score must be in [0,100], got %d", p.Slug, p.MinScore)
	}
	if p.HourStart != -1 || p.HourEnd != -1 {
		if p.HourStart < 0 || p.HourStart > 23 || p.HourEnd < 0 || p.HourEnd > 24 {
			return fmt.Errorf("policy %s: hour window out of range (%d, %d)", p.Slug, p.HourStart, p.HourEnd)
		}
	}
	if p.DailyLimit < 0 || p.TotalLimit < 0 {
		return fmt.Errorf("policy %s: quota limits must be non-negative", p.Slug)
	}
	if p.RedirectDelayMs < 0 || p.RedirectDelayMs > 10000 {
		return fmt.Errorf("policy %s: redirect_delay_ms must be in [0,10000]", p.Slug)
	}
	if p.WebhookEnabled && p.WebhookURL == "" {
		return fmt.Errorf("policy %s: webhook enabled without webhook_url", p.Slug)
	}
	return nil
}

// HourWindowEnabled reports whether the time-of-day gate is active.
func (p *LinkPolicy) HourWindowEnabled() bool {
	return p.HourStart != -1 && p.HourEnd != -1
}

// VisitorLogEntry is the immutable audit record written once per request.
type VisitorLogEntry struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	LinkID          uuid.UUID      `json:"link_id" db:"link_id"`
	Slug            string         `json:"slug" db:"slug"`
	FingerprintHash string         `json:"fingerprint_hash" db:"fingerprint_hash"`
	IP              string         `json:"ip" db:"ip"`
	Country         string         `json:"country" db:"country"`
	City            string         `json:"city" db:"city"`
	ASN             string         `json:"asn" db:"asn"`
	Referer         string         `json:"referer" db:"referer"`
	UserAgent       string         `json:"user_agent" db:"user_agent"`
	Score           int            `json:"score" db:"score"`
	HardFailed      bool           `json:"hard_failed" db:"hard_failed"`
	Flags           pq.StringArray `json:"flags" db:"flags"`
	Categories      []byte         `json:"-" db:"categories"`
	RuleHits        pq.StringArray `json:"rule_hits" db:"rule_hits"`
	Decision        Decision       `json:"decision" db:"decision"`
	RedirectURL     string         `json:"redirect_url" db:"redirect_url"`
	ProcessingMs    int64          `json:"processing_ms" db:"processing_ms"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// QuotaState is the counter snapshot taken once per evaluation.
type QuotaState struct {
	DailyCount    int64 `json:"daily_count"`
	TotalCount    int64 `json:"total_count"`
	RateCount     int64 `json:"rate_count"`
	DailyExceeded bool  `json:"daily_exceeded"`
	TotalExceeded bool  `json:"total_exceeded"`
	RateExceeded  bool  `json:"rate_exceeded"`
	// Degraded is set when the counter store was unreachable and the
	// snapshot fell back to open limits.
	Degraded bool `json:"degraded"`
}

// Webhook event categories a link can subscribe to.
const (
	EventBotBlocked      = "bot_blocked"
	EventVPNBlocked      = "vpn_blocked"
	EventRateLimited     = "rate_limited"
	EventQuotaReached    = "quota_reached"
	EventSuspiciousScore = "suspicious_score"
)

// WebhookPayload is the JSON body POSTed to an operator endpoint.
type WebhookPayload struct {
	Event     string         `json:"event"`
	LinkID    uuid.UUID      `json:"link_id"`
	Slug      string         `json:"slug"`
	Timestamp time.Time      `json:"timestamp"`
	Visitor   WebhookVisitor `json:"visitor"`
}

// WebhookVisitor is the visitor summary embedded in webhook payloads.
type WebhookVisitor struct {
	IP        string   `json:"ip"`
	Country   string   `json:"country"`
	UserAgent string   `json:"user_agent"`
	Score     int      `json:"score"`
	Flags     []string `json:"flags"`
}

// VisitRequest is the inbound contract from the client collector.
type VisitRequest struct {
	Slug   string            `json:"slug"`
	Report FingerprintReport `json:"report"`
}

// VisitResponse instructs the collector where to navigate. No intermediate
// state beyond the destination is ever exposed to the visitor.
type VisitResponse struct {
	RequestID uuid.UUID `json:"request_id"`
	Decision  Decision  `json:"decision"`
	URL       string    `json:"url"`
	DelayMs   int       `json:"delay_ms,omitempty"`
}

// LinkStats is the per-link visit summary served to the management surface.
type LinkStats struct {
	Slug         string  `json:"slug" db:"slug"`
	TotalVisits  int64   `json:"total_visits" db:"total_visits"`
	AllowedCount int64   `json:"allowed_count" db:"allowed_count"`
	SafeCount    int64   `json:"safe_count" db:"safe_count"`
	BlockedCount int64   `json:"blocked_count" db:"blocked_count"`
	AvgScore     float64 `json:"avg_score" db:"avg_score"`
}
