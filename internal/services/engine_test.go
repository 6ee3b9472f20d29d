package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ayodejiio/gatelink/internal/config"
	"github.com/ayodejiio/gatelink/internal/models"
	"github.com/ayodejiio/gatelink/internal/repository"
)

type fakeStore struct {
	policies map[string]*models.LinkPolicy
}

func (f *fakeStore) GetLinkPolicyBySlug(ctx context.Context, slug string) (*models.LinkPolicy, error) {
	if pol, ok := f.policies[slug]; ok {
		return pol, nil
	}
	return nil, repository.ErrPolicyNotFound
}

type fakeCache struct {
	mu      sync.Mutex
	cached  map[string]*models.LinkPolicy
	metrics map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		cached:  map[string]*models.LinkPolicy{},
		metrics: map[string]int64{},
	}
}

func (f *fakeCache) GetPolicy(ctx context.Context, slug string) (*models.LinkPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached[slug], nil
}

func (f *fakeCache) SetPolicy(ctx context.Context, pol *models.LinkPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached[pol.Slug] = pol
	return nil
}

func (f *fakeCache) IncrementMetric(ctx context.Context, metric string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics[metric]++
	return nil
}

type fakeQuota struct {
	state models.QuotaState
	err   error
}

func (f *fakeQuota) Take(ctx context.Context, pol *models.LinkPolicy, ip string) (models.QuotaState, error) {
	if f.err != nil {
		return models.QuotaState{Degraded: true}, f.err
	}
	return f.state, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*models.VisitorLogEntry
}

func (f *fakeAudit) Record(entry *models.VisitorLogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(pol *models.LinkPolicy, event string, visitor models.WebhookVisitor) {
	if event == "" || !pol.WebhookEnabled {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func enginePolicy() *models.LinkPolicy {
	return &models.LinkPolicy{
		ID:        uuid.New(),
		Slug:      "promo",
		Enabled:   true,
		TargetURL: "https://offer.example.com/landing",
		SafeURL:   "https://blog.example.com",
		MinScore:  40,
		HourStart: -1,
		HourEnd:   -1,
	}
}

func engineScoringConfig() *config.ScoringConfig {
	return &config.ScoringConfig{
		Version:                 "v1",
		WeightNetwork:           1.0,
		WeightFingerprint:       0.8,
		WeightBehavior:          1.0,
		WeightAutomation:        1.0,
		WeightDeviceConsistency: 0.9,
		WeightWebRTC:            0.7,
		WeightMousePattern:      0.6,
		WeightKeyboard:          0.5,
		WeightSessionReplay:     0.5,
		HardFailFlags:           []string{"automation_tool", "webdriver", "headless_ua"},
		MinDwellMs:              1500,
		MinMouseMoves:           3,
		MinVelocitySamps:        5,
	}
}

func newTestEngine(pol *models.LinkPolicy, quota *fakeQuota) (*Engine, *fakeAudit, *fakeNotifier, *fakeCache) {
	store := &fakeStore{policies: map[string]*models.LinkPolicy{}}
	if pol != nil {
		store.policies[pol.Slug] = pol
	}
	cache := newFakeCache()
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}

	eng := NewEngine(store, cache, quota, audit, notifier, engineScoringConfig(), &config.EngineConfig{
		RequestDeadline:  800 * time.Millisecond,
		MaxRedirectDelay: 10 * time.Second,
	})
	return eng, audit, notifier, cache
}

func cleanVisit(slug string) (models.VisitRequest, *models.RequestContext) {
	req := models.VisitRequest{
		Slug: slug,
		Report: models.FingerprintReport{
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Platform:            "Win32",
			Languages:           []string{"en-US", "en"},
			ScreenWidth:         1920,
			ScreenHeight:        1080,
			ViewportWidth:       1600,
			ViewportHeight:      900,
			PixelRatio:          1,
			WebGLVendor:         "Google Inc. (NVIDIA)",
			WebGLRenderer:       "ANGLE (NVIDIA GeForce RTX 3060)",
			Canvas2DHash:        "ab12cd34",
			AudioHash:           "ef56ab78",
			HardwareConcurrency: 8,
			DeviceMemory:        8,
			ConsistencyOK:       true,
			Behavior: models.BehaviorSample{
				MouseMoves:       40,
				VelocitySamples:  []float64{1.2, 3.4, 2.1, 4.8, 2.9, 3.3, 1.7},
				DirectionChanges: 14,
				MicroTremorScore: 0.6,
				ScrollDepth:      0.5,
				ClickCount:       2,
				DwellMs:          4200,
			},
		},
	}
	rctx := &models.RequestContext{
		IP:             "203.0.113.10",
		Country:        "US",
		AcceptLanguage: "en-US,en;q=0.9",
		Headers: map[string]string{
			"accept": "text/html", "accept-language": "en-US,en;q=0.9",
			"accept-encoding": "gzip, deflate, br", "user-agent": "x",
		},
		Query: map[string]string{},
	}
	return req, rctx
}

func TestProcessCleanVisitAllows(t *testing.T) {
	eng, audit, _, _ := newTestEngine(enginePolicy(), &fakeQuota{})

	req, rctx := cleanVisit("promo")
	resp, err := eng.Process(context.Background(), req, rctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Decision != models.DecisionAllow {
		t.Fatalf("expected allow, got %s", resp.Decision)
	}
	if resp.URL != "https://offer.example.com/landing" {
		t.Errorf("expected target URL, got %s", resp.URL)
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(audit.entries))
	}
	entry := audit.entries[0]
	if entry.Decision != models.DecisionAllow || entry.Slug != "promo" {
		t.Errorf("audit record mismatch: %+v", entry)
	}
	if entry.FingerprintHash == "" {
		t.Error("audit record missing fingerprint hash")
	}
}

func TestProcessHeadlessVisitBlocks(t *testing.T) {
	pol := enginePolicy()
	pol.BotBlockEnabled = true
	pol.WebhookEnabled = true
	pol.WebhookURL = "https://hooks.example.com"
	pol.WebhookEvents = []string{models.EventBotBlocked}

	eng, audit, notifier, _ := newTestEngine(pol, &fakeQuota{})

	req, rctx := cleanVisit("promo")
	req.Report.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/120.0.0.0 Safari/537.36"
	req.Report.Behavior = models.BehaviorSample{}

	resp, err := eng.Process(context.Background(), req, rctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Decision != models.DecisionBlock {
		t.Fatalf("expected block, got %s", resp.Decision)
	}
	if resp.URL != pol.SafeURL {
		t.Errorf("blocked visit must route to safe URL, got %s", resp.URL)
	}

	audit.mu.Lock()
	if audit.entries[0].Score != 0 || !audit.entries[0].HardFailed {
		t.Errorf("expected hard-failed score 0, got %d", audit.entries[0].Score)
	}
	audit.mu.Unlock()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 1 || notifier.events[0] != models.EventBotBlocked {
		t.Errorf("expected %s event, got %v", models.EventBotBlocked, notifier.events)
	}
}

func TestProcessQuotaExceededGoesSafe(t *testing.T) {
	eng, _, _, _ := newTestEngine(enginePolicy(), &fakeQuota{
		state: models.QuotaState{DailyCount: 101, DailyExceeded: true},
	})

	req, rctx := cleanVisit("promo")
	resp, err := eng.Process(context.Background(), req, rctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Decision != models.DecisionSafe {
		t.Errorf("expected safe on exhausted quota, got %s", resp.Decision)
	}
}

func TestProcessQuotaStoreDownFailsOpen(t *testing.T) {
	eng, _, _, cache := newTestEngine(enginePolicy(), &fakeQuota{err: errors.New("connection refused")})

	req, rctx := cleanVisit("promo")
	resp, err := eng.Process(context.Background(), req, rctx)
	if err != nil {
		t.Fatalf("counter outage must not fail the visit: %v", err)
	}
	if resp.Decision != models.DecisionAllow {
		t.Errorf("expected allow when failing open, got %s", resp.Decision)
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.metrics["quota_degraded"] != 1 {
		t.Errorf("expected quota_degraded metric, got %v", cache.metrics)
	}
}

func TestProcessUnknownSlug(t *testing.T) {
	eng, _, _, _ := newTestEngine(nil, &fakeQuota{})

	req, rctx := cleanVisit("missing")
	if _, err := eng.Process(context.Background(), req, rctx); !errors.Is(err, repository.ErrPolicyNotFound) {
		t.Errorf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestProcessMalformedPolicyTreatedAsNotFound(t *testing.T) {
	pol := enginePolicy()
	pol.SafeURL = ""

	eng, audit, _, cache := newTestEngine(pol, &fakeQuota{})

	req, rctx := cleanVisit("promo")
	if _, err := eng.Process(context.Background(), req, rctx); !errors.Is(err, repository.ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound for malformed policy, got %v", err)
	}

	cache.mu.Lock()
	if len(cache.cached) != 0 {
		t.Error("malformed policy must not be cached")
	}
	cache.mu.Unlock()

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 0 {
		t.Errorf("malformed policy must not be evaluated, got %d audit records", len(audit.entries))
	}
}

func TestProcessAuditRecordAnonymizesIP(t *testing.T) {
	eng, audit, _, _ := newTestEngine(enginePolicy(), &fakeQuota{})

	req, rctx := cleanVisit("promo")
	if _, err := eng.Process(context.Background(), req, rctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if got := audit.entries[0].IP; got != "203.0.113.0" {
		t.Errorf("expected anonymized IP 203.0.113.0, got %s", got)
	}
}

func TestProcessDisabledLinkGoesSafe(t *testing.T) {
	pol := enginePolicy()
	pol.Enabled = false

	eng, audit, _, _ := newTestEngine(pol, &fakeQuota{})

	req, rctx := cleanVisit("promo")
	resp, err := eng.Process(context.Background(), req, rctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Decision != models.DecisionSafe || resp.URL != pol.SafeURL {
		t.Errorf("disabled link should route safe, got %s to %s", resp.Decision, resp.URL)
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 1 {
		t.Fatalf("disabled links still get audited, got %d records", len(audit.entries))
	}
}

func TestProcessUTMPassthrough(t *testing.T) {
	pol := enginePolicy()
	pol.PassUTM = true

	eng, _, _, _ := newTestEngine(pol, &fakeQuota{})

	req, rctx := cleanVisit("promo")
	rctx.Query = map[string]string{
		"utm_source": "newsletter",
		"gclid":      "abc123",
		"debug":      "1",
	}

	resp, err := eng.Process(context.Background(), req, rctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.URL, "utm_source=newsletter") || !strings.Contains(resp.URL, "gclid=abc123") {
		t.Errorf("tracking params missing from %s", resp.URL)
	}
	if strings.Contains(resp.URL, "debug") {
		t.Errorf("non-tracking param leaked into %s", resp.URL)
	}
}

func TestProcessPolicyCachedAfterFirstLoad(t *testing.T) {
	eng, _, _, cache := newTestEngine(enginePolicy(), &fakeQuota{})

	req, rctx := cleanVisit("promo")
	if _, err := eng.Process(context.Background(), req, rctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req2, rctx2 := cleanVisit("promo")
	if _, err := eng.Process(context.Background(), req2, rctx2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.metrics["policy_cache_misses"] != 1 {
		t.Errorf("expected exactly 1 cache miss, got %d", cache.metrics["policy_cache_misses"])
	}
	if cache.metrics["policy_cache_hits"] != 1 {
		t.Errorf("expected 1 cache hit on second visit, got %d", cache.metrics["policy_cache_hits"])
	}
}

func TestDelayMsRespectsCapAndRandomization(t *testing.T) {
	eng, _, _, _ := newTestEngine(enginePolicy(), &fakeQuota{})

	pol := enginePolicy()
	pol.RedirectDelayMs = 60000
	if got := eng.delayMs(pol); got != 10000 {
		t.Errorf("expected delay capped at 10000, got %d", got)
	}

	pol.RedirectDelayMs = 500
	pol.RandomizeDelay = true
	for i := 0; i < 50; i++ {
		if got := eng.delayMs(pol); got < 0 || got > 500 {
			t.Fatalf("randomized delay %d outside [0,500]", got)
		}
	}
}
