package scoring

import (
	"reflect"
	"testing"

	"github.com/ayodejiio/gatelink/internal/config"
	"github.com/ayodejiio/gatelink/internal/models"
)

func testScoringConfig() *config.ScoringConfig {
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

func TestAggregateCleanVisit(t *testing.T) {
	agg := NewAggregator(NewWeights(testScoringConfig()))

	ts := agg.Aggregate([]models.CategoryScore{
		{Category: models.CategoryNetwork, Score: 0},
		{Category: models.CategoryBehavior, Score: 0},
	})

	if ts.Score != 100 {
		t.Errorf("clean visit should score 100, got %d", ts.Score)
	}
	if ts.HardFailed {
		t.Error("clean visit should not hard-fail")
	}
}

func TestAggregateWeightedPenalties(t *testing.T) {
	agg := NewAggregator(NewWeights(testScoringConfig()))

	ts := agg.Aggregate([]models.CategoryScore{
		{Category: models.CategoryNetwork, Score: -40, Flags: []string{models.FlagDatacenterIP}},
		{Category: models.CategoryWebRTC, Score: -35, Flags: []string{models.FlagWebRTCMismatch}},
	})

	// 100 - 40*1.0 - 35*0.7 = 35.5 -> 36
	if ts.Score != 36 {
		t.Errorf("expected weighted score 36, got %d", ts.Score)
	}
	if ts.HardFailed {
		t.Error("penalties without hard-fail flags must not hard-fail")
	}
	if !ts.HasFlag(models.FlagWebRTCMismatch) {
		t.Error("flag union should contain webrtc_ip_mismatch")
	}
}

func TestAggregateHardFailClampsToZero(t *testing.T) {
	agg := NewAggregator(NewWeights(testScoringConfig()))

	ts := agg.Aggregate([]models.CategoryScore{
		{Category: models.CategoryNetwork, Score: 0},
		{Category: models.CategoryAutomation, Score: -100, Flags: []string{models.FlagAutomationTool}},
		{Category: models.CategoryBehavior, Score: 5},
	})

	if ts.Score != 0 {
		t.Errorf("hard-fail flag must clamp score to 0, got %d", ts.Score)
	}
	if !ts.HardFailed {
		t.Error("HardFailed should be set")
	}
	if len(ts.Categories) != 3 {
		t.Errorf("all categories must still be recorded for audit, got %d", len(ts.Categories))
	}
}

func TestAggregateClampsToRange(t *testing.T) {
	agg := NewAggregator(NewWeights(testScoringConfig()))

	low := agg.Aggregate([]models.CategoryScore{
		{Category: models.CategoryNetwork, Score: -100},
		{Category: models.CategoryBehavior, Score: -100},
	})
	if low.Score != 0 {
		t.Errorf("score must clamp at 0, got %d", low.Score)
	}

	high := agg.Aggregate([]models.CategoryScore{
		{Category: models.CategoryNetwork, Score: 50},
	})
	if high.Score != 100 {
		t.Errorf("score must clamp at 100, got %d", high.Score)
	}
}

func TestAggregateDeterminism(t *testing.T) {
	cfg := testScoringConfig()
	th := Thresholds{
		MinDwellMs:       cfg.MinDwellMs,
		MinMouseMoves:    cfg.MinMouseMoves,
		MinVelocitySamps: cfg.MinVelocitySamps,
	}
	analyzers := DefaultAnalyzers(th)
	agg := NewAggregator(NewWeights(cfg))

	report := &models.FingerprintReport{
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
		Platform:            "Win32",
		Languages:           []string{"en-US"},
		Canvas2DHash:        "ab12cd34",
		AudioHash:           "ef56ab78",
		WebGLVendor:         "NVIDIA",
		WebGLRenderer:       "GeForce RTX 3080",
		HardwareConcurrency: 8,
		DeviceMemory:        16,
		ScreenWidth:         1920,
		ScreenHeight:        1080,
		ConsistencyOK:       true,
		Behavior: models.BehaviorSample{
			MouseMoves:      40,
			VelocitySamples: []float64{1.2, 3.1, 0.8, 2.2, 4.5, 1.1, 2.8},
			DwellMs:         4000,
			ScrollDepth:     0.4,
			ClickCount:      1,
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
	}

	first := agg.Aggregate(Run(analyzers, report, rctx))
	for i := 0; i < 10; i++ {
		again := agg.Aggregate(Run(analyzers, report, rctx))
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("aggregate not deterministic: run %d gave %+v, want %+v", i, again, first)
		}
	}
}

// Headless UA with no mouse movement: the automation hard-fail must win
// regardless of every other category.
func TestAggregateHeadlessNoMouseScenario(t *testing.T) {
	cfg := testScoringConfig()
	th := Thresholds{MinDwellMs: cfg.MinDwellMs, MinMouseMoves: cfg.MinMouseMoves, MinVelocitySamps: cfg.MinVelocitySamps}
	agg := NewAggregator(NewWeights(cfg))

	report := &models.FingerprintReport{
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/119.0.0.0 Safari/537.36",
	}
	rctx := &models.RequestContext{IP: "203.0.113.10", Country: "US"}

	ts := agg.Aggregate(Run(DefaultAnalyzers(th), report, rctx))
	if ts.Score != 0 || !ts.HardFailed {
		t.Errorf("headless visit should hard-fail to 0, got score=%d hardFailed=%v", ts.Score, ts.HardFailed)
	}
	if !ts.HasFlag(models.FlagHeadlessUA) {
		t.Error("expected headless_ua flag")
	}
}

// A WebRTC mismatch on its own is only a penalty, never a hard fail;
// whether VPN traffic is blocked stays a policy decision.
func TestAggregateWebRTCMismatchIsSoft(t *testing.T) {
	agg := NewAggregator(NewWeights(testScoringConfig()))

	a := NewWebRTCAnalyzer()
	cs := a.Analyze(&models.FingerprintReport{
		LocalIPs: []string{"198.51.100.7"},
	}, &models.RequestContext{IP: "203.0.113.10"})

	if len(cs.Flags) == 0 || cs.Flags[0] != models.FlagWebRTCMismatch {
		t.Fatalf("expected webrtc_ip_mismatch flag, got %v", cs.Flags)
	}

	ts := agg.Aggregate([]models.CategoryScore{cs})
	if ts.HardFailed || ts.Score == 0 {
		t.Errorf("webrtc mismatch alone must not zero the score, got %d", ts.Score)
	}
}
