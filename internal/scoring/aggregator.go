package scoring

import (
	"math"

	"github.com/ayodejiio/gatelink/internal/config"
	"github.com/ayodejiio/gatelink/internal/models"
)

// Weights is the versioned table combining category sub-scores into the
// aggregate. It is configuration, never inline constants: operators tune
// sensitivity per deployment and the version string is recorded with every
// decision.
type Weights struct {
	Version  string
	Table    map[models.Category]float64
	hardFail map[string]struct{}
}

// NewWeights builds the weight table from loaded configuration.
func NewWeights(cfg *config.ScoringConfig) Weights {
	hf := make(map[string]struct{}, len(cfg.HardFailFlags))
	for _, f := range cfg.HardFailFlags {
		hf[f] = struct{}{}
	}
	return Weights{
		Version: cfg.Version,
		Table: map[models.Category]float64{
			models.CategoryNetwork:           cfg.WeightNetwork,
			models.CategoryFingerprint:       cfg.WeightFingerprint,
			models.CategoryBehavior:          cfg.WeightBehavior,
			models.CategoryAutomation:        cfg.WeightAutomation,
			models.CategoryDeviceConsistency: cfg.WeightDeviceConsistency,
			models.CategoryWebRTC:            cfg.WeightWebRTC,
			models.CategoryMousePattern:      cfg.WeightMousePattern,
			models.CategoryKeyboard:          cfg.WeightKeyboard,
			models.CategorySessionReplay:     cfg.WeightSessionReplay,
		},
		hardFail: hf,
	}
}

// IsHardFail reports whether a flag belongs to the configured hard-fail set.
func (w Weights) IsHardFail(flag string) bool {
	_, ok := w.hardFail[flag]
	return ok
}

// Aggregator folds category scores into the single trust score.
type Aggregator struct {
	weights Weights
}

func NewAggregator(w Weights) *Aggregator {
	return &Aggregator{weights: w}
}

// Aggregate starts from the 100-point baseline and applies each category's
// weighted delta, clamping to [0,100]. Any hard-fail flag clamps the result
// to 0 immediately; the remaining categories are still recorded for the
// audit trail but cannot lift the floor.
func (a *Aggregator) Aggregate(categories []models.CategoryScore) models.TrustScore {
	ts := models.TrustScore{
		Categories: categories,
		Flags:      make([]string, 0, 8),
	}

	seen := make(map[string]struct{})
	hardFailed := false
	total := 100.0

	for _, cs := range categories {
		for _, f := range cs.Flags {
			if _, dup := seen[f]; !dup {
				seen[f] = struct{}{}
				ts.Flags = append(ts.Flags, f)
			}
			if a.weights.IsHardFail(f) {
				hardFailed = true
			}
		}
		weight, ok := a.weights.Table[cs.Category]
		if !ok {
			weight = 1.0
		}
		total += weight * float64(cs.Score)
	}

	if hardFailed {
		ts.Score = 0
		ts.HardFailed = true
		return ts
	}

	ts.Score = int(math.Round(math.Min(100, math.Max(0, total))))
	return ts
}

// Version exposes the active weight table revision.
func (a *Aggregator) Version() string {
	return a.weights.Version
}
