package scoring

import (
	"github.com/ayodejiio/gatelink/internal/models"
)

// Analyzer evaluates one scoring dimension. Implementations are pure:
// no shared mutable state, no I/O, deterministic for identical inputs.
type Analyzer interface {
	Category() models.Category
	Analyze(report *models.FingerprintReport, rctx *models.RequestContext) models.CategoryScore
}

// Run executes every analyzer in order and collects the category scores.
// Order is fixed so the aggregate (and its flag union) is reproducible.
func Run(analyzers []Analyzer, report *models.FingerprintReport, rctx *models.RequestContext) []models.CategoryScore {
	scores := make([]models.CategoryScore, 0, len(analyzers))
	for _, a := range analyzers {
		scores = append(scores, a.Analyze(report, rctx))
	}
	return scores
}

// Thresholds carries the operator-tunable behavioral minimums shared by the
// behavior, mouse and keyboard analyzers.
type Thresholds struct {
	MinDwellMs       int64
	MinMouseMoves    int
	MinScrollDepth   float64
	MinVelocitySamps int
}

// DefaultAnalyzers wires the full analyzer set in canonical order.
func DefaultAnalyzers(th Thresholds) []Analyzer {
	return []Analyzer{
		NewNetworkAnalyzer(),
		NewHeadersAnalyzer(),
		NewBehaviorAnalyzer(th),
		NewUserAgentAnalyzer(),
		NewDeviceConsistencyAnalyzer(),
		NewWebRTCAnalyzer(),
		NewMousePatternAnalyzer(th),
		NewKeyboardAnalyzer(),
		NewSessionReplayAnalyzer(),
	}
}
