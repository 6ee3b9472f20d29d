package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayodejiio/gatelink/internal/config"
	"github.com/ayodejiio/gatelink/internal/middleware"
	"github.com/ayodejiio/gatelink/internal/models"
	"github.com/ayodejiio/gatelink/internal/policy"
	"github.com/ayodejiio/gatelink/internal/repository"
	"github.com/ayodejiio/gatelink/internal/scoring"
	"github.com/ayodejiio/gatelink/pkg/logger"
	"github.com/ayodejiio/gatelink/pkg/useragent"
)

// PolicyStore loads link policies from the durable store.
type PolicyStore interface {
	GetLinkPolicyBySlug(ctx context.Context, slug string) (*models.LinkPolicy, error)
}

// PolicyCache is the fast-path policy lookup plus the metric counters.
type PolicyCache interface {
	GetPolicy(ctx context.Context, slug string) (*models.LinkPolicy, error)
	SetPolicy(ctx context.Context, pol *models.LinkPolicy) error
	IncrementMetric(ctx context.Context, metric string) error
}

// QuotaTaker charges one visit against the link's counters.
type QuotaTaker interface {
	Take(ctx context.Context, pol *models.LinkPolicy, ip string) (models.QuotaState, error)
}

// Auditor records the visit off the decision path.
type Auditor interface {
	Record(entry *models.VisitorLogEntry)
}

// Notifier dispatches webhook events off the decision path.
type Notifier interface {
	Notify(pol *models.LinkPolicy, event string, visitor models.WebhookVisitor)
}

// Engine runs the full pipeline for one visit: policy load, signal
// analysis, aggregation, quota charge, rule evaluation and destination
// routing. Audit and webhook work is handed off asynchronously; the
// response never waits on either.
type Engine struct {
	analyzers []scoring.Analyzer
	agg       *scoring.Aggregator
	eval      *policy.Evaluator
	store     PolicyStore
	cache     PolicyCache
	quota     QuotaTaker
	audit     Auditor
	notifier  Notifier
	cfg       *config.EngineConfig
}

func NewEngine(
	store PolicyStore,
	cache PolicyCache,
	quota QuotaTaker,
	audit Auditor,
	notifier Notifier,
	scoringCfg *config.ScoringConfig,
	engineCfg *config.EngineConfig,
) *Engine {
	th := scoring.Thresholds{
		MinDwellMs:       scoringCfg.MinDwellMs,
		MinMouseMoves:    scoringCfg.MinMouseMoves,
		MinScrollDepth:   scoringCfg.MinScrollDepth,
		MinVelocitySamps: scoringCfg.MinVelocitySamps,
	}

	return &Engine{
		analyzers: scoring.DefaultAnalyzers(th),
		agg:       scoring.NewAggregator(scoring.NewWeights(scoringCfg)),
		eval:      policy.NewEvaluator(),
		store:     store,
		cache:     cache,
		quota:     quota,
		audit:     audit,
		notifier:  notifier,
		cfg:       engineCfg,
	}
}

// Process evaluates one visit and returns the routing instruction.
func (e *Engine) Process(ctx context.Context, req models.VisitRequest, rctx *models.RequestContext) (*models.VisitResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestDeadline)
	defer cancel()

	pol, err := e.loadPolicy(ctx, req.Slug)
	if err != nil {
		return nil, err
	}

	report := &req.Report
	rctx.Slug = req.Slug
	if rctx.DeviceClass == "" {
		rctx.DeviceClass = useragent.DeviceClass(useragent.Parse(report.UserAgent))
	}

	if !pol.Enabled {
		return e.finish(start, pol, report, rctx, &models.TrustScore{}, policy.EvalResult{
			Decision: models.DecisionSafe,
			Rule:     "link_disabled",
			RuleHits: []string{"link_disabled"},
		}), nil
	}

	categories := scoring.Run(e.analyzers, report, rctx)
	score := e.agg.Aggregate(categories)

	// The quota charge happens for every evaluated visit regardless of
	// outcome; the store failing open is logged, never fatal.
	quotaState, err := e.quota.Take(ctx, pol, rctx.IP)
	if err != nil {
		logger.Warn("Quota store unreachable, failing open", map[string]any{
			"slug":  pol.Slug,
			"error": err.Error(),
		})
		_ = e.cache.IncrementMetric(ctx, "quota_degraded")
	}

	result := e.eval.Evaluate(&score, rctx, pol, quotaState)

	return e.finish(start, pol, report, rctx, &score, result), nil
}

// loadPolicy reads through the cache into Postgres.
func (e *Engine) loadPolicy(ctx context.Context, slug string) (*models.LinkPolicy, error) {
	if pol, err := e.cache.GetPolicy(ctx, slug); err == nil && pol != nil {
		_ = e.cache.IncrementMetric(ctx, "policy_cache_hits")
		logger.Debug("Policy cache hit", map[string]any{"slug": slug})
		return pol, nil
	} else if err != nil {
		logger.Warn("Policy cache lookup failed", map[string]any{
			"slug":  slug,
			"error": err.Error(),
		})
	}

	var pol *models.LinkPolicy
	err := repository.WithRetry(ctx, repository.DefaultRetryConfig, func() error {
		var opErr error
		pol, opErr = e.store.GetLinkPolicyBySlug(ctx, slug)
		return opErr
	})
	if err != nil {
		if errors.Is(err, repository.ErrPolicyNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load policy for %s: %w", slug, err)
	}

	// A malformed policy never reaches evaluation or the cache; the
	// visitor sees the same outcome as an unknown slug.
	if err := pol.Validate(); err != nil {
		logger.Error("Rejecting malformed policy", map[string]any{
			"slug":  slug,
			"error": err.Error(),
		})
		return nil, repository.ErrPolicyNotFound
	}

	_ = e.cache.IncrementMetric(ctx, "policy_cache_misses")
	if err := e.cache.SetPolicy(ctx, pol); err != nil {
		logger.Warn("Failed to cache policy", map[string]any{
			"slug":  slug,
			"error": err.Error(),
		})
	}
	return pol, nil
}

// finish assembles the response and hands the side effects off.
func (e *Engine) finish(
	start time.Time,
	pol *models.LinkPolicy,
	report *models.FingerprintReport,
	rctx *models.RequestContext,
	score *models.TrustScore,
	result policy.EvalResult,
) *models.VisitResponse {
	destination := e.route(pol, result.Decision, rctx.Query)

	resp := &models.VisitResponse{
		RequestID: uuid.New(),
		Decision:  result.Decision,
		URL:       destination,
		DelayMs:   e.delayMs(pol),
	}

	categoriesJSON, err := json.Marshal(score.Categories)
	if err != nil {
		logger.Error("Failed to encode category scores", map[string]any{
			"slug":  pol.Slug,
			"error": err.Error(),
		})
		categoriesJSON = []byte("[]")
	}

	e.audit.Record(&models.VisitorLogEntry{
		ID:              resp.RequestID,
		LinkID:          pol.ID,
		Slug:            pol.Slug,
		FingerprintHash: report.Hash(),
		IP:              middleware.AnonymizeIP(rctx.IP),
		Country:         rctx.Country,
		City:            rctx.City,
		ASN:             rctx.ASN,
		Referer:         rctx.Referer,
		UserAgent:       report.UserAgent,
		Score:           score.Score,
		HardFailed:      score.HardFailed,
		Flags:           score.Flags,
		Categories:      categoriesJSON,
		RuleHits:        result.RuleHits,
		Decision:        result.Decision,
		RedirectURL:     destination,
		ProcessingMs:    time.Since(start).Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	})

	e.notifier.Notify(pol, result.Event, models.WebhookVisitor{
		IP:        rctx.IP,
		Country:   rctx.Country,
		UserAgent: report.UserAgent,
		Score:     score.Score,
		Flags:     score.Flags,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = e.cache.IncrementMetric(ctx, "decision_"+string(result.Decision))

	return resp
}

// route maps the decision onto a destination. Original query parameters
// are merged into the target only on allow and only when passthrough is
// enabled; the safe page never receives them.
func (e *Engine) route(pol *models.LinkPolicy, decision models.Decision, query map[string]string) string {
	if decision != models.DecisionAllow {
		return pol.SafeURL
	}
	if !pol.PassUTM || len(query) == 0 {
		return pol.TargetURL
	}

	u, err := url.Parse(pol.TargetURL)
	if err != nil {
		logger.Warn("Target URL failed to parse, passing through unchanged", map[string]any{
			"slug":  pol.Slug,
			"error": err.Error(),
		})
		return pol.TargetURL
	}

	q := u.Query()
	for k, v := range query {
		// Target's own parameters win over the inbound ones.
		if q.Has(k) {
			continue
		}
		if strings.HasPrefix(k, "utm_") || k == "gclid" || k == "fbclid" || k == "ttclid" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// delayMs picks the client-side redirect delay. The wait happens in the
// visitor's browser, so concurrent requests are never held up here.
func (e *Engine) delayMs(pol *models.LinkPolicy) int {
	if pol.RedirectDelayMs <= 0 {
		return 0
	}
	delay := pol.RedirectDelayMs
	if maxMs := int(e.cfg.MaxRedirectDelay.Milliseconds()); delay > maxMs {
		delay = maxMs
	}
	if pol.RandomizeDelay {
		return rand.Intn(delay + 1)
	}
	return delay
}
