package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ayodejiio/gatelink/internal/middleware"
	"github.com/ayodejiio/gatelink/internal/models"
	"github.com/ayodejiio/gatelink/internal/repository"
	"github.com/ayodejiio/gatelink/internal/services"
	"github.com/ayodejiio/gatelink/pkg/cache"
	"github.com/ayodejiio/gatelink/pkg/logger"
	"github.com/ayodejiio/gatelink/pkg/validator"
)

type Handler struct {
	engine *services.Engine
	repo   *repository.Repository
	cache  *cache.Cache
}

func NewHandler(engine *services.Engine, repo *repository.Repository, cache *cache.Cache) *Handler {
	return &Handler{
		engine: engine,
		repo:   repo,
		cache:  cache,
	}
}

// Visit handles POST /v1/visit, the collector's full-signal path.
func (h *Handler) Visit(c *fiber.Ctx) error {
	requestID := uuid.New().String()
	log := logger.WithField("request_id", requestID)

	var req models.VisitRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn("Failed to parse request body", map[string]any{
			"error": err.Error(),
		})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "Invalid request body",
			"request_id": requestID,
		})
	}

	if err := validator.ValidateVisitRequest(&req); err != nil {
		log.Warn("Request validation failed", map[string]any{
			"error": err.Error(),
		})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      err.Error(),
			"request_id": requestID,
		})
	}

	rctx := h.requestContext(c)

	resp, err := h.engine.Process(c.Context(), req, rctx)
	if err != nil {
		if errors.Is(err, repository.ErrPolicyNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":      "Unknown link",
				"request_id": requestID,
			})
		}
		log.Error("Visit processing failed", map[string]any{
			"slug":  req.Slug,
			"error": err.Error(),
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":      "Failed to process visit",
			"request_id": requestID,
		})
	}

	log.Info("Visit processed", map[string]any{
		"slug":     req.Slug,
		"decision": resp.Decision,
	})

	return c.Status(fiber.StatusOK).JSON(resp)
}

// Redirect handles GET /r/:slug, the no-JS fallback. Without collector
// telemetry the report is empty; the behavioral analyzers score it
// accordingly and the policy decides.
func (h *Handler) Redirect(c *fiber.Ctx) error {
	req := models.VisitRequest{
		Slug: c.Params("slug"),
		Report: models.FingerprintReport{
			UserAgent: c.Get("User-Agent"),
		},
	}

	if err := validator.ValidateVisitRequest(&req); err != nil {
		return c.SendStatus(fiber.StatusNotFound)
	}

	rctx := h.requestContext(c)

	resp, err := h.engine.Process(c.Context(), req, rctx)
	if err != nil {
		if errors.Is(err, repository.ErrPolicyNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		logger.Error("Redirect processing failed", map[string]any{
			"slug":  req.Slug,
			"error": err.Error(),
		})
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Redirect(resp.URL, fiber.StatusFound)
}

// Health handles GET /health.
func (h *Handler) Health(c *fiber.Ctx) error {
	status := "healthy"
	code := fiber.StatusOK

	dbErr := h.repo.HealthCheck(c.Context())
	cacheErr := h.cache.Ping(c.Context())
	if dbErr != nil || cacheErr != nil {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"service":  "gatelink-api",
		"database": dbErr == nil,
		"redis":    cacheErr == nil,
	})
}

// Metrics handles GET /metrics.
func (h *Handler) Metrics(c *fiber.Ctx) error {
	ctx := c.Context()

	allowed, _ := h.cache.GetMetric(ctx, "decision_allow")
	safe, _ := h.cache.GetMetric(ctx, "decision_safe")
	blocked, _ := h.cache.GetMetric(ctx, "decision_block")
	cacheHits, _ := h.cache.GetMetric(ctx, "policy_cache_hits")
	cacheMisses, _ := h.cache.GetMetric(ctx, "policy_cache_misses")
	quotaDegraded, _ := h.cache.GetMetric(ctx, "quota_degraded")

	total := allowed + safe + blocked

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"total_decisions":     total,
		"allowed":             allowed,
		"safe":                safe,
		"blocked":             blocked,
		"block_rate":          calculateRate(blocked, total),
		"policy_cache_hits":   cacheHits,
		"policy_cache_misses": cacheMisses,
		"quota_degraded":      quotaDegraded,
	})
}

// LinkStats handles GET /api/links/:slug/stats.
func (h *Handler) LinkStats(c *fiber.Ctx) error {
	stats, err := h.repo.GetLinkStats(c.Context(), c.Params("slug"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch link stats",
		})
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

// RecentVisits handles GET /api/links/:slug/visits.
func (h *Handler) RecentVisits(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	if limit > 100 {
		limit = 100
	}

	visits, err := h.repo.GetRecentVisits(c.Context(), c.Params("slug"), limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch visits",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"visits": visits,
		"limit":  limit,
		"offset": offset,
	})
}

// ClearVisits handles DELETE /api/links/:slug/visits. Clears the audit
// trail, resets the link's quota counters and drops the cached policy so
// the next visit re-reads Postgres.
func (h *Handler) ClearVisits(c *fiber.Ctx) error {
	slug := c.Params("slug")

	deleted, err := h.repo.ClearVisitorLogs(c.Context(), slug)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear visits",
		})
	}

	if err := h.cache.ResetQuota(c.Context(), slug); err != nil {
		logger.Warn("Failed to reset quota counters", map[string]any{
			"slug":  slug,
			"error": err.Error(),
		})
	}
	if err := h.cache.InvalidatePolicy(c.Context(), slug); err != nil {
		logger.Warn("Failed to invalidate cached policy", map[string]any{
			"slug":  slug,
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deleted": deleted,
	})
}

// requestContext assembles the request metadata the analyzers and the
// policy evaluator consume. Geo fields come pre-resolved from the edge
// (CDN or reverse proxy headers); the engine never does blocking lookups.
func (h *Handler) requestContext(c *fiber.Ctx) *models.RequestContext {
	headers := make(map[string]string)
	for key, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[strings.ToLower(key)] = values[0]
		}
	}

	query := make(map[string]string)
	for key, values := range c.Queries() {
		query[key] = values
	}

	country := c.Get("CF-IPCountry")
	if country == "" {
		country = c.Get("X-Geo-Country")
	}

	return &models.RequestContext{
		IP:             middleware.ClientIP(c),
		Country:        country,
		City:           c.Get("X-Geo-City"),
		ISP:            c.Get("X-Geo-ISP"),
		ASN:            c.Get("X-Geo-ASN"),
		Referer:        c.Get("Referer"),
		AcceptLanguage: c.Get("Accept-Language"),
		Headers:        headers,
		Query:          query,
	}
}

func calculateRate(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0.0
	}
	return (float64(numerator) / float64(denominator)) * 100
}
