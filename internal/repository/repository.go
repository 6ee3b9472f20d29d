package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ayodejiio/gatelink/internal/models"
	"github.com/ayodejiio/gatelink/pkg/logger"
)

// ErrPolicyNotFound is returned when no link policy exists for a slug.
var ErrPolicyNotFound = errors.New("link policy not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(dsn string, maxConns, maxIdleConns int) (*Repository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Repository{db: db}, nil
}

// GetLinkPolicyBySlug loads the rule set for one protected link.
func (r *Repository) GetLinkPolicyBySlug(ctx context.Context, slug string) (*models.LinkPolicy, error) {
	var pol models.LinkPolicy
	query := `SELECT * FROM link_policies WHERE slug = $1`

	if err := r.db.GetContext(ctx, &pol, query, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get link policy: %w", err)
	}

	return &pol, nil
}

// InsertVisitorLog appends one immutable audit record. Rows are never
// updated after insert.
func (r *Repository) InsertVisitorLog(ctx context.Context, entry *models.VisitorLogEntry) error {
	query := `
		INSERT INTO visitor_logs
		(id, link_id, slug, fingerprint_hash, ip, country, city, asn, referer,
		 user_agent, score, hard_failed, flags, categories, rule_hits, decision,
		 redirect_url, processing_ms, created_at)
		VALUES (:id, :link_id, :slug, :fingerprint_hash, :ip, :country, :city,
		 :asn, :referer, :user_agent, :score, :hard_failed, :flags, :categories,
		 :rule_hits, :decision, :redirect_url, :processing_ms, :created_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to insert visitor log: %w", err)
	}

	return nil
}

// GetLinkStats aggregates the visit log for one link.
func (r *Repository) GetLinkStats(ctx context.Context, slug string) (*models.LinkStats, error) {
	query := `
		SELECT
			$1::text AS slug,
			COUNT(*) AS total_visits,
			COUNT(*) FILTER (WHERE decision = 'allow') AS allowed_count,
			COUNT(*) FILTER (WHERE decision = 'safe') AS safe_count,
			COUNT(*) FILTER (WHERE decision = 'block') AS blocked_count,
			COALESCE(AVG(score), 0) AS avg_score
		FROM visitor_logs
		WHERE slug = $1
	`

	var stats models.LinkStats
	if err := r.db.GetContext(ctx, &stats, query, slug); err != nil {
		return nil, fmt.Errorf("failed to get link stats: %w", err)
	}

	return &stats, nil
}

// GetRecentVisits retrieves the newest audit records for a link with
// pagination.
func (r *Repository) GetRecentVisits(ctx context.Context, slug string, limit, offset int) ([]models.VisitorLogEntry, error) {
	query := `
		SELECT * FROM visitor_logs
		WHERE slug = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var entries []models.VisitorLogEntry
	rows, err := r.db.QueryxContext(ctx, query, slug, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent visits: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warn("Failed to close database rows", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	for rows.Next() {
		var entry models.VisitorLogEntry
		if err := rows.StructScan(&entry); err != nil {
			return nil, fmt.Errorf("failed to scan visitor log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate visitor logs: %w", err)
	}

	return entries, nil
}

// ClearVisitorLogs bulk-deletes the audit records for a link and reports
// how many rows went away.
func (r *Repository) ClearVisitorLogs(ctx context.Context, slug string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM visitor_logs WHERE slug = $1`, slug)
	if err != nil {
		return 0, fmt.Errorf("failed to clear visitor logs: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows: %w", err)
	}

	return deleted, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}
