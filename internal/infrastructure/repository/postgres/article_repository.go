package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

type ArticleRepository struct {
	db *sql.DB
}

func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// Upsert inserts the article or replaces its state, keeping created_at.
func (r *ArticleRepository) Upsert(ctx context.Context, article *domain.Article) error {
	now := time.Now().UTC()
	createdAt, updatedAt := article.CreatedAt, article.UpdatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO articles (
	pmid, pmcid, title, journal, pub_year, storage_path, chunks, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (pmid) DO UPDATE SET
	pmcid = EXCLUDED.pmcid,
	title = EXCLUDED.title,
	journal = EXCLUDED.journal,
	pub_year = EXCLUDED.pub_year,
	storage_path = EXCLUDED.storage_path,
	chunks = EXCLUDED.chunks,
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	updated_at = EXCLUDED.updated_at
`,
		article.PMID, article.PMCID, article.Title, article.Journal, article.PubYear, article.StoragePath,
		article.Chunks, string(article.Status), article.Error, createdAt, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert article: %w", err)
	}
	return nil
}

func (r *ArticleRepository) GetByPMID(ctx context.Context, pmid string) (*domain.Article, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT pmid, pmcid, title, journal, pub_year, storage_path, chunks, status, error_message, created_at, updated_at
FROM articles
WHERE pmid = $1
`, pmid)

	var article domain.Article
	var status string
	err := row.Scan(
		&article.PMID, &article.PMCID, &article.Title, &article.Journal, &article.PubYear, &article.StoragePath,
		&article.Chunks, &status, &article.Error, &article.CreatedAt, &article.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrArticleNotFound, "get article", fmt.Errorf("pmid %s", pmid))
		}
		return nil, fmt.Errorf("scan article: %w", err)
	}
	article.Status = domain.ArticleStatus(status)
	return &article, nil
}

func (r *ArticleRepository) UpdateStatus(ctx context.Context, pmid string, status domain.ArticleStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE articles
SET status = $2, error_message = $3, updated_at = $4
WHERE pmid = $1
`, pmid, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update article status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update article status rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrArticleNotFound, "update article status", fmt.Errorf("pmid %s", pmid))
	}
	return nil
}

// CountByStatus reports how many articles sit in each ingestion state.
func (r *ArticleRepository) CountByStatus(ctx context.Context) (map[domain.ArticleStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM articles GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.ArticleStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan article count: %w", err)
		}
		out[domain.ArticleStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article counts: %w", err)
	}
	return out, nil
}
