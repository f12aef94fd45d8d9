package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/rushteam/recallkit/core"
)

// Article 是 articles 表的一行。
type Article struct {
	ID          int64
	FeedID      int64
	Title       string
	Category    string
	Tags        string
	Summary     string
	Content     string
	PublishedAt time.Time
}

// UpsertArticle 写入或更新文章，tsv 由触发器维护。
func (s *Store) UpsertArticle(ctx context.Context, a Article) error {
	if a.ID <= 0 {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "article id must be positive")
	}
	var published sql.NullTime
	if !a.PublishedAt.IsZero() {
		published = sql.NullTime{Time: a.PublishedAt, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO articles (id, feed_id, title, category, tags, summary, content, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			feed_id = EXCLUDED.feed_id,
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			summary = EXCLUDED.summary,
			content = EXCLUDED.content,
			published_at = EXCLUDED.published_at`,
		a.ID, a.FeedID, a.Title, a.Category, a.Tags, a.Summary, a.Content, published)
	if err != nil {
		return unavailable("upsert article", err)
	}
	return nil
}

// Titles 实现 core.ContentStore，空标题视为缺失。
func (s *Store) Titles(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, title FROM articles WHERE id = ANY($1) AND title <> ''`, ids)
	if err != nil {
		return nil, unavailable("load titles", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    int64
			title string
		)
		if err := rows.Scan(&id, &title); err != nil {
			return nil, unavailable("scan title", err)
		}
		out[id] = title
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate titles", err)
	}
	return out, nil
}

// Contents 返回标题、正文（为空时用摘要）与发布时间。
func (s *Store) Contents(ctx context.Context, ids []int64) (map[int64]core.Content, error) {
	out := make(map[int64]core.Content, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, title, COALESCE(NULLIF(content, ''), summary), published_at
		FROM articles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, unavailable("load contents", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id        int64
			c         core.Content
			published sql.NullTime
		)
		if err := rows.Scan(&id, &c.Title, &c.Text, &published); err != nil {
			return nil, unavailable("scan content", err)
		}
		if published.Valid {
			c.PublishedAt = published.Time
		}
		out[id] = c
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate contents", err)
	}
	return out, nil
}

// PublishedAt 实现 core.FreshnessProvider，未知发布时间的物品不返回。
func (s *Store) PublishedAt(ctx context.Context, ids []int64) (map[int64]time.Time, error) {
	out := make(map[int64]time.Time, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, published_at FROM articles WHERE id = ANY($1) AND published_at IS NOT NULL`, ids)
	if err != nil {
		return nil, unavailable("load published_at", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id int64
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return nil, unavailable("scan published_at", err)
		}
		out[id] = at
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate published_at", err)
	}
	return out, nil
}

var (
	_ core.ContentStore      = (*Store)(nil)
	_ core.FreshnessProvider = (*Store)(nil)
)
