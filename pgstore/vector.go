package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pkg/conv"
)

// buildAnnQuery 生成向量近邻 SQL，$1 为查询向量。支持 core.FilterFeedIDs 过滤。
func buildAnnQuery(k int, filters map[string]any) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT e.item_id, 1 - (e.embedding <=> $1) AS score, a.title, a.published_at, a.feed_id ")
	b.WriteString("FROM item_embeddings e JOIN articles a ON a.id = e.item_id")
	var args []any
	if feeds := conv.ParseInt64s(filters[core.FilterFeedIDs]); len(feeds) > 0 {
		args = append(args, feeds)
		fmt.Fprintf(&b, " WHERE a.feed_id = ANY($%d)", len(args)+1)
	}
	args = append(args, k)
	fmt.Fprintf(&b, " ORDER BY e.embedding <=> $1 LIMIT $%d", len(args)+1)
	return b.String(), args
}

func (s *Store) checkDimension(vec []float32) error {
	if len(vec) != s.Dimension {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput,
			fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", s.Dimension, len(vec)))
	}
	return nil
}

// Query 实现 core.AnnIndex，分数为余弦相似度。
func (s *Store) Query(ctx context.Context, vector []float32, k int, filters map[string]any) ([]core.ScoredID, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}
	if err := s.checkDimension(vector); err != nil {
		return nil, err
	}
	query, args := buildAnnQuery(k, filters)
	args = append([]any{pgvector.NewVector(vector)}, args...)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("ann query", err)
	}
	defer rows.Close()

	var out []core.ScoredID
	for rows.Next() {
		var (
			hit       core.ScoredID
			title     string
			published sql.NullTime
			feedID    int64
		)
		if err := rows.Scan(&hit.ID, &hit.Score, &title, &published, &feedID); err != nil {
			return nil, unavailable("scan ann row", err)
		}
		hit.Metadata = map[string]any{core.AttrTitle: title, core.AttrFeedID: feedID}
		if published.Valid {
			hit.Metadata[core.AttrPublishedAt] = published.Time
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate ann rows", err)
	}
	return out, nil
}

func (s *Store) loadVector(ctx context.Context, query string, id int64) ([]float32, bool, error) {
	var v pgvector.Vector
	err := s.DB.QueryRowContext(ctx, query, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("load embedding", err)
	}
	return v.Slice(), true, nil
}

// UserVector 实现 core.EmbeddingStore。
func (s *Store) UserVector(ctx context.Context, userID int64) ([]float32, bool, error) {
	return s.loadVector(ctx, `SELECT embedding FROM user_embeddings WHERE user_id = $1`, userID)
}

func (s *Store) ItemVector(ctx context.Context, itemID int64) ([]float32, bool, error) {
	return s.loadVector(ctx, `SELECT embedding FROM item_embeddings WHERE item_id = $1`, itemID)
}

// NearestUsers 返回与 userID 向量最相近的 k 个其他用户。
func (s *Store) NearestUsers(ctx context.Context, userID int64, k int) ([]core.ScoredID, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT o.user_id, 1 - (o.embedding <=> u.embedding) AS score
		FROM user_embeddings u
		JOIN user_embeddings o ON o.user_id <> u.user_id
		WHERE u.user_id = $1
		ORDER BY o.embedding <=> u.embedding
		LIMIT $2`, userID, k)
	if err != nil {
		return nil, unavailable("nearest users", err)
	}
	defer rows.Close()

	var out []core.ScoredID
	for rows.Next() {
		var hit core.ScoredID
		if err := rows.Scan(&hit.ID, &hit.Score); err != nil {
			return nil, unavailable("scan nearest user", err)
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate nearest users", err)
	}
	return out, nil
}

// UpsertItemEmbedding 写入物品向量。
func (s *Store) UpsertItemEmbedding(ctx context.Context, itemID int64, vec []float32) error {
	if err := s.checkDimension(vec); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO item_embeddings (item_id, embedding) VALUES ($1, $2)
		ON CONFLICT (item_id) DO UPDATE SET embedding = EXCLUDED.embedding`,
		itemID, pgvector.NewVector(vec))
	if err != nil {
		return unavailable("upsert item embedding", err)
	}
	return nil
}

func (s *Store) UpsertUserEmbedding(ctx context.Context, userID int64, vec []float32) error {
	if err := s.checkDimension(vec); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO user_embeddings (user_id, embedding) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET embedding = EXCLUDED.embedding`,
		userID, pgvector.NewVector(vec))
	if err != nil {
		return unavailable("upsert user embedding", err)
	}
	return nil
}

var (
	_ core.AnnIndex       = (*Store)(nil)
	_ core.EmbeddingStore = (*Store)(nil)
)
