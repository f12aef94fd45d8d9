package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/rushteam/recallkit/core"
)

// rankNormalization 是 ts_rank_cd 的归一化标志：1（除以 1+log(文档长度)）| 32（rank/(rank+1)）。
const rankNormalization = 33

var textConfigPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func safeTextConfig(cfg string) string {
	if !textConfigPattern.MatchString(cfg) {
		return DefaultTextConfig
	}
	return cfg
}

// buildLexicalQuery 生成词法检索 SQL。IncludeGlobal 为 false 时只返回用户有效订阅 feed 下的文档；
// FeedIDs 非空时再限定到这些 feed。
func buildLexicalQuery(textConfig string, q core.LexicalQuery) (string, []any) {
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}
	rank := fmt.Sprintf("ts_rank_cd(d.tsv, query.q, %d)", rankNormalization)

	var b strings.Builder
	fmt.Fprintf(&b, "WITH query AS (SELECT websearch_to_tsquery('%s', $1) AS q) ", safeTextConfig(textConfig))
	fmt.Fprintf(&b, "SELECT d.id, d.title, d.published_at, d.feed_id, %s AS score ", rank)
	b.WriteString("FROM articles d CROSS JOIN query ")
	fmt.Fprintf(&b, "WHERE query.q @@ d.tsv AND %s >= $2", rank)
	args := []any{q.Query, q.MinScore}
	if !q.IncludeGlobal {
		args = append(args, q.UserID)
		fmt.Fprintf(&b, " AND EXISTS (SELECT 1 FROM user_subscriptions us WHERE us.feed_id = d.feed_id AND us.user_id = $%d AND us.is_active)", len(args))
	}
	if len(q.FeedIDs) > 0 {
		args = append(args, q.FeedIDs)
		fmt.Fprintf(&b, " AND d.feed_id = ANY($%d)", len(args))
	}
	args = append(args, topK)
	fmt.Fprintf(&b, " ORDER BY score DESC, d.id ASC LIMIT $%d", len(args))
	return b.String(), args
}

// Search 实现 core.LexicalRetriever。
func (s *Store) Search(ctx context.Context, q core.LexicalQuery) ([]core.DocScore, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, nil
	}
	query, args := buildLexicalQuery(s.TextConfig, q)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("lexical search", err)
	}
	defer rows.Close()

	var out []core.DocScore
	for rows.Next() {
		var (
			d         core.DocScore
			published sql.NullTime
			feedID    int64
		)
		if err := rows.Scan(&d.DocID, &d.Title, &published, &feedID, &d.Score); err != nil {
			return nil, unavailable("scan lexical row", err)
		}
		if published.Valid {
			d.PublishedAt = published.Time
		}
		d.Source = core.StrategyBM25
		d.Meta = map[string]any{core.AttrFeedID: feedID}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate lexical rows", err)
	}
	return out, nil
}

var _ core.LexicalRetriever = (*Store)(nil)
