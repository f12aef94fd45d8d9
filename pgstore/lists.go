package pgstore

import (
	"context"
	"fmt"

	"github.com/rushteam/recallkit/core"
)

// HotWindowDays 是热门榜统计交互的天数。
const HotWindowDays = 7

func listQuery(kind core.ListKind) (string, error) {
	switch kind {
	case core.ListLatest:
		return `SELECT id, EXTRACT(EPOCH FROM published_at)::DOUBLE PRECISION AS score
			FROM articles WHERE published_at IS NOT NULL
			ORDER BY published_at DESC, id DESC LIMIT $1`, nil
	case core.ListHot:
		return fmt.Sprintf(`SELECT i.item_id, COUNT(*)::DOUBLE PRECISION AS score
			FROM user_interactions i JOIN articles a ON a.id = i.item_id
			WHERE i.created_at >= NOW() - INTERVAL '%d days'
			GROUP BY i.item_id
			ORDER BY score DESC, i.item_id ASC LIMIT $1`, HotWindowDays), nil
	case core.ListRandom:
		return `SELECT id, random() AS score FROM articles ORDER BY score LIMIT $1`, nil
	default:
		return "", core.NewDomainError(core.ModuleStore, core.ErrorCodeNotSupported, "unknown list kind: "+string(kind))
	}
}

// List 实现 core.ItemLister。
func (s *Store) List(ctx context.Context, _ *core.UserContext, kind core.ListKind, k int) ([]core.ScoredID, error) {
	if k <= 0 {
		return nil, nil
	}
	query, err := listQuery(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, query, k)
	if err != nil {
		return nil, unavailable("list "+string(kind), err)
	}
	defer rows.Close()

	var out []core.ScoredID
	for rows.Next() {
		var hit core.ScoredID
		if err := rows.Scan(&hit.ID, &hit.Score); err != nil {
			return nil, unavailable("scan list row", err)
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate list rows", err)
	}
	return out, nil
}

var _ core.ItemLister = (*Store)(nil)
