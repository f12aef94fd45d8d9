package pgstore

import (
	"context"
	"time"

	"github.com/rushteam/recallkit/core"
)

// DefaultInteractionLimit 是 RecentInteractions 未指定 limit 时的条数。
const DefaultInteractionLimit = 150

// RecentInteractions 实现 core.SequenceStore，按时间倒序返回，标题取自 articles。
func (s *Store) RecentInteractions(ctx context.Context, userID int64, limit int) ([]core.Interaction, error) {
	if limit <= 0 {
		limit = DefaultInteractionLimit
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT i.item_id, COALESCE(a.title, ''), i.duration_seconds, i.weight, i.created_at
		FROM user_interactions i LEFT JOIN articles a ON a.id = i.item_id
		WHERE i.user_id = $1
		ORDER BY i.created_at DESC, i.id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, unavailable("load interactions", err)
	}
	defer rows.Close()

	var out []core.Interaction
	for rows.Next() {
		var it core.Interaction
		if err := rows.Scan(&it.ItemID, &it.Title, &it.DurationSeconds, &it.Weight, &it.Timestamp); err != nil {
			return nil, unavailable("scan interaction", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate interactions", err)
	}
	return out, nil
}

// AppendInteraction 记录一次交互，Timestamp 为零时使用当前时间，Weight 为零时取 1。
func (s *Store) AppendInteraction(ctx context.Context, userID int64, it core.Interaction) error {
	if userID <= 0 || it.ItemID <= 0 {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "user id and item id must be positive")
	}
	if it.Timestamp.IsZero() {
		it.Timestamp = time.Now()
	}
	if it.Weight == 0 {
		it.Weight = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO user_interactions (user_id, item_id, weight, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		userID, it.ItemID, it.Weight, it.DurationSeconds, it.Timestamp)
	if err != nil {
		return unavailable("append interaction", err)
	}
	return nil
}

// ActiveFeedIDs 实现 core.SubscriptionStore。
func (s *Store) ActiveFeedIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT feed_id FROM user_subscriptions WHERE user_id = $1 AND is_active ORDER BY feed_id`, userID)
	if err != nil {
		return nil, unavailable("load subscriptions", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scan subscription", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate subscriptions", err)
	}
	return out, nil
}

// Subscribe 新增或恢复订阅；active=false 时取消订阅。
func (s *Store) Subscribe(ctx context.Context, userID, feedID int64, active bool) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO user_subscriptions (user_id, feed_id, is_active) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, feed_id) DO UPDATE SET is_active = EXCLUDED.is_active`,
		userID, feedID, active)
	if err != nil {
		return unavailable("subscribe", err)
	}
	return nil
}

var (
	_ core.SequenceStore     = (*Store)(nil)
	_ core.SubscriptionStore = (*Store)(nil)
)
