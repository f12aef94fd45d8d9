package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/recallkit/core"
)

// DefaultRecentInteractions 是构造用户上下文时读取的近期交互数。
const DefaultRecentInteractions = 150

// AttributeProvider 提供用户画像属性（语言、地域等），可为空。
type AttributeProvider interface {
	UserAttributes(ctx context.Context, userID int64) (map[string]any, error)
}

// ContextFactory 为请求构造 UserContext。
// 读取交互序列或属性失败时降级为空，不影响召回。
type ContextFactory struct {
	Sequence   core.SequenceStore
	Attributes AttributeProvider
	// Limit 读取的近期交互数，<=0 时取 DefaultRecentInteractions
	Limit  int
	Logger *zap.Logger
}

func (f *ContextFactory) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Build 构造用户上下文。userID <= 0 返回 core.ErrMissingUserID。
func (f *ContextFactory) Build(ctx context.Context, userID int64, scene string, now time.Time) (*core.UserContext, error) {
	if userID <= 0 {
		return nil, core.ErrMissingUserID
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultRecentInteractions
	}

	var interactions []core.Interaction
	if f.Sequence != nil {
		seq, err := f.Sequence.RecentInteractions(ctx, userID, limit)
		if err != nil {
			f.logger().Warn("load recent interactions failed", zap.Int64("user_id", userID), zap.Error(err))
		} else {
			interactions = seq
		}
	}
	if len(interactions) > limit {
		interactions = interactions[:limit]
	}

	var attrs map[string]any
	if f.Attributes != nil {
		a, err := f.Attributes.UserAttributes(ctx, userID)
		if err != nil {
			f.logger().Warn("load user attributes failed", zap.Int64("user_id", userID), zap.Error(err))
		} else {
			attrs = a
		}
	}
	return core.NewUserContext(userID, scene, interactions, attrs, now)
}
