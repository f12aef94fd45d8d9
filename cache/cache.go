// Package cache 保存每个用户最近一次的推荐结果，供分页读取。
//
// 条目不可变：刷新时整体替换，不会原地修改。
//   - Memory: 进程内 LRU（hashicorp/golang-lru），单机部署
//   - Store: 基于 core.Store（Redis/内存）的 JSON 缓存，多实例共享
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/rushteam/recallkit/core"
)

// Entry 是一次推荐的完整有序结果。
type Entry struct {
	UserID    int64            `json:"user_id"`
	Scene     string           `json:"scene"`
	Items     []core.Candidate `json:"items"`
	CreatedAt time.Time        `json:"created_at"`
}

// ResultCache 是每用户结果缓存。未命中返回 (nil, false, nil)。
type ResultCache interface {
	Get(ctx context.Context, userID int64, scene string) (*Entry, bool, error)
	Put(ctx context.Context, entry *Entry) error
	Invalidate(ctx context.Context, userID int64, scene string) error
}

func cacheKey(prefix string, userID int64, scene string) string {
	if scene == "" {
		scene = core.DefaultScene
	}
	return prefix + strconv.FormatInt(userID, 10) + ":" + scene
}
