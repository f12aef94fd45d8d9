package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rushteam/recallkit/core"
)

const DefaultKeyPrefix = "recall:page:"

// Store 把条目以 JSON 写入 core.Store（通常是 RedisStore），多实例共享分页状态。
type Store struct {
	KV     core.Store
	Prefix string
	// TTL 为 0 表示不过期
	TTL time.Duration
}

func (s *Store) key(userID int64, scene string) string {
	p := s.Prefix
	if p == "" {
		p = DefaultKeyPrefix
	}
	return cacheKey(p, userID, scene)
}

func (s *Store) Get(ctx context.Context, userID int64, scene string) (*Entry, bool, error) {
	raw, err := s.KV.Get(ctx, s.key(userID, scene))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, false, nil
		}
		return nil, false, core.WrapDomainError(core.ModuleCache, core.ErrorCodeUnavailable, "read page cache", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, core.WrapDomainError(core.ModuleCache, core.ErrorCodeInternalError, "decode page cache", err)
	}
	return &entry, true, nil
}

func (s *Store) Put(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return core.WrapDomainError(core.ModuleCache, core.ErrorCodeInternalError, "encode page cache", err)
	}
	var ttl []int
	if s.TTL > 0 {
		ttl = append(ttl, max(1, int(s.TTL/time.Second)))
	}
	return s.KV.Set(ctx, s.key(entry.UserID, entry.Scene), raw, ttl...)
}

func (s *Store) Invalidate(ctx context.Context, userID int64, scene string) error {
	return s.KV.Delete(ctx, s.key(userID, scene))
}

var _ ResultCache = (*Store)(nil)
