package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const DefaultMemorySize = 10000

// Memory 是进程内 LRU 缓存，超过容量时淘汰最久未访问的用户。
// TTL > 0 时过期条目视为未命中。
type Memory struct {
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewMemory 创建容量为 size 的缓存，size <= 0 时取 DefaultMemorySize。
func NewMemory(size int, ttl time.Duration) (*Memory, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Memory{cache: c, ttl: ttl, now: time.Now}, nil
}

func (m *Memory) Get(_ context.Context, userID int64, scene string) (*Entry, bool, error) {
	key := cacheKey("", userID, scene)
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	entry := v.(*Entry)
	if m.ttl > 0 && m.now().Sub(entry.CreatedAt) > m.ttl {
		m.cache.Remove(key)
		return nil, false, nil
	}
	return entry, true, nil
}

func (m *Memory) Put(_ context.Context, entry *Entry) error {
	if entry == nil {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.cache.Add(cacheKey("", entry.UserID, entry.Scene), entry)
	return nil
}

func (m *Memory) Invalidate(_ context.Context, userID int64, scene string) error {
	m.cache.Remove(cacheKey("", userID, scene))
	return nil
}

// Len 返回当前条目数。
func (m *Memory) Len() int { return m.cache.Len() }

var _ ResultCache = (*Memory)(nil)
