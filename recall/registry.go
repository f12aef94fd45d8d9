package recall

import (
	"sync"

	"github.com/rushteam/recallkit/core"
)

// Registry 按 StrategyID 管理召回通道。通常在启动时 Register，之后只读。
type Registry struct {
	mu      sync.RWMutex
	sources map[core.StrategyID]Source
}

func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[core.StrategyID]Source, len(sources))}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

// Register 注册通道；同一 ID 后注册的覆盖先注册的。nil 被忽略。
func (r *Registry) Register(s Source) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.ID()] = s
}

func (r *Registry) Get(id core.StrategyID) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[id]
	return s, ok
}

// IDs 返回已注册通道，按声明顺序。
func (r *Registry) IDs() []core.StrategyID {
	r.mu.RLock()
	ids := make([]core.StrategyID, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	core.SortStrategies(ids)
	return ids
}
