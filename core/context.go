package core

import (
	"strings"
	"time"
)

// DefaultScene 是未指定场景时的场景标签。
const DefaultScene = "default"

// Interaction 是用户的一次交互记录。
type Interaction struct {
	ItemID          int64     `json:"item_id"`
	Title           string    `json:"title,omitempty"`
	DurationSeconds int64     `json:"duration_seconds,omitempty"`
	Weight          float64   `json:"weight,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// UserContext 承载用户/场景/近期交互信息，贯穿召回、融合、重排。
// 构造后只读：所有 slice/map 都在构造时复制。
type UserContext struct {
	UserID      int64
	Scene       string
	RequestTime time.Time

	interactions []Interaction
	attributes   map[string]any

	recentIDs    map[int64]struct{}
	recentTitles map[string]struct{}
}

// NewUserContext 构造用户上下文。userID <= 0 返回 ErrMissingUserID。
func NewUserContext(userID int64, scene string, interactions []Interaction, attributes map[string]any, requestTime time.Time) (*UserContext, error) {
	if userID <= 0 {
		return nil, ErrMissingUserID
	}
	if strings.TrimSpace(scene) == "" {
		scene = DefaultScene
	}
	if requestTime.IsZero() {
		requestTime = time.Now()
	}
	uctx := &UserContext{
		UserID:       userID,
		Scene:        scene,
		RequestTime:  requestTime,
		interactions: append([]Interaction(nil), interactions...),
		attributes:   copyAnyMap(attributes),
		recentIDs:    make(map[int64]struct{}, len(interactions)),
		recentTitles: make(map[string]struct{}, len(interactions)),
	}
	for _, it := range interactions {
		uctx.recentIDs[it.ItemID] = struct{}{}
		if t := NormalizeTitle(it.Title); t != "" {
			uctx.recentTitles[t] = struct{}{}
		}
	}
	return uctx, nil
}

// Interactions 返回近期交互（按写入顺序）的副本。
func (u *UserContext) Interactions() []Interaction {
	return append([]Interaction(nil), u.interactions...)
}

// Attributes 返回属性 map 的副本。
func (u *UserContext) Attributes() map[string]any {
	return copyAnyMap(u.attributes)
}

func (u *UserContext) Attribute(key string) (any, bool) {
	v, ok := u.attributes[key]
	return v, ok
}

// HasInteractions 表示是否有近期交互。
func (u *UserContext) HasInteractions() bool { return len(u.interactions) > 0 }

// RecentItemIDs 近期交互过的物品 ID 集合。
func (u *UserContext) RecentItemIDs() map[int64]struct{} { return u.recentIDs }

// SeenItem 表示 id 是否在近期交互中。
func (u *UserContext) SeenItem(id int64) bool {
	_, ok := u.recentIDs[id]
	return ok
}

// RecentTitles 近期看过的标题集合（已归一化）。
func (u *UserContext) RecentTitles() map[string]struct{} { return u.recentTitles }

// SeenTitle 按归一化标题判断是否看过。
func (u *UserContext) SeenTitle(title string) bool {
	_, ok := u.recentTitles[NormalizeTitle(title)]
	return ok
}

// NormalizeTitle 小写并折叠空白，用于标题去重与历史匹配。
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
