package feast

import (
	"context"
	"sort"
	"strings"

	"github.com/rushteam/recallkit/core"
)

// DefaultEntityKey 是用户实体列名。
const DefaultEntityKey = "user_id"

// PreferenceFeature 把一个 Feast 特征映射为属性偏好。
//   - 特征值为 string：一个偏好，分数为 Weight
//   - 特征值为 []string：按顺序第 i 个偏好分数为 Weight/(i+1)
//   - 其它类型忽略
type PreferenceFeature struct {
	// Name 特征引用，例如 "user_prefs:top_categories"
	Name string `yaml:"name"`
	// Attribute 物品属性名，例如 "category"
	Attribute string `yaml:"attribute"`
	// Weight <=0 时取 1
	Weight float64 `yaml:"weight"`
}

// PreferenceService 从 Feast 在线特征读取用户偏好，实现 core.UserPreferenceService。
type PreferenceService struct {
	Client    Client
	Project   string
	EntityKey string
	Features  []PreferenceFeature
}

func (s *PreferenceService) entityKey() string {
	if s.EntityKey == "" {
		return DefaultEntityKey
	}
	return s.EntityKey
}

// TopAttributes 返回分数降序的前 limit 个偏好；同一属性值出现多次时取最大分。
func (s *PreferenceService) TopAttributes(ctx context.Context, userID int64, limit int) ([]core.AttributePreference, error) {
	if len(s.Features) == 0 || limit <= 0 {
		return nil, nil
	}
	names := make([]string, len(s.Features))
	for i, f := range s.Features {
		names[i] = f.Name
	}
	values, err := fetchUser(ctx, s.Client, s.Project, s.entityKey(), userID, names)
	if err != nil {
		return nil, err
	}

	best := make(map[[2]string]float64)
	for _, f := range s.Features {
		weight := f.Weight
		if weight <= 0 {
			weight = 1
		}
		var items []string
		switch v := values[f.Name].(type) {
		case string:
			items = []string{v}
		case []string:
			items = v
		}
		for i, item := range items {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			key := [2]string{f.Attribute, item}
			if score := weight / float64(i+1); score > best[key] {
				best[key] = score
			}
		}
	}

	out := make([]core.AttributePreference, 0, len(best))
	for k, score := range best {
		out = append(out, core.AttributePreference{Key: k[0], Value: k[1], Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ProfileService 从 Feast 读取用户画像属性。属性名为特征引用中 ":" 之后的部分。
type ProfileService struct {
	Client    Client
	Project   string
	EntityKey string
	Features  []string
}

func (s *ProfileService) UserAttributes(ctx context.Context, userID int64) (map[string]any, error) {
	if len(s.Features) == 0 {
		return nil, nil
	}
	key := s.EntityKey
	if key == "" {
		key = DefaultEntityKey
	}
	values, err := fetchUser(ctx, s.Client, s.Project, key, userID, s.Features)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(values))
	for name, v := range values {
		out[shortName(name)] = v
	}
	return out, nil
}

func fetchUser(ctx context.Context, client Client, project, entityKey string, userID int64, features []string) (map[string]any, error) {
	if client == nil {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "feast client is not configured")
	}
	resp, err := client.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
		Features:   features,
		EntityRows: []map[string]any{{entityKey: userID}},
		Project:    project,
	})
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "feast online features", err)
	}
	if resp == nil || len(resp.FeatureVectors) == 0 {
		return map[string]any{}, nil
	}
	return resp.FeatureVectors[0].Values, nil
}

func shortName(ref string) string {
	if i := strings.LastIndexByte(ref, ':'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

var _ core.UserPreferenceService = (*PreferenceService)(nil)
