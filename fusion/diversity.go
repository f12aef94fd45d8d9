package fusion

import (
	"fmt"

	"github.com/rushteam/recallkit/core"
)

// Diversify 按属性值限制同桶数量，最多保留 limit 个。
// 桶值来源优先级：
// - attributes[key]
// - labels[key].Value
// 没有该属性的候选不受限制。
// FillOverflow 为 true 时，被限掉的候选按原顺序回填到 limit；否则名额留空。
func Diversify(cands []core.Candidate, cfg core.DiversityConfig, limit int) []core.Candidate {
	if !cfg.Enabled() || len(cands) == 0 {
		return cands
	}
	if limit <= 0 {
		limit = len(cands)
	}

	counts := make(map[string]int, 16)
	accepted := make([]core.Candidate, 0, min(limit, len(cands)))
	var overflow []core.Candidate

	for _, c := range cands {
		if len(accepted) >= limit {
			break
		}
		bucket, ok := bucketOf(c, cfg.AttributeKey)
		if !ok {
			accepted = append(accepted, c)
			continue
		}
		if counts[bucket] >= cfg.MaxPerAttribute {
			overflow = append(overflow, c)
			continue
		}
		counts[bucket]++
		accepted = append(accepted, c)
	}

	if cfg.FillOverflow {
		for _, c := range overflow {
			if len(accepted) >= limit {
				break
			}
			accepted = append(accepted, c)
		}
	}
	return accepted
}

func bucketOf(c core.Candidate, key string) (string, bool) {
	if v, ok := c.Attributes[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s, s != ""
		}
		return fmt.Sprint(v), true
	}
	if lbl, ok := c.Labels[key]; ok && lbl.Value != "" {
		return lbl.Value, true
	}
	return "", false
}
