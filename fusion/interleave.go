package fusion

import (
	"sort"

	"github.com/rushteam/recallkit/core"
)

// Interleave 按通道声明顺序轮流取数，每个通道内部按分数降序。
// 候选的通道以 Source（首次出现的通道）为准。limit <= 0 表示不截断。
func Interleave(cands []core.Candidate, limit int) []core.Candidate {
	buckets := make(map[core.StrategyID][]core.Candidate)
	var order []core.StrategyID
	for _, c := range cands {
		if _, ok := buckets[c.Source]; !ok {
			order = append(order, c.Source)
		}
		buckets[c.Source] = append(buckets[c.Source], c)
	}
	core.SortStrategies(order)
	for _, id := range order {
		SortByScore(buckets[id])
	}
	if limit <= 0 {
		limit = len(cands)
	}

	out := make([]core.Candidate, 0, min(limit, len(cands)))
	for added := true; added && len(out) < limit; {
		added = false
		for _, id := range order {
			b := buckets[id]
			if len(b) == 0 {
				continue
			}
			out = append(out, b[0])
			buckets[id] = b[1:]
			added = true
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// SortByScore 稳定排序：分数降序，同分按 ItemID 升序。
func SortByScore(cands []core.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].ItemID < cands[j].ItemID
	})
}
