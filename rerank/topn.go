package rerank

import "github.com/rushteam/recallkit/core"

// TopN 截取前 n 个候选。
//   - n <= 0 时不截断
//   - n > len(cands) 时返回全部
func TopN(cands []core.Candidate, n int) []core.Candidate {
	if n <= 0 || len(cands) <= n {
		return cands
	}
	return cands[:n]
}
