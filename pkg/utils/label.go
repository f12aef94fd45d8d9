package utils

import "strings"

// Label 是候选上的可解释标记：记录召回来源、融合方式、重排结果等，全链路透传。
// Value 与 Source 的语义由各阶段自定义；这里只提供标准化的合并规则。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / fusion / rerank / filter ...
}

// MergeLabel 合并同名 Label，保留历史：
// - Value 以 '|' 累积，重复值不再追加
// - Source 以 ',' 累积
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" || containsPart(existing.Value, incoming.Value, "|") {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "" || containsPart(existing.Source, incoming.Source, ","):
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}

// Values 拆出累积后的各个值，按写入顺序。
func (l Label) Values() []string {
	if l.Value == "" {
		return nil
	}
	return strings.Split(l.Value, "|")
}

// CloneLabels 复制 label map，nil 保持 nil。
func CloneLabels(in map[string]Label) map[string]Label {
	if in == nil {
		return nil
	}
	out := make(map[string]Label, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func containsPart(joined, part, sep string) bool {
	for _, p := range strings.Split(joined, sep) {
		if p == part {
			return true
		}
	}
	return false
}
