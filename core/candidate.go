package core

import (
	"fmt"

	"github.com/rushteam/recallkit/pkg/utils"
)

// 常用属性 key
const (
	AttrTitle       = "title"
	AttrPublishedAt = "published_at"
	AttrFeedID      = "feed_id"

	LabelRecallSource = "recall_source"
)

// Candidate 是召回链路中的统一承载结构：物品 ID、分数、来源通道、属性、标签。
// ItemID 与 Source 构造后不变；WithScore 返回副本。
type Candidate struct {
	ItemID     int64                  `json:"item_id"`
	Score      float64                `json:"score"`
	Source     StrategyID             `json:"source"`
	Reason     string                 `json:"reason,omitempty"`
	Attributes map[string]any         `json:"attributes,omitempty"`
	Labels     map[string]utils.Label `json:"labels,omitempty"`
}

// NewCandidate 创建候选，source 为空返回 ErrMissingSource。
func NewCandidate(itemID int64, score float64, source StrategyID, attrs map[string]any) (Candidate, error) {
	if source == "" {
		return Candidate{}, ErrMissingSource
	}
	c := Candidate{
		ItemID:     itemID,
		Score:      score,
		Source:     source,
		Attributes: copyAnyMap(attrs),
	}
	c.Labels = map[string]utils.Label{
		LabelRecallSource: {Value: string(source), Source: "recall"},
	}
	return c, nil
}

// MustCandidate 同 NewCandidate，source 为空时 panic；用于字面量构造。
func MustCandidate(itemID int64, score float64, source StrategyID) Candidate {
	c, err := NewCandidate(itemID, score, source, nil)
	if err != nil {
		panic(fmt.Sprintf("candidate %d: %v", itemID, err))
	}
	return c
}

// WithScore 返回替换了分数的副本。
func (c Candidate) WithScore(score float64) Candidate {
	out := c
	out.Score = score
	out.Attributes = copyAnyMap(c.Attributes)
	out.Labels = utils.CloneLabels(c.Labels)
	return out
}

// WithReason 返回替换了理由的副本。
func (c Candidate) WithReason(reason string) Candidate {
	out := c.WithScore(c.Score)
	out.Reason = reason
	return out
}

// PutLabel 写入 Label；已存在则按默认规则合并。
// 只应作用于自己持有的副本。
func (c *Candidate) PutLabel(key string, lbl utils.Label) {
	if c.Labels == nil {
		c.Labels = make(map[string]utils.Label)
	}
	if old, ok := c.Labels[key]; ok {
		c.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	c.Labels[key] = lbl
}

// Attr 读取属性。
func (c Candidate) Attr(key string) (any, bool) {
	v, ok := c.Attributes[key]
	return v, ok
}

// Title 返回 title 属性，没有时为空串。
func (c Candidate) Title() string {
	if v, ok := c.Attributes[AttrTitle].(string); ok {
		return v
	}
	return ""
}

// ScoredID 是底层协作方返回的 (id, score, metadata) 三元组，由通道提升为 Candidate。
type ScoredID struct {
	ID       int64
	Score    float64
	Metadata map[string]any
}

// ToCandidate 提升为指定通道的候选。
func (s ScoredID) ToCandidate(source StrategyID) Candidate {
	c, err := NewCandidate(s.ID, s.Score, source, s.Metadata)
	if err != nil {
		panic(err) // source 由通道常量给出
	}
	return c
}

// CandidateIDs 提取 ID 列表，保持顺序。
func CandidateIDs(cands []Candidate) []int64 {
	ids := make([]int64, len(cands))
	for i, c := range cands {
		ids[i] = c.ItemID
	}
	return ids
}
