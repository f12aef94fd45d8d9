package core

import "time"

// DocScore 是检索链路上的打分文档，对应推荐链路的 Candidate。
// PublishedAt 零值表示发布时间未知。
type DocScore struct {
	DocID       int64      `json:"doc_id"`
	Score       float64    `json:"score"`
	PublishedAt time.Time  `json:"published_at"`
	Source      StrategyID `json:"source,omitempty"`
	Title       string     `json:"title,omitempty"`
	Meta        any        `json:"meta,omitempty"`
}

// Scale 返回分数乘以 weight 的副本。
func (d DocScore) Scale(weight float64) DocScore {
	d.Score *= weight
	return d
}

// From 返回替换分数的副本。
func (d DocScore) From(score float64) DocScore {
	d.Score = score
	return d
}

// Combine 合并同一文档的两个打分：分数相加，保留较新的发布时间，
// Meta/Title 优先取接收者的非空值。
func (d DocScore) Combine(other DocScore) (DocScore, error) {
	if d.DocID != other.DocID {
		return d, ErrDocIDMismatch
	}
	out := d.merge(other)
	out.Score = d.Score + other.Score
	return out, nil
}

// CombineMax 同 Combine，但分数取两者最大值。
func (d DocScore) CombineMax(other DocScore) (DocScore, error) {
	if d.DocID != other.DocID {
		return d, ErrDocIDMismatch
	}
	out := d.merge(other)
	if other.Score > d.Score {
		out.Score = other.Score
	}
	return out, nil
}

func (d DocScore) merge(other DocScore) DocScore {
	out := d
	if other.PublishedAt.After(d.PublishedAt) {
		out.PublishedAt = other.PublishedAt
	}
	if out.Meta == nil {
		out.Meta = other.Meta
	}
	if out.Title == "" {
		out.Title = other.Title
	}
	return out
}

// ToCandidate 转为融合层使用的候选，标题与发布时间进入属性。
func (d DocScore) ToCandidate() Candidate {
	attrs := map[string]any{}
	if d.Title != "" {
		attrs[AttrTitle] = d.Title
	}
	if !d.PublishedAt.IsZero() {
		attrs[AttrPublishedAt] = d.PublishedAt
	}
	if d.Meta != nil {
		attrs["meta"] = d.Meta
	}
	src := d.Source
	if src == "" {
		src = StrategyMix
	}
	c, _ := NewCandidate(d.DocID, d.Score, src, attrs)
	return c
}

// DocScoreFromCandidate 是 ToCandidate 的逆过程，用于把融合结果还原为检索结果。
func DocScoreFromCandidate(c Candidate) DocScore {
	d := DocScore{DocID: c.ItemID, Score: c.Score, Source: c.Source, Title: c.Title(), Meta: c.Attributes["meta"]}
	if t, ok := c.Attributes[AttrPublishedAt].(time.Time); ok {
		d.PublishedAt = t
	}
	return d
}
