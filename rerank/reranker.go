// Package rerank 在融合之后按正文质量重排候选。
package rerank

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pkg/utils"
)

// LabelQualityGrade 记录候选的质量等级。
const LabelQualityGrade = "quality_grade"

// Reranker 对融合结果做质量重排：
//  1. 查标题（ContentStore.Titles，缺失时用 title 属性），标题缺失或近期看过的丢弃
//  2. 查正文与发布时间，缺失的丢弃
//  3. 最终分 = 质量分 * 召回分
//  4. 稳定降序排序，可选截断到 Limit
//
// ItemID 与 Source 不变。
type Reranker struct {
	Contents core.ContentStore
	// Scorer 为空时使用 DefaultQualityScorer
	Scorer core.QualityScorer
	Logger *zap.Logger
	// Limit 重排后保留的条数，<=0 不截断
	Limit int
}

func NewReranker(contents core.ContentStore, logger *zap.Logger) *Reranker {
	return &Reranker{Contents: contents, Scorer: DefaultQualityScorer{}, Logger: logger}
}

func (r *Reranker) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Reranker) scorer() core.QualityScorer {
	if r.Scorer == nil {
		return DefaultQualityScorer{}
	}
	return r.Scorer
}

func (r *Reranker) Rerank(ctx context.Context, uctx *core.UserContext, cands []core.Candidate, now time.Time) ([]core.Candidate, error) {
	if len(cands) == 0 {
		return []core.Candidate{}, nil
	}
	kept, err := r.dropSeenTitles(ctx, uctx, cands)
	if err != nil {
		return nil, err
	}
	if len(kept) == 0 {
		return []core.Candidate{}, nil
	}

	contents, err := r.Contents.Contents(ctx, core.CandidateIDs(kept))
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleRerank, core.ErrorCodeUnavailable, "load contents", err)
	}
	scorer := r.scorer()
	out := make([]core.Candidate, 0, len(kept))
	for _, c := range kept {
		content, ok := contents[c.ItemID]
		if !ok {
			continue
		}
		quality, grade := scorer.Score(content.Text, content.PublishedAt, now)
		r.logger().Debug("quality scored",
			zap.Int64("item_id", c.ItemID),
			zap.Float64("quality", quality),
			zap.String("grade", grade))

		next := c.WithScore(quality * c.Score)
		next.PutLabel(LabelQualityGrade, utils.Label{Value: grade, Source: "rerank"})
		out = append(out, next)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return TopN(out, r.Limit), nil
}

// dropSeenTitles 解析标题并丢弃无标题或近期看过的候选，解析到的标题写回 title 属性。
func (r *Reranker) dropSeenTitles(ctx context.Context, uctx *core.UserContext, cands []core.Candidate) ([]core.Candidate, error) {
	titles, err := r.Contents.Titles(ctx, core.CandidateIDs(cands))
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleRerank, core.ErrorCodeUnavailable, "load titles", err)
	}
	return DropSeen(uctx, cands, titles), nil
}

// DropSeen 丢弃无标题或标题在用户近期交互中出现过的候选。
// titles 优先于候选的 title 属性，可以为 nil；ContentStore 不可用时调用方仍应以 nil 调用它。
func DropSeen(uctx *core.UserContext, cands []core.Candidate, titles map[int64]string) []core.Candidate {
	out := make([]core.Candidate, 0, len(cands))
	for _, c := range cands {
		title := titles[c.ItemID]
		if title == "" {
			title = c.Title()
		}
		if title == "" {
			continue
		}
		if uctx != nil && uctx.SeenTitle(title) {
			continue
		}
		if c.Title() != title {
			c = c.WithScore(c.Score)
			c.Attributes[core.AttrTitle] = title
		}
		out = append(out, c)
	}
	return out
}
