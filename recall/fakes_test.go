package recall

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rushteam/recallkit/core"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newUser(interactions ...core.Interaction) *core.UserContext {
	uctx, err := core.NewUserContext(7, "", interactions, map[string]any{"lang": "zh"}, testNow)
	if err != nil {
		panic(err)
	}
	return uctx
}

type fakeEmbeddings map[int64][]float32

func (f fakeEmbeddings) UserVector(_ context.Context, userID int64) ([]float32, bool, error) {
	v, ok := f[userID]
	return v, ok, nil
}

func (f fakeEmbeddings) ItemVector(context.Context, int64) ([]float32, bool, error) {
	return nil, false, nil
}

type fakeAnn struct {
	items       []core.ScoredID
	lastK       int
	lastFilters map[string]any
}

func (f *fakeAnn) Query(_ context.Context, _ []float32, k int, filters map[string]any) ([]core.ScoredID, error) {
	f.lastK, f.lastFilters = k, filters
	if k < len(f.items) {
		return f.items[:k], nil
	}
	return f.items, nil
}

type fakeCoOccur map[int64][]core.ScoredID

func (f fakeCoOccur) TopRelated(_ context.Context, itemID int64, k int) ([]core.ScoredID, error) {
	items := f[itemID]
	if k < len(items) {
		items = items[:k]
	}
	return items, nil
}

type fakeFinder []core.UserNeighbor

func (f fakeFinder) TopNeighbors(context.Context, int64, int) ([]core.UserNeighbor, error) {
	return f, nil
}

type fakePrefs []core.AttributePreference

func (f fakePrefs) TopAttributes(context.Context, int64, int) ([]core.AttributePreference, error) {
	return f, nil
}

type fakeInverted []core.ScoredID

func (f fakeInverted) Query(context.Context, []core.AttributePreference, int) ([]core.ScoredID, error) {
	return f, nil
}

type fakeSequence []core.Interaction

func (f fakeSequence) RecentInteractions(context.Context, int64, int) ([]core.Interaction, error) {
	return f, nil
}

type fakeLister map[core.ListKind][]core.ScoredID

func (f fakeLister) List(_ context.Context, _ *core.UserContext, kind core.ListKind, _ int) ([]core.ScoredID, error) {
	return f[kind], nil
}

// stubSource 是可配置行为的通道。
type stubSource struct {
	id        core.StrategyID
	items     []core.ScoredID
	err       error
	panicMsg  string
	sleep     time.Duration
	skip      bool
	calls     atomic.Int32
	ignoreCtx bool
	// blockCheck 让 Applicable 阻塞到 ctx 结束
	blockCheck bool
	checkPanic string
	checks     atomic.Int32
}

func (s *stubSource) ID() core.StrategyID { return s.id }

func (s *stubSource) Applicable(ctx context.Context, _ *core.UserContext) bool {
	s.checks.Add(1)
	if s.checkPanic != "" {
		panic(s.checkPanic)
	}
	if s.blockCheck {
		<-ctx.Done()
		return true
	}
	return !s.skip
}

func (s *stubSource) Recall(ctx context.Context, _ *core.UserContext, quota int) ([]core.Candidate, error) {
	s.calls.Add(1)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.sleep > 0 {
		if s.ignoreCtx {
			time.Sleep(s.sleep)
		} else {
			select {
			case <-time.After(s.sleep):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]core.Candidate, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.ToCandidate(s.id))
	}
	return out, nil
}
