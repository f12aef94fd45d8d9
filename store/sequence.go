package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rushteam/recallkit/core"
)

// DefaultSequenceLength 是每个用户保留的交互条数。
const DefaultSequenceLength = 150

// SequenceStore 把用户最近的交互以 JSON 数组存在 <prefix>seq:<uid>，按时间倒序。
type SequenceStore struct {
	KV     core.Store
	Prefix string
	// MaxLength 保留条数，<=0 时取 DefaultSequenceLength
	MaxLength int
}

func (s *SequenceStore) key(userID int64) string {
	return prefixOr(s.Prefix) + "seq:" + itoa(userID)
}

func (s *SequenceStore) load(ctx context.Context, userID int64) ([]core.Interaction, error) {
	raw, err := s.KV.Get(ctx, s.key(userID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var seq []core.Interaction
	if err := json.Unmarshal(raw, &seq); err != nil {
		return nil, fmt.Errorf("decode sequence of user %d: %w", userID, err)
	}
	return seq, nil
}

func (s *SequenceStore) RecentInteractions(ctx context.Context, userID int64, limit int) ([]core.Interaction, error) {
	seq, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(seq) > limit {
		seq = seq[:limit]
	}
	return seq, nil
}

// Append 记录一次交互，超出 MaxLength 的旧记录被丢弃。
func (s *SequenceStore) Append(ctx context.Context, userID int64, it core.Interaction) error {
	seq, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	seq = append(seq, it)
	sort.SliceStable(seq, func(i, j int) bool { return seq[i].Timestamp.After(seq[j].Timestamp) })
	keep := s.MaxLength
	if keep <= 0 {
		keep = DefaultSequenceLength
	}
	if len(seq) > keep {
		seq = seq[:keep]
	}
	raw, err := json.Marshal(seq)
	if err != nil {
		return err
	}
	return s.KV.Set(ctx, s.key(userID), raw)
}

var _ core.SequenceStore = (*SequenceStore)(nil)
