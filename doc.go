// Package recallkit 是一个多通道召回、融合与重排引擎。
//
// 设计要点：
//   - Channel-first: 每个召回通道（u2u/u2i/i2i/u2i2i/u2a2i/latest/hot/random_i2i/mix）只依赖窄的只读接口，
//     并发 fan-out，单个通道的失败、超时、熔断只会让该通道返回空
//   - Labels-first: 候选携带 recall_source 等 labels，融合时合并，便于 explain 与表达式过滤
//   - 融合：通道内 min-max 归一化 × 通道权重 → 按 id 合并 → 新鲜度 → 标题去重 → 排序/交织 → 多样性 → TopK
//   - 检索：bm25 与 vector 两路按最大值融合
package recallkit

import (
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/engine"
	"github.com/rushteam/recallkit/recall"
)

// 轻量 facade：便于直接 import "recallkit" 使用核心抽象。
type (
	Engine           = engine.Engine
	RecommendRequest = engine.RecommendRequest
	Page             = engine.Page
	Source           = recall.Source
	Candidate        = core.Candidate
	RecallRequest    = core.RecallRequest
	RecallResponse   = core.RecallResponse
	StrategyID       = core.StrategyID
)

// NewEngine 用默认的 planner / fanout / fuser 组装引擎。
var NewEngine = engine.New

// NewRegistry 创建通道注册表。
var NewRegistry = recall.NewRegistry
