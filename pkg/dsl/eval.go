package dsl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/recallkit/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once

	// programs 缓存已编译的表达式
	programs sync.Map
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("user", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译后的候选过滤表达式，可并发使用。
//
// 表达式语法（CEL 标准语法）：
//   - 标签：label.recall_source == "hot"
//   - 分数：item.score > 0.2
//   - 属性：item.attrs.feed_id in [1, 2]
//   - 用户：user.scene == "home" && user.attrs.lang == "zh"
//   - 存在性：has(item.attrs.title)
//
// 访问不存在的 key 会返回求值错误。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式，结果按表达式文本缓存。
func Compile(expr string) (*Program, error) {
	expr = strings.TrimSpace(expr)
	if v, ok := programs.Load(expr); ok {
		return v.(*Program), nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	p := &Program{expr: expr, prg: prg}
	actual, _ := programs.LoadOrStore(expr, p)
	return actual.(*Program), nil
}

func (p *Program) String() string { return p.expr }

// Match 对单个候选求值。uctx 可为空。
func (p *Program) Match(c core.Candidate, uctx *core.UserContext) (bool, error) {
	out, _, err := p.prg.Eval(buildInput(c, uctx))
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: expression must return bool, got %T", p.expr, out.Value())
	}
	return result, nil
}

// Evaluate 编译并求值，空表达式总是返回 true。
func Evaluate(expr string, c core.Candidate, uctx *core.UserContext) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return p.Match(c, uctx)
}

func buildInput(c core.Candidate, uctx *core.UserContext) map[string]any {
	labels := make(map[string]any, len(c.Labels))
	for k, v := range c.Labels {
		labels[k] = v.Value
	}
	attrs := c.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	item := map[string]any{
		"id":     c.ItemID,
		"score":  c.Score,
		"source": string(c.Source),
		"reason": c.Reason,
		"attrs":  attrs,
	}

	user := map[string]any{
		"user_id": int64(0),
		"scene":   "",
		"attrs":   map[string]any{},
		"seen":    false,
	}
	if uctx != nil {
		user["user_id"] = uctx.UserID
		user["scene"] = uctx.Scene
		user["attrs"] = uctx.Attributes()
		user["seen"] = uctx.SeenItem(c.ItemID)
	}

	return map[string]any{
		"item":  item,
		"label": labels,
		"user":  user,
	}
}
