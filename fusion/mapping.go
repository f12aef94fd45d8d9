package fusion

// ScoreMapping 把通道内归一化后的 [0,1] 分数再映射到 [0.5,1]，在乘通道权重之前生效。
// 空值表示不映射，保持 min-max 归一化结果。
type ScoreMapping string

const (
	MappingNone ScoreMapping = ""
	// MappingRanking 压缩低分、放大头部：[0,0.3]→[0.5,0.6]，[0.3,0.7]→[0.6,0.8]，[0.7,1]→[0.8,1]
	MappingRanking ScoreMapping = "ranking"
	// MappingBalanced 线性映射到 [0.5,1]
	MappingBalanced ScoreMapping = "balanced"
	// MappingExploration 保护低分：[0,0.5]→[0.5,0.75]，[0.5,1]→[0.75,1]
	MappingExploration ScoreMapping = "exploration"
)

// ParseScoreMapping 解析配置值，未知值返回 false。
func ParseScoreMapping(s string) (ScoreMapping, bool) {
	switch m := ScoreMapping(s); m {
	case MappingNone, MappingRanking, MappingBalanced, MappingExploration:
		return m, true
	}
	return MappingNone, false
}

// Map 映射单个分数，输入先截断到 [0,1]。
func (m ScoreMapping) Map(x float64) float64 {
	if m == MappingNone {
		return x
	}
	x = min(max(finite(x), 0), 1)
	switch m {
	case MappingRanking:
		switch {
		case x < 0.3:
			return 0.5 + 0.1*(x/0.3)
		case x < 0.7:
			return 0.6 + 0.2*((x-0.3)/0.4)
		default:
			return 0.8 + 0.2*((x-0.7)/0.3)
		}
	case MappingExploration:
		if x < 0.5 {
			return 0.5 + 0.25*(x/0.5)
		}
		return 0.75 + 0.25*((x-0.5)/0.5)
	default:
		return 0.5 + 0.5*x
	}
}
