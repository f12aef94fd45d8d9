package rerank

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	headingPattern   = regexp.MustCompile(`(?s)#{1,6}\s+.`)
	paragraphPattern = regexp.MustCompile(`\n\n+`)
	linkPattern      = regexp.MustCompile(`https?://`)
	imagePattern     = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
)

// DefaultQualityScorer 是基于正文与发布时间的启发式质量分：
//
//	score = 0.6 * content + 0.4 * freshness
//	content = 0.4 * 长度 + 0.3 * 结构 + 0.3 * 富媒体
//	freshness = exp(-0.03 * 天数)，限制在 [0.1, 1]；发布时间未知时为 0.5
//
// 正文为空时得 0 分。
type DefaultQualityScorer struct{}

func (DefaultQualityScorer) Score(text string, publishedAt, now time.Time) (float64, string) {
	if strings.TrimSpace(text) == "" {
		return 0, Grade(0)
	}
	score := 0.6*contentScore(text) + 0.4*timeScore(publishedAt, now)
	return score, Grade(score)
}

// Grade 把质量分映射为等级：A >= 0.85，B >= 0.70，C >= 0.55，其余 D。
func Grade(score float64) string {
	switch {
	case score >= 0.85:
		return "A"
	case score >= 0.70:
		return "B"
	case score >= 0.55:
		return "C"
	default:
		return "D"
	}
}

func contentScore(text string) float64 {
	return lengthScore(utf8.RuneCountInString(text))*0.4 + structureScore(text)*0.3 + richMediaScore(text)*0.3
}

func lengthScore(n int) float64 {
	switch {
	case n < 300:
		return 0.2
	case n < 800:
		return 0.5
	case n <= 4000:
		return 1.0
	case n <= 6000:
		return 0.8
	case n <= 10000:
		return 0.6
	default:
		return 0.4
	}
}

func structureScore(text string) float64 {
	score := 0.3
	if headingPattern.MatchString(text) {
		score += 0.3
	}
	paragraphs := countParagraphs(text)
	switch {
	case paragraphs >= 3 && paragraphs <= 30:
		score += 0.4
	case paragraphs > 30:
		score += 0.2
	}
	return math.Min(1, score)
}

// countParagraphs 以连续空行分段，末尾的空段不计。
func countParagraphs(text string) int {
	parts := paragraphPattern.Split(text, -1)
	n := len(parts)
	for n > 0 && parts[n-1] == "" {
		n--
	}
	return n
}

func richMediaScore(text string) float64 {
	score := 0.2
	score += math.Min(0.4, float64(strings.Count(text, "```"))*0.15)
	score += math.Min(0.3, float64(len(linkPattern.FindAllStringIndex(text, -1)))*0.05)
	score += math.Min(0.1, float64(len(imagePattern.FindAllStringIndex(text, -1)))*0.05)
	return math.Min(1, score)
}

func timeScore(publishedAt, now time.Time) float64 {
	if publishedAt.IsZero() {
		return 0.5
	}
	days := calendarDays(publishedAt, now)
	if days < 0 {
		days = 0
	}
	return clamp(math.Exp(-0.03*float64(days)), 0.1, 1)
}

// calendarDays 返回两个时间在 now 所在时区下相差的自然日数。
func calendarDays(from, to time.Time) int {
	loc := to.Location()
	y1, m1, d1 := from.In(loc).Date()
	y2, m2, d2 := to.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
