// 本文件用于单条消息的升级信号分析 将加权计分与规则匹配统一在分析器内完成

// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package escalate

import (
	"errors"
	"fmt"
	"strings"

	"campus-assist/internal/models"
)

// ErrInvalidInput 表示待分析消息非法
var ErrInvalidInput = errors.New("invalid input")

// 各信号的固定权重
const (
	weightComplexity  = 0.3
	weightFrustration = 0.4
	weightSpecificity = 0.2
	weightUrgency     = 0.1

	escalateScoreThreshold = 2.0
	urgentScoreThreshold   = 4.0
	repetitionSimilarity   = 0.7
	repetitionBonus        = 2
	confidenceCeiling      = 5.0
)

// Signals 保存四类非负信号计数
// specificity 与 urgency 是预留槽位 当前没有抽取器填充 恒为零
type Signals struct {
	Complexity  int `json:"complexity"`
	Frustration int `json:"frustration"`
	Specificity int `json:"specificity"`
	Urgency     int `json:"urgency"`
}

// Recommendation 表示升级后的转接建议
type Recommendation struct {
	Priority        string `json:"priority"`
	Department      string `json:"department"`
	WaitTimeSeconds int    `json:"waitTimeSeconds"`
	Reason          string `json:"reason"`
}

// Assessment 表示一次消息分析的完整结论
type Assessment struct {
	Signals        Signals                `json:"signals"`
	MatchedRule    *models.EscalationRule `json:"matchedRule,omitempty"`
	Score          float64                `json:"score"`
	ShouldEscalate bool                   `json:"shouldEscalate"`
	Confidence     float64                `json:"confidence"`
	Recommendation *Recommendation        `json:"recommendation,omitempty"`
}

// Analyzer 持有只读规则集 分析本身无状态 可被并发调用
type Analyzer struct {
	ruleset *models.EscalationRuleset
}

// NewAnalyzer 构建分析器 规则集为空时使用内置规则
func NewAnalyzer(ruleset *models.EscalationRuleset) *Analyzer {
	if ruleset == nil {
		ruleset = DefaultRuleset()
	}
	return &Analyzer{ruleset: ruleset}
}

// Analyze 对单条消息执行加权信号计分与规则匹配
// recentContext 为同一会话的近期用户消息 用于重复提问检测
func (a *Analyzer) Analyze(message string, recentContext []string) (Assessment, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Assessment{}, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	lower := strings.ToLower(trimmed)

	signals := Signals{
		Complexity:  countPhrases(lower, a.ruleset.ComplexityPhrases),
		Frustration: countPhrases(lower, a.ruleset.FrustrationPhrases),
	}

	// 超过三条上下文时取最近三条做相似度比对
	// 重复提问加成每次分析最多施加一次
	if len(recentContext) > 3 {
		recent := recentContext[len(recentContext)-3:]
		similar := 0
		for _, past := range recent {
			if wordOverlap(lower, strings.ToLower(past)) > repetitionSimilarity {
				similar++
			}
		}
		if similar >= 2 {
			signals.Frustration += repetitionBonus
		}
	}

	var matched *models.EscalationRule
	for i := range a.ruleset.Rules {
		rule := &a.ruleset.Rules[i]
		for _, trigger := range rule.Triggers {
			if strings.Contains(lower, trigger) {
				matched = rule
				break
			}
		}
		if matched != nil {
			break
		}
	}

	score := weightComplexity*float64(signals.Complexity) +
		weightFrustration*float64(signals.Frustration) +
		weightSpecificity*float64(signals.Specificity) +
		weightUrgency*float64(signals.Urgency)

	confidence := score / confidenceCeiling
	if confidence > 1 {
		confidence = 1
	}

	assessment := Assessment{
		Signals:        signals,
		MatchedRule:    matched,
		Score:          score,
		ShouldEscalate: score >= escalateScoreThreshold || matched != nil,
		Confidence:     confidence,
	}
	assessment.Recommendation = buildRecommendation(matched, score)
	return assessment, nil
}

func buildRecommendation(matched *models.EscalationRule, score float64) *Recommendation {
	if matched != nil {
		return &Recommendation{
			Priority:        matched.Priority,
			Department:      matched.Department,
			WaitTimeSeconds: matched.WaitTimeSeconds,
			Reason:          "matched rule: " + matched.Name,
		}
	}
	if score >= urgentScoreThreshold {
		return &Recommendation{
			Priority:        "urgent",
			Department:      "general",
			WaitTimeSeconds: 180,
			Reason:          "high combined signal score",
		}
	}
	if score >= escalateScoreThreshold {
		return &Recommendation{
			Priority:        "medium",
			Department:      "general",
			WaitTimeSeconds: defaultWaitMedium,
			Reason:          "combined signal score above threshold",
		}
	}
	return nil
}

// countPhrases 统计短语出现次数 同一短语多次出现按次数累加
func countPhrases(lowerText string, phrases []string) int {
	total := 0
	for _, phrase := range phrases {
		total += strings.Count(lowerText, phrase)
	}
	return total
}

// wordOverlap 计算两段文本的词汇 Jaccard 相似度
func wordOverlap(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for word := range setA {
		if _, ok := setB[word]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(text)
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[field] = struct{}{}
	}
	return set
}
