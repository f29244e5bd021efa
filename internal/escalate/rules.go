// 本文件用于升级规则集的加载与归一化

package escalate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"campus-assist/internal/models"
)

// 各优先级缺省等待时间 秒
const (
	defaultWaitUrgent = 120
	defaultWaitHigh   = 300
	defaultWaitMedium = 600
	defaultWaitLow    = 1200
)

// DefaultRuleset 返回内置升级规则集
// 规则按注册顺序参与匹配 顺序即优先关系
func DefaultRuleset() *models.EscalationRuleset {
	return &models.EscalationRuleset{
		Version: 1,
		ComplexityPhrases: []string{
			"multiple issues", "several problems", "complicated", "complex",
			"many questions", "step by step", "not sure how", "confused about",
		},
		FrustrationPhrases: []string{
			"not working", "doesn't work", "not helpful", "useless",
			"frustrated", "angry", "annoyed", "immediately", "right now",
			"urgent", "need help", "help me", "third time", "still waiting",
		},
		Rules: []models.EscalationRule{
			{
				Name:            "harassment_report",
				Triggers:        []string{"harassment", "ragging", "abuse", "threatened"},
				Priority:        "urgent",
				Department:      "student-welfare",
				WaitTimeSeconds: defaultWaitUrgent,
			},
			{
				Name:            "technical_issues",
				Triggers:        []string{"portal not working", "portal is not working", "website down", "cannot login", "login failed", "payment failed"},
				Priority:        "high",
				Department:      "it-support",
				WaitTimeSeconds: defaultWaitHigh,
			},
			{
				Name:            "fee_disputes",
				Triggers:        []string{"wrong fee", "charged twice", "refund not received", "fee dispute"},
				Priority:        "high",
				Department:      "accounts",
				WaitTimeSeconds: defaultWaitHigh,
			},
			{
				Name:            "academic_emergency",
				Triggers:        []string{"missed exam", "exam clash", "result withheld", "backlog issue"},
				Priority:        "high",
				Department:      "academic",
				WaitTimeSeconds: defaultWaitHigh,
			},
			{
				Name:            "admission_deadline",
				Triggers:        []string{"admission deadline", "last date to apply", "application closing"},
				Priority:        "medium",
				Department:      "admissions",
				WaitTimeSeconds: defaultWaitMedium,
			},
		},
	}
}

// LoadRuleset 读取并解析规则文件 路径为空时返回内置规则集
func LoadRuleset(path string) (*models.EscalationRuleset, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRuleset(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取升级规则失败: %w", err)
	}
	var ruleset models.EscalationRuleset
	if err := yaml.Unmarshal(data, &ruleset); err != nil {
		return nil, fmt.Errorf("解析升级规则失败: %w", err)
	}
	if err := NormalizeRuleset(&ruleset); err != nil {
		return nil, err
	}
	return &ruleset, nil
}

// NormalizeRuleset 校验并补全规则集
// 短语集为空时回落到内置短语 保持信号统计始终可用
func NormalizeRuleset(ruleset *models.EscalationRuleset) error {
	if ruleset == nil {
		return fmt.Errorf("升级规则为空")
	}
	if ruleset.Version == 0 {
		ruleset.Version = 1
	}
	defaults := DefaultRuleset()
	ruleset.ComplexityPhrases = cleanPhrases(ruleset.ComplexityPhrases)
	if len(ruleset.ComplexityPhrases) == 0 {
		ruleset.ComplexityPhrases = defaults.ComplexityPhrases
	}
	ruleset.FrustrationPhrases = cleanPhrases(ruleset.FrustrationPhrases)
	if len(ruleset.FrustrationPhrases) == 0 {
		ruleset.FrustrationPhrases = defaults.FrustrationPhrases
	}

	if len(ruleset.Rules) == 0 {
		return fmt.Errorf("升级规则不能为空")
	}
	for i := range ruleset.Rules {
		rule := &ruleset.Rules[i]
		rule.Name = strings.TrimSpace(rule.Name)
		if rule.Name == "" {
			rule.Name = fmt.Sprintf("rule-%d", i+1)
		}
		rule.Priority = strings.ToLower(strings.TrimSpace(rule.Priority))
		if !validPriority(rule.Priority) {
			return fmt.Errorf("无效的升级优先级: %s", rule.Priority)
		}
		rule.Triggers = cleanPhrases(rule.Triggers)
		if len(rule.Triggers) == 0 {
			return fmt.Errorf("升级规则 %s 缺少触发短语", rule.Name)
		}
		rule.Department = strings.TrimSpace(rule.Department)
		if rule.Department == "" {
			rule.Department = "general"
		}
		if rule.WaitTimeSeconds <= 0 {
			rule.WaitTimeSeconds = defaultWaitForPriority(rule.Priority)
		}
	}
	return nil
}

func validPriority(priority string) bool {
	switch priority {
	case "urgent", "high", "medium", "low":
		return true
	default:
		return false
	}
}

func defaultWaitForPriority(priority string) int {
	switch priority {
	case "urgent":
		return defaultWaitUrgent
	case "high":
		return defaultWaitHigh
	case "medium":
		return defaultWaitMedium
	default:
		return defaultWaitLow
	}
}

func cleanPhrases(values []string) []string {
	out := make([]string, 0, len(values))
	for _, val := range values {
		trimmed := strings.ToLower(strings.TrimSpace(val))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
