// 本文件用于升级规则解析的单元测试
package escalate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRuleset_EmptyPathUsesDefaults(t *testing.T) {
	ruleset, err := LoadRuleset("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ruleset.Rules) == 0 {
		t.Fatal("内置规则集不能为空")
	}
	if len(ruleset.FrustrationPhrases) == 0 {
		t.Fatal("内置挫败短语不能为空")
	}
}

func TestDefaultRulesetCoversPortalComplaints(t *testing.T) {
	ruleset := DefaultRuleset()
	var technical []string
	for _, rule := range ruleset.Rules {
		if rule.Name == "technical_issues" {
			technical = rule.Triggers
		}
	}
	if len(technical) == 0 {
		t.Fatal("内置规则集缺少 technical_issues")
	}
	for _, message := range []string{
		"the portal not working since morning",
		"this portal is not working, i need help immediately",
	} {
		matched := false
		for _, trigger := range technical {
			if strings.Contains(message, trigger) {
				matched = true
				break
			}
		}
		if !matched {
			t.Fatalf("technical_issues 触发短语未覆盖: %q", message)
		}
	}
}

func TestLoadRuleset_InvalidYaml(t *testing.T) {
	path := writeRulesFile(t, "::::")
	if _, err := LoadRuleset(path); err == nil {
		t.Fatal("无效 YAML 应该返回错误")
	}
}

func TestLoadRuleset_EmptyRules(t *testing.T) {
	path := writeRulesFile(t, "version: 1\nrules: []\n")
	if _, err := LoadRuleset(path); err == nil || !strings.Contains(err.Error(), "升级规则不能为空") {
		t.Fatalf("期望升级规则不能为空错误，实际: %v", err)
	}
}

func TestLoadRuleset_InvalidPriority(t *testing.T) {
	content := `version: 1
rules:
  - name: test
    priority: critical
    triggers: ["portal"]
`
	path := writeRulesFile(t, content)
	if _, err := LoadRuleset(path); err == nil || !strings.Contains(err.Error(), "无效的升级优先级") {
		t.Fatalf("期望无效优先级错误，实际: %v", err)
	}
}

func TestLoadRuleset_MissingTriggers(t *testing.T) {
	content := `version: 1
rules:
  - name: test
    priority: high
    triggers: []
`
	path := writeRulesFile(t, content)
	if _, err := LoadRuleset(path); err == nil || !strings.Contains(err.Error(), "缺少触发短语") {
		t.Fatalf("期望缺少触发短语错误，实际: %v", err)
	}
}

func TestLoadRuleset_FillsDefaults(t *testing.T) {
	content := `version: 0
rules:
  - name: late_fee
    priority: HIGH
    triggers: ["Late Fee"]
`
	path := writeRulesFile(t, content)
	ruleset, err := LoadRuleset(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ruleset.Version != 1 {
		t.Fatalf("expected version default 1, got %d", ruleset.Version)
	}
	rule := ruleset.Rules[0]
	if rule.Priority != "high" {
		t.Fatalf("priority should be normalized, got %q", rule.Priority)
	}
	if rule.Triggers[0] != "late fee" {
		t.Fatalf("triggers should be lower-cased, got %q", rule.Triggers[0])
	}
	if rule.Department != "general" {
		t.Fatalf("expected default department, got %q", rule.Department)
	}
	if rule.WaitTimeSeconds != defaultWaitHigh {
		t.Fatalf("expected default wait time, got %d", rule.WaitTimeSeconds)
	}
	if len(ruleset.ComplexityPhrases) == 0 || len(ruleset.FrustrationPhrases) == 0 {
		t.Fatal("空短语集应回落到内置短语")
	}
}

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入规则文件失败: %v", err)
	}
	return path
}
