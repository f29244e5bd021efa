// 本文件用于定义配置与业务模型
package models

// Config 配置结构体
type Config struct {
	DataDir               string `yaml:"data_dir"`         // 知识库数据目录
	InboxDir              string `yaml:"inbox_dir"`        // 文档自动摄取目录 为空则关闭
	InboxExts             string `yaml:"inbox_exts"`       // 摄取文件后缀 逗号分隔
	QueueFile             string `yaml:"queue_file"`       // 人工转接队列持久化文件
	DefaultLanguage       string `yaml:"default_language"` // 基线语言
	SearchLimit           int    `yaml:"search_limit"`     // 检索默认返回条数
	LogLevel              string `yaml:"log_level"`
	LogFile               string `yaml:"log_file"`
	APIBind               string `yaml:"api_bind"` // API 服务监听地址
	APIAuthToken          string `yaml:"api_auth_token"`
	APICORSOrigins        string `yaml:"api_cors_origins"`
	SystemResourceEnabled bool   `yaml:"system_resource_enabled"`

	EscalationRulesFile string             `yaml:"escalation_rules_file"`
	EscalationRules     *EscalationRuleset `yaml:"escalation_rules"`

	ArchiveEnabled bool   `yaml:"archive_enabled"` // 源文档归档到 OSS
	Bucket         string `yaml:"bucket"`
	AK             string `yaml:"ak"`
	SK             string `yaml:"sk"`
	Endpoint       string `yaml:"endpoint"`
	DisableSSL     bool   `yaml:"disable_ssl"`
}

// EscalationRuleset 表示人工转接规则集
type EscalationRuleset struct {
	Version            int              `yaml:"version" json:"version"`
	ComplexityPhrases  []string         `yaml:"complexity_phrases" json:"complexity_phrases"`
	FrustrationPhrases []string         `yaml:"frustration_phrases" json:"frustration_phrases"`
	Rules              []EscalationRule `yaml:"rules" json:"rules"`
}

// EscalationRule 表示单条转接规则
type EscalationRule struct {
	Name            string   `yaml:"name" json:"name"`
	Triggers        []string `yaml:"triggers" json:"triggers"`
	Priority        string   `yaml:"priority" json:"priority"`
	Department      string   `yaml:"department" json:"department"`
	WaitTimeSeconds int      `yaml:"wait_time_seconds" json:"wait_time_seconds"`
}

// IngestSummary 表示单次文档摄取结果
type IngestSummary struct {
	DocumentID       string `json:"documentId"`
	SectionsCount    int    `json:"sectionsCount"`
	FAQsCount        int    `json:"faqsCount"`
	EntitiesCount    int    `json:"entitiesCount"`
	DetectedLanguage string `json:"detectedLanguage"`
	ArchiveURL       string `json:"archiveUrl,omitempty"`
}

// HealthSnapshot 表示健康检查返回的运行指标
type HealthSnapshot struct {
	DocumentsTotal int     `json:"documents"`
	QueuePending   int     `json:"queuePending"`
	HandoffRate    float64 `json:"handoffRate"`
	Conversations  int     `json:"conversations"`
}
