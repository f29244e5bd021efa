// 本文件用于校园助手核心服务编排 连接知识库 转接评估 队列与分析
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"campus-assist/internal/analytics"
	"campus-assist/internal/escalate"
	"campus-assist/internal/extract"
	"campus-assist/internal/handoff"
	"campus-assist/internal/knowledge"
	"campus-assist/internal/lang"
	"campus-assist/internal/logger"
	"campus-assist/internal/metrics"
	"campus-assist/internal/models"
	"campus-assist/internal/oss"
	"campus-assist/internal/sysinfo"
	"campus-assist/internal/watcher"
)

const maxAssessContextTurns = 10

// AssessOutcome 表示一次消息评估的完整结果
type AssessOutcome struct {
	Assessment escalate.Assessment `json:"assessment"`
	Handoff    *handoff.Request    `json:"handoff,omitempty"`
}

// HealthReport 聚合健康检查所需的运行数据
type HealthReport struct {
	models.HealthSnapshot
	Queue  handoff.HealthStats       `json:"queue"`
	System *sysinfo.ResourceSnapshot `json:"system,omitempty"`
}

// AssistantService 校园助手服务
type AssistantService struct {
	config    *models.Config
	store     *knowledge.Store
	analyzer  *escalate.Analyzer
	queue     *handoff.Manager
	analytics *analytics.Logger
	archive   *oss.Client
	inbox     *watcher.InboxWatcher
	resources *sysinfo.Collector
}

// NewAssistantService 构造并初始化服务的所有依赖
func NewAssistantService(config *models.Config) (*AssistantService, error) {
	store, err := knowledge.NewStore(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("初始化知识库失败: %v", err)
	}

	ruleset := config.EscalationRules
	if ruleset != nil {
		if err := escalate.NormalizeRuleset(ruleset); err != nil {
			store.Close()
			return nil, fmt.Errorf("内联升级规则无效: %v", err)
		}
	} else {
		ruleset, err = escalate.LoadRuleset(config.EscalationRulesFile)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	queue, err := handoff.NewManager(config.QueueFile)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("初始化转接队列失败: %v", err)
	}

	service := &AssistantService{
		config:    config,
		store:     store,
		analyzer:  escalate.NewAnalyzer(ruleset),
		queue:     queue,
		analytics: analytics.NewLogger(),
	}

	if config.ArchiveEnabled {
		archiveClient, err := oss.NewClient(config)
		if err != nil {
			store.Close()
			return nil, err
		}
		service.archive = archiveClient
	}

	if strings.TrimSpace(config.InboxDir) != "" {
		inbox, err := watcher.NewInboxWatcher(config, service)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("初始化收件目录监控失败: %v", err)
		}
		service.inbox = inbox
	}

	if config.SystemResourceEnabled {
		service.resources = sysinfo.NewCollector(config.DataDir)
	}

	metrics.Global().SetDocumentsTotal(store.Count())
	metrics.Global().SetQueuePending(queue.Stats().PendingTotal)
	return service, nil
}

// Start 启动后台组件
func (as *AssistantService) Start() error {
	logger.Info("启动校园助手服务...")
	if as.inbox != nil {
		if err := as.inbox.Start(); err != nil {
			return fmt.Errorf("启动收件目录监控失败: %v", err)
		}
	}
	logger.Info("校园助手服务启动成功")
	return nil
}

// Stop 停止服务并释放资源
func (as *AssistantService) Stop() error {
	logger.Info("停止校园助手服务...")
	if as.inbox != nil {
		if err := as.inbox.Close(); err != nil {
			logger.Error("关闭收件目录监控失败: %v", err)
		}
	}
	if err := as.store.Close(); err != nil {
		logger.Error("关闭知识库失败: %v", err)
	}
	logger.Info("校园助手服务已停止")
	return nil
}

// IngestText 把一段原始文本摄取入知识库
func (as *AssistantService) IngestText(input knowledge.IngestInput) (*models.IngestSummary, error) {
	started := time.Now()
	doc, err := as.store.Ingest(input)
	if err != nil {
		metrics.Global().ObserveIngestFailure(ingestFailureCause(err))
		return nil, err
	}
	metrics.Global().ObserveIngestSuccess(string(doc.Language), time.Since(started))
	metrics.Global().SetDocumentsTotal(as.store.Count())

	return &models.IngestSummary{
		DocumentID:       doc.ID,
		SectionsCount:    len(doc.Sections),
		FAQsCount:        len(doc.FAQs),
		EntitiesCount:    len(doc.Entities),
		DetectedLanguage: string(doc.Language),
	}, nil
}

// IngestFile 摄取单个文档文件 供收件目录监控回调使用
func (as *AssistantService) IngestFile(filePath string) error {
	_, err := as.IngestPath(filePath)
	return err
}

// IngestPath 从文件路径摄取文档并按配置归档原件
func (as *AssistantService) IngestPath(filePath string) (*models.IngestSummary, error) {
	logger.Info("开始摄取文档: %s", filePath)
	text, err := extract.Text(filePath)
	if err != nil {
		metrics.Global().ObserveIngestFailure(ingestFailureCause(err))
		return nil, err
	}

	title := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	summary, err := as.IngestText(knowledge.IngestInput{
		Title:      title,
		RawText:    text,
		SourcePath: filePath,
	})
	if err != nil {
		return nil, err
	}

	// 归档失败不影响摄取结果 仅记录日志
	if as.archive != nil {
		url, archiveErr := as.archive.ArchiveFile(context.Background(), filePath)
		if archiveErr != nil {
			logger.Error("归档文档原件失败: %s, 错误: %v", filePath, archiveErr)
		} else {
			summary.ArchiveURL = url
		}
	}

	logger.Info("文档摄取完成: %s, 文档ID: %s", filePath, summary.DocumentID)
	return summary, nil
}

// GetDocument 按ID读取文档
func (as *AssistantService) GetDocument(id string) (*knowledge.Document, error) {
	return as.store.Get(id)
}

// Search 在知识库中检索并记录观测指标
func (as *AssistantService) Search(query, language string, limit int) ([]knowledge.SearchResult, error) {
	started := time.Now()
	code := lang.Parse(language)
	results, err := as.store.Search(query, code, limit)
	if err != nil {
		return nil, err
	}
	metrics.Global().ObserveSearch(len(results), time.Since(started))
	return results, nil
}

// ExportKnowledge 导出知识库快照
func (as *AssistantService) ExportKnowledge(path string) error {
	return as.store.Export(path)
}

// ImportKnowledge 从快照文件导入知识库
func (as *AssistantService) ImportKnowledge(path string) (int, error) {
	count, err := as.store.Import(path)
	if err == nil {
		metrics.Global().SetDocumentsTotal(as.store.Count())
	}
	return count, err
}

// Assess 评估一条用户消息 必要时自动入队人工转接
// 调用方未显式给出上下文时 取该用户此前记录的转写
func (as *AssistantService) Assess(userID, message string, recentContext []string) (*AssessOutcome, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: 用户标识不能为空", escalate.ErrInvalidInput)
	}

	transcript := as.analytics.Transcript(userID)
	if len(recentContext) == 0 {
		recentContext = make([]string, 0, len(transcript))
		for _, turn := range transcript {
			recentContext = append(recentContext, turn.Message)
		}
	}

	assessment, err := as.analyzer.Analyze(message, recentContext)
	if err != nil {
		return nil, err
	}
	metrics.Global().ObserveAssessment(assessment.ShouldEscalate)

	language := lang.Detect(message)
	intent := ""
	if assessment.MatchedRule != nil {
		intent = assessment.MatchedRule.Name
	}
	as.analytics.Record(userID, message, analytics.Metadata{Language: language, Intent: intent})

	outcome := &AssessOutcome{Assessment: assessment}
	if !assessment.ShouldEscalate {
		return outcome, nil
	}

	request, err := as.queue.Enqueue(handoff.EnqueueInput{
		UserID:     userID,
		Context:    buildHandoffContext(transcript, message, language),
		Assessment: assessment,
		Language:   language,
	})
	if err != nil {
		metrics.Global().IncEnqueueFailure()
		return nil, err
	}
	metrics.Global().IncEnqueue()
	metrics.Global().SetQueuePending(as.queue.Stats().PendingTotal)
	as.analytics.RecordHandoff(request)

	outcome.Handoff = request
	return outcome, nil
}

// Transition 按动作名推进转接请求状态
func (as *AssistantService) Transition(id, action string) (*handoff.Request, error) {
	next, err := statusForAction(action)
	if err != nil {
		return nil, err
	}
	request, err := as.queue.Transition(id, next)
	if err != nil {
		return nil, err
	}
	metrics.Global().SetQueuePending(as.queue.Stats().PendingTotal)
	return request, nil
}

// GetHandoff 按ID查询转接请求
func (as *AssistantService) GetHandoff(id string) (*handoff.Request, error) {
	return as.queue.Get(id)
}

// QueueStatus 返回队列统计与未归档请求列表
func (as *AssistantService) QueueStatus() (handoff.Stats, []handoff.Request) {
	return as.queue.Stats(), as.queue.Active()
}

// Analytics 返回会话分析快照
func (as *AssistantService) Analytics() analytics.Snapshot {
	return as.analytics.Report()
}

// Health 返回健康检查报表
func (as *AssistantService) Health() HealthReport {
	analyticsSnapshot := as.analytics.Report()
	report := HealthReport{
		HealthSnapshot: models.HealthSnapshot{
			DocumentsTotal: as.store.Count(),
			QueuePending:   as.queue.Stats().PendingTotal,
			HandoffRate:    analyticsSnapshot.HandoffRate,
			Conversations:  analyticsSnapshot.Conversations,
		},
		Queue: as.queue.HealthStats(),
	}
	if as.resources != nil {
		snapshot := as.resources.Snapshot()
		report.System = &snapshot
	}
	return report
}

// buildHandoffContext 把历史转写与当前消息拼成转接上下文
func buildHandoffContext(transcript []analytics.TranscriptTurn, message string, language lang.Code) []handoff.Turn {
	start := 0
	if len(transcript) > maxAssessContextTurns-1 {
		start = len(transcript) - (maxAssessContextTurns - 1)
	}
	turns := make([]handoff.Turn, 0, maxAssessContextTurns)
	for _, turn := range transcript[start:] {
		turns = append(turns, handoff.Turn{
			Role:     "user",
			Text:     turn.Message,
			Language: turn.Language,
		})
	}
	turns = append(turns, handoff.Turn{Role: "user", Text: message, Language: language})
	return turns
}

// statusForAction 把操作名映射为目标状态
func statusForAction(action string) (handoff.Status, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "assign":
		return handoff.StatusAssigned, nil
	case "resolve":
		return handoff.StatusResolved, nil
	case "abandon":
		return handoff.StatusAbandoned, nil
	default:
		return "", fmt.Errorf("%w: 不支持的队列操作 %q", handoff.ErrInvalidInput, action)
	}
}

// ingestFailureCause 把摄取错误折叠为有限的指标标签
func ingestFailureCause(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, extract.ErrExtractionFailed):
		return "extraction_failed"
	default:
		return "invalid_input"
	}
}
