// 本文件用于人工转接队列的优先级排位与文件持久化实现

// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package handoff

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"campus-assist/internal/lang"
	"campus-assist/internal/logger"
)

const (
	fallbackPriority  = "medium"
	fallbackDept      = "general"
	fallbackWaitSecs  = 600
	maxContextTurns   = 20
	maxArchiveEntries = 500
)

type queueStore struct {
	Pending []Request `json:"pending"`
	Archive []Request `json:"archive"`
}

// Manager 表示文件持久化的转接队列
// 所有修改都先持久化成功再对内存生效 失败时整体回滚
type Manager struct {
	path                     string
	mu                       sync.Mutex
	pending                  []Request
	archive                  []Request
	corruptFallbackTotal     uint64
	persistWriteFailureTotal uint64
}

// NewManager 创建并加载持久化转接队列
func NewManager(path string) (*Manager, error) {
	cleaned := strings.TrimSpace(path)
	if cleaned == "" {
		return nil, fmt.Errorf("队列文件路径不能为空")
	}
	m := &Manager{
		path:    cleaned,
		pending: []Request{},
		archive: []Request{},
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Enqueue 把升级结论转化为持久化的转接请求
// 排位规则 已有待处理请求中优先级权重不低于新请求者的数量加一
// 持久化失败时不产生任何可见副作用
func (m *Manager) Enqueue(input EnqueueInput) (*Request, error) {
	if m == nil {
		return nil, fmt.Errorf("队列未初始化")
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	priority := fallbackPriority
	department := fallbackDept
	waitSecs := fallbackWaitSecs
	if rec := input.Assessment.Recommendation; rec != nil {
		if rec.Priority != "" {
			priority = rec.Priority
		}
		if rec.Department != "" {
			department = rec.Department
		}
		if rec.WaitTimeSeconds > 0 {
			waitSecs = rec.WaitTimeSeconds
		}
	}
	language := input.Language
	if !lang.IsSupported(language) || language == "" {
		language = lang.English
	}
	context := input.Context
	if len(context) > maxContextTurns {
		context = context[len(context)-maxContextTurns:]
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	position := m.positionForLocked(priority)
	request := Request{
		ID:              uuid.NewString(),
		UserID:          userID,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		Context:         append([]Turn(nil), context...),
		Assessment:      input.Assessment,
		Status:          StatusPending,
		QueuePosition:   position,
		WaitTimeSeconds: waitSecs,
		Priority:        priority,
		Department:      department,
		Language:        language,
	}
	request.Confirmation = confirmationText(language, position, waitSecs, department)

	prevPending := append([]Request(nil), m.pending...)
	m.pending = append(m.pending, request)
	if err := m.saveLocked(); err != nil {
		m.persistWriteFailureTotal++
		m.pending = prevPending
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &request, nil
}

// positionForLocked 计算新请求的排位 只统计待处理状态的条目
func (m *Manager) positionForLocked(priority string) int {
	weight := priorityWeight(priority)
	ahead := 0
	for _, item := range m.pending {
		if item.Status != StatusPending {
			continue
		}
		if priorityWeight(item.Priority) >= weight {
			ahead++
		}
	}
	return ahead + 1
}

// Transition 执行状态迁移 只允许前向迁移
// pending→assigned pending→abandoned assigned→resolved
// 终态条目从待处理列表移入归档
func (m *Manager) Transition(id string, next Status) (*Request, error) {
	if m == nil {
		return nil, fmt.Errorf("队列未初始化")
	}
	requestID := strings.TrimSpace(id)
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, item := range m.pending {
		if item.ID == requestID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotFound
	}
	current := m.pending[idx]
	if !transitionAllowed(current.Status, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
	}

	prevPending := append([]Request(nil), m.pending...)
	prevArchive := append([]Request(nil), m.archive...)

	current.Status = next
	if next == StatusResolved || next == StatusAbandoned {
		rest := make([]Request, 0, len(m.pending)-1)
		rest = append(rest, m.pending[:idx]...)
		rest = append(rest, m.pending[idx+1:]...)
		m.pending = rest
		m.archive = append(m.archive, current)
		if len(m.archive) > maxArchiveEntries {
			m.archive = m.archive[len(m.archive)-maxArchiveEntries:]
		}
	} else {
		m.pending[idx] = current
	}

	if err := m.saveLocked(); err != nil {
		m.persistWriteFailureTotal++
		m.pending = prevPending
		m.archive = prevArchive
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &current, nil
}

func transitionAllowed(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusAssigned || to == StatusAbandoned
	case StatusAssigned:
		return to == StatusResolved
	default:
		return false
	}
}

// Get 按 ID 返回请求副本 先查活动队列再查归档
func (m *Manager) Get(id string) (*Request, error) {
	if m == nil {
		return nil, fmt.Errorf("队列未初始化")
	}
	requestID := strings.TrimSpace(id)
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.pending {
		if item.ID == requestID {
			out := item
			return &out, nil
		}
	}
	for _, item := range m.archive {
		if item.ID == requestID {
			out := item
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// Active 返回活动队列快照 含待处理与已分配
func (m *Manager) Active() []Request {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	out := append([]Request(nil), m.pending...)
	m.mu.Unlock()
	return out
}

// Stats 返回队列运行统计
func (m *Manager) Stats() Stats {
	if m == nil {
		return Stats{ByPriority: map[string]int{}, ByDepartment: map[string]int{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		ByPriority:   make(map[string]int, 4),
		ByDepartment: make(map[string]int, 4),
	}
	waitSum := 0
	for _, item := range m.pending {
		switch item.Status {
		case StatusPending:
			stats.PendingTotal++
			stats.ByPriority[item.Priority]++
			stats.ByDepartment[item.Department]++
			waitSum += item.WaitTimeSeconds
		case StatusAssigned:
			stats.AssignedTotal++
		}
	}
	if stats.PendingTotal > 0 {
		stats.AverageWaitSeconds = waitSum / stats.PendingTotal
		stats.AverageWaitMinutes = (stats.AverageWaitSeconds + 59) / 60
	}
	for _, item := range m.archive {
		switch item.Status {
		case StatusResolved:
			stats.ResolvedTotal++
		case StatusAbandoned:
			stats.AbandonedTotal++
		}
	}
	return stats
}

// HealthStats 返回持久化层健康指标快照
func (m *Manager) HealthStats() HealthStats {
	if m == nil {
		return HealthStats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return HealthStats{
		StoreFile:                m.path,
		CorruptFallbackTotal:     m.corruptFallbackTotal,
		PersistWriteFailureTotal: m.persistWriteFailureTotal,
	}
}

func (m *Manager) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取队列文件失败: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var store queueStore
	if err := json.Unmarshal(data, &store); err != nil {
		return m.fallbackFromCorruptedStoreLocked(data, err)
	}
	m.pending = append([]Request(nil), store.Pending...)
	m.archive = append([]Request(nil), store.Archive...)
	return nil
}

func (m *Manager) saveLocked() error {
	store := queueStore{
		Pending: append([]Request(nil), m.pending...),
		Archive: append([]Request(nil), m.archive...),
	}
	data, err := json.Marshal(store)
	if err != nil {
		return fmt.Errorf("序列化队列失败: %w", err)
	}
	return writeFileAtomic(m.path, data, 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, "handoff-queue-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (m *Manager) fallbackFromCorruptedStoreLocked(rawData []byte, parseErr error) error {
	m.corruptFallbackTotal++
	backupPath := buildCorruptBackupPath(m.path)
	if err := writeFileAtomic(backupPath, rawData, 0o644); err != nil {
		return fmt.Errorf("解析队列文件失败且备份损坏文件失败: %w", err)
	}

	m.pending = []Request{}
	m.archive = []Request{}
	if err := m.saveLocked(); err != nil {
		m.persistWriteFailureTotal++
		return fmt.Errorf("队列文件损坏后重建空队列失败: %w", err)
	}

	logger.Error("转接队列文件损坏，已降级为空队列并完成备份: 源文件=%s 备份文件=%s 错误=%v", m.path, backupPath, parseErr)
	return nil
}

func buildCorruptBackupPath(path string) string {
	timestamp := time.Now().UTC().Format("20060102T150405.000000000Z")
	return fmt.Sprintf("%s.corrupt-%s.bak", path, timestamp)
}

func priorityWeight(priority string) int {
	switch priority {
	case "urgent":
		return 3
	case "high":
		return 2
	case "medium":
		return 1
	default:
		return 0
	}
}

// confirmationText 生成入队确认文案 不支持的语言回落到英语
func confirmationText(language lang.Code, position, waitSecs int, department string) string {
	waitMinutes := (waitSecs + 59) / 60
	switch language {
	case lang.Hindi:
		return fmt.Sprintf("आप कतार में %d नंबर पर हैं। अनुमानित प्रतीक्षा: %d मिनट। विभाग: %s।", position, waitMinutes, department)
	case lang.Marathi:
		return fmt.Sprintf("आपण रांगेत %d क्रमांकावर आहात. अंदाजे प्रतीक्षा: %d मिनिटे. विभाग: %s.", position, waitMinutes, department)
	default:
		return fmt.Sprintf("You are number %d in the queue. Estimated wait: %d minutes. Department: %s.", position, waitMinutes, department)
	}
}
