// 本文件用于人工转接队列的领域类型与哨兵错误定义

package handoff

import (
	"errors"

	"campus-assist/internal/escalate"
	"campus-assist/internal/lang"
)

var (
	// ErrUnavailable 表示队列持久化失败 升级系统暂不可用
	ErrUnavailable = errors.New("escalation system unavailable")
	// ErrNotFound 表示转接请求不存在
	ErrNotFound = errors.New("handoff request not found")
	// ErrInvalidInput 表示调用方入参非法
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition 表示状态迁移不被允许
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status 表示转接请求的生命周期状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusResolved  Status = "resolved"
	StatusAbandoned Status = "abandoned"
)

// Turn 表示会话上下文中的一轮发言
type Turn struct {
	Role     string    `json:"role"`
	Text     string    `json:"text"`
	Language lang.Code `json:"language"`
}

// Request 表示一条持久化的转接请求
type Request struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	CreatedAt       string              `json:"createdAt"`
	Context         []Turn              `json:"context"`
	Assessment      escalate.Assessment `json:"assessment"`
	Status          Status              `json:"status"`
	QueuePosition   int                 `json:"queuePosition"`
	WaitTimeSeconds int                 `json:"waitTimeSeconds"`
	Priority        string              `json:"priority"`
	Department      string              `json:"department"`
	Language        lang.Code           `json:"language"`
	Confirmation    string              `json:"confirmation"`
}

// EnqueueInput 表示一次转接入队请求
type EnqueueInput struct {
	UserID     string
	Context    []Turn
	Assessment escalate.Assessment
	Language   lang.Code
}

// Stats 表示队列运行统计
type Stats struct {
	PendingTotal       int            `json:"pendingTotal"`
	AssignedTotal      int            `json:"assignedTotal"`
	ResolvedTotal      int            `json:"resolvedTotal"`
	AbandonedTotal     int            `json:"abandonedTotal"`
	AverageWaitSeconds int            `json:"averageWaitSeconds"`
	AverageWaitMinutes int            `json:"averageWaitMinutes"`
	ByPriority         map[string]int `json:"byPriority"`
	ByDepartment       map[string]int `json:"byDepartment"`
}

// HealthStats 表示持久化层健康指标
type HealthStats struct {
	StoreFile                string
	CorruptFallbackTotal     uint64
	PersistWriteFailureTotal uint64
}
