// 本文件用于知识库的领域类型与哨兵错误定义

package knowledge

import (
	"errors"

	"campus-assist/internal/lang"
	"campus-assist/internal/segment"
)

var (
	// ErrNotFound 表示文档不存在
	ErrNotFound = errors.New("document not found")
	// ErrInvalidInput 表示调用方入参非法
	ErrInvalidInput = errors.New("invalid input")
)

// Document 表示一份完成切分的知识文档
type Document struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Language   lang.Code         `json:"language"`
	SourcePath string            `json:"sourcePath"`
	RawText    string            `json:"rawText"`
	Sections   []segment.Section `json:"sections"`
	FAQs       []segment.FAQ     `json:"faqs"`
	Entities   []segment.Entity  `json:"entities"`
	Topics     []segment.Topic   `json:"topics"`
	IngestedAt string            `json:"ingestedAt"`
}

// IngestInput 表示一次文档入库请求
// Language 为空时由文本内容自动识别
type IngestInput struct {
	Title      string
	RawText    string
	Language   string
	SourcePath string
}

// SearchResult 表示检索命中的一个文档片段
type SearchResult struct {
	PartID     string    `json:"partId"`
	DocumentID string    `json:"documentId"`
	Title      string    `json:"title"`
	Snippet    string    `json:"snippet"`
	Language   lang.Code `json:"language"`
	Score      int       `json:"score"`
}

// Snapshot 表示知识库的全量导出结构
type Snapshot struct {
	ExportedAt string     `json:"exportedAt"`
	Documents  []Document `json:"documents"`
}
