// 本文件用于会话分析的被动观察器 维护转写与聚合计数

package analytics

import (
	"strings"
	"sync"
	"time"

	"campus-assist/internal/handoff"
	"campus-assist/internal/lang"
)

const (
	maxTranscriptTurns = 50
	defaultIntent      = "general"
)

// TranscriptTurn 表示某个用户转写中的一轮消息
type TranscriptTurn struct {
	Message    string    `json:"message"`
	Language   lang.Code `json:"language"`
	Intent     string    `json:"intent"`
	RecordedAt string    `json:"recordedAt"`
}

// Metadata 表示随消息附带的观测元数据
type Metadata struct {
	Language lang.Code
	Intent   string
}

// Snapshot 表示一次只读聚合报表
type Snapshot struct {
	Conversations     int            `json:"conversations"`
	Messages          int            `json:"messages"`
	Handoffs          int            `json:"handoffs"`
	HandoffRate       float64        `json:"handoffRate"`
	LanguageHistogram map[string]int `json:"languageHistogram"`
	IntentHistogram   map[string]int `json:"intentHistogram"`
}

// Logger 被动记录消息与转接事件 只做计数不参与决策
type Logger struct {
	mu            sync.RWMutex
	transcripts   map[string][]TranscriptTurn
	languageHist  map[lang.Code]int
	intentHist    map[string]int
	conversations int
	messages      int
	handoffs      int
	handoffRate   float64
}

// NewLogger 构建空的分析记录器
func NewLogger() *Logger {
	return &Logger{
		transcripts:  make(map[string][]TranscriptTurn),
		languageHist: make(map[lang.Code]int),
		intentHist:   make(map[string]int),
	}
}

// Record 记录一条用户消息
// 语言缺省时按内容识别 意图缺省归入 general
func (l *Logger) Record(userID, message string, metadata Metadata) {
	user := strings.TrimSpace(userID)
	text := strings.TrimSpace(message)
	if user == "" || text == "" {
		return
	}
	language := metadata.Language
	if !lang.IsSupported(language) || language == "" {
		language = lang.Detect(text)
	}
	intent := strings.TrimSpace(metadata.Intent)
	if intent == "" {
		intent = classifyIntent(text)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.transcripts[user]; !seen {
		l.conversations++
	}
	turns := append(l.transcripts[user], TranscriptTurn{
		Message:    text,
		Language:   language,
		Intent:     intent,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if len(turns) > maxTranscriptTurns {
		turns = turns[len(turns)-maxTranscriptTurns:]
	}
	l.transcripts[user] = turns
	l.messages++
	l.languageHist[language]++
	l.intentHist[intent]++
}

// RecordHandoff 记录一次转接事件并增量更新转接率
// rate = (旧值·(N-1)+1)/N N 为当前会话总数
func (l *Logger) RecordHandoff(request *handoff.Request) {
	if request == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handoffs++
	n := l.conversations
	if n < 1 {
		n = 1
	}
	l.handoffRate = (l.handoffRate*float64(n-1) + 1) / float64(n)
}

// classifyIntent 按关键词把消息归入粗粒度意图桶
func classifyIntent(text string) string {
	lower := strings.ToLower(text)
	buckets := []struct {
		intent   string
		keywords []string
	}{
		{intent: "fees", keywords: []string{"fee", "fees", "refund", "payment", "शुल्क", "फीस"}},
		{intent: "admission", keywords: []string{"admission", "apply", "application", "प्रवेश"}},
		{intent: "exam", keywords: []string{"exam", "result", "marks", "backlog", "परीक्षा"}},
		{intent: "technical", keywords: []string{"portal", "login", "website", "password"}},
	}
	for _, bucket := range buckets {
		for _, keyword := range bucket.keywords {
			if strings.Contains(lower, keyword) {
				return bucket.intent
			}
		}
	}
	return defaultIntent
}

// Transcript 返回某个用户的转写副本
func (l *Logger) Transcript(userID string) []TranscriptTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]TranscriptTurn(nil), l.transcripts[strings.TrimSpace(userID)]...)
}

// Report 返回聚合快照 只读投影 不改变任何计数
func (l *Logger) Report() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snapshot := Snapshot{
		Conversations:     l.conversations,
		Messages:          l.messages,
		Handoffs:          l.handoffs,
		HandoffRate:       l.handoffRate,
		LanguageHistogram: make(map[string]int, len(l.languageHist)),
		IntentHistogram:   make(map[string]int, len(l.intentHist)),
	}
	for code, count := range l.languageHist {
		snapshot.LanguageHistogram[string(code)] = count
	}
	for intent, count := range l.intentHist {
		snapshot.IntentHistogram[intent] = count
	}
	return snapshot
}
