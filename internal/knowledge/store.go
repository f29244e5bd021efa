// 本文件用于知识库存储与检索实现 将文档生命周期和倒排索引集中在存储层管理

// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package knowledge

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"campus-assist/internal/lang"
	"campus-assist/internal/segment"
)

const (
	defaultDataDir  = "data/knowledge"
	defaultLimit    = 5
	maxLimit        = 50
	snippetMaxRunes = 160

	bodyHitScore  = 1
	titleHitScore = 3
)

// partRef 保存一个可检索片段的倒排回查信息
type partRef struct {
	docID       string
	title       string
	snippetSrc  string
	titleTokens []string
	bodyTokens  []string
}

type Store struct {
	db     *sql.DB
	dbPath string

	mu         sync.RWMutex
	docs       map[string]Document
	bySource   map[string]string
	parts      map[string]partRef
	docParts   map[string][]string
	bodyIndex  map[string]map[string]struct{}
	titleIndex map[string]map[string]struct{}
}

// NewStore 统一负责知识库存储初始化
// 目录创建 打开数据库 设置 WAL 迁移与全量加载收敛在一个入口
// 调用方拿到 Store 时内存索引已经和磁盘数据一致
func NewStore(dataDir string) (*Store, error) {
	root := strings.TrimSpace(dataDir)
	if root == "" {
		root = defaultDataDir
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge data dir failed: %w", err)
	}
	dbPath := filepath.Join(root, "assistant.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open knowledge sqlite failed: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set knowledge sqlite wal failed: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{
		db:         db,
		dbPath:     dbPath,
		docs:       make(map[string]Document),
		bySource:   make(map[string]string),
		parts:      make(map[string]partRef),
		docParts:   make(map[string][]string),
		bodyIndex:  make(map[string]map[string]struct{}),
		titleIndex: make(map[string]map[string]struct{}),
	}
	if err := s.loadAll(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DBPath() string {
	if s == nil {
		return ""
	}
	return s.dbPath
}

// migrate 只做幂等结构迁移 不掺杂业务写入逻辑
func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT 'english',
			source_path TEXT NOT NULL DEFAULT '',
			ingested_at TEXT NOT NULL,
			payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_source_path ON documents(source_path);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("knowledge migrate failed: %w", err)
		}
	}
	return nil
}

// loadAll 启动时把全部文档读回内存并重建倒排索引
func (s *Store) loadAll() error {
	rows, err := s.db.Query(`SELECT payload FROM documents ORDER BY id ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return err
		}
		var doc Document
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return fmt.Errorf("decode knowledge payload failed: %w", err)
		}
		s.docs[doc.ID] = doc
		if doc.SourcePath != "" {
			s.bySource[doc.SourcePath] = doc.ID
		}
		s.indexDocumentLocked(doc)
	}
	return rows.Err()
}

// Ingest 是知识库写入主路径
// 先切分 再落库 最后更新内存索引 数据库失败时内存不发生任何变化
// 同一来源路径重复入库按“先摘除旧片段再整体重建”处理
func (s *Store) Ingest(input IngestInput) (*Document, error) {
	rawText := strings.TrimSpace(input.RawText)
	if rawText == "" {
		return nil, fmt.Errorf("%w: raw text is required", ErrInvalidInput)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Untitled"
	}
	sourcePath := filepath.ToSlash(strings.TrimSpace(input.SourcePath))

	result := segment.Segment(rawText)
	language := result.DetectedLanguage
	if strings.TrimSpace(input.Language) != "" {
		language = lang.Parse(input.Language)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	if sourcePath != "" {
		if existing, ok := s.bySource[sourcePath]; ok {
			id = existing
		}
	}
	doc := Document{
		ID:         id,
		Title:      title,
		Language:   language,
		SourcePath: sourcePath,
		RawText:    rawText,
		Sections:   result.Sections,
		FAQs:       result.FAQs,
		Entities:   result.Entities,
		Topics:     result.Topics,
		IngestedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}

	if err := s.persistDocument(doc); err != nil {
		return nil, err
	}

	s.removeDocumentLocked(id)
	s.docs[id] = doc
	if sourcePath != "" {
		s.bySource[sourcePath] = id
	}
	s.indexDocumentLocked(doc)
	return &doc, nil
}

func (s *Store) persistDocument(doc Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode knowledge payload failed: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer rollbackTx(tx)

	if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, doc.ID); err != nil {
		return fmt.Errorf("replace knowledge document failed: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO documents (id, title, language, source_path, ingested_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Title, string(doc.Language), doc.SourcePath, doc.IngestedAt, string(payload)); err != nil {
		return fmt.Errorf("insert knowledge document failed: %w", err)
	}
	return tx.Commit()
}

// Get 按 ID 返回文档副本
func (s *Store) Get(id string) (*Document, error) {
	docID := strings.TrimSpace(id)
	if docID == "" {
		return nil, fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

// Count 返回当前文档总数
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Search 在倒排索引上执行词元打分检索
// 正文命中计一分 标题命中计三分 排序先按分数再按片段 ID 保证结果稳定
func (s *Store) Search(query string, language lang.Code, limit int) ([]SearchResult, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := make(map[string]int, 64)
	for _, token := range tokens {
		for partID := range s.bodyIndex[token] {
			scores[partID] += bodyHitScore
		}
		for partID := range s.titleIndex[token] {
			scores[partID] += titleHitScore
		}
	}

	type scoredPart struct {
		partID string
		score  int
	}
	scored := make([]scoredPart, 0, len(scores))
	for partID, score := range scores {
		ref, ok := s.parts[partID]
		if !ok {
			continue
		}
		if language != "" {
			doc, exists := s.docs[ref.docID]
			if !exists || doc.Language != language {
				continue
			}
		}
		scored = append(scored, scoredPart{partID: partID, score: score})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score == scored[j].score {
			return scored[i].partID < scored[j].partID
		}
		return scored[i].score > scored[j].score
	})
	if limit > len(scored) {
		limit = len(scored)
	}

	out := make([]SearchResult, 0, limit)
	for _, item := range scored[:limit] {
		ref := s.parts[item.partID]
		doc := s.docs[ref.docID]
		title := ref.title
		if title == "" {
			title = doc.Title
		}
		out = append(out, SearchResult{
			PartID:     item.partID,
			DocumentID: ref.docID,
			Title:      title,
			Snippet:    truncateRunes(ref.snippetSrc, snippetMaxRunes),
			Language:   doc.Language,
			Score:      item.score,
		})
	}
	return out, nil
}

// Export 把全量文档导出为 JSON 快照 采用临时文件加改名保证原子性
func (s *Store) Export(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		return fmt.Errorf("%w: export path is required", ErrInvalidInput)
	}

	s.mu.RLock()
	snapshot := Snapshot{
		ExportedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Documents:  make([]Document, 0, len(s.docs)),
	}
	for _, doc := range s.docs {
		snapshot.Documents = append(snapshot.Documents, doc)
	}
	s.mu.RUnlock()

	sort.Slice(snapshot.Documents, func(i, j int) bool {
		return snapshot.Documents[i].ID < snapshot.Documents[j].ID
	})
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode knowledge snapshot failed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create export dir failed: %w", err)
	}
	tmpPath := target + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write knowledge snapshot failed: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("commit knowledge snapshot failed: %w", err)
	}
	return nil
}

// Import 用快照整体替换当前知识库
// 先在事务内替换数据库 成功后才重建内存索引 失败时保持导入前状态
func (s *Store) Import(path string) (int, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return 0, fmt.Errorf("read knowledge snapshot failed: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return 0, fmt.Errorf("decode knowledge snapshot failed: %w", err)
	}
	for _, doc := range snapshot.Documents {
		if strings.TrimSpace(doc.ID) == "" {
			return 0, fmt.Errorf("%w: snapshot contains document without id", ErrInvalidInput)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer rollbackTx(tx)

	if _, err := tx.Exec(`DELETE FROM documents`); err != nil {
		return 0, fmt.Errorf("clear knowledge documents failed: %w", err)
	}
	for _, doc := range snapshot.Documents {
		payload, err := json.Marshal(doc)
		if err != nil {
			return 0, fmt.Errorf("encode knowledge payload failed: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO documents (id, title, language, source_path, ingested_at, payload)
			VALUES (?, ?, ?, ?, ?, ?)
		`, doc.ID, doc.Title, string(doc.Language), doc.SourcePath, doc.IngestedAt, string(payload)); err != nil {
			return 0, fmt.Errorf("insert knowledge document failed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.docs = make(map[string]Document, len(snapshot.Documents))
	s.bySource = make(map[string]string, len(snapshot.Documents))
	s.parts = make(map[string]partRef)
	s.docParts = make(map[string][]string)
	s.bodyIndex = make(map[string]map[string]struct{})
	s.titleIndex = make(map[string]map[string]struct{})
	for _, doc := range snapshot.Documents {
		s.docs[doc.ID] = doc
		if doc.SourcePath != "" {
			s.bySource[doc.SourcePath] = doc.ID
		}
		s.indexDocumentLocked(doc)
	}
	return len(snapshot.Documents), nil
}

// indexDocumentLocked 把文档按片段写入倒排索引 调用方必须持有写锁
// 没有任何结构化片段的文档退化为整篇正文的单片段
func (s *Store) indexDocumentLocked(doc Document) {
	partIDs := make([]string, 0, len(doc.Sections)+len(doc.FAQs)+len(doc.Entities))
	addPart := func(partID, title, body string) {
		ref := partRef{
			docID:       doc.ID,
			title:       title,
			snippetSrc:  body,
			titleTokens: tokenize(title),
			bodyTokens:  tokenize(body),
		}
		s.parts[partID] = ref
		partIDs = append(partIDs, partID)
		for _, token := range ref.titleTokens {
			if s.titleIndex[token] == nil {
				s.titleIndex[token] = make(map[string]struct{})
			}
			s.titleIndex[token][partID] = struct{}{}
		}
		for _, token := range ref.bodyTokens {
			if s.bodyIndex[token] == nil {
				s.bodyIndex[token] = make(map[string]struct{})
			}
			s.bodyIndex[token][partID] = struct{}{}
		}
	}

	for i, sec := range doc.Sections {
		addPart(fmt.Sprintf("%s#sec-%d", doc.ID, i), sec.Title, sec.Body)
	}
	for i, faq := range doc.FAQs {
		addPart(fmt.Sprintf("%s#faq-%d", doc.ID, i), faq.Question, faq.Answer)
	}
	for i, entity := range doc.Entities {
		addPart(fmt.Sprintf("%s#ent-%d", doc.ID, i), "", entity.Value+" "+entity.ContextSnippet)
	}
	if len(partIDs) == 0 {
		addPart(doc.ID+"#sec-0", doc.Title, doc.RawText)
	}
	s.docParts[doc.ID] = partIDs
}

// removeDocumentLocked 摘除文档的全部片段与倒排项 调用方必须持有写锁
func (s *Store) removeDocumentLocked(id string) {
	old, ok := s.docs[id]
	if ok && old.SourcePath != "" {
		delete(s.bySource, old.SourcePath)
	}
	for _, partID := range s.docParts[id] {
		ref, exists := s.parts[partID]
		if !exists {
			continue
		}
		for _, token := range ref.titleTokens {
			if set := s.titleIndex[token]; set != nil {
				delete(set, partID)
				if len(set) == 0 {
					delete(s.titleIndex, token)
				}
			}
		}
		for _, token := range ref.bodyTokens {
			if set := s.bodyIndex[token]; set != nil {
				delete(set, partID)
				if len(set) == 0 {
					delete(s.bodyIndex, token)
				}
			}
		}
		delete(s.parts, partID)
	}
	delete(s.docParts, id)
	delete(s.docs, id)
}

func rollbackTx(tx *sql.Tx) {
	if tx != nil {
		_ = tx.Rollback()
	}
}

// tokenize 按空白切词 统一小写 丢弃过短词元并去重
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		token := strings.Trim(field, ".,;:!?\"'()[]{}")
		if utf8.RuneCountInString(token) <= 2 {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

func truncateRunes(text string, max int) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) <= max {
		return trimmed
	}
	return string(runes[:max]) + "..."
}
