// 本文件用于收件目录监控 发现写入完成的文档后交给摄取器
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"campus-assist/internal/logger"
	"campus-assist/internal/models"
)

const (
	logThrottleDuration  = 5 * time.Second  // 日志节流时间间隔
	writeCompleteTimeout = 10 * time.Second // 文件写入完成检测超时时间
)

// defaultInboxExts 未配置时默认摄取的文档后缀
const defaultInboxExts = ".txt,.md,.pdf"

// Ingestor 文档摄取接口
type Ingestor interface {
	IngestFile(filePath string) error
}

// InboxWatcher 收件目录监控器
type InboxWatcher struct {
	watcher       *fsnotify.Watcher
	config        *models.Config
	ingestor      Ingestor
	allowedExts   map[string]bool
	stateMutex    sync.Mutex
	lastLogged    map[string]time.Time
	lastWriteTime map[string]time.Time
	writeTimers   map[string]*time.Timer
}

// NewInboxWatcher 创建新的收件目录监控器
func NewInboxWatcher(config *models.Config, ingestor Ingestor) (*InboxWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &InboxWatcher{
		watcher:       watcher,
		config:        config,
		ingestor:      ingestor,
		allowedExts:   parseInboxExts(config.InboxExts),
		lastLogged:    make(map[string]time.Time),
		lastWriteTime: make(map[string]time.Time),
		writeTimers:   make(map[string]*time.Timer),
	}, nil
}

// Start 启动收件目录监控
func (iw *InboxWatcher) Start() error {
	logger.Info("初始化收件目录监控器...")
	logger.Info("开始监控目录: %s", iw.config.InboxDir)

	//递归把目录都加入监听
	err := iw.addWatchRecursively(iw.config.InboxDir)
	if err != nil {
		logger.Error("添加目录监控失败: %v", err)
		return err
	}

	// 启动事件处理协程
	go iw.handleEvents()

	logger.Info("收件目录监控启动成功，等待文档投递...")
	return nil
}

// Close 关闭收件目录监控器
func (iw *InboxWatcher) Close() error {
	// 停止并清理所有写入完成检测定时器
	iw.stateMutex.Lock()
	for _, t := range iw.writeTimers {
		if t != nil {
			t.Stop()
		}
	}
	iw.writeTimers = make(map[string]*time.Timer)
	iw.stateMutex.Unlock()

	return iw.watcher.Close()
}

// handleEvents 处理文件事件
func (iw *InboxWatcher) handleEvents() {
	for {
		select {
		case event, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			iw.handleEvent(event)
		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("收件目录监控错误: %v", err)
		}
	}
}

func (iw *InboxWatcher) handleEvent(event fsnotify.Event) {
	logger.Debug("收到文件事件: %s, 操作: %s", event.Name, event.Op.String())

	if iw.isDocumentEvent(event) {
		if iw.shouldLogFileEvent(event.Name) {
			logger.Info("检测到文档变化: %s, 操作: %s", event.Name, event.Op.String())
		}
		iw.updateFileWriteTime(event.Name)
	}

	if event.Op&fsnotify.Create == fsnotify.Create {
		iw.handleCreatedPath(event.Name)
	}
}

// isDocumentEvent 判断事件是否指向可摄取的文档
func (iw *InboxWatcher) isDocumentEvent(event fsnotify.Event) bool {
	if isTempFile(event.Name) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	if !iw.allowedExts[ext] {
		return false
	}
	return event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create
}

func (iw *InboxWatcher) handleCreatedPath(path string) {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return
	}

	if err := iw.watcher.Add(path); err != nil {
		logger.Warn("添加目录监控失败: %s, 错误: %v", path, err)
	} else {
		logger.Info("添加目录监控: %s", path)
	}
	if err := iw.addWatchRecursively(path); err != nil {
		logger.Warn("递归添加新目录监控失败: %s, 错误: %v", path, err)
	}
}

// addWatchRecursively 递归监控指定目录及子目录的文件变化
func (iw *InboxWatcher) addWatchRecursively(dirPath string) error {
	logger.Debug("递归添加目录监控: %s", dirPath)

	return filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			logger.Warn("遍历目录失败: %s, 错误: %v", path, err)
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if err := iw.watcher.Add(path); err != nil {
			logger.Warn("添加目录监控失败: %s, 错误: %v", path, err)
			return err
		}
		logger.Debug("添加目录监控: %s", path)
		return nil
	})
}

// updateFileWriteTime 更新文件写入时间并设置写入完成检测
func (iw *InboxWatcher) updateFileWriteTime(filePath string) {
	iw.stateMutex.Lock()
	defer iw.stateMutex.Unlock()

	now := time.Now()
	iw.lastWriteTime[filePath] = now

	// 取消之前的定时器（如果存在）
	if timer, exists := iw.writeTimers[filePath]; exists {
		timer.Stop()
	}

	iw.writeTimers[filePath] = time.AfterFunc(writeCompleteTimeout, func() {
		iw.handleWriteComplete(filePath)
	})
}

func (iw *InboxWatcher) handleWriteComplete(filePath string) {
	iw.stateMutex.Lock()
	lastWrite, ok := iw.lastWriteTime[filePath]
	if !ok || time.Since(lastWrite) < writeCompleteTimeout {
		iw.stateMutex.Unlock()
		return
	}

	logger.Info("文档写入完成: %s (超过 %v 无新写入)", filePath, writeCompleteTimeout)
	delete(iw.lastWriteTime, filePath)
	delete(iw.writeTimers, filePath)
	delete(iw.lastLogged, filePath)
	iw.stateMutex.Unlock()

	if err := iw.ingestor.IngestFile(filePath); err != nil {
		logger.Error("文档摄取失败: %s, 错误: %v", filePath, err)
	}
}

// shouldLogFileEvent 检查是否应该记录文件事件日志
func (iw *InboxWatcher) shouldLogFileEvent(filePath string) bool {
	iw.stateMutex.Lock()
	defer iw.stateMutex.Unlock()

	if lastTime, ok := iw.lastLogged[filePath]; !ok || time.Since(lastTime) > logThrottleDuration {
		iw.lastLogged[filePath] = time.Now()
		return true
	}
	return false
}

// parseInboxExts 解析逗号分隔的后缀列表 统一为小写带点形式
func parseInboxExts(raw string) map[string]bool {
	if strings.TrimSpace(raw) == "" {
		raw = defaultInboxExts
	}
	exts := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		ext := strings.ToLower(strings.TrimSpace(part))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}
	return exts
}

// isTempFile 判断是否为编辑器或下载器产生的临时文件
func isTempFile(filePath string) bool {
	base := strings.ToLower(filepath.Base(filePath))
	if base == "" || base == "." || base == "/" {
		return false
	}
	tempSuffixes := []string{".tmp", ".part", ".crdownload", ".download", ".swp", ".swx", ".swpx"}
	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
