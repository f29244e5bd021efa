// 本文件用于 OSS 客户端封装与文档原件归档
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package oss

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/aliyun/aliyun-oss-go-sdk/oss"

	"campus-assist/internal/logger"
	"campus-assist/internal/models"
)

// Client 封装 OSS SDK 客户端及相关配置
type Client struct {
	ossClient *sdk.Client
	bucket    *sdk.Bucket
	config    *models.Config
	hostName  string
}

// NewClient 创建并初始化 OSS 客户端
func NewClient(config *models.Config) (*Client, error) {
	logger.Info("初始化OSS客户端...")
	endpoint, err := normalizeOSSEndpoint(config.Endpoint, config.DisableSSL)
	if err != nil {
		return nil, err
	}

	ossClient, err := sdk.New(endpoint, config.AK, config.SK)
	if err != nil {
		return nil, fmt.Errorf("创建OSS客户端失败: %w", err)
	}
	bucket, err := ossClient.Bucket(config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("获取OSS Bucket失败: %w", err)
	}

	logger.Info("OSS客户端初始化成功")
	return &Client{
		ossClient: ossClient,
		bucket:    bucket,
		config:    config,
		hostName:  normalizeHostName(),
	}, nil
}

// ArchiveFile 把入库成功的文档原件归档到 OSS 并返回下载链接
func (c *Client) ArchiveFile(ctx context.Context, filePath string) (string, error) {
	logger.Info("开始归档文档原件到OSS: %s", filePath)
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("获取文件信息失败: %w", err)
	}
	// 固定上传大小，避免文件增长导致上传内容不一致
	contentLength := fileInfo.Size()

	objectKey := c.buildObjectKey(filePath)

	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.bucket == nil {
		return "", fmt.Errorf("OSS Bucket未初始化")
	}
	reader := &contextReader{
		ctx:    ctx,
		reader: io.NewSectionReader(file, 0, contentLength),
	}
	err = c.bucket.PutObject(
		objectKey,
		reader,
		sdk.ContentLength(contentLength),
		sdk.ContentType("application/octet-stream"),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("OSS归档失败: %w", err)
	}
	logger.Info("文档归档完成: %s", objectKey)

	downloadURL := c.buildDownloadURL(objectKey)
	return downloadURL, nil
}

// buildObjectKey 按 主机名/日期/文件名 组织归档对象
func (c *Client) buildObjectKey(filePath string) string {
	hostName := strings.Trim(strings.TrimSpace(c.hostName), "/")
	if hostName == "" {
		hostName = "unknown-host"
	}
	datePart := time.Now().UTC().Format("2006-01-02")
	return hostName + "/" + datePart + "/" + filepath.Base(filePath)
}

// buildDownloadURL 用于构建后续流程所需的数据
func (c *Client) buildDownloadURL(objectKey string) string {
	scheme := "https"
	if c.config.DisableSSL {
		scheme = "http"
	}
	host := strings.TrimSpace(c.config.Endpoint)
	if parsed, err := url.Parse(host); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	return fmt.Sprintf("%s://%s.%s/%s", scheme, c.config.Bucket, host, objectKey)
}

// normalizeOSSEndpoint 用于统一 OSS Endpoint 格式
func normalizeOSSEndpoint(endpoint string, disableSSL bool) (string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return "", fmt.Errorf("OSS Endpoint不能为空")
	}
	parsed, err := url.Parse(trimmed)
	if err == nil && parsed.Scheme != "" && parsed.Host != "" {
		return trimmed, nil
	}
	parsed, err = url.Parse("//" + trimmed)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("无效的 OSS Endpoint: %s", endpoint)
	}
	scheme := "https"
	if disableSSL {
		scheme = "http"
	}
	return scheme + "://" + parsed.Host + strings.TrimSuffix(parsed.Path, "/"), nil
}

// contextReader 用于让上传过程响应上下文取消
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

// Read 在读取前检查上下文，避免取消后继续上传
func (r *contextReader) Read(p []byte) (int, error) {
	if r == nil {
		return 0, io.EOF
	}
	if r.ctx != nil {
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}
	}
	if r.reader == nil {
		return 0, io.EOF
	}
	n, err := r.reader.Read(p)
	if err != nil {
		return n, err
	}
	if r.ctx != nil {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
	}
	return n, nil
}

// normalizeHostName 用于统一数据格式便于比较与存储
func normalizeHostName() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	host = strings.TrimSpace(host)
	host = strings.ReplaceAll(host, "/", "-")
	host = strings.ReplaceAll(host, "\\", "-")
	if host == "" {
		return "unknown-host"
	}
	return host
}
