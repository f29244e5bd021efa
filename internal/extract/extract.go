// 本文件用于从不同格式的文档中抽取纯文本
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupportedFormat 表示文件扩展名不在受支持集合内
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtractionFailed 表示格式受支持但内容无法解析
	ErrExtractionFailed = errors.New("document extraction failed")
)

// IsSupported 判断扩展名是否受支持 入参需带点号 大小写不敏感
func IsSupported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".pdf":
		return true
	default:
		return false
	}
}

// Text 按扩展名分派抽取器 返回文档的纯文本内容
func Text(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md":
		return plainText(path)
	case ".pdf":
		return pdfText(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func plainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return string(data), nil
}

// pdfText 逐页抽取 PDF 文本 损坏或加密文件统一映射到抽取失败
func pdfText(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	var builder strings.Builder
	if _, err := io.Copy(&builder, plain); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return builder.String(), nil
}
