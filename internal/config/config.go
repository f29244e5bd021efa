package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"campus-assist/internal/models"
)

// LoadConfig 加载配置文件
func LoadConfig(configFile string) (*models.Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	var config models.Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	applyDefaults(&config)
	return &config, nil
}

// applyDefaults 设置默认值
func applyDefaults(config *models.Config) {
	if strings.TrimSpace(config.DataDir) == "" {
		config.DataDir = "data/knowledge"
	}
	if strings.TrimSpace(config.QueueFile) == "" {
		config.QueueFile = "data/handoff_queue.json"
	}
	if strings.TrimSpace(config.DefaultLanguage) == "" {
		config.DefaultLanguage = "english"
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = 5
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if strings.TrimSpace(config.APIBind) == "" {
		config.APIBind = ":8085"
	}
	if strings.TrimSpace(config.InboxExts) == "" {
		config.InboxExts = ".txt,.md,.pdf"
	}
}

// ValidateConfig 验证配置
func ValidateConfig(config *models.Config) error {
	if config.DataDir == "" {
		return fmt.Errorf("知识库数据目录不能为空")
	}
	if config.QueueFile == "" {
		return fmt.Errorf("队列持久化文件不能为空")
	}
	if config.ArchiveEnabled {
		if config.Bucket == "" {
			return fmt.Errorf("归档 Bucket不能为空")
		}
		if config.AK == "" || config.SK == "" {
			return fmt.Errorf("归档认证信息不能为空")
		}
		if config.Endpoint == "" {
			return fmt.Errorf("归档 Endpoint不能为空")
		}
	}
	return nil
}
