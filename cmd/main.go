// 本文件用于程序启动入口
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"campus-assist/internal/api"
	"campus-assist/internal/config"
	"campus-assist/internal/logger"
	"campus-assist/internal/models"
	"campus-assist/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("程序退出: %v", err)
	}
}

func run() error {
	configPath := parseFlags()
	log.Printf("程序启动，配置文件: %s", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	if err := logger.InitLogger(cfg); err != nil {
		return err
	}
	defer logger.Close()

	logConfig(cfg)

	assistant, err := service.NewAssistantService(cfg)
	if err != nil {
		logger.Error("创建助手服务失败: %v", err)
		return err
	}

	if err := assistant.Start(); err != nil {
		logger.Error("启动助手服务失败: %v", err)
		return err
	}

	apiServer := api.NewServer(cfg, assistant)
	apiServer.Start()

	waitForShutdown(assistant, apiServer)
	return nil
}

func parseFlags() string {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()
	return configPath
}

func logConfig(cfg *models.Config) {
	logger.Info("配置加载成功")
	logger.Info("知识库数据目录: %s", cfg.DataDir)
	if strings.TrimSpace(cfg.InboxDir) == "" {
		logger.Warn("收件目录未配置，自动摄取已关闭")
	} else {
		logger.Info("收件目录: %s", cfg.InboxDir)
		logger.Info("摄取文件后缀: %s", cfg.InboxExts)
	}
	logger.Info("队列持久化文件: %s", cfg.QueueFile)
	logger.Info("基线语言: %s", cfg.DefaultLanguage)
	logger.Info("检索默认返回条数: %d", cfg.SearchLimit)
	if strings.TrimSpace(cfg.EscalationRulesFile) != "" {
		logger.Info("升级规则文件: %s", cfg.EscalationRulesFile)
	}
	logger.Info("原件归档: %v", cfg.ArchiveEnabled)
	if cfg.ArchiveEnabled {
		logger.Info("归档 Bucket: %s", cfg.Bucket)
		logger.Info("归档 Endpoint: %s", cfg.Endpoint)
		logger.Info("归档禁用 SSL: %v", cfg.DisableSSL)
	}
	logger.Info("日志级别: %s", cfg.LogLevel)
	if cfg.LogFile != "" {
		logger.Info("日志文件: %s", cfg.LogFile)
	}
	logger.Info("API 监听地址: %s", cfg.APIBind)
	logger.Info("系统资源采集: %v", cfg.SystemResourceEnabled)
}

func waitForShutdown(assistant *service.AssistantService, apiServer *api.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	<-signalChan
	logger.Info("收到退出信号，正在关闭服务...")

	if err := assistant.Stop(); err != nil {
		logger.Error("停止助手服务失败: %v", err)
	}
	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			logger.Warn("关闭 API 服务失败: %v", err)
		}
	}

	logger.Info("程序已退出")
	os.Exit(0)
}
