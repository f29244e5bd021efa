// 本文件用于 HTTP API 服务装配 路由注册与通用中间件
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"campus-assist/internal/logger"
	"campus-assist/internal/models"
	"campus-assist/internal/service"
)

// Server wraps the HTTP API server.
type Server struct {
	httpServer *http.Server
}

type handler struct {
	cfg *models.Config
	svc *service.AssistantService
}

// NewServer builds the HTTP server for console/API consumption.
func NewServer(cfg *models.Config, svc *service.AssistantService) *Server {
	h := &handler{cfg: cfg, svc: svc}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/documents", h.documents)
	mux.HandleFunc("/api/documents/", h.documentByID)
	mux.HandleFunc("/api/search", h.search)
	mux.HandleFunc("/api/chat/assess", h.assess)
	mux.HandleFunc("/api/queue/status", h.queueStatus)
	mux.HandleFunc("/api/queue/", h.queueEntry)
	mux.HandleFunc("/api/knowledge/export", h.exportKnowledge)
	mux.HandleFunc("/api/knowledge/import", h.importKnowledge)
	mux.HandleFunc("/api/analytics", h.analytics)
	mux.HandleFunc("/api/health", h.health)
	mux.HandleFunc("/metrics", h.metrics)

	srv := &http.Server{
		Addr:         cfg.APIBind,
		Handler:      withCORS(cfg, withAPIAuth(cfg, mux)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return &Server{httpServer: srv}
}

// Start boots the API server asynchronously.
func (s *Server) Start() {
	go func() {
		logger.Info("API 服务监听 %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API 服务异常退出: %v", err)
		}
	}()
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withAPIAuth 校验 Bearer 令牌
// 未配置令牌 占位符令牌 或显式关闭时放行
func withAPIAuth(cfg *models.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authEnabled(cfg) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(token, "Bearer ") && strings.TrimSpace(strings.TrimPrefix(token, "Bearer ")) == cfg.APIAuthToken {
			next.ServeHTTP(w, r)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	})
}

func authEnabled(cfg *models.Config) bool {
	if cfg == nil {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("API_AUTH_DISABLED")), "true") {
		return false
	}
	token := strings.TrimSpace(cfg.APIAuthToken)
	if token == "" {
		return false
	}
	// 配置模板里的占位符未被替换时视为未配置
	if strings.HasPrefix(token, "${") && strings.HasSuffix(token, "}") {
		return false
	}
	return true
}

// withCORS 处理跨域请求
// 配置了白名单时严格匹配 否则仅放行回环与同主机来源
// 鉴权关闭且无白名单时放行所有来源
func withCORS(cfg *models.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			if !originAllowed(cfg, origin, r.Host) {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "origin not allowed"})
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(cfg *models.Config, origin, requestHost string) bool {
	allowList := splitOrigins(cfg)
	if len(allowList) > 0 {
		for _, allowed := range allowList {
			if strings.EqualFold(allowed, origin) {
				return true
			}
		}
		return false
	}
	// 无白名单且鉴权关闭时不设限 便于内网控制台直连
	if !authEnabled(cfg) {
		return true
	}
	host := hostOnly(origin)
	if host == "" {
		return false
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	return host == hostWithoutPort(requestHost)
}

func splitOrigins(cfg *models.Config) []string {
	if cfg == nil {
		return nil
	}
	parts := strings.Split(cfg.APICORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func hostOnly(origin string) string {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return hostWithoutPort(parsed.Host)
}

func hostWithoutPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}
