// Package api 提供工作流引擎的HTTP服务层
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/toolflow/pkg/api/dto"
	"github.com/LENAX/toolflow/pkg/api/handler"
	"github.com/LENAX/toolflow/pkg/core/engine"
	"github.com/LENAX/toolflow/pkg/core/executor"
	"github.com/LENAX/toolflow/pkg/core/progress"
	"github.com/LENAX/toolflow/pkg/storage"
)

// ServerConfig API服务器配置（对外导出）
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig 默认服务器配置（对外导出）
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// APIServer 工作流引擎API服务器（对外导出）
type APIServer struct {
	config  ServerConfig
	version string
	server  *http.Server
}

// NewAPIServer 创建API服务器（对外导出）
// repo和bus允许为nil，对应的历史接口和WebSocket接口会降级
func NewAPIServer(eng *engine.Engine, exec executor.ToolExecutor, repo storage.RunRepository, bus *progress.Bus, cfg ServerConfig, version string) *APIServer {
	router := NewRouter(eng, exec, repo, bus, version)
	return &APIServer{
		config:  cfg,
		version: version,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Start 启动服务器（对外导出，阻塞直到关闭）
func (s *APIServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务器（对外导出）
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// NewRouter 构建路由（对外导出）
func NewRouter(eng *engine.Engine, exec executor.ToolExecutor, repo storage.RunRepository, bus *progress.Bus, version string) *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{
			"status":  "ok",
			"version": version,
		}))
	})

	wf := handler.NewWorkflowHandler(eng, exec, repo)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/workflows/validate", wf.Validate)
		v1.POST("/workflows/run", wf.Run)
		v1.GET("/runs", wf.ListRuns)
		v1.GET("/runs/:id", wf.GetRun)

		if bus != nil {
			ws := handler.NewProgressHandler(bus)
			v1.GET("/ws/progress", ws.Stream)
		}
	}

	return router
}
