package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/toolflow/internal/storage"
	"github.com/LENAX/toolflow/pkg/api"
	"github.com/LENAX/toolflow/pkg/cli/output"
	"github.com/LENAX/toolflow/pkg/config"
	"github.com/LENAX/toolflow/pkg/core/engine"
	"github.com/LENAX/toolflow/pkg/core/executor"
	"github.com/LENAX/toolflow/pkg/core/progress"
	pkgstorage "github.com/LENAX/toolflow/pkg/storage"
	"github.com/LENAX/toolflow/pkg/tools"
)

var (
	serveHost string
	servePort int
)

// serveCmd serve命令
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP API服务",
	Long:  `启动工作流引擎的HTTP服务，提供校验、执行、历史查询和WebSocket进度推送接口。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := config.LoadFramework(configPath)
		if err != nil {
			output.Error("加载框架配置失败: %v", err)
			return err
		}

		reg := executor.NewToolRegistry()
		if err := tools.RegisterBuiltins(reg); err != nil {
			output.Error("注册内置工具失败: %v", err)
			return err
		}

		// 历史存储不可用时服务降级运行
		var repo pkgstorage.RunRepository
		if r, err := storage.NewRunRepository(fw.GetDatabaseType(), fw.GetDatabaseDSN()); err != nil {
			output.Warning("历史存储不可用，历史接口将降级: %v", err)
		} else {
			repo = r
			defer r.Close()
		}

		bus := progress.NewBus(fw.Toolflow.Execution.ProgressDebug)
		defer bus.Close()

		eng := engine.NewEngine(
			engine.WithDefaultTimeout(fw.GetDefaultTaskTimeout()),
			engine.WithRetryBackoff(fw.GetRetryBackoff()),
			engine.WithProgressCallback(bus.Callback()),
		)

		port := servePort
		if port <= 0 {
			port = fw.GetHTTPPort()
		}
		cfg := api.DefaultServerConfig()
		cfg.Host = serveHost
		cfg.Port = port

		server := api.NewAPIServer(eng, reg, repo, bus, cfg, Version)

		go func() {
			if err := server.Start(); err != nil {
				output.Error("API服务器错误: %v", err)
			}
		}()
		output.Success("Toolflow服务已启动: %s:%d", cfg.Host, cfg.Port)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		output.Info("正在关闭服务...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			output.Error("关闭服务失败: %v", err)
			return err
		}
		output.Success("服务已停止")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "0.0.0.0", "监听地址")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "监听端口（0表示使用配置文件值）")
}
