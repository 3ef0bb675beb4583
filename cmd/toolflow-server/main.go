package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/LENAX/toolflow/internal/storage"
	"github.com/LENAX/toolflow/pkg/api"
	"github.com/LENAX/toolflow/pkg/config"
	"github.com/LENAX/toolflow/pkg/core/engine"
	"github.com/LENAX/toolflow/pkg/core/executor"
	"github.com/LENAX/toolflow/pkg/core/progress"
	pkgstorage "github.com/LENAX/toolflow/pkg/storage"
	"github.com/LENAX/toolflow/pkg/tools"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "./configs/toolflow.yaml", "框架配置文件路径")
	host := flag.String("host", "0.0.0.0", "监听地址")
	port := flag.Int("port", 0, "监听端口（0表示使用配置文件值）")
	flag.Parse()

	log.Printf("Toolflow Server v%s", Version)
	log.Printf("配置文件: %s", *configPath)

	// 1. 加载框架配置
	fw, err := config.LoadFramework(*configPath)
	if err != nil {
		log.Fatalf("加载框架配置失败: %v", err)
	}

	// 2. 注册内置工具
	reg := executor.NewToolRegistry()
	if err := tools.RegisterBuiltins(reg); err != nil {
		log.Fatalf("注册内置工具失败: %v", err)
	}

	// 3. 历史存储（不可用时降级）
	var repo pkgstorage.RunRepository
	if r, err := storage.NewRunRepository(fw.GetDatabaseType(), fw.GetDatabaseDSN()); err != nil {
		log.Printf("⚠️  历史存储不可用，历史接口将降级: %v", err)
	} else {
		repo = r
		defer r.Close()
	}

	// 4. 进度事件总线 + 引擎
	bus := progress.NewBus(fw.Toolflow.Execution.ProgressDebug)
	defer bus.Close()

	eng := engine.NewEngine(
		engine.WithDefaultTimeout(fw.GetDefaultTaskTimeout()),
		engine.WithRetryBackoff(fw.GetRetryBackoff()),
		engine.WithProgressCallback(bus.Callback()),
	)

	// 5. 创建并启动API服务器
	cfg := api.DefaultServerConfig()
	cfg.Host = *host
	if *port > 0 {
		cfg.Port = *port
	} else {
		cfg.Port = fw.GetHTTPPort()
	}

	server := api.NewAPIServer(eng, reg, repo, bus, cfg, Version)
	go func() {
		if err := server.Start(); err != nil {
			log.Printf("API服务器错误: %v", err)
		}
	}()
	log.Printf("✅ Toolflow Server started on %s:%d", cfg.Host, cfg.Port)

	// 6. 等待中断信号后优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), api.DefaultServerConfig().WriteTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭API服务器失败: %v", err)
	}
	log.Println("✅ 服务已停止")
}
