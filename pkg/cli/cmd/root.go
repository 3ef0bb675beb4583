package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// 全局变量
	configPath string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "toolflow",
	Short: "Toolflow CLI - 工作流编排引擎命令行工具",
	Long: `Toolflow CLI 用于在本地校验和执行工具编排工作流。

支持的功能：
  - 校验工作流定义（依赖引用、环检测、执行批次预览）
  - 执行工作流并展示各任务结果
  - 查询执行历史
  - 启动HTTP API服务

使用示例：
  # 校验工作流定义
  toolflow validate pipeline.yaml

  # 执行工作流
  toolflow run pipeline.yaml

  # 查询历史（需配置存储）
  toolflow history --workflow pipeline

  # 启动HTTP服务
  toolflow serve --port 8080`,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/toolflow.yaml", "框架配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	// 添加子命令
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
