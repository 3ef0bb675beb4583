package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/toolflow/internal/storage"
	"github.com/LENAX/toolflow/pkg/cli/output"
	"github.com/LENAX/toolflow/pkg/config"
	"github.com/LENAX/toolflow/pkg/core/engine"
	"github.com/LENAX/toolflow/pkg/core/executor"
	"github.com/LENAX/toolflow/pkg/core/progress"
	"github.com/LENAX/toolflow/pkg/core/workflow"
	"github.com/LENAX/toolflow/pkg/storage/dao"
	"github.com/LENAX/toolflow/pkg/tools"
)

var runNoHistory bool

// runCmd run命令
var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "执行工作流",
	Long:  `加载YAML工作流定义并用内置工具集执行，执行结束后展示各任务结果。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := config.LoadWorkflow(args[0])
		if err != nil {
			output.Error("加载工作流失败: %v", err)
			return err
		}

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

		eng := engine.NewEngine(
			engine.WithDefaultTimeout(fw.GetDefaultTaskTimeout()),
			engine.WithRetryBackoff(fw.GetRetryBackoff()),
			engine.WithProgressCallback(printProgress),
		)

		result, err := eng.RunDefinition(context.Background(), def, reg)
		if err != nil {
			output.Error("执行失败: %v", err)
			return err
		}

		if !runNoHistory {
			saveHistory(fw, result)
		}

		if outputJSON {
			return output.PrintJSON(result)
		}
		printResult(def, result)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "本次执行不写入历史")
}

// printProgress 任务状态事件的终端输出
func printProgress(ev progress.Event) {
	switch ev.Status {
	case workflow.TaskStatusRunning:
		output.Info("任务 %s 开始执行", ev.TaskID)
	case workflow.TaskStatusSucceeded:
		output.Success("任务 %s 完成（尝试%d次）", ev.TaskID, ev.Attempts)
	case workflow.TaskStatusFailed:
		output.Error("任务 %s 失败: %s", ev.TaskID, ev.Error)
	case workflow.TaskStatusSkipped:
		output.Warning("任务 %s 被跳过（%s）", ev.TaskID, ev.SkipCause)
	}
}

// saveHistory 将执行结果写入历史存储，失败只告警
func saveHistory(fw *config.FrameworkConfig, result *workflow.WorkflowResult) {
	repo, err := storage.NewRunRepository(fw.GetDatabaseType(), fw.GetDatabaseDSN())
	if err != nil {
		output.Warning("历史存储不可用: %v", err)
		return
	}
	defer repo.Close()

	record, err := dao.FromResult(result)
	if err != nil {
		output.Warning("转换执行记录失败: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.SaveRun(ctx, record); err != nil {
		output.Warning("写入执行历史失败: %v", err)
	}
}

// printResult 表格形式输出执行结果
func printResult(def *workflow.WorkflowDefinition, result *workflow.WorkflowResult) {
	fmt.Println()
	table := output.NewTable([]string{"TASK", "STATUS", "ATTEMPTS", "WAVE", "DETAIL"})
	for _, task := range def.Tasks {
		id := task.EffectiveID()
		st, exists := result.Tasks[id]
		if !exists {
			continue
		}
		detail := "-"
		if st.ErrorMsg != "" {
			detail = st.ErrorMsg
		} else if st.SkipCause != "" {
			detail = string(st.SkipCause)
		}
		table.AddRow([]string{
			id,
			output.Status(string(st.Status)),
			fmt.Sprintf("%d", st.Attempts),
			fmt.Sprintf("%d", st.Wave),
			detail,
		})
	}
	table.Render()

	duration := result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)
	fmt.Printf("\nRunID: %s\n状态: %s  耗时: %v\n", result.RunID, output.Status(string(result.Status)), duration)
}
