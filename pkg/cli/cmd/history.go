package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/toolflow/internal/storage"
	"github.com/LENAX/toolflow/pkg/cli/output"
	"github.com/LENAX/toolflow/pkg/config"
)

var (
	historyWorkflow string
	historyLimit    int
	historyRunID    string
)

// historyCmd history命令
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "查询执行历史",
	Long:  `从配置的历史存储中查询工作流执行记录。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fw, err := config.LoadFramework(configPath)
		if err != nil {
			output.Error("加载框架配置失败: %v", err)
			return err
		}

		repo, err := storage.NewRunRepository(fw.GetDatabaseType(), fw.GetDatabaseDSN())
		if err != nil {
			output.Error("历史存储不可用: %v", err)
			return err
		}
		defer repo.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 指定RunID时展示单次执行明细
		if historyRunID != "" {
			record, err := repo.GetRun(ctx, historyRunID)
			if err != nil {
				output.Error("查询失败: %v", err)
				return err
			}
			if outputJSON {
				return output.PrintJSON(record)
			}

			table := output.NewTable([]string{"TASK", "STATUS", "ATTEMPTS", "WAVE", "ERROR"})
			for _, task := range record.Tasks {
				errMsg := "-"
				if task.ErrorMsg != "" {
					errMsg = task.ErrorMsg
				}
				table.AddRow([]string{
					task.TaskID,
					output.Status(task.Status),
					formatInt(task.Attempts),
					formatInt(task.Wave),
					errMsg,
				})
			}
			table.Render()
			return nil
		}

		records, err := repo.ListRuns(ctx, historyWorkflow, historyLimit)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(records)
		}
		if len(records) == 0 {
			output.Info("暂无执行记录")
			return nil
		}

		table := output.NewTable([]string{"RUN_ID", "WORKFLOW", "STATUS", "STARTED", "DURATION"})
		for _, r := range records {
			table.AddRow([]string{
				r.RunID,
				r.WorkflowName,
				output.Status(r.Status),
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			})
		}
		table.Render()
		return nil
	},
}

func formatInt(n int) string {
	if n < 0 {
		return "-"
	}
	return strconv.Itoa(n)
}

func init() {
	historyCmd.Flags().StringVarP(&historyWorkflow, "workflow", "w", "", "按工作流名称过滤")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "返回条数上限")
	historyCmd.Flags().StringVarP(&historyRunID, "run", "r", "", "查看指定RunID的执行明细")
}
