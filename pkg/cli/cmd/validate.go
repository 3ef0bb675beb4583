package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LENAX/toolflow/pkg/cli/output"
	"github.com/LENAX/toolflow/pkg/config"
	"github.com/LENAX/toolflow/pkg/core/dag"
)

// validateCmd validate命令
var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "校验工作流定义",
	Long:  `解析并校验YAML工作流定义，检查依赖引用和循环依赖，并展示执行批次预览。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := config.LoadWorkflow(args[0])
		if err != nil {
			output.Error("加载工作流失败: %v", err)
			return err
		}

		graph, err := dag.Build(def)
		if err != nil {
			output.Error("校验失败: %v", err)
			return err
		}

		waves := graph.Waves()
		if outputJSON {
			return output.PrintJSON(map[string]interface{}{
				"workflow":   def.Name,
				"task_count": len(def.Tasks),
				"waves":      waves,
			})
		}

		output.Success("工作流 %s 校验通过，共%d个任务", def.Name, len(def.Tasks))
		for i, wave := range waves {
			fmt.Printf("  批次%d: %s\n", i+1, strings.Join(wave, ", "))
		}
		return nil
	},
}
