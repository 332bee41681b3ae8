package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/module"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/repository/memory"
)

func newInputsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inputs",
		Short: "Print inputs available to the module at --index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("agent")
			index, _ := cmd.Flags().GetInt("index")

			a, err := memory.LoadAgentFile(path)
			if err != nil {
				return err
			}
			modules := domain.OrderedModules(a.Modules)
			if index < 0 || index > len(modules) {
				return fmt.Errorf("index %d out of range [0, %d]", index, len(modules))
			}
			inputs := module.AvailableInputs(module.Default(), modules, index)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(inputs)
		},
	}
	cmd.Flags().String("agent", "", "agent YAML file")
	cmd.Flags().Int("index", 0, "module position in the ordered chain")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}
