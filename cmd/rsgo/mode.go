package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/health"
	"github.com/spf13/cobra"
)

var modeCmd = &cobra.Command{
	Use:   "mode <stack> <mode>",
	Short: "Change the operation mode of a stack",
	Long: fmt.Sprintf(`Change the operation mode of a deployed stack.

Modes: %s

The mode sets the best overall health a stack can report; a stack in
Maintenance is at most Degraded even when every container is healthy.`, modeNames()),
	Args: cobra.ExactArgs(2),
	RunE: runMode,
}

func init() {
	rootCmd.AddCommand(modeCmd)
}

func runMode(cmd *cobra.Command, args []string) error {
	stack := args[0]
	mode, err := health.ParseOperationMode(args[1])
	if err != nil {
		return err
	}

	return withState(cmd, func(ctx context.Context, a *app, env domain.EnvironmentID) error {
		existing, err := a.deployments.GetByStack(ctx, env, stack)
		if err != nil {
			return err
		}
		previous := existing.OperationMode()
		d, err := a.stacks.ChangeOperationMode(ctx, existing.ID(), mode)
		if err != nil {
			return err
		}
		if previous == d.OperationMode() {
			fmt.Fprintf(cmd.OutOrStdout(), "Stack %s is already in %s mode\n", stack, mode)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Stack %s: %s -> %s\n", stack, previous, d.OperationMode())
		return nil
	})
}

func modeNames() string {
	modes := health.Modes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}
