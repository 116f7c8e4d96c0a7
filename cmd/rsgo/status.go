package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/health"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show deployments and their latest health",
	Long: `Status lists the deployments and product deployments of an environment
together with the most recent health snapshot of each stack.

With --stack the health history of a single stack is shown instead.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("stack", "", "Show the health history of one stack")
	statusCmd.Flags().Int("history", 10, "Number of history entries with --stack")
}

func runStatus(cmd *cobra.Command, args []string) error {
	stack, _ := cmd.Flags().GetString("stack")
	limit, _ := cmd.Flags().GetInt("history")
	out := cmd.OutOrStdout()

	return withState(cmd, func(ctx context.Context, a *app, env domain.EnvironmentID) error {
		if stack != "" {
			return printHistory(ctx, out, a, env, stack, limit)
		}
		return printEnvironment(ctx, out, a, env)
	})
}

func printEnvironment(ctx context.Context, out io.Writer, a *app, env domain.EnvironmentID) error {
	deployments, err := a.deployments.ListByEnvironment(ctx, env)
	if err != nil {
		return err
	}
	snapshots, err := a.snapshots.GetLatestForEnvironment(ctx, env)
	if err != nil {
		return err
	}
	latest := make(map[string]*health.Snapshot, len(snapshots))
	for _, s := range snapshots {
		latest[s.DeploymentID()] = s
	}

	fmt.Fprintf(out, "Environment %s\n\n", env)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STACK\tVERSION\tSTATUS\tMODE\tHEALTH\tSERVICES\tCHECKED")
	for _, d := range deployments {
		healthCol, servicesCol, checkedCol := "-", "-", "-"
		if s, ok := latest[string(d.ID())]; ok {
			self := s.Self()
			healthCol = s.Overall().String()
			servicesCol = fmt.Sprintf("%d/%d", self.HealthyCount(), len(self.Services))
			checkedCol = since(s.CapturedAt())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.StackName(), d.StackVersion(), d.Status(), d.OperationMode(), healthCol, servicesCol, checkedCol)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	products, err := a.products.ListByEnvironment(ctx, env)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tVERSION\tSTATUS\tSTACKS\tUPGRADES")
	for _, pd := range products {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\n",
			pd.ProductName(), pd.ProductVersion(), pd.Status(), pd.CompletedStacks(), pd.TotalStacks(), pd.UpgradeCount())
	}
	return w.Flush()
}

func printHistory(ctx context.Context, out io.Writer, a *app, env domain.EnvironmentID, stack string, limit int) error {
	d, err := a.deployments.GetByStack(ctx, env, stack)
	if err != nil {
		return err
	}
	history, err := a.snapshots.GetHistory(ctx, string(d.ID()), limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Stack %s %s (%s, mode %s)\n\n", d.StackName(), d.StackVersion(), d.Status(), d.OperationMode())
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CAPTURED\tHEALTH\tMODE\tUNHEALTHY SERVICES")
	for _, s := range history {
		var failing []string
		for _, svc := range s.Self().Services {
			if svc.Status == health.StatusUnhealthy {
				failing = append(failing, svc.Name)
			}
		}
		failingCol := "-"
		if len(failing) > 0 {
			failingCol = fmt.Sprint(failing)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.CapturedAt().Local().Format(time.DateTime), s.Overall(), s.Mode(), failingCol)
	}
	return w.Flush()
}

func since(t time.Time) string {
	return time.Since(t).Truncate(time.Second).String() + " ago"
}
