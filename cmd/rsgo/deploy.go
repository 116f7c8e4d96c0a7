package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/orchestrator"
	"github.com/readystackgo/rsgo/internal/productdeployment"
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a stack or a catalog product",
	Long: `Deploy a stack from a release manifest, or every stack of a catalog product.

Interrupting the command cancels the deployment before the next container
is created; the deployment is then marked as failed.

Examples:
  # Deploy a stack from a manifest
  rsgo deploy --stack shop -f shop.yaml

  # Deploy a stack from a compose file
  rsgo deploy --stack shop -f compose.yml --compose --stack-version 1.2.0

  # Deploy the latest version of a catalog product
  rsgo deploy --product acme.suite`,
	RunE: runDeploy,
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade a running stack or product",
	Long: `Upgrade a stack to a new manifest, or a product to a newer catalog version.

Examples:
  rsgo upgrade --stack shop -f shop-1.1.yaml
  rsgo upgrade --product acme.suite --version 2.0.0`,
	RunE: runUpgrade,
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a stack or product and its containers",
	RunE:  runRemove,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Fail a deployment left in progress",
	Long: `Cancel marks an in-progress deployment as failed.

The deployment store can only be opened by one process at a time, so no
deployment is executing when this command runs. Use it to release a stack
whose deploy process died; interrupt a running deploy with Ctrl+C instead.`,
	RunE: runCancel,
}

func init() {
	for _, cmd := range []*cobra.Command{deployCmd, upgradeCmd} {
		addManifestFlags(cmd)
		cmd.Flags().String("stack", "", "Stack name")
		cmd.Flags().String("product", "", "Catalog product group ID")
		cmd.Flags().String("version", "", "Product version (defaults to the latest)")
		cmd.Flags().Bool("continue-on-error", false, "Keep deploying product stacks after a failure")
		cmd.Flags().String("deployed-by", os.Getenv("USER"), "Name recorded on the deployment")
		cmd.MarkFlagsMutuallyExclusive("stack", "product")
		cmd.MarkFlagsOneRequired("stack", "product")
	}

	removeCmd.Flags().String("stack", "", "Stack name")
	removeCmd.Flags().String("product", "", "Catalog product group ID")
	removeCmd.MarkFlagsMutuallyExclusive("stack", "product")
	removeCmd.MarkFlagsOneRequired("stack", "product")

	cancelCmd.Flags().String("stack", "", "Stack name (required)")
	cancelCmd.Flags().String("reason", deployment.DefaultCancellationReason, "Cancellation reason")
	_ = cancelCmd.MarkFlagRequired("stack")
}

// withState opens the app with its state stores and resolves the environment.
func withState(cmd *cobra.Command, fn func(ctx context.Context, a *app, env domain.EnvironmentID) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.openState(); err != nil {
		return err
	}
	env, err := a.environment(ctx, cmd)
	if err != nil {
		return err
	}
	return fn(ctx, a, env)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	stack, _ := cmd.Flags().GetString("stack")
	group, _ := cmd.Flags().GetString("product")
	version, _ := cmd.Flags().GetString("version")
	continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
	deployedBy, _ := cmd.Flags().GetString("deployed-by")
	out := cmd.OutOrStdout()

	vars, err := variablesFromFlags(cmd)
	if err != nil {
		return err
	}

	return withState(cmd, func(ctx context.Context, a *app, env domain.EnvironmentID) error {
		if group != "" {
			pd, err := a.productSvc.Deploy(ctx, orchestrator.ProductRequest{
				EnvironmentID:   env,
				GroupID:         group,
				Version:         version,
				Variables:       vars,
				DeployedBy:      deployedBy,
				ContinueOnError: continueOnError,
			})
			if pd != nil {
				printProduct(out, pd)
			}
			if err != nil {
				return err
			}
			return productError(pd)
		}

		m, err := manifestSourceFromFlags(cmd, stack).load(ctx, a.cfg.DockerTimeout)
		if err != nil {
			return err
		}
		resp, err := a.stacks.Deploy(ctx, orchestrator.StackRequest{
			EnvironmentID: env,
			StackName:     stack,
			Manifest:      m,
			Variables:     vars,
			DeployedBy:    deployedBy,
		})
		return stackOutcome(out, resp, err)
	})
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	stack, _ := cmd.Flags().GetString("stack")
	group, _ := cmd.Flags().GetString("product")
	version, _ := cmd.Flags().GetString("version")
	continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
	deployedBy, _ := cmd.Flags().GetString("deployed-by")
	out := cmd.OutOrStdout()

	vars, err := variablesFromFlags(cmd)
	if err != nil {
		return err
	}

	return withState(cmd, func(ctx context.Context, a *app, env domain.EnvironmentID) error {
		if group != "" {
			pd, err := a.productSvc.Upgrade(ctx, orchestrator.ProductUpgradeRequest{
				EnvironmentID:   env,
				GroupID:         group,
				TargetVersion:   version,
				Variables:       vars,
				DeployedBy:      deployedBy,
				ContinueOnError: continueOnError,
			})
			if pd != nil {
				printProduct(out, pd)
			}
			if err != nil {
				return err
			}
			return productError(pd)
		}

		existing, err := a.deployments.GetByStack(ctx, env, stack)
		if err != nil {
			return err
		}
		m, err := manifestSourceFromFlags(cmd, existing.ProjectName()).load(ctx, a.cfg.DockerTimeout)
		if err != nil {
			return err
		}
		resp, err := a.stacks.Upgrade(ctx, orchestrator.UpgradeRequest{
			DeploymentID: existing.ID(),
			Manifest:     m,
			Variables:    vars,
		})
		return stackOutcome(out, resp, err)
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	stack, _ := cmd.Flags().GetString("stack")
	group, _ := cmd.Flags().GetString("product")
	out := cmd.OutOrStdout()

	return withState(cmd, func(ctx context.Context, a *app, env domain.EnvironmentID) error {
		if group != "" {
			existing, err := a.products.GetLatestForProduct(ctx, env, group)
			if err != nil {
				return err
			}
			pd, err := a.productSvc.Remove(ctx, existing.ID())
			if pd != nil {
				printProduct(out, pd)
			}
			return err
		}

		existing, err := a.deployments.GetByStack(ctx, env, stack)
		if err != nil {
			return err
		}
		d, err := a.stacks.Remove(ctx, existing.ID())
		if err != nil {
			return err
		}
		if d.Status() != deployment.StatusRemoved {
			return fmt.Errorf("stack %s was not fully removed; run remove again", stack)
		}
		fmt.Fprintf(out, "✓ Stack %s removed\n", stack)
		return nil
	})
}

func runCancel(cmd *cobra.Command, args []string) error {
	stack, _ := cmd.Flags().GetString("stack")
	reason, _ := cmd.Flags().GetString("reason")

	return withState(cmd, func(ctx context.Context, a *app, env domain.EnvironmentID) error {
		existing, err := a.deployments.GetByStack(ctx, env, stack)
		if err != nil {
			return err
		}
		d, err := a.stacks.Abort(ctx, existing.ID(), reason)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deployment %s of stack %s: %s\n", d.ID(), stack, d.ErrorMessage())
		return nil
	})
}

func stackOutcome(out io.Writer, resp *orchestrator.StackResponse, err error) error {
	if resp != nil && resp.Deployment != nil {
		printDeployment(out, resp)
	}
	if err != nil {
		return err
	}
	if !resp.Succeeded() {
		return fmt.Errorf("deployment failed: %s", resp.Deployment.ErrorMessage())
	}
	return nil
}

func printDeployment(out io.Writer, resp *orchestrator.StackResponse) {
	d := resp.Deployment
	fmt.Fprintf(out, "Stack:      %s\n", d.StackName())
	fmt.Fprintf(out, "Deployment: %s\n", d.ID())
	fmt.Fprintf(out, "Version:    %s\n", d.StackVersion())
	fmt.Fprintf(out, "Status:     %s\n", d.Status())
	if resp.Result != nil {
		fmt.Fprintf(out, "Duration:   %s\n", resp.Result.Duration)
		for _, warning := range resp.Result.Warnings {
			fmt.Fprintf(out, "  ! %s\n", warning)
		}
	}
	for _, svc := range d.Services() {
		fmt.Fprintf(out, "  - %s (%s) %s\n", svc.Name, svc.Image, svc.Status)
	}
	if msg := d.ErrorMessage(); msg != "" {
		fmt.Fprintf(out, "Error:      %s\n", msg)
	}
}

func printProduct(out io.Writer, pd *productdeployment.ProductDeployment) {
	fmt.Fprintf(out, "Product: %s %s\n", pd.ProductName(), pd.ProductVersion())
	fmt.Fprintf(out, "Status:  %s (%d/%d stacks running)\n", pd.Status(), pd.CompletedStacks(), pd.TotalStacks())
	for _, s := range pd.Stacks() {
		line := fmt.Sprintf("  - %s: %s", s.Name(), s.Status())
		if msg := s.ErrorMessage(); msg != "" {
			line += " (" + msg + ")"
		}
		fmt.Fprintln(out, line)
	}
	if msg := pd.ErrorMessage(); msg != "" {
		fmt.Fprintf(out, "Error:   %s\n", strings.TrimSpace(msg))
	}
}

func productError(pd *productdeployment.ProductDeployment) error {
	switch pd.Status() {
	case productdeployment.StatusFailed:
		return fmt.Errorf("product deployment failed: %s", pd.ErrorMessage())
	case productdeployment.StatusPartiallyRunning:
		return fmt.Errorf("product deployment partially running: %d of %d stacks failed", pd.FailedStacks(), pd.TotalStacks())
	}
	return nil
}
