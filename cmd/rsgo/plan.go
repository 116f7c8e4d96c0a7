package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/readystackgo/rsgo/internal/engine"
	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the deployment plan of a manifest without deploying it",
	Long: `Plan resolves a manifest against the stored configuration and prints the
containers that a deployment would create, in execution order.

Examples:
  rsgo plan --stack shop -f shop.yaml
  rsgo plan --stack shop -f https://example.com/shop.yaml --var TENANT=acme`,
	RunE: runPlan,
}

func init() {
	addManifestFlags(planCmd)
	planCmd.Flags().String("stack", "", "Stack name (required)")
	planCmd.Flags().Bool("show-env", false, "Print the resolved environment of each container")
	planCmd.Flags().Bool("print-manifest", false, "Print the normalised manifest instead of the plan")
	_ = planCmd.MarkFlagRequired("stack")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stack, _ := cmd.Flags().GetString("stack")
	showEnv, _ := cmd.Flags().GetBool("show-env")
	printManifest, _ := cmd.Flags().GetBool("print-manifest")

	vars, err := variablesFromFlags(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	env, err := a.environment(ctx, cmd)
	if err != nil {
		return err
	}
	m, err := manifestSourceFromFlags(cmd, stack).load(ctx, a.cfg.DockerTimeout)
	if err != nil {
		return err
	}
	if printManifest {
		body, err := manifest.Marshal(m)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(body)
		return err
	}

	plan, err := a.engine.GeneratePlan(ctx, engine.PlanRequest{
		Manifest:      m,
		StackName:     stack,
		EnvironmentID: env,
		Variables:     vars,
	})
	if err != nil {
		return err
	}
	return printPlan(cmd.OutOrStdout(), plan, showEnv)
}

func printPlan(out io.Writer, plan *engine.Plan, showEnv bool) error {
	fmt.Fprintf(out, "Stack %s %s (environment %s)\n", plan.StackName, plan.StackVersion, plan.EnvironmentID)
	if plan.Fallback {
		fmt.Fprintln(out, "! dependencies could not be resolved; remaining steps follow manifest order")
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tCONTEXT\tCONTAINER\tIMAGE\tDEPENDS ON")
	for _, step := range plan.Steps {
		deps := "-"
		if len(step.DependsOn) > 0 {
			deps = strings.Join(step.DependsOn, ",")
		}
		name := step.ContextName
		if step.ContextName == plan.GatewayContext {
			name += " (gateway)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", step.Order, name, step.ContainerName, step.Image, deps)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !showEnv {
		return nil
	}
	for _, step := range plan.Steps {
		fmt.Fprintf(out, "\n%s:\n", step.ContainerName)
		for _, key := range slices.Sorted(maps.Keys(step.Env)) {
			fmt.Fprintf(out, "  %s=%s\n", key, step.Env[key])
		}
	}
	return nil
}
