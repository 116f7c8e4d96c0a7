package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the product catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog products",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		products := a.catalog.GetAllProducts()
		if len(products) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No products found (set RSGO_CATALOG_FILE)")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d product versions in catalog\n\n", a.catalog.Count())
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "GROUP\tNAME\tVERSION\tSTACKS")
		for _, p := range products {
			versions := []string{p.ProductVersion}
			if all {
				versions = versions[:0]
				for _, v := range a.catalog.GetProductVersions(p.GroupID) {
					versions = append(versions, v.ProductVersion)
				}
			}
			stacks := make([]string, 0, len(p.Stacks))
			for _, s := range p.Stacks {
				stacks = append(stacks, s.Name)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.GroupID, p.Name, strings.Join(versions, ","), strings.Join(stacks, ","))
		}
		return w.Flush()
	},
}

var catalogUpgradesCmd = &cobra.Command{
	Use:   "upgrades <group-id> <current-version>",
	Short: "List catalog versions newer than the given one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		upgrades := a.catalog.GetAvailableUpgrades(args[0], args[1])
		if len(upgrades) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is up to date\n", args[0], args[1])
			return nil
		}
		for _, p := range upgrades {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", p.GroupID, p.ProductVersion)
		}
		return nil
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <product-id>",
	Short: "Show the stacks and contexts of a product version (group@version)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		product, ok := a.catalog.GetProduct(args[0])
		if !ok {
			return fmt.Errorf("product %s: %w", args[0], domain.ErrNotFound)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s (%s)\n", product.Name, product.ProductVersion, product.ID)
		if product.Description != "" {
			fmt.Fprintln(out, product.Description)
		}
		for _, stack := range product.Stacks {
			fmt.Fprintf(out, "\nStack %s\n", stack.Name)
			if stack.Manifest == nil {
				continue
			}
			if obs := stack.Manifest.MaintenanceObserver; obs != nil {
				fmt.Fprintf(out, "  maintenance observer: %s\n", obs.Type)
			}
			for _, c := range stack.Manifest.Contexts {
				fmt.Fprintf(out, "  - %s: %s\n", c.Name, c.Image)
			}
		}
		return nil
	},
}

func init() {
	catalogListCmd.Flags().Bool("all", false, "Show every version of each product")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogShowCmd)
	catalogCmd.AddCommand(catalogUpgradesCmd)
}
