package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lvonguyen/reconlens/internal/enrichment"
	"github.com/lvonguyen/reconlens/internal/risk"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <indicator>",
	Short: "Query IPQuery, Censys and SecurityTrails for one indicator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, _ := buildSources()
		orch := enrichment.NewOrchestrator("basic", sources.Basic(), logger, nil)

		bundle, err := orch.Enrich(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, bundleJSON(bundle, false))
		}
		printBundle(out, bundle, false)
		return nil
	},
}

var deepDiveCmd = &cobra.Command{
	Use:   "deep-dive <indicator>",
	Short: "Enrich one indicator with subdomain enumeration and a risk score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, _ := buildSources()
		orch := enrichment.NewOrchestrator("deep_dive", sources.DeepDive(), logger, nil)

		bundle, err := orch.Enrich(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		summary := risk.Evaluate(bundle)

		out := cmd.OutOrStdout()
		if jsonOutput {
			payload := bundleJSON(bundle, true)
			payload["risks"] = summary
			return printJSON(out, payload)
		}
		printBundle(out, bundle, true)
		printRisk(out, summary)
		return nil
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk [file]",
	Short: "Enrich newline-separated indicators from a file or stdin",
	Long: `Enrich every indicator in the input, one per line, in order. Blank lines
are ignored. The run stops at the first indicator that cannot be enriched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		data, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("failed to read indicators: %w", err)
		}
		indicators := enrichment.ParseList(string(data))
		if len(indicators) == 0 {
			return fmt.Errorf("no indicators in input")
		}

		sources, _ := buildSources()
		runner := enrichment.NewBulkRunner(
			enrichment.NewOrchestrator("basic", sources.Basic(), logger, nil), logger, nil)

		bundles, runErr := runner.Run(cmd.Context(), indicators)

		out := cmd.OutOrStdout()
		if jsonOutput {
			results := make([]map[string]any, len(bundles))
			for i, b := range bundles {
				results[i] = bundleJSON(b, false)
			}
			if err := printJSON(out, map[string]any{"results": results, "count": len(results)}); err != nil {
				return err
			}
		} else {
			for _, b := range bundles {
				printBundle(out, b, false)
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "Summary: %d/%d indicators enriched\n", len(bundles), len(indicators))
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd, deepDiveCmd, bulkCmd)
}
