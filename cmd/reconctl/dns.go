package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var dnsCmd = &cobra.Command{
	Use:   "dns <domain>",
	Short: "Show current DNS records and subdomains from SecurityTrails",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, trails := buildSources()

		report, err := trails.Explore(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, report)
		}

		heading.Fprintln(out, report.Domain)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Type\tValue")
		fmt.Fprintln(w, "----\t-----")
		for _, row := range []struct {
			kind   string
			values []string
		}{
			{"A", report.DNS.A},
			{"MX", report.DNS.MX},
			{"TXT", report.DNS.TXT},
			{"NS", report.DNS.NS},
		} {
			for _, v := range row.values {
				fmt.Fprintf(w, "%s\t%s\n", row.kind, v)
			}
		}
		w.Flush()

		fmt.Fprintln(out)
		fmt.Fprintf(out, "Subdomains (%d):\n", len(report.Subdomains))
		for _, s := range report.Subdomains {
			fmt.Fprintf(out, "  %s\n", s.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dnsCmd)
}
