package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"solana-fund-dao/internal/reporting"
)

// Statement output formats.
const (
	formatMarkdown   = "markdown"
	formatJournalCSV = "journal-csv"
	formatMembersCSV = "members-csv"
)

func inspectCmd(g *globalFlags) *cobra.Command {
	var (
		format    string
		reconcile bool
		out       string
	)

	cmd := &cobra.Command{
		Use:   "inspect <fund-id>",
		Short: "Render a fund statement from the ledger journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.reports.WithReconcile(reconcile).Generate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			body, err := renderStatement(report, format)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			_, err = io.WriteString(w, body)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatMarkdown, "Output format (markdown, journal-csv, members-csv)")
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "Compare member shares with the token issuer")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to file instead of stdout")
	return cmd
}

func renderStatement(r *reporting.Report, format string) (string, error) {
	switch format {
	case formatMarkdown:
		return reporting.RenderMarkdown(r), nil
	case formatJournalCSV:
		return reporting.RenderJournalCSV(r.Entries), nil
	case formatMembersCSV:
		return reporting.RenderMembersCSV(r.Members), nil
	}
	return "", fmt.Errorf("unknown format %q (want %s, %s or %s)", format, formatMarkdown, formatJournalCSV, formatMembersCSV)
}
