package main

import (
	"fmt"
	"os"
	"path/filepath"

	"adrmanager/internal/export"

	"github.com/spf13/cobra"
)

func newExportCmd(opts *options) *cobra.Command {
	var (
		format string
		lang   string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export [id]",
		Short: "Export one ADR as md, html, pdf or docx, or the whole repository as JSON",
		Long: `With an id, renders that ADR in --format. Without one, writes the
repository export document (every ADR plus branch status) as JSON.
--out defaults to a file named after the ADR in the current directory;
use --out - for stdout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}

			if len(args) == 0 {
				payload, err := svc.ExportRepository(cmd.Context())
				if err != nil {
					return err
				}
				return writeOutput(cmd, out, "adr-export.json", payload)
			}

			parsed, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			record, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			result, err := export.NewService(export.ParseLanguage(lang)).Export(cmd.Context(), record.Record, parsed)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, result.Filename, result.Data)
		},
	}
	cmd.Flags().StringVar(&format, "format", "md", "md, html, pdf or docx")
	cmd.Flags().StringVar(&lang, "lang", envOr("ADR_EXPORT_LANG", "fr"), "document language (fr or en)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, or - for stdout")
	return cmd
}

func writeOutput(cmd *cobra.Command, out, defaultName string, data []byte) error {
	if out == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if out == "" {
		out = defaultName
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		out = filepath.Join(out, defaultName)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", out, len(data))
	return nil
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the branch, commit count and last commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			status, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if status.Project != nil {
				fmt.Fprintf(w, "project: %s\n", status.Project.PathWithNamespace)
			}
			fmt.Fprintf(w, "branch:  %s\n", status.Branch)
			fmt.Fprintf(w, "commits: %d\n", status.TotalCommits)
			if c := status.LastCommit; c != nil {
				fmt.Fprintf(w, "last:    %s %s (%s, %s)\n", shortSHA(c.ID), firstLine(c.Title), c.AuthorName, c.CommittedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}
