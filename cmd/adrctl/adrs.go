package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"adrmanager/internal/adr"

	"github.com/spf13/cobra"
)

func newListCmd(opts *options) *cobra.Command {
	var (
		filter adr.Filter
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ADRs, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			var items []adr.ADR
			if filter.IsZero() {
				items, err = svc.List(cmd.Context())
			} else {
				items, err = svc.Filter(cmd.Context(), filter)
			}
			if err != nil {
				return fmt.Errorf("list adrs: %w", err)
			}
			sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tDATE\tVERSION\tTITLE")
			for _, item := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", item.ID, item.Status, item.Date, item.Version, item.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.Search, "search", "", "substring search over id, title, context and decision")
	cmd.Flags().StringVar(&filter.Status, "status", "", "status to keep (proposed, accepted, rejected, superseded)")
	cmd.Flags().StringVar(&filter.Author, "author", "", "author name substring")
	cmd.Flags().StringSliceVar(&filter.Tags, "tag", nil, "tag to match, repeatable")
	cmd.Flags().StringVar(&filter.DateFrom, "from", "", "earliest date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filter.DateTo, "to", "", "latest date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one ADR as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			record, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), record)
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the commits that changed an ADR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := svc.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COMMIT\tDATE\tAUTHOR\tVERSION\tMESSAGE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", shortSHA(e.Commit), e.Date.Format("2006-01-02 15:04"), e.Author, e.ADR.Version, firstLine(e.Message))
			}
			return tw.Flush()
		},
	}
}

func newCreateCmd(opts *options) *cobra.Command {
	var (
		input adr.Record
		file  string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an ADR from flags or a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			record := input
			if file != "" {
				data, err := readInput(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &record); err != nil {
					return fmt.Errorf("decode %s: %w", file, err)
				}
				if input.Title != "" {
					record.Title = input.Title
				}
			}
			svc, who, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			if len(record.Authors) == 0 {
				record.Authors = []adr.Author{{Name: who.Name}}
			}
			created, err := svc.Create(cmd.Context(), record, who)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created ADR-%s %s\n", created.ID, created.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Title, "title", "", "title")
	cmd.Flags().Var(statusValue{&input.Status}, "status", "initial status (default proposed)")
	cmd.Flags().StringSliceVar(&input.Tags, "tag", nil, "tag, repeatable")
	cmd.Flags().StringVar(&input.Context, "context", "", "context section")
	cmd.Flags().StringVar(&input.Problem, "problem", "", "problem section")
	cmd.Flags().StringVar(&input.Decision, "decision", "", "decision section")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the record from a JSON file ('-' for stdin)")
	return cmd
}

func newUpdateCmd(opts *options) *cobra.Command {
	var (
		set     string
		file    string
		status  adr.Status
		changes string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Merge fields into an ADR and bump its version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates := map[string]json.RawMessage{}
			switch {
			case file != "":
				data, err := readInput(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &updates); err != nil {
					return fmt.Errorf("decode %s: %w", file, err)
				}
			case set != "":
				if err := json.Unmarshal([]byte(set), &updates); err != nil {
					return fmt.Errorf("decode --set: %w", err)
				}
			}
			if status != "" {
				updates["status"] = json.RawMessage(`"` + string(status) + `"`)
			}
			if len(updates) == 0 {
				return fmt.Errorf("nothing to update: pass --set, --file or --status")
			}
			payload, err := json.Marshal(updates)
			if err != nil {
				return err
			}

			svc, who, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			updated, err := svc.Update(cmd.Context(), args[0], payload, changes, who)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated ADR-%s to version %s\n", updated.ID, updated.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&set, "set", "", `JSON object of fields to change, e.g. '{"status":"accepted"}'`)
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the changes from a JSON file ('-' for stdin)")
	cmd.Flags().Var(statusValue{&status}, "status", "new status")
	cmd.Flags().StringVarP(&changes, "message", "m", "", "description of the change, kept in the ADR history")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an ADR file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, who, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.Delete(cmd.Context(), args[0], who); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted ADR-%s\n", args[0])
			return nil
		},
	}
}

// statusValue validates --status at parse time.
type statusValue struct {
	target *adr.Status
}

func (v statusValue) String() string {
	if v.target == nil {
		return ""
	}
	return string(*v.target)
}

func (v statusValue) Set(raw string) error {
	s := adr.Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return fmt.Errorf("unknown status %q", raw)
	}
	*v.target = s
	return nil
}

func (statusValue) Type() string { return "status" }

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
