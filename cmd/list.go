package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/smazurov/actiond/internal/catalog"
)

// ListOptions are the discovery settings resolved from flags, env and settings.
type ListOptions struct {
	ActionsRoot  string
	ManifestFile string
	Toolkit      string
}

type skippedEntry struct {
	Entry  string `json:"entry"`
	Reason string `json:"reason"`
}

type listOutput struct {
	Root    string           `json:"root"`
	Actions []catalog.Action `json:"actions"`
	Skipped []skippedEntry   `json:"skipped"`
}

// CreateListCmd creates the list command. resolve is called when the command
// runs, after the root command parsed its options.
func CreateListCmd(resolve func() ListOptions) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the actions found in the actions root",
		Long: `Runs discovery without launching anything. Every subdirectory of the actions root is shown
either as an action that would be supervised or as skipped, with the reason.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return runList(cmd.OutOrStdout(), resolve(), asJSON)
		},
	}
	listCmd.Flags().Bool("json", false, "Print the result as JSON")
	return listCmd
}

func runList(w io.Writer, opts ListOptions, asJSON bool) error {
	out := listOutput{Root: opts.ActionsRoot, Skipped: []skippedEntry{}}

	result, err := catalog.Discover(opts.ActionsRoot, catalog.Options{
		ManifestFile: opts.ManifestFile,
		Toolkit:      opts.Toolkit,
		Logger:       slog.New(slog.DiscardHandler),
		OnSkip: func(entry, reason string) {
			out.Skipped = append(out.Skipped, skippedEntry{Entry: entry, Reason: reason})
		},
	})
	if err != nil {
		return err
	}
	out.Actions = result.Catalog.Actions()

	if asJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	return renderList(w, out)
}

func renderList(w io.Writer, out listOutput) error {
	found := color.New(color.FgGreen).SprintFunc()
	skipped := color.New(color.FgYellow).SprintFunc()

	if len(out.Actions) == 0 && len(out.Skipped) == 0 {
		fmt.Fprintf(w, "No actions in %s\n", out.Root)
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Name", "Version", "Entry Point", "Status")
	for _, a := range out.Actions {
		entry, err := filepath.Rel(out.Root, a.Target())
		if err != nil {
			entry = a.Target()
		}
		if err := table.Append(a.Name, a.Version, entry, found("found")); err != nil {
			return err
		}
	}
	for _, s := range out.Skipped {
		if err := table.Append(s.Entry, "", "", skipped("skipped: "+s.Reason)); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nActions: %d, skipped: %d\n", len(out.Actions), len(out.Skipped))
	return nil
}
