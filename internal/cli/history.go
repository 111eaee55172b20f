package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/enginectl"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent start and stop actions from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Journal == "" {
				return errors.New("no journal configured; set journal in the config file or pass --journal")
			}

			ctrl := enginectl.NewController(a.cfg, &observedState{}, a.cfg.Options(nil)...)
			defer ctrl.Close() //nolint:errcheck // read-only use

			entries, err := ctrl.History(a.ctx(cmd), limit)
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}
			if asJSON {
				return writeHistoryJSON(cmd.OutOrStdout(), entries)
			}
			return writeHistoryTable(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", enginectl.DefaultHistoryLimit, "Number of entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")

	return cmd
}

type historyRecord struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Command    []string  `json:"command"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func writeHistoryJSON(w io.Writer, entries []enginectl.HistoryEntry) error {
	records := make([]historyRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, historyRecord{
			ID:         e.ID,
			Action:     e.Action,
			Command:    e.Argv,
			StartedAt:  e.StartedAt,
			FinishedAt: e.FinishedAt,
			Outcome:    e.Outcome,
			ExitCode:   e.ExitCode,
			Output:     e.Output,
			Error:      e.Error,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func writeHistoryTable(w io.Writer, entries []enginectl.HistoryEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tACTION\tOUTCOME\tEXIT\tDURATION\tCOMMAND")
	for _, e := range entries {
		exit := "-"
		if e.ExitCode != nil {
			exit = fmt.Sprint(*e.ExitCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.RFC3339),
			e.Action,
			e.Outcome,
			exit,
			e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond),
			strings.Join(e.Argv, " "),
		)
	}
	return tw.Flush()
}
