package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bidon15/pooldeploy/internal/journal"
)

var runsJSON bool

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect journaled deployment runs",
	}
	cmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "output in JSON format")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List runs, newest first",
			Args:  cobra.NoArgs,
			RunE:  runRunsList,
		},
		&cobra.Command{
			Use:   "show <run-id>",
			Short: "Show one run and the addresses it recorded",
			Args:  cobra.ExactArgs(1),
			RunE:  runRunsShow,
		},
	)
	return cmd
}

func openRuns() (*journal.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return journal.NewStore(cfg.Deployment.StateDir), nil
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	store, err := openRuns()
	if err != nil {
		return err
	}
	runs, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runsJSON {
		return printJSON(out, runs)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintf(out, "No runs in %s\n", store.Dir())
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tNETWORK\tSTEPS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Status, r.Network, len(r.Records), r.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openRuns()
	if err != nil {
		return err
	}
	run, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runsJSON {
		return printJSON(out, run)
	}

	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Plan:     %s\n", run.Plan)
	fmt.Fprintf(out, "Network:  %s (chain %d)\n", run.Network, run.ChainID)
	fmt.Fprintf(out, "Deployer: %s\n", run.Deployer.Hex())
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	if run.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", run.Error)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tLABEL\tADDRESS\tTX\tBLOCK")
	for _, rec := range run.Records {
		tx := "-"
		if rec.TxHash != nil {
			tx = rec.TxHash.Hex()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", rec.Step, rec.Label, rec.Address.Hex(), tx, rec.BlockNumber)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if run.CanResume() {
		_, _ = fmt.Fprintf(out, "\nResume with: pooldeploy deploy --network %s --resume %s\n", run.Network, run.ID)
	}
	return nil
}

// printJSON outputs data as formatted JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
