package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the "history" subcommand.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <request-id>",
		Short: "Show the attempt history recorded for a request",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}

	cmd.Flags().StringP("config", "c", "relay.yaml", "Path to the relay configuration file")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	requestID := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return exitError(exitInputParse, "config has no history.path; nothing is persisted")
	}

	store, err := openHistoryStore(cfg)
	if err != nil {
		return exitError(exitRuntime, "opening history store: %v", err)
	}
	defer store.Close()

	records, err := store.ListByRequest(cmd.Context(), requestID)
	if err != nil {
		return exitError(exitRuntime, "listing history: %v", err)
	}
	if len(records) == 0 {
		return exitError(exitFailedResults, "no history for request %q", requestID)
	}

	for _, rec := range records {
		status := "ok"
		detail := rec.Result.Message()
		if !rec.Result.IsSuccess() {
			status = fmt.Sprintf("failed(%s)", rec.Result.ErrorKind())
			detail = rec.Result.ErrorMessage()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "attempt %d\t%s\t%s\t%s\n",
			rec.Attempt, rec.At.Format(time.RFC3339), status, detail)
	}
	return nil
}
