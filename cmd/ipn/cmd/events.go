package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	sqlstore "github.com/goliatone/go-ipn/store/sql"
	"github.com/spf13/cobra"
)

func newEventsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events <invoice-id>",
		Short: "List the audit trail of an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.openClient()
			if err != nil {
				return err
			}
			defer client.Close()
			factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
			if err != nil {
				return err
			}
			records, err := factory.AuditStore().ListEvents(commandContext(cmd), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No events found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tKIND\tERROR\tCREATED AT")
			for _, record := range records {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
					record.Sequence,
					record.Kind,
					record.Error,
					record.CreatedAt.Format(time.RFC3339),
				)
			}
			return w.Flush()
		},
	}
}

func newAttemptsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "attempts <invoice-id>",
		Short: "List delivery attempts recorded for an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.openClient()
			if err != nil {
				return err
			}
			defer client.Close()
			factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
			if err != nil {
				return err
			}
			attempts, err := factory.DeliveryAttemptStore().ListAttempts(commandContext(cmd), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, attempts)
			}
			if len(attempts) == 0 {
				fmt.Fprintln(out, "No attempts found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tTRY\tOUTCOME\tSTATUS\tDURATION\tATTEMPTED AT")
			for _, attempt := range attempts {
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\n",
					attempt.JobIdentity,
					attempt.TryCount,
					attempt.Outcome,
					attempt.StatusCode,
					attempt.Duration,
					attempt.AttemptedAt.Format(time.RFC3339),
				)
			}
			return w.Flush()
		},
	}
}

func writeJSON(out io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
