package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ipn "github.com/goliatone/go-ipn"
	"github.com/goliatone/go-ipn/adapters/natsjs"
	"github.com/spf13/cobra"
)

const workerShutdownTimeout = 15 * time.Second

func newWorkerCommand(opts *globalOptions) *cobra.Command {
	var natsURL string
	var natsStream string

	command := &cobra.Command{
		Use:   "worker",
		Short: "Drain the durable delivery queue until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			provider, err := opts.configProvider()
			if err != nil {
				return err
			}
			client, err := opts.openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			managerOpts := []ipn.Option{
				ipn.WithConfigProvider(provider),
				ipn.WithPersistenceClient(client),
			}
			if url := strings.TrimSpace(natsURL); url != "" {
				queueCfg := natsjs.DefaultConfig()
				queueCfg.Stream = natsStream
				queue, err := natsjs.Connect(ctx, url, queueCfg)
				if err != nil {
					return err
				}
				defer queue.Close()
				managerOpts = append(managerOpts, ipn.WithJobQueue(queue))
			}

			manager, err := ipn.NewManager(ipn.Config{}, managerOpts...)
			if err != nil {
				return err
			}
			if err := manager.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Worker started")

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
			defer cancel()
			if err := manager.Stop(shutdownCtx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Worker stopped")
			return nil
		},
	}
	command.Flags().StringVar(&natsURL, "nats-url", "", "use a NATS JetStream queue instead of the SQL job table")
	command.Flags().StringVar(&natsStream, "nats-stream", natsjs.DefaultStream, "JetStream stream name")
	return command
}
