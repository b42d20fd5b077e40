package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	dispatch "github.com/glimte/mmate-dispatch"
	"github.com/glimte/mmate-dispatch/health"
	"github.com/glimte/mmate-dispatch/interceptors"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	service string
	envFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "dispatchctl",
		Short: "Send and receive mmate-dispatch messages",
		Long: `dispatchctl talks to RabbitMQ the way an mmate-dispatch service does.
Connection settings come from AMQP_* environment variables or a .env file.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.service, "service", "s", "", "Service name (overrides SERVICE_NAME)")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Optional dotenv file")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newListenCmd(flags), newSendCmd(flags))
	return rootCmd
}

func (f *globalFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (f *globalFlags) connect(ctx context.Context, extra ...dispatch.ClientOption) (*dispatch.Client, error) {
	if f.service != "" {
		if err := os.Setenv("SERVICE_NAME", f.service); err != nil {
			return nil, err
		}
	}

	cfg, err := dispatch.LoadConfig(f.envFile)
	if err != nil {
		return nil, err
	}

	extra = append([]dispatch.ClientOption{dispatch.WithLogger(f.logger())}, extra...)
	return dispatch.NewClient(ctx, cfg.ServiceName, cfg.Options(extra...)...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newListenCmd(flags *globalFlags) *cobra.Command {
	var (
		actions    []string
		healthAddr string
		noAck      bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Consume the service queue and print every message",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			metricsRegistry := prometheus.NewRegistry()
			metrics, err := interceptors.NewMetricsInterceptor(metricsRegistry, "dispatchctl")
			if err != nil {
				return err
			}

			chain := interceptors.NewChain(flags.logger()).
				Add(interceptors.NewLoggingInterceptor(flags.logger())).
				Add(metrics)
			if timeout > 0 {
				chain.Add(interceptors.NewTimeoutInterceptor(timeout))
			}

			checker := health.NewConnectionChecker(nil)
			client, err := flags.connect(ctx,
				dispatch.WithStatusListener(checker),
				dispatch.WithInterceptors(chain),
			)
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer func() {
				closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer closeCancel()
				_ = client.Close(closeCtx)
			}()

			handler := printHandler(cmd, !noAck)
			if err := client.Consume(ctx, handler); err != nil {
				return err
			}
			for _, action := range actions {
				if err := client.ConsumeByAction(ctx, action, handler); err != nil {
					return fmt.Errorf("failed to consume action %s: %w", action, err)
				}
			}

			if healthAddr != "" {
				checker.SetSource(client)
				registry := health.NewRegistry(client.ServiceName())
				registry.Register(checker)

				mux := health.NewServeMux(registry, 5*time.Second)
				mux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))

				server := &http.Server{
					Addr:              healthAddr,
					Handler:           mux,
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						slog.Error("health server stopped", "error", err)
					}
				}()
				defer server.Shutdown(context.Background()) //nolint:errcheck
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s... Press Ctrl+C to stop\n", client.ServiceName())
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&actions, "action", "a", nil, "Actions to bind (repeatable)")
	cmd.Flags().StringVar(&healthAddr, "health-addr", "", "Serve /health, /live and /metrics on this address")
	cmd.Flags().BoolVar(&noAck, "no-ack", false, "Nack (requeue) instead of ack")
	cmd.Flags().DurationVar(&timeout, "handler-timeout", 0, "Deadline for each message handler (0 disables)")

	return cmd
}

func printHandler(cmd *cobra.Command, ack bool) dispatch.MessageHandler {
	return dispatch.MessageHandlerFunc(func(ctx context.Context, d *dispatch.Delivery) error {
		content, err := json.Marshal(d.Content)
		if err != nil {
			content = d.Body
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] action=%s routingKey=%s replyTo=%s messageId=%s\n  %s\n",
			d.Properties.Timestamp.Format(time.RFC3339),
			d.Action,
			d.Fields.RoutingKey,
			d.Properties.ReplyTo,
			d.Properties.MessageID,
			content,
		)

		if ack {
			return d.Ack()
		}
		return d.Nack()
	})
}

func newSendCmd(flags *globalFlags) *cobra.Command {
	var (
		msg dispatch.SendMessage
		raw bool
	)

	cmd := &cobra.Command{
		Use:   "send <payload>",
		Short: "Send a message",
		Long: `Send a message to the given recipients, or broadcast it on the topic
exchange as <service>.<action> when no recipient is given. A payload that is
valid JSON is sent as JSON; anything else is sent as a JSON string unless
--raw is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			client, err := flags.connect(ctx)
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer client.Close(context.Background()) //nolint:errcheck

			msg.Payload = parsePayload(args[0], raw)
			msg.IsOriginalContent = raw

			if err := client.Send(ctx, msg); err != nil {
				return fmt.Errorf("failed to send: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&msg.Recipients, "to", "t", nil, "Recipient queues (repeatable)")
	cmd.Flags().StringVarP(&msg.Action, "action", "a", "", "Action header")
	cmd.Flags().StringVar(&msg.RequestID, "request-id", "", "Request id header")
	cmd.Flags().StringVar(&msg.CorrelationID, "correlation-id", "", "Correlation id")
	cmd.Flags().StringVar(&msg.RoutingKey, "routing-key", "", "Routing key override for broadcasts")
	cmd.Flags().BoolVar(&raw, "raw", false, "Send the payload bytes as is")

	return cmd
}

func parsePayload(arg string, raw bool) interface{} {
	if raw {
		return []byte(arg)
	}
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	return arg
}
