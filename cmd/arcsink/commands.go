package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/basekick-labs/arcsink/internal/api"
	"github.com/basekick-labs/arcsink/internal/circuitbreaker"
	"github.com/basekick-labs/arcsink/internal/config"
	"github.com/basekick-labs/arcsink/internal/event"
	"github.com/basekick-labs/arcsink/internal/extract"
	"github.com/basekick-labs/arcsink/internal/logger"
	"github.com/basekick-labs/arcsink/internal/mapping"
	"github.com/basekick-labs/arcsink/internal/metrics"
	"github.com/basekick-labs/arcsink/internal/mqtt"
	"github.com/basekick-labs/arcsink/internal/pipeline"
	"github.com/basekick-labs/arcsink/internal/shutdown"
	"github.com/basekick-labs/arcsink/internal/store"
)

const shutdownTimeout = 30 * time.Second

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "arcsink",
		Short: "Write CloudEvents into a time-series store",
		Long: `arcsink receives CloudEvents over HTTP (and optionally MQTT), extracts
fields and tags with JSONPath mappings and writes one record per event.

Mappings come from FIELD_<name>, TYPE_FIELD_<name> and TAG_<name>
environment variables or the [fields], [field_types] and [tags] tables of
arcsink.toml.`,
		SilenceUsage: true,
		Version:      Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to a config file (default: ./arcsink.toml or /etc/arcsink/arcsink.toml)")

	root.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
		newEvalCmd(opts),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the event receiver (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and mappings, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configFile)
			if err != nil {
				return err
			}
			builder, err := newBuilder(cfg)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), cfg, builder)
			return nil
		},
	}
}

func newEvalCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "eval <event.json>",
		Short: "Print the line protocol record built from a structured CloudEvent",
		Long: `eval reads a CloudEvent in structured JSON mode from a file ("-" for
stdin), applies the configured mappings and prints the resulting line
protocol record without writing it anywhere.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configFile)
			if err != nil {
				return err
			}
			builder, err := newBuilder(cfg)
			if err != nil {
				return err
			}

			body, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			ev, err := event.ParseStructured(body)
			if err != nil {
				return err
			}
			rec, err := builder.Build(ev)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rec == nil {
				fmt.Fprintln(out, "no field mapping matched, nothing to write")
				return nil
			}
			fmt.Fprintln(out, string(store.EncodeLine(rec)))
			return nil
		},
	}
}

// loadConfig loads and validates the configuration
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.MQTT.Enabled {
		if err := mqtt.ValidateConfig(&cfg.MQTT); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

// newBuilder compiles the configured mappings
func newBuilder(cfg *config.Config) (*extract.Builder, error) {
	fields, err := mapping.NewFieldSet(cfg.Mappings.Fields, cfg.Mappings.FieldTypes)
	if err != nil {
		return nil, fmt.Errorf("invalid field mapping: %w", err)
	}
	tags, err := mapping.NewTagSet(cfg.Mappings.Tags)
	if err != nil {
		return nil, fmt.Errorf("invalid tag mapping: %w", err)
	}
	return extract.NewBuilder(cfg.Store.Table, fields, tags), nil
}

func printSummary(w io.Writer, cfg *config.Config, builder *extract.Builder) {
	fmt.Fprintf(w, "store:       %s %s (database %q, table %q)\n", cfg.Store.Backend, cfg.Store.URI, cfg.Store.Database, cfg.Store.Table)
	fmt.Fprintf(w, "listen:      %s\n", cfg.Server.BindAddr)
	if cfg.MQTT.Enabled {
		fmt.Fprintf(w, "mqtt:        %s %v\n", cfg.MQTT.Broker, cfg.MQTT.Topics)
	}
	if builder.Fields().Len() == 0 {
		fmt.Fprintln(w, "warning:     no field mappings, every event will be skipped")
	}
	for _, p := range builder.Fields().Paths() {
		fmt.Fprintf(w, "field %-12s %s (%s)\n", p.Name(), p.Expression(), p.Hint())
	}
	for _, p := range builder.Tags().Paths() {
		fmt.Fprintf(w, "tag   %-12s %s\n", p.Name(), p.Expression())
	}
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	body, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	return body, nil
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("Starting arcsink...")

	metrics.Init(logger.Get("metrics"))

	builder, err := newBuilder(cfg)
	if err != nil {
		return err
	}
	if cfg.Mappings.Empty() {
		log.Warn().Msg("No field mappings configured; every event will be skipped")
	}
	log.Info().
		Int("fields", builder.Fields().Len()).
		Int("tags", builder.Tags().Len()).
		Str("table", builder.Measurement()).
		Msg("Mappings compiled")

	writer, breaker, err := store.New(&cfg.Store, logger.Get("store"))
	if err != nil {
		return fmt.Errorf("failed to create store writer: %w", err)
	}
	log.Info().
		Str("backend", cfg.Store.Backend).
		Str("uri", cfg.Store.URI).
		Str("database", cfg.Store.Database).
		Bool("breaker", breaker != nil).
		Msg("Store writer ready")

	processor := pipeline.NewProcessor(builder, writer, logger.Get("pipeline"))

	server, subscriber := newServer(cfg, processor, breaker)

	coordinator := shutdown.New(shutdownTimeout, logger.Get("shutdown"))
	coordinator.RegisterHook("http-server", server.Shutdown, shutdown.PriorityHTTPServer)
	if subscriber != nil {
		coordinator.RegisterHook("mqtt", func(context.Context) error {
			return subscriber.Stop()
		}, shutdown.PriorityMQTT)
	}
	coordinator.Register("store", writer, shutdown.PriorityStore)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if subscriber != nil {
		g.Go(func() error {
			if err := subscriber.Start(gctx); err != nil {
				return fmt.Errorf("mqtt subscriber: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down arcsink...")
		return coordinator.Shutdown()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("arcsink stopped")
	return nil
}

// newServer builds the HTTP server with every route registered, including the
// MQTT endpoints when the subscriber is enabled. Fiber freezes its routing
// tree when it starts listening, so nothing may be registered after Run.
func newServer(cfg *config.Config, processor *pipeline.Processor, breaker *circuitbreaker.CircuitBreaker) (*api.Server, *mqtt.Subscriber) {
	serverConfig := api.DefaultServerConfig()
	serverConfig.BindAddr = cfg.Server.BindAddr
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.MaxPayloadSize = int(cfg.Server.MaxPayloadSize)
	if cfg.Server.TLSEnabled {
		serverConfig.TLSCertFile = cfg.Server.TLSCertFile
		serverConfig.TLSKeyFile = cfg.Server.TLSKeyFile
	}

	server := api.NewServer(serverConfig, logger.Get("api"))
	server.RegisterRoutes(processor, breaker)

	if !cfg.MQTT.Enabled {
		return server, nil
	}
	subscriber := mqtt.NewSubscriber(&cfg.MQTT, processor, cfg.Server.MaxPayloadSize, logger.Get("mqtt"))
	server.RegisterMQTT(subscriber)
	return server, subscriber
}
