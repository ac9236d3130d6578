// File: cmd/sss-backend/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/irfanfaraaz/sss-backend/internal/audit"
	"github.com/irfanfaraaz/sss-backend/internal/config"
	"github.com/irfanfaraaz/sss-backend/internal/indexer"
	"github.com/irfanfaraaz/sss-backend/internal/ledger"
	"github.com/irfanfaraaz/sss-backend/internal/metrics"
	"github.com/irfanfaraaz/sss-backend/internal/notification"
	"github.com/irfanfaraaz/sss-backend/internal/screening"
	"github.com/irfanfaraaz/sss-backend/internal/server"
	"github.com/irfanfaraaz/sss-backend/internal/storage"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// shutdownTimeout bounds how long in-flight webhooks may delay exit
const shutdownTimeout = 15 * time.Second

// Application represents the main application
type Application struct {
	config     *config.Config
	logger     *logrus.Entry
	metrics    *metrics.Manager
	client     *ledger.HTTPClient
	store      *storage.EventStore
	indexer    *indexer.Indexer
	screening  *screening.Service
	dispatcher *notification.Dispatcher
	audit      *audit.Log
	server     *server.HTTPServer
}

// NewApplication creates a new application instance
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	app := &Application{config: cfg}

	if err := app.initializeLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.ComponentLogger("app")
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents wires the ledger client, event store, indexer,
// screening, webhooks, audit log and HTTP server together
func (app *Application) initializeComponents(ctx context.Context) error {
	app.logger.Info("Initializing application components")

	app.metrics = metrics.NewManager()
	app.client = ledger.NewClientFromConfig(&app.config.Solana, app.metrics.GetPrometheusMetrics())

	var err error
	app.store, err = storage.NewEventStoreFromConfig(ctx, &app.config.Storage, storage.WithMetrics(app.metrics))
	if err != nil {
		return fmt.Errorf("failed to create event store: %w", err)
	}

	app.indexer = indexer.NewIndexer(app.client, app.store, indexer.NewConfig(&app.config.Solana, &app.config.Indexer))
	app.indexer.SetMetricsManager(app.metrics)

	app.screening = screening.NewService(app.client, screening.NewConfig(&app.config.Solana, &app.config.Screening))
	app.screening.SetMetricsManager(app.metrics)

	app.dispatcher = notification.NewDispatcher(notification.NewDispatcherConfig(&app.config.Webhook))
	app.dispatcher.SetMetricsManager(app.metrics)

	app.audit = audit.NewLog()
	app.audit.SetMetricsManager(app.metrics)

	app.server, err = server.NewHTTPServer(server.NewServerConfig(app.config), server.Dependencies{
		Events:    app.store,
		Node:      app.client,
		Accounts:  app.client,
		Screener:  app.screening,
		Submitter: ledger.NewSubmitterFromConfig(&app.config.Signer),
		Audit:     app.audit,
		Notifier:  app.dispatcher,
		Indexer:   app.indexer,
	}, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"storage":        app.config.Storage.Type,
		"events_loaded":  app.store.Len(),
		"webhook":        app.config.Webhook.URL != "" || len(app.config.Webhook.EventURLs) > 0,
		"screening_url":  app.config.Screening.URL != "",
		"signer_enabled": app.config.Signer.URL != "",
	}).Info("All components initialized successfully")
	return nil
}

// Run serves until ctx is cancelled, then shuts everything down
func (app *Application) Run(ctx context.Context) error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
		"rpc":         app.config.Solana.RPCURL,
		"program":     app.config.Solana.ProgramID,
	}).Info("Starting SSS backend")

	g, gctx := errgroup.WithContext(ctx)

	if app.config.Indexer.Enabled {
		stopIndexer, err := app.indexer.Start(gctx)
		if err != nil {
			return fmt.Errorf("failed to start indexer: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			stopIndexer()
			return app.indexer.Stop()
		})
	} else {
		app.logger.Info("Indexer disabled")
	}

	g.Go(func() error {
		return app.server.Run(gctx)
	})

	err := g.Wait()
	app.Stop()
	return err
}

// Stop releases resources after the server and indexer have stopped
func (app *Application) Stop() {
	app.logger.Info("Stopping SSS backend")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.dispatcher.Wait(ctx); err != nil {
		app.logger.WithError(err).Warn("Abandoning in-flight webhook deliveries")
	}

	if err := app.store.Close(); err != nil {
		app.logger.WithError(err).Error("Failed to close event store")
	}

	app.logger.Info("SSS backend stopped")
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "sss-backend",
	Short:   "Stablecoin event indexer, screening and webhook backend",
	Long:    `Indexes stablecoin program transactions, screens addresses, runs administrative actions and delivers webhooks.`,
	Version: AppVersion,
	RunE:    runServe,
}

// serveCmd is an explicit alias of the root command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and indexer",
	RunE:  runServe,
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if viper.GetBool("debug") {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runServe is the main command to run the backend
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return app.Run(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "SSS backend %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := storage.ValidateStorageConfig(&cfg.Storage); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration is valid!\n")
		fmt.Fprintf(out, "Environment: %s\n", cfg.App.Environment)
		fmt.Fprintf(out, "RPC: %s\n", cfg.Solana.RPCURL)
		fmt.Fprintf(out, "Program: %s\n", cfg.Solana.ProgramID)
		fmt.Fprintf(out, "Storage: %s\n", cfg.Storage.Type)
		fmt.Fprintf(out, "Indexer: enabled=%t interval=%s\n", cfg.Indexer.Enabled, cfg.Indexer.PollInterval())
		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		fmt.Fprintln(out, "Testing SSS backend connectivity...")

		fmt.Fprintf(out, "Testing RPC connection to %s...\n", cfg.Solana.RPCURL)
		client := ledger.NewClientFromConfig(&cfg.Solana, nil)
		slot, err := client.GetSlot(ctx)
		if err != nil {
			return fmt.Errorf("failed to reach RPC node: %w", err)
		}
		fmt.Fprintf(out, "✓ RPC connection successful (slot %d)\n", slot)

		fmt.Fprintf(out, "Testing storage (%s)...\n", cfg.Storage.Type)
		persister, err := storage.NewPersister(ctx, &cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer persister.Close()
		events, err := persister.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load events: %w", err)
		}
		fmt.Fprintf(out, "✓ Storage readable (%d events)\n", len(events))

		fmt.Fprintln(out, "\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newAuditCmd())
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
