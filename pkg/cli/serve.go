package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getmockd/idamsim/pkg/config"
	"github.com/getmockd/idamsim/pkg/logging"
	"github.com/getmockd/idamsim/pkg/server"
	"github.com/spf13/cobra"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

var (
	serveConfigPath string
	servePort       int
	serveIssuer     string
	serveLogLevel   string
	serveLogFormat  string
)

// serveCmd starts the simulator in the foreground.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identity simulator (foreground)",
	Long: `Start the identity simulator. Configuration is read from an optional
JSON or YAML file and may be overridden by flags. Without a file the
simulator listens on port 5556 with no seeded accounts.`,
	Example: `  # Start with defaults
  idamsim serve

  # Start with a config file on a custom port
  idamsim serve --config idamsim.yaml --port 5062

  # Start with JSON logs at debug level
  idamsim serve --log-level debug --log-format json`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to configuration file (JSON or YAML)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP listen port (overrides config)")
	serveCmd.Flags().StringVar(&serveIssuer, "issuer", "", "OIDC issuer URL (overrides config)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "", "Log format: text, json")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: logging.ParseFormat(cfg.Logging.Format),
	})

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Printf("idamsim listening on port %d (issuer %s)\n", cfg.Port, cfg.IssuerURL())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
	}
	fmt.Println("\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func loadServeConfig() (*config.Config, error) {
	cfg := config.Default()
	if serveConfigPath != "" {
		loaded, err := config.Load(serveConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveIssuer != "" {
		cfg.Issuer = serveIssuer
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}
	if serveLogFormat != "" {
		cfg.Logging.Format = serveLogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
