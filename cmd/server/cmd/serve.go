package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tyrowin/nexus/internal/config"
	"github.com/Tyrowin/nexus/internal/logging"
	"github.com/Tyrowin/nexus/internal/server"
)

var serveOpts struct {
	configFile     string
	port           int
	bind           string
	mode           string
	maxConnections int
	maxWorkers     int
	bufferSize     int
	idleTimeout    time.Duration
	verbose        bool
	httpAddr       string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the connection server",
	Long: `Run the connection server until SIGINT or SIGTERM is received.

Configuration is layered: built-in defaults, then the YAML file given with
--config, then NEXUS_* environment variables, then command-line flags.
On shutdown the final statistics are printed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveOpts.configFile, "config", "c", "", "Path to YAML configuration file")
	f.IntVarP(&serveOpts.port, "port", "p", 0, "TCP port to listen on")
	f.StringVar(&serveOpts.bind, "bind", "", "Address to bind to")
	f.StringVarP(&serveOpts.mode, "mode", "m", "", "Server mode: echo or chat")
	f.IntVar(&serveOpts.maxConnections, "max-connections", 0, "Maximum concurrent connections")
	f.IntVar(&serveOpts.maxWorkers, "max-workers", 0, "Maximum concurrent workers")
	f.IntVar(&serveOpts.bufferSize, "buffer", 0, "Receive buffer size in bytes")
	f.DurationVar(&serveOpts.idleTimeout, "idle-timeout", 0, "Close clients idle for this long (0 disables)")
	f.BoolVarP(&serveOpts.verbose, "verbose", "v", false, "Log every connection event")
	f.StringVar(&serveOpts.httpAddr, "http", "", "Address of the HTTP surface (stats, metrics, WebSocket)")

	rootCmd.AddCommand(serveCmd)
}

// serveConfig reads the configuration and applies the flags the user set.
func serveConfig(cmd *cobra.Command) (config.ServerConfig, error) {
	cfg, err := config.Read(serveOpts.configFile)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = serveOpts.port
	}
	if flags.Changed("bind") {
		cfg.BindAddress = serveOpts.bind
	}
	if flags.Changed("mode") {
		mode, err := config.ParseMode(serveOpts.mode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	if flags.Changed("max-connections") {
		cfg.MaxConnections = serveOpts.maxConnections
	}
	if flags.Changed("max-workers") {
		cfg.MaxWorkerThreads = serveOpts.maxWorkers
	}
	if flags.Changed("buffer") {
		cfg.ReceiveBufferSize = serveOpts.bufferSize
	}
	if flags.Changed("idle-timeout") {
		cfg.ClientIdleTimeout = serveOpts.idleTimeout
	}
	if flags.Changed("verbose") {
		cfg.VerboseLogging = serveOpts.verbose
	}
	if flags.Changed("http") {
		cfg.HTTP.Address = serveOpts.httpAddr
	}

	return cfg, config.Validate(cfg)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := serveConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging, cfg.VerboseLogging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	srv, err := server.Start(cfg, logger)
	if err != nil {
		logger.Error("failed to start server", zap.Error(err))
		return err
	}

	out := cmd.OutOrStdout()
	printBanner(out, srv)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	final := srv.Stop()

	fmt.Fprintln(out)
	fmt.Fprintln(out, bold("Final statistics"))
	printStatistics(out, final)

	return runErr
}

func printBanner(w io.Writer, srv *server.Server) {
	cfg := srv.Config()
	fmt.Fprintf(w, "%s %s\n", bold(cyan("nexus")), faint(version))
	fmt.Fprintf(w, "  %-10s %s\n", "listening", green(srv.Addr().String()))
	fmt.Fprintf(w, "  %-10s %s\n", "mode", yellow(cfg.Mode))
	fmt.Fprintf(w, "  %-10s %d connections, %d workers\n", "limits", cfg.MaxConnections, cfg.MaxWorkerThreads)
	if addr := srv.HTTPAddr(); addr != nil {
		fmt.Fprintf(w, "  %-10s %s\n", "http", green("http://"+addr.String()))
	}
	fmt.Fprintf(w, "  %-10s %s\n", "instance", faint(srv.InstanceID()))
	fmt.Fprintln(w, faint("Press Ctrl+C to stop."))
}
