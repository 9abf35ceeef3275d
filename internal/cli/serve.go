package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/governor/internal/api"
	"github.com/ppiankov/governor/internal/health"
	"github.com/ppiankov/governor/internal/policy"
)

var (
	servePort     int
	serveGRPCPort int
	serveNoWatch  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP listen port (overrides server.port)")
	serveCmd.Flags().IntVar(&serveGRPCPort, "grpc-port", 0, "gRPC health port (overrides server.grpc_port, 0 keeps config)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Disable policy hot-reload")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the governor HTTP API",
	Long: "Runs the governor as an HTTP service. Agents POST proposals to /proposals;\n" +
		"operators read the audit ledger and manage policy over the same API.\n" +
		"Supports hot-reload of the policy file and an optional gRPC health endpoint.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("grpc-port") {
		cfg.Server.GRPCPort = serveGRPCPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, appOptions{alerts: true})
	if err != nil {
		return err
	}
	defer a.Close()

	logger := slog.Default()

	if cfg.Policy.Watch && !serveNoWatch {
		startReloader(ctx, a.store, a.holder, logger)
	}

	if cfg.Server.GRPCPort > 0 {
		hs := health.New(health.Config{Port: cfg.Server.GRPCPort}, logger, a.ledger)
		go hs.Run(ctx)
		go func() {
			if err := hs.Serve(); err != nil {
				logger.Error("health server stopped", "error", err)
			}
		}()
		defer hs.GracefulStop()
	}

	srv := api.New(a.svc, api.NewAuth(cfg.Auth.APIKeys, logger), a.info, logger)
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	logger.Info("starting governor",
		"policy", a.store.Path(),
		"ledger_driver", cfg.Ledger.Driver,
		"judge", a.info.Provider,
		"judge_mock", a.info.Mock,
	)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("governor stopped")
	return nil
}

// startReloader watches the policy file until ctx is cancelled. Failure
// to watch only disables hot-reload.
func startReloader(ctx context.Context, store *policy.Store, holder *policy.Holder, logger *slog.Logger) {
	if err := os.MkdirAll(filepath.Dir(store.Path()), 0700); err != nil {
		logger.Warn("hot-reload disabled", "error", err)
		return
	}
	reloader, err := policy.NewReloader(store, holder, logger)
	if err != nil {
		logger.Warn("hot-reload disabled", "error", err)
		return
	}
	go func() {
		if err := reloader.Run(ctx); err != nil {
			logger.Warn("policy watcher stopped", "error", err)
		}
	}()
}
