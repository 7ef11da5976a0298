// Command signerd is a demo transport binary around the protocol core:
// it owns the process lifecycle an embedded target would otherwise own
// (TCP listener, signal handling, graceful shutdown), none of which the
// core in internal/httpsign depends on.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Bidon15/bls-remote-signer/internal/config"
	"github.com/Bidon15/bls-remote-signer/internal/httpsign"
	"github.com/Bidon15/bls-remote-signer/internal/keystore"
	"github.com/Bidon15/bls-remote-signer/internal/primitives"
	"github.com/Bidon15/bls-remote-signer/internal/transport"
)

const (
	defaultListenAddr = ":9000"
	shutdownTimeout   = 10 * time.Second
)

var version = "dev"

func main() {
	logger := setupLogger()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Error("signerd failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func setupLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SIGNERD")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "signerd",
		Short:   "Remote BLS signer demo server",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v, logger)
		},
	}

	cmd.Flags().String("listen", defaultListenAddr, "TCP address to listen on")
	cmd.Flags().Int("max-keys", config.DefaultMaxKeys, "maximum number of keystore entries")
	_ = v.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("max-keys", cmd.Flags().Lookup("max-keys"))

	return cmd
}

// serverManager owns the listener and the keystore for the process
// lifetime: set up, start, wait for a shutdown signal, shut down.
type serverManager struct {
	logger   *slog.Logger
	listener net.Listener
	server   *transport.Server
}

func runServe(cmd *cobra.Command, v *viper.Viper, logger *slog.Logger) error {
	sm := &serverManager{logger: logger}
	if err := sm.setup(v); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	serveErrors := make(chan error, 1)
	go func() {
		serveErrors <- sm.server.Serve(ctx)
	}()

	logger.Info("signerd is ready", slog.String("addr", sm.listener.Addr().String()))
	return sm.waitForShutdown(cancel, serveErrors)
}

func (sm *serverManager) setup(v *viper.Viper) error {
	cfg := config.Config{MaxKeys: v.GetInt("max-keys")}.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	addr := v.GetString("listen")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	sm.listener = ln

	sm.server = &transport.Server{
		Listener: ln,
		Config:   cfg,
		Logger:   sm.logger,
		Deps: httpsign.Deps{
			Keystore: keystore.New(cfg),
			RNG:      primitives.CryptoRandRNG{},
			Config:   cfg,
		},
	}
	return nil
}

func (sm *serverManager) waitForShutdown(cancel context.CancelFunc, serveErrors <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		sm.logger.Info("received shutdown signal")
	case err := <-serveErrors:
		if err != nil {
			sm.logger.Error("serve loop exited", slog.String("error", err.Error()))
			return err
		}
	}

	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	done := make(chan struct{})
	go func() {
		sm.listener.Close()
		close(done)
	}()

	select {
	case <-done:
		sm.logger.Info("signerd stopped")
		return nil
	case <-shutdownCtx.Done():
		return shutdownCtx.Err()
	}
}
