package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nickchat/config"
	"nickchat/directory"
	"nickchat/journal"
	"nickchat/logging"
	"nickchat/protocol"
	"nickchat/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "nickchat",
		Short:        "Store-and-forward chat server addressed by nickname",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newCtlCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)

			var j *journal.Journal
			if cfg.JournalEnabled() {
				j, err = journal.New(cfg.JournalPath)
				if err != nil {
					return fmt.Errorf("open journal: %w", err)
				}
				defer j.Close()
			}

			dir := directory.New(
				directory.WithMaxUsers(cfg.MaxUsers),
				directory.WithLogger(logger.With("component", "directory")),
			)
			srv := server.New(dir, j, &server.ServerConfig{
				Addr:          cfg.Addr,
				WebSocketAddr: cfg.WebSocketAddr,
				IdleTimeout:   cfg.IdleTimeout,
				WriteTimeout:  cfg.WriteTimeout,
				OutboxSize:    cfg.OutboxSize,
			})

			return run(cmd.Context(), srv, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("NICKCHAT_CONFIG"), "path to a YAML config file")
	return cmd
}

// run serves every configured listener until a signal, a control socket
// shutdown or the first listener failure, then shuts the server down.
func run(parent context.Context, srv *server.Server, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.ListenAndServe)
	if cfg.WebSocketAddr != "" {
		g.Go(srv.ListenAndServeWebSocket)
	}
	if cfg.ControlSocket != "" {
		g.Go(func() error {
			return serveControl(gctx, cfg.ControlSocket, srv, cancel)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newCtlCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Send a management command to a running server",
	}
	cmd.PersistentFlags().StringVar(&socketPath, "socket", config.Default().ControlSocket, "control socket path")

	send := func(fields ...string) error {
		conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
		if err != nil {
			return err
		}
		defer conn.Close()

		if _, err := conn.Write([]byte(protocol.FormatPacket(fields[0], fields[1:]...))); err != nil {
			return err
		}
		_, err = io.Copy(os.Stdout, conn)
		return err
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Print user, connection and journal counters",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(ctlStats)
			},
		},
		&cobra.Command{
			Use:   "history <nick> [limit]",
			Short: "Print journaled messages addressed to a user",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(append([]string{ctlHistory}, args...)...)
			},
		},
		&cobra.Command{
			Use:   "shutdown",
			Short: "Stop the server gracefully",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(ctlShutdown)
			},
		},
	)
	return cmd
}
