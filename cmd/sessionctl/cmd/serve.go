package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/sessionstore/api"
	"github.com/jmcleod/sessionstore/config"
	"github.com/jmcleod/sessionstore/session"
)

var (
	listenAddr string
	tlsCert    string
	tlsKey     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the admin HTTP API and sweep expired sessions in the background",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (tlsCert == "") != (tlsKey == "") {
			return errors.New("--tls-cert and --tls-key must be given together")
		}
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer e.store.Close()

		addr := e.cfg.Admin.Addr
		if listenAddr != "" {
			addr = listenAddr
		}
		if e.cfg.Admin.Token == "" && !isLoopback(addr) {
			return fmt.Errorf("refusing to serve on %s without admin.token (set %sADMIN_TOKEN)", addr, config.EnvPrefix)
		}

		a := api.New(e.store,
			api.WithLogger(e.logger),
			api.WithExpiry(e.cfg.Expiry.MaxInactivity, e.cfg.Expiry.MaxLifeTime),
			api.WithAdminToken(e.cfg.Admin.Token),
			api.WithAlertFunc(func(ev api.AlertEvent) {
				e.logger.Warn("admin alert",
					slog.String("type", string(ev.Type)),
					slog.String("message", ev.Message),
					slog.Int("count", ev.Count),
					slog.Int("threshold", ev.Threshold))
			}))

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		sweepCtx, stopSweep := context.WithCancel(cmd.Context())
		defer stopSweep()
		sweeper := session.NewSweeper(e.store, e.cfg.Expiry.MaxInactivity, e.cfg.Expiry.MaxLifeTime,
			session.WithSweepInterval(e.cfg.Expiry.SweepInterval),
			session.WithSweepSchedule(e.cfg.Expiry.SweepSchedule),
			session.WithSweepLogger(e.logger))
		go sweeper.Run(sweepCtx)

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if tlsCert != "" {
				err = server.ListenAndServeTLS(tlsCert, tlsKey)
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.OutOrStdout())
		e.logger.Info("admin API listening",
			slog.String("addr", addr),
			slog.String("backend", e.cfg.Backend),
			slog.Duration("sweep_interval", e.cfg.Expiry.SweepInterval),
			slog.String("sweep_schedule", e.cfg.Expiry.SweepSchedule))

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			e.logger.Info("shutting down", slog.String("signal", sig.String()))
			stopSweep()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// isLoopback reports whether addr only accepts connections from this host.
// An empty host listens on every interface.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (defaults to admin.addr)")
	serveCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serveCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
