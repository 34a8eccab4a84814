package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"switchboard-sdk/pkg/client"
	"switchboard-sdk/pkg/types"
)

func listenCmd(c *cli) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "listen SESSION_ID",
		Short: "Join a session and print every message as a JSON line",
		Long: `listen joins a session and writes each received message to stdout as one
JSON object per line. It reconnects on connection loss and exits when the
session ends, when reconnection gives up, or on SIGINT/SIGTERM.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.listen(cmd, args[0], metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func (c *cli) listen(cmd *cobra.Command, sessionID, metricsAddr string) error {
	reg := prometheus.NewRegistry()
	cl, err := c.newClient(client.WithRegisterer(reg))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ARCHITECTURAL DISCOVERY: Handlers run on the single receive goroutine, so the
	// encoder needs no locking
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, t := range types.MessageTypes() {
		cl.OnMessage(t, func(msg *types.Message) error {
			return enc.Encode(msg)
		})
	}
	cl.OnConnection(func(connected bool) error {
		c.logger.Info().Bool("connected", connected).Str("session_id", sessionID).Msg("Connection changed")
		return nil
	})

	terminal := make(chan error, 1)
	cl.OnError(func(err error) {
		if !types.KindOf(err).Terminal() {
			c.logger.Warn().Err(err).Msg("Session error")
			return
		}
		select {
		case terminal <- err:
		default:
		}
	})

	if err := cl.Connect(ctx, sessionID); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		defer cl.Disconnect()
		select {
		case <-gctx.Done():
			return nil
		case err := <-terminal:
			if errors.Is(err, types.ErrSessionEnded) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Session ended: %s\n", reason(err))
				return nil
			}
			return err
		}
	})

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			c.logger.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func reason(err error) string {
	var e *types.Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return err.Error()
}
