package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevemurr/site-content-server/handler"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			go func() {
				if err := a.content.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("Content watch stopped", "err", err)
				}
			}()

			srv := &http.Server{
				Addr: cfg.Addr(),
				Handler: handler.New(handler.Dependencies{
					Content:        a.content,
					Auth:           a.auth,
					Images:         a.images,
					Notify:         a.notify,
					Payments:       a.payments,
					AllowedOrigins: cfg.Origins(),
					Log:            log,
				}),
				ReadHeaderTimeout: 10 * time.Second,
				// Live streams end with the server context.
				BaseContext: func(net.Listener) context.Context { return ctx },
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("Site content server starting",
					"addr", srv.Addr, "store", cfg.StoreBackend, "data", cfg.DataDir, "images", a.images.Mode())
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
