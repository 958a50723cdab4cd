package command

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Skotchmaster/academy/internal/httpserver"
	"github.com/Skotchmaster/academy/internal/logging"
	"github.com/Skotchmaster/academy/internal/middleware/auth"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the auth HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (runErr error) {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeApp(a, &runErr)

			logger := logging.FromContext(cmd.Context())
			e := httpserver.New(&httpserver.Deps{
				Auth:     &httpserver.AuthHTTP{Svc: a.svc},
				Accounts: &httpserver.AccountsHTTP{Svc: a.svc},
				Health:   &httpserver.HealthHTTP{DB: a.db},
				Filter:   auth.NewFilter(a.codec, cfg.PublicPrefixes),
				Logger:   logger,
			})

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           e,
				ReadTimeout:       10 * time.Second,
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			grp, ctx := errgroup.WithContext(cmd.Context())
			grp.Go(func() error {
				logger.Info("starting http server", "address", cfg.HTTPAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			grp.Go(func() error {
				<-ctx.Done()
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return grp.Wait()
		},
	}
}
