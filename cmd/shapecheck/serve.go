package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ggoodman/optshape/coerce"
	"github.com/ggoodman/optshape/coercehttp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the descriptor registry and coercion endpoints over HTTP",
	Long: `Configuration comes from the environment: SHAPECHECK_ADDR, SHAPECHECK_STORE
(memory or redis, with REDIS_ADDR and SHAPES_KEY_PREFIX), SHAPECHECK_LOG_LEVEL,
SHAPECHECK_STRATEGY. Bearer authentication of writes uses one of
SHAPECHECK_JWT_KEY (HS256), SHAPECHECK_JWKS_URL or SHAPECHECK_OIDC_ISSUER,
with SHAPECHECK_JWT_ISSUER, SHAPECHECK_JWT_AUDIENCE and SHAPECHECK_JWT_SCOPES.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	strategy, err := coerce.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}
	store, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	opts := []coercehttp.Option{
		coercehttp.WithLogger(log),
		coercehttp.WithDefaultStrategy(strategy),
		coercehttp.WithMaxBodyBytes(cfg.MaxBodyBytes),
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authn, err := cfg.authenticator(ctx)
	if err != nil {
		return err
	}
	if authn != nil {
		opts = append(opts, coercehttp.WithAuthenticator(authn))
	}
	h, err := coercehttp.New(store, opts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serve.start", slog.String("addr", cfg.Addr), slog.String("store", cfg.Store), slog.Bool("auth", authn != nil))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("serve.shutdown")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
