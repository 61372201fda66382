package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"financas/internal/advisor"
	"financas/internal/cli"
	apphttp "financas/internal/http"
	"financas/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig()
	ctx := context.Background()

	res := cli.OpenBackend(ctx, cfg)

	var opts []services.LedgerOption
	if res.Events != nil {
		opts = append(opts, services.WithPublisher(res.Events))
	}
	// rollover runs here, before the first request is served
	ledger := services.Bootstrap(ctx, res.Store, opts...)

	var gen advisor.Generator
	if cfg.GeminiAPIKey != "" {
		g, err := advisor.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.WarnContext(ctx, "Advice disabled, could not create Gemini client", "error", err)
		} else {
			gen = g
		}
	} else {
		logger.InfoContext(ctx, "Advice disabled, no GEMINI_API_KEY provided")
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Ledger:             ledger,
		Advisor:            advisor.New(gen),
		AdviceTimeout:      cfg.AdviceTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})
	srv.ReadTimeout = 10 * time.Second
	// advice answers stream for up to AdviceTimeout
	srv.WriteTimeout = cfg.AdviceTimeout + 10*time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, stop, done := cli.GracefulShutdown(30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "Server shutdown error", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.ErrorContext(shutdownCtx, "Backend cleanup error", "error", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoContext(gctx, "Starting financas server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"amqp_enabled", res.Events != nil,
			"advice_enabled", gen != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stop()
		return nil
	})

	err := g.Wait()
	cli.WaitForShutdown(ctx, done)
	if err != nil {
		logger.ErrorContext(ctx, "Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.InfoContext(ctx, "Server stopped gracefully")
}
