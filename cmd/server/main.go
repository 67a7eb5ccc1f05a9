package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/api"
	"github.com/Harshitk-cp/dilemma/internal/bootstrap"
	"github.com/Harshitk-cp/dilemma/internal/buildconfig"
	"github.com/Harshitk-cp/dilemma/internal/cases"
	"github.com/Harshitk-cp/dilemma/internal/config"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger, err := bootstrap.NewLogger(config.LogLevel())
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := bootstrap.OpenStore(ctx, config.StoreDriver(), logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	provider, err := cases.NewProvider(config.CasesDir(), logger)
	if err != nil {
		logger.Fatal("failed to load cases", zap.Error(err))
	}
	defer func() { _ = provider.Close() }()

	if config.CasesWatch() {
		if err := provider.Watch(ctx); err != nil {
			logger.Warn("case reload disabled", zap.Error(err))
		}
	}

	app := api.NewApp(api.Deps{
		Sessions:          st.Sessions,
		Cases:             provider,
		LLM:               bootstrap.NewLLMClient(logger),
		GenerationTimeout: config.GenerationTimeout(),
		Health:            st.Ping,
		APIKeys:           config.APIKeys(),
		RateLimitRPS:      config.RateLimitRPS(),
		RateLimitBurst:    config.RateLimitBurst(),
		Logger:            logger,
	})
	defer app.Close()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("version", buildconfig.Version()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("server stopped")
}
