// flowboard-stub runs the in-memory task service stand-in, for local
// development without the real backend.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loopydev/flowboard/internal/config"
	"github.com/loopydev/flowboard/internal/gateway"
	"github.com/loopydev/flowboard/internal/gateway/stubserver"
	"github.com/loopydev/flowboard/internal/state"
	"github.com/loopydev/flowboard/pkg/clog"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	stub := stubserver.New()
	stub.Seed(
		gateway.Task{ID: "demo-1", Title: "Try moving this card", State: state.RemoteExploring},
		gateway.Task{ID: "demo-2", Title: "Something in progress", State: state.RemotePlanning},
	)

	addr := net.JoinHostPort(env.StubEnv.HTTPHost, env.StubEnv.HTTPPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = clog.ContextWithSlog(ctx)
	clog.AddAttribute(ctx, "component", "stub-gateway")

	go func() {
		slog.InfoContext(ctx, "stub task service listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.InfoContext(ctx, "shutting down stub task service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
