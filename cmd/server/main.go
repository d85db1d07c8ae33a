package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/classroom-games-backend/internal/config"
	"github.com/DoyleJ11/classroom-games-backend/internal/httpapi"
	"github.com/DoyleJ11/classroom-games-backend/internal/hub"
	"github.com/DoyleJ11/classroom-games-backend/internal/observability"
	"github.com/DoyleJ11/classroom-games-backend/internal/registry"
	"github.com/DoyleJ11/classroom-games-backend/internal/room"
	"github.com/DoyleJ11/classroom-games-backend/internal/ws"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Rooms outlive the signal context so they can say goodbye on shutdown.
	h := hub.NewHub(context.Background(), hub.Config{
		MaxRooms: cfg.MaxRooms,
		Room: room.Config{
			MaxPlayers:     cfg.MaxPlayers,
			ReconnectGrace: cfg.ReconnectGrace,
			HostGrace:      cfg.HostGrace,
			IdleTTL:        cfg.RoomIdleTTL,
			Game:           cfg.Game.Settings(),
		},
	}, logger)
	reg := registry.New()
	wsHandler := ws.NewHandler(h, reg, ws.Options{
		OriginPatterns: cfg.AllowedOrigins,
		OutboxSize:     cfg.OutboxSize,
		PingInterval:   cfg.PingInterval,
		WriteTimeout:   cfg.WriteTimeout,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(httpapi.Deps{Hub: h, Registry: reg, WS: wsHandler, Log: logger}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ln, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", cfg.HTTPAddr, err)
		}
		logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		// Closing the rooms releases every socket; then stop accepting.
		return multierr.Combine(h.Shutdown(sctx), srv.Shutdown(sctx))
	})
	return g.Wait()
}
