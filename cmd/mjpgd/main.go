// Command mjpgd serves an MJPEG stream and single full-resolution snapshots
// from a V4L2 capture device over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dgnorth/mjpgd/config"
	"github.com/dgnorth/mjpgd/device"
	"github.com/dgnorth/mjpgd/httpapi"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mjpgd: build logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	dev, err := device.Open(log, cfg.Camera)
	if err != nil {
		return fmt.Errorf("Can't open: %s", cfg.Camera)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Warn("close device", zap.Error(err))
		}
	}()

	srv := httpapi.New(log, dev, cfg.Camera)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("mjpgd listening", zap.String("addr", httpServer.Addr), zap.String("camera", cfg.Camera))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}

	srv.Shutdown()
	log.Info("mjpgd stopped")
	return nil
}
