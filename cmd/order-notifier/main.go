// Package main runs the order notifier, a worker that consumes placed orders from NATS JetStream.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "net/http/pprof"

	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/subscriber"
	"github.com/abgdnv/storefront/pkg/bootstrap"
	"github.com/abgdnv/storefront/pkg/config/configloader"
	"github.com/abgdnv/storefront/pkg/messaging"
	pnats "github.com/abgdnv/storefront/pkg/nats"
	"github.com/abgdnv/storefront/pkg/probes"
	"golang.org/x/sync/errgroup"
)

const serviceName = "notifier"

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.NotifierConfig](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.SlogLevel())
	slog.SetDefault(logger)

	nc, err := pnats.NewClient(cfg.Nats.Url, cfg.Nats.Timeout)
	if err != nil {
		return err
	}
	defer nc.Close()
	js, err := pnats.NewJetStreamContext(nc)
	if err != nil {
		return err
	}
	if _, err := pnats.EnsureStream(ctx, js, cfg.Subscriber.Stream, messaging.StreamSubjects); err != nil {
		return err
	}

	defer probes.Clear(cfg.Probes.ReadinessFileName, cfg.Probes.LivenessFileName)
	if err := probes.MarkReady(cfg.Probes.ReadinessFileName); err != nil {
		return err
	}
	logger.Info("Order notifier ready", "stream", cfg.Subscriber.Stream, "subject", cfg.Subscriber.Subject)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return subscriber.Start(gCtx, js, cfg.Subscriber, subscriber.LogOrders(logger), logger)
	})
	g.Go(func() error {
		return probes.RunLiveness(gCtx, cfg.Probes.LivenessFileName, cfg.Probes.LivenessInterval)
	})

	if cfg.PProf.Enabled {
		pprofServer := &http.Server{Addr: cfg.PProf.Addr}
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := cfg.Shutdown.Context()
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}
