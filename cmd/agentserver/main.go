/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main serves the coding agent over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	kmetrics "chainguard.dev/go-grpc-kit/pkg/metrics"
	"chainguard.dev/sandboxagent/agentconfig"
	"chainguard.dev/sandboxagent/agentserver"
	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/chainguard-dev/terraform-infra-common/pkg/httpmetrics"
	"github.com/chainguard-dev/terraform-infra-common/pkg/profiler"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

type config struct {
	Port        int  `env:"PORT,default=8080"`
	MetricsPort int  `env:"METRICS_PORT,default=2112"`
	GRPCPort    int  `env:"GRPC_PORT,default=8081"`
	EnablePprof bool `env:"ENABLE_PPROF,default=false"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go httpmetrics.ScrapeDiskUsage(ctx)
	profiler.SetupProfiler()
	defer httpmetrics.SetupTracer(ctx)()

	log := clog.FromContext(ctx)

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "failed to process config: %v", err)
	}
	acfg, err := agentconfig.Load(ctx)
	if err != nil {
		clog.FatalContextf(ctx, "failed to process agent config: %v", err)
	}

	// Executors register their instruments at construction, so the meter
	// provider has to be installed first.
	mp, err := agentserver.NewMeterProvider(prometheus.DefaultRegisterer)
	if err != nil {
		clog.FatalContextf(ctx, "failed to create meter provider: %v", err)
	}
	otel.SetMeterProvider(mp)
	defer func() {
		if err := mp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warnf("Failed to flush metrics: %v", err)
		}
	}()

	agent, err := acfg.Build(ctx)
	if err != nil {
		clog.FatalContextf(ctx, "failed to build agent: %v", err)
	}
	defer func() {
		if err := agent.Close(); err != nil {
			log.Warnf("Failed to close agent clients: %v", err)
		}
	}()

	api := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           agentserver.New(agent).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// In-flight invocations outlive the shutdown signal; Shutdown waits for them.
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(agent.Context) },
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if cfg.EnablePprof {
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
	}
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainStreamInterceptor(kmetrics.StreamServerInterceptor()),
		grpc.ChainUnaryInterceptor(
			kmetrics.UnaryServerInterceptor(),
			recovery.UnaryServerInterceptor(),
		),
	)
	hs := health.NewServer()
	healthgrpc.RegisterHealthServer(gs, hs)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Infof("Serving agent API on port %d", cfg.Port)
		return serveHTTP(api)
	})
	eg.Go(func() error {
		log.Infof("Serving metrics on port %d", cfg.MetricsPort)
		return serveHTTP(metricsSrv)
	})
	eg.Go(func() error {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("listening on grpc port: %w", err)
		}
		log.Infof("Serving gRPC health on port %d", cfg.GRPCPort)
		return gs.Serve(lis)
	})
	eg.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		hs.Shutdown()

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		err := errors.Join(api.Shutdown(sctx), metricsSrv.Shutdown(sctx))
		gs.GracefulStop()
		return err
	})

	if err := eg.Wait(); err != nil {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}

func serveHTTP(srv *http.Server) error {
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
