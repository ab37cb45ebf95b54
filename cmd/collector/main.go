package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mtfcollector/config"
	"mtfcollector/internal/collector"
	"mtfcollector/internal/metrics"
	"mtfcollector/logger"
	"mtfcollector/pkg/storage"
	"mtfcollector/pkg/storage/postgres"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg, v, err := config.Load()
	if err != nil {
		panic(err)
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	if out, err := cfg.MTF.YAML(); err == nil {
		log.Info("effective mtf config\n" + string(out))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var archive storage.Archive
	if cfg.Postgres.Enabled {
		client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			log.Fatal("failed to connect to DB", zap.Error(err))
		}
		defer client.Close()
		archive = client
	}

	if cfg.Metrics.Addr != "" {
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer srv.Close()
		log.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
	}

	c := collector.New(cfg, archive, log)

	holder := config.NewHolder(cfg.MTF)
	holder.Subscribe(c.ApplyMTF)
	config.Watch(v, holder, log)

	// run collector
	if err := c.Start(ctx); err != nil {
		log.Fatal("collector failed", zap.Error(err))
	}

	<-ctx.Done()
	log.Info("shutting down")
}
