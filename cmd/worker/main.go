package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/bigsmall/internal/app"
	"github.com/efebarandurmaz/bigsmall/internal/config"
	"github.com/efebarandurmaz/bigsmall/internal/pipeline"
	"github.com/efebarandurmaz/bigsmall/internal/server"
	temporalmod "github.com/efebarandurmaz/bigsmall/internal/temporal"
)

func main() {
	configPath := "configs/bigsmall.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := app.Logger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		logger.Warn("config", "warning", w)
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	if err := app.ResolveSecrets(ctx, cfg); err != nil {
		log.Fatalf("secrets: %v", err)
	}
	tp, err := app.Tracing(ctx, cfg, "bigsmall-worker")
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	fetcher := app.Fetcher(cfg)
	deps := &temporalmod.Dependencies{Logger: logger, Fetcher: fetcher}

	repo, err := app.Graph(ctx, cfg)
	if err != nil {
		// Runs still write their files without the graph export.
		logger.Warn("graph export disabled", "error", err)
	} else if repo != nil {
		deps.Graph = repo
	}
	temporalmod.SetDependencies(deps)

	c, err := app.TemporalClient(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer c.Close()

	gs := server.NewGracefulServer(
		&server.HealthConfig{Version: app.Version, Logger: logger},
		&server.ShutdownConfig{Logger: logger},
	)
	gs.Health.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &client.CheckHealthRequest{})
		return err
	}))
	refVersion := &pipeline.ReferenceVersion{URI: cfg.Reference.URI, Fetcher: fetcher}
	gs.Health.RegisterCheck("reference", server.ReferenceHealthChecker(cfg.Reference.URI, refVersion.Get))
	gs.Health.RegisterCheck("output", server.OutputDirHealthChecker(cfg.Run.OutputDir))
	if repo != nil {
		gs.Health.RegisterCheck("graph", server.GraphHealthChecker(repo.Ping))
		gs.Shutdown.Add(server.GraphShutdownHook(repo.Close))
	}
	gs.Shutdown.Add(server.TracingShutdownHook(tp.Shutdown))

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	gs.Shutdown.Add(server.TemporalWorkerShutdownHook(w.Stop))

	gs.Start(cfg.Health.Addr)
	gs.Health.SetReady(true)
	fmt.Printf("Worker started on task queue: %s\n", cfg.Temporal.TaskQueue)

	gs.Wait()
	fmt.Println("Worker stopped")
}
