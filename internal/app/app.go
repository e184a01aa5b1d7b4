// Package app builds the shared runtime pieces of the bigsmall binaries from
// a loaded configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/bigsmall/internal/blob"
	"github.com/efebarandurmaz/bigsmall/internal/config"
	"github.com/efebarandurmaz/bigsmall/internal/graph/neo4j"
	"github.com/efebarandurmaz/bigsmall/internal/observability"
	"github.com/efebarandurmaz/bigsmall/internal/secrets"
)

// Version is reported by the health server and the tracing resource.
const Version = "0.1.0"

// Logger builds the configured slog logger.
func Logger(cfg *config.Config) (*slog.Logger, error) {
	return observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// Tracing installs the tracer provider. Without an OTLP endpoint the
// provider is a no-op.
func Tracing(ctx context.Context, cfg *config.Config, service string) (*observability.TracerProvider, error) {
	return observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    service,
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
	})
}

// ResolveSecrets fills credentials left empty in cfg from the configured
// secrets provider.
func ResolveSecrets(ctx context.Context, cfg *config.Config) error {
	m, err := secrets.NewManager(&secrets.Config{
		Provider: cfg.Secrets.Provider,
		Path:     cfg.Secrets.Path,
	})
	if err != nil {
		return err
	}
	m.Fill(ctx, &cfg.Graph.Password, secrets.GraphPassword)
	m.Fill(ctx, &cfg.Reference.S3.AccessKeyID, secrets.S3AccessKeyID)
	m.Fill(ctx, &cfg.Reference.S3.SecretAccessKey, secrets.S3SecretAccessKey)
	m.Fill(ctx, &cfg.Reference.S3.SessionToken, secrets.S3SessionToken)
	return nil
}

// Fetcher resolves reference locations with the configured S3 settings.
// Without static keys the default AWS chain is used.
func Fetcher(cfg *config.Config) *blob.Fetcher {
	s3 := cfg.Reference.S3
	return &blob.Fetcher{
		CacheDir: cfg.Reference.CacheDir,
		S3: blob.S3Config{
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			PathStyle:       s3.PathStyle,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			SessionToken:    s3.SessionToken,
		},
	}
}

// Graph connects to the configured Neo4j database. It returns nil when no
// graph uri is set.
func Graph(ctx context.Context, cfg *config.Config) (*neo4j.Neo4jRepository, error) {
	if cfg.Graph.URI == "" {
		return nil, nil
	}
	repo, err := neo4j.NewNeo4j(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
	if err != nil {
		return nil, fmt.Errorf("graph %s: %w", cfg.Graph.URI, err)
	}
	return repo, nil
}

// TemporalClient dials the configured Temporal frontend, logging through
// logger.
func TemporalClient(cfg *config.Config, logger *slog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("temporal client: %w", err)
	}
	return c, nil
}
