// Command facegate-mcp is the authenticated biometric tool server. It is
// normally spawned by the voice assistant (or any MCP host) and speaks
// JSON-RPC 2.0 over stdio.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skyylabs/facegate/pkg/audit"
	"github.com/skyylabs/facegate/pkg/authority"
	"github.com/skyylabs/facegate/pkg/config"
	"github.com/skyylabs/facegate/pkg/face"
	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/health"
	"github.com/skyylabs/facegate/pkg/identity"
	"github.com/skyylabs/facegate/pkg/mcpserver"
	"github.com/skyylabs/facegate/pkg/userstore"
	"github.com/skyylabs/facegate/pkg/vecstore"
)

func main() {
	root := &cobra.Command{
		Use:          "facegate-mcp",
		Short:        "Facegate biometric recognition MCP server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	// stdout belongs to the JSON-RPC transport; logs go to stderr.
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(parseLevel(cfg.LogLevel))

	auth, err := authority.New(authority.Config{
		KeysDir:     cfg.KeysDir,
		ClientsPath: cfg.ClientsPath,
		TokenTTL:    cfg.TokenTTL,
	})
	if err != nil {
		return fmt.Errorf("token authority: %w", err)
	}

	sink, err := audit.NewSink(audit.SinkOptions{
		Dir:           cfg.AuditDir,
		RetentionDays: cfg.AuditRetentionDays,
		RedactNames:   cfg.AuditRedactNames,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("audit sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	registry := health.NewRegistry()
	registry.Update(health.ComponentTokenAuthority, health.Healthy, "keys loaded", "")

	users, err := userstore.Open(userstore.Options{Dir: cfg.UsersDir(), Logger: log})
	if err != nil {
		return fmt.Errorf("user store: %w", err)
	}
	defer func() { _ = users.Close() }()

	index, err := vecstore.LoadFile(cfg.SnapshotPath(), vecstore.HNSWConfig{
		Dim:          facegate.EmbeddingDim,
		MaxNeighbors: cfg.HNSWMaxNeighbors,
		BuildBeam:    cfg.HNSWBuildBeam,
		QueryBeam:    cfg.HNSWQueryBeam,
	})
	if err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	log.Info().Int("vectors", index.Len()).Msg("vector index loaded")

	analyzer := face.NewAnalyzer(nil)
	if model, err := face.StartSidecar(cfg.FaceSidecar, cfg.FaceSidecarArgs...); err != nil {
		// The server still comes up; registration and recognition report
		// unavailable until the model recovers.
		log.Error().Err(err).Msg("face model failed to start")
		registry.Update(health.ComponentFaceModel, health.Unavailable, "model load failed", err.Error())
	} else {
		defer func() { _ = model.Close() }()
		analyzer.SetModel(model)
		registry.Update(health.ComponentFaceModel, health.Healthy,
			fmt.Sprintf("model loaded (%d-d embeddings)", model.Dimension()), "")
	}

	svc, err := identity.New(identity.Config{
		Analyzer:          analyzer,
		Index:             index,
		Users:             users,
		Registry:          registry,
		Sink:              sink,
		Logger:            log,
		DistanceThreshold: cfg.DistanceThreshold,
		SnapshotPath:      cfg.SnapshotPath(),
		ImagesDir:         cfg.ImagesDir(),
	})
	if err != nil {
		return err
	}
	if err := svc.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	// Background prober: flips the index back to healthy after degraded
	// snapshot writes, which triggers the queue drain.
	proberCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	prober := health.NewProber(registry, health.ComponentVectorIndex, func(context.Context) error {
		return index.SaveFile(cfg.SnapshotPath())
	}, log)
	go prober.Run(proberCtx)

	return mcpserver.New(svc, auth, registry, sink, log).ServeStdio()
}

func parseLevel(s string) zerolog.Level {
	if lvl, err := zerolog.ParseLevel(s); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.InfoLevel
}
