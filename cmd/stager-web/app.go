package main

import (
	"context"
	"fmt"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/api"
	"github.com/smiley-maker/rooms-that-sell/internal/billing"
	"github.com/smiley-maker/rooms-that-sell/internal/config"
	"github.com/smiley-maker/rooms-that-sell/internal/dispatch"
	"github.com/smiley-maker/rooms-that-sell/internal/jobs"
	"github.com/smiley-maker/rooms-that-sell/internal/lifecycle"
	"github.com/smiley-maker/rooms-that-sell/internal/logging"
	"github.com/smiley-maker/rooms-that-sell/internal/mls"
	"github.com/smiley-maker/rooms-that-sell/internal/s3util"
	"github.com/smiley-maker/rooms-that-sell/internal/staging"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

// app is the wired local server.
type app struct {
	handler http.Handler
	startup *logging.StartupLogger
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Close failed during shutdown")
		}
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{startup: logging.NewStartupLogger("stager-web")}

	st, err := store.OpenSQLite(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	blobs, err := s3util.NewLocalStore(cfg.Storage.BlobDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		a.close()
		return nil, err
	}

	lc := lifecycle.New(st, blobs)
	compression := mls.ParseCompression(cfg.Export.Compression)
	exporter := mls.NewExporter(blobs, mls.WithCompression(compression))
	a.startup.
		Store("sqlite", cfg.Storage.DatabasePath).
		Blobs("local", cfg.Storage.BlobDir).
		ExportCompression(compression.String())
	worker := &jobs.Worker{Exports: jobs.NewExportRunner(lc, blobs, exporter, cfg.URLExpiry())}

	deps := api.Deps{
		Lifecycle:     lc,
		Blobs:         blobs,
		Uploads:       blobs,
		Exports:       worker.Exports,
		ExportJobs:    dispatch.NewInlineDispatcher(worker.Run),
		Accounts:      st,
		AllowedOrigin: cfg.Server.AllowedOrigin,
		URLExpiry:     cfg.URLExpiry(),
		Version:       commitHash,
	}

	if cfg.Gemini.APIKey != "" {
		client, err := staging.NewClient(ctx, cfg.Gemini.APIKey)
		if err != nil {
			a.close()
			return nil, err
		}
		worker.Stager = staging.NewStager(lc, blobs, staging.NewGenerator(client.Models, cfg.Gemini.ImageModel))
		if cfg.Billing.WebhookSecret != "" {
			worker.Stager.WithCredits(st)
		}
		deps.Stager = worker.Stager
		if cfg.Gemini.AnalyzeUploads {
			deps.Analyzer = staging.NewAnalyzer(client.Models, cfg.Gemini.AnalysisModel)
		}
	} else {
		log.Warn().Msg("No Gemini API key configured, staging disabled")
	}
	a.startup.
		Feature("staging", deps.Stager != nil).
		Feature("roomAnalysis", deps.Analyzer != nil).
		Config("imageModel", cfg.Gemini.ImageModel)

	if cfg.Billing.WebhookSecret != "" {
		webhook, err := buildWebhook(ctx, cfg, st, a)
		if err != nil {
			a.close()
			return nil, err
		}
		deps.Webhook = webhook
	}
	a.startup.Billing(deps.Webhook != nil, cfg.Billing.RedisAddr, cfg.Billing.EventBusName)

	srv := api.New(deps)
	srv.Mount("/blobs/", api.BlobHandler(blobs, "/blobs/"))
	a.handler = srv.Handler()
	return a, nil
}

// buildWebhook wires the billing dispatcher. Redis and EventBridge are
// optional; without Redis, duplicate detection is per process.
func buildWebhook(ctx context.Context, cfg *config.Config, accounts store.AccountStore, a *app) (http.Handler, error) {
	var dedupe billing.Deduper
	if cfg.Billing.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Billing.RedisAddr,
			Password: cfg.Billing.RedisPassword,
			DB:       cfg.Billing.RedisDB,
		})
		a.closers = append(a.closers, rdb.Close)
		dedupe = billing.NewRedisDeduper(rdb, billing.DefaultDedupeTTL)
	}

	var publisher *billing.EventBridgePublisher
	if cfg.Billing.EventBusName != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config for EventBridge: %w", err)
		}
		publisher = billing.NewEventBridgePublisher(eventbridge.NewFromConfig(awsCfg), cfg.Billing.EventBusName)
	}

	d := billing.NewDispatcher()
	billing.RegisterDefaults(d, accounts, publisher)
	return billing.NewWebhookHandler(cfg.Billing.WebhookSecret, d, dedupe), nil
}
