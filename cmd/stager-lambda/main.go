// Package main is the API Gateway entry point for the staging API.
//
// Requests arrive through CloudFront, which adds the x-origin-verify
// header; the shared api package does the routing. Projects and images
// live in DynamoDB and photos in S3, uploaded by the browser through
// presigned URLs. Exports are handed to the export worker by async Lambda
// invoke and staging runs through a Step Functions state machine when one
// is configured, otherwise in-request.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/api"
	"github.com/smiley-maker/rooms-that-sell/internal/billing"
	"github.com/smiley-maker/rooms-that-sell/internal/dispatch"
	"github.com/smiley-maker/rooms-that-sell/internal/jobs"
	"github.com/smiley-maker/rooms-that-sell/internal/lambdaboot"
	"github.com/smiley-maker/rooms-that-sell/internal/lifecycle"
	"github.com/smiley-maker/rooms-that-sell/internal/logging"
	"github.com/smiley-maker/rooms-that-sell/internal/mls"
	"github.com/smiley-maker/rooms-that-sell/internal/staging"
)

var adapter *httpadapter.HandlerAdapterV2

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	blobs := lambdaboot.InitS3(clients.Config, "MEDIA_BUCKET_NAME")
	db := lambdaboot.InitDynamo(clients.Config, "DYNAMO_TABLE_NAME")
	geminiKey := lambdaboot.LoadGeminiKey(clients.SSM)
	webhookSecret := lambdaboot.LoadWebhookSecret(clients.SSM)

	lc := lifecycle.New(db, blobs.Store)
	urlExpiry := time.Hour
	compression := mls.ParseCompression(os.Getenv("EXPORT_COMPRESSION"))
	exporter := mls.NewExporter(blobs.Store, mls.WithCompression(compression))
	exports := jobs.NewExportRunner(lc, blobs.Store, exporter, urlExpiry)

	ctx := context.Background()
	client, err := staging.NewClient(ctx, geminiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	models := client.Models
	stager := staging.NewStager(lc, blobs.Store, staging.NewGenerator(models, os.Getenv("GEMINI_IMAGE_MODEL")))
	if webhookSecret != "" {
		stager.WithCredits(db)
	}

	deps := api.Deps{
		Lifecycle:          lc,
		Blobs:              blobs.Store,
		Uploads:            blobs.Store,
		Exports:            exports,
		Stager:             stager,
		Accounts:           db,
		OriginVerifySecret: os.Getenv("ORIGIN_VERIFY_SECRET"),
		AllowedOrigin:      os.Getenv("ALLOWED_ORIGIN"),
		URLExpiry:          urlExpiry,
		Version:            commitHash,
	}
	if deps.OriginVerifySecret == "" {
		log.Warn().Msg("ORIGIN_VERIFY_SECRET not set, origin verification disabled")
	}
	if os.Getenv("ANALYZE_UPLOADS") == "true" {
		deps.Analyzer = staging.NewAnalyzer(models, os.Getenv("GEMINI_ANALYSIS_MODEL"))
	}

	workerARN := os.Getenv("WORKER_LAMBDA_ARN")
	if workerARN == "" {
		log.Fatal().Msg("WORKER_LAMBDA_ARN environment variable is required")
	}
	deps.ExportJobs = dispatch.NewLambdaDispatcher(lambdasvc.NewFromConfig(clients.Config), workerARN)

	stagingSFN := os.Getenv("STAGING_SFN_ARN")
	if stagingSFN != "" {
		deps.StageJobs = dispatch.NewStepFunctionsDispatcher(sfn.NewFromConfig(clients.Config), stagingSFN, executionName)
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	eventBus := os.Getenv("EVENT_BUS_NAME")
	if webhookSecret != "" {
		var dedupe billing.Deduper
		if rdb := lambdaboot.InitRedisOptional("REDIS_ADDR"); rdb != nil {
			dedupe = billing.NewRedisDeduper(rdb, billing.DefaultDedupeTTL)
		}
		var publisher *billing.EventBridgePublisher
		if eventBus != "" {
			publisher = billing.NewEventBridgePublisher(eventbridge.NewFromConfig(clients.Config), eventBus)
		}
		d := billing.NewDispatcher()
		billing.RegisterDefaults(d, db, publisher)
		deps.Webhook = billing.NewWebhookHandler(webhookSecret, d, dedupe)
	}

	adapter = httpadapter.NewV2(api.New(deps).Handler())

	lambdaboot.StartupLog("stager-lambda", initStart).
		Build(commitHash, buildTime).
		Store("dynamodb", os.Getenv("DYNAMO_TABLE_NAME")).
		Blobs("s3", blobs.Bucket).
		ExportCompression(compression.String()).
		Billing(deps.Webhook != nil, redisAddr, eventBus).
		Resource("ssm", "geminiKey", logging.EnvOrDefault("SSM_API_KEY_PARAM", lambdaboot.DefaultGeminiKeyParam)).
		Resource("lambda", "worker", workerARN).
		Resource("stateMachine", "staging", stagingSFN).
		Feature("originVerify", deps.OriginVerifySecret != "").
		Feature("asyncStaging", stagingSFN != "").
		Feature("roomAnalysis", deps.Analyzer != nil).
		Log()
}

// executionName keeps the image ID visible in the Step Functions console.
// Names must be unique per state machine, hence the random suffix.
func executionName(job dispatch.Job) string {
	return fmt.Sprintf("%s-%s", job.ImageID, jobs.GenerateID(""))
}

func main() {
	lambda.Start(adapter.ProxyWithContext)
}
