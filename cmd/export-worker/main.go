// Package main is the async worker Lambda.
//
// The API Lambda invokes it with InvocationType=Event for MLS exports, and
// the staging state machine calls it for stage jobs. Both arrive as a
// dispatch.Job:
//
//	{
//	  "type": "export"|"stage",
//	  "projectId": "uuid",
//	  "exportId": "exp-...",
//	  "imageId": "uuid",
//	  "style": "modern",
//	  "customPrompt": "..."
//	}
//
// Results are written to DynamoDB; the API polls the export record.
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/dispatch"
	"github.com/smiley-maker/rooms-that-sell/internal/jobs"
	"github.com/smiley-maker/rooms-that-sell/internal/lambdaboot"
	"github.com/smiley-maker/rooms-that-sell/internal/lifecycle"
	"github.com/smiley-maker/rooms-that-sell/internal/logging"
	"github.com/smiley-maker/rooms-that-sell/internal/mls"
	"github.com/smiley-maker/rooms-that-sell/internal/staging"
)

var coldStart = true

var worker *jobs.Worker

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	blobs := lambdaboot.InitS3(clients.Config, "MEDIA_BUCKET_NAME")
	db := lambdaboot.InitDynamo(clients.Config, "DYNAMO_TABLE_NAME")
	geminiKey := lambdaboot.LoadGeminiKey(clients.SSM)
	billingEnabled := lambdaboot.LoadWebhookSecret(clients.SSM) != ""

	lc := lifecycle.New(db, blobs.Store)
	compression := mls.ParseCompression(os.Getenv("EXPORT_COMPRESSION"))
	exporter := mls.NewExporter(blobs.Store, mls.WithCompression(compression))

	client, err := staging.NewClient(context.Background(), geminiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	stager := staging.NewStager(lc, blobs.Store, staging.NewGenerator(client.Models, os.Getenv("GEMINI_IMAGE_MODEL")))
	if billingEnabled {
		stager.WithCredits(db)
	}

	worker = &jobs.Worker{
		Exports: jobs.NewExportRunner(lc, blobs.Store, exporter, time.Hour),
		Stager:  stager,
	}

	lambdaboot.StartupLog("export-worker", initStart).
		Build(commitHash, buildTime).
		Store("dynamodb", os.Getenv("DYNAMO_TABLE_NAME")).
		Blobs("s3", blobs.Bucket).
		ExportCompression(compression.String()).
		Resource("ssm", "geminiKey", logging.EnvOrDefault("SSM_API_KEY_PARAM", lambdaboot.DefaultGeminiKeyParam)).
		Feature("credits", billingEnabled).
		Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, job dispatch.Job) error {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "export-worker").Msg("Cold start, first invocation")
	}
	return worker.Run(ctx, job)
}
