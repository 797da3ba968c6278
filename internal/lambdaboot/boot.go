// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Every Lambda in the project needs some subset of: AWS config, S3, DynamoDB,
// SSM secrets, Redis and startup logging. This package extracts the common
// init patterns so each Lambda's init() is a short composition of helpers.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/logging"
	"github.com/smiley-maker/rooms-that-sell/internal/s3util"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

// Default SSM parameter paths, overridable through the *_PARAM env vars.
const (
	DefaultGeminiKeyParam     = "/rooms-that-sell/prod/gemini-api-key"
	DefaultWebhookSecretParam = "/rooms-that-sell/prod/billing-webhook-secret"
)

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds the blob store and bucket name.
type S3Clients struct {
	Store  *s3util.S3Store
	Bucket string
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates the S3-backed blob store for the bucket named by the given
// environment variable. Fatals if the env var is empty.
func InitS3(cfg aws.Config, bucketEnvVar string) S3Clients {
	bucket := os.Getenv(bucketEnvVar)
	if bucket == "" {
		log.Fatal().Str("envVar", bucketEnvVar).Msg("Bucket environment variable is required")
	}
	client := s3.NewFromConfig(cfg)
	return S3Clients{
		Store:  s3util.NewS3Store(client, s3.NewPresignClient(client), bucket),
		Bucket: bucket,
	}
}

// InitDynamo creates the DynamoDB store from the given config and table
// name environment variable. Fatals if the env var is empty.
func InitDynamo(cfg aws.Config, tableEnvVar string) *store.DynamoStore {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Fatal().Str("envVar", tableEnvVar).Msg("DynamoDB table environment variable is required")
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
}

// InitRedisOptional connects to the Redis address in addrEnvVar. Returns
// nil (with a warning) when the variable is unset; callers then keep
// their state in memory.
func InitRedisOptional(addrEnvVar string) *redis.Client {
	addr := os.Getenv(addrEnvVar)
	if addr == "" {
		log.Warn().Str("envVar", addrEnvVar).Msg("Redis not configured, using in-memory state")
		return nil
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// ParameterGetter is the SSM call used to read secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSecret returns envVar if it is set, otherwise the decrypted SSM
// parameter named by paramEnvVar (or defaultParam). The resolved value is
// exported back into envVar so later reads are free.
func LoadSecret(ctx context.Context, client ParameterGetter, envVar, paramEnvVar, defaultParam string) (string, error) {
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	paramName := logging.EnvOrDefault(paramEnvVar, defaultParam)

	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read %s from SSM: %w", paramName, err)
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return "", fmt.Errorf("SSM parameter %s is empty", paramName)
	}

	value := aws.ToString(result.Parameter.Value)
	os.Setenv(envVar, value)
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msg("Secret loaded from SSM")
	return value, nil
}

// LoadGeminiKey resolves GEMINI_API_KEY. Fatals on error.
func LoadGeminiKey(client ParameterGetter) string {
	key, err := LoadSecret(context.Background(), client, "GEMINI_API_KEY", "SSM_API_KEY_PARAM", DefaultGeminiKeyParam)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load Gemini API key")
	}
	return key
}

// LoadWebhookSecret resolves BILLING_WEBHOOK_SECRET. A missing secret is
// not fatal: the webhook route is then disabled.
func LoadWebhookSecret(client ParameterGetter) string {
	secret, err := LoadSecret(context.Background(), client, "BILLING_WEBHOOK_SECRET", "SSM_WEBHOOK_SECRET_PARAM", DefaultWebhookSecretParam)
	if err != nil {
		log.Warn().Err(err).Msg("Billing webhook secret not available, webhook disabled")
		return ""
	}
	return secret
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
