// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Every Lambda in the project needs some subset of: AWS config, S3, SSM
// parameter fetch, and startup logging. This package extracts the common
// init patterns so each Lambda's init() is a short composition of helpers.
package lambdaboot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/waywereminisce/ornament-api/internal/logging"
)

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds the S3 client plus the bucket and region it serves.
type S3Clients struct {
	Client *s3.Client
	Bucket string
	Region string
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

// InitS3 creates an S3 client and reads the bucket name from the given
// environment variable. Fatals if the env var is empty.
func InitS3(cfg aws.Config, bucketEnvVar string) S3Clients {
	bucket := os.Getenv(bucketEnvVar)
	if bucket == "" {
		log.Fatal().Str("envVar", bucketEnvVar).Msg("Bucket environment variable is required")
	}
	return S3Clients{
		Client: s3.NewFromConfig(cfg),
		Bucket: bucket,
		Region: cfg.Region,
	}
}

// LoadGeminiKey fetches the Gemini API key from SSM Parameter Store if not
// already set via GEMINI_API_KEY env var, and returns it. Fatals on error.
func LoadGeminiKey(ssmClient *ssm.Client) string {
	return loadKey(ssmClient, "GEMINI_API_KEY", "SSM_GEMINI_KEY_PARAM",
		"/ornament-api/prod/gemini-api-key")
}

// LoadMeshyKey fetches the Meshy API key from SSM Parameter Store if not
// already set via MESHY_API_KEY env var, and returns it. Fatals on error.
func LoadMeshyKey(ssmClient *ssm.Client) string {
	return loadKey(ssmClient, "MESHY_API_KEY", "SSM_MESHY_KEY_PARAM",
		"/ornament-api/prod/meshy-api-key")
}

// loadKey resolves a secret: env var first, then a decrypted SSM parameter
// whose path can itself be overridden via paramEnvVar. The resolved value is
// mirrored back into the env var so later lookups skip the SSM round trip.
func loadKey(ssmClient *ssm.Client, envVar, paramEnvVar, defaultParam string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	paramName := logging.EnvOrDefault(paramEnvVar, defaultParam)

	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", paramName).Msg("Failed to read API key from SSM")
	}
	value := *result.Parameter.Value
	os.Setenv(envVar, value)
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("API key loaded from SSM")
	return value
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
