package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/spf13/pflag"

	"github.com/scality/netlogon-courier/pkg/netlogoncourier"
	"github.com/scality/netlogon-courier/pkg/uploaduser"
	"github.com/scality/netlogon-courier/pkg/util"
)

func main() {
	iamEndpoint := pflag.String("iam-endpoint", "", "IAM endpoint (empty for AWS)")
	bucket := pflag.String("bucket", os.Getenv(netlogoncourier.EnvPrefix+"S3_BUCKET"), "Bucket receiving reports")
	prefix := pflag.String("prefix", os.Getenv(netlogoncourier.EnvPrefix+"S3_PREFIX"), "Key prefix of uploaded reports")
	path := pflag.String("path", uploaduser.DefaultPath, "IAM path of the user")
	logLevel := pflag.String("log-level", "info", "Log level: debug, info, warn, error")
	pflag.Parse()

	args := pflag.Args()
	if len(args) != 2 || args[0] != "apply" {
		fmt.Fprintf(os.Stderr, "Usage: ensureUploadUser apply <user-name> [flags]\n")
		pflag.PrintDefaults()
		os.Exit(2)
	}

	// Logs go to stderr so that stdout only carries the JSON result
	level := util.ParseLogLevel(*logLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	spec := uploaduser.Spec{
		UserName: args[1],
		Path:     *path,
		Bucket:   *bucket,
		Prefix:   *prefix,
	}

	ctx := context.Background()
	result, err := applyUploadUser(ctx, logger, spec, *iamEndpoint)
	if err != nil {
		outputErr := uploaduser.OutputError{
			Error: err.Error(),
		}
		if jsonErr := json.NewEncoder(os.Stdout).Encode(outputErr); jsonErr != nil {
			logger.Error("failed to encode error output", "error", jsonErr)
		}
		os.Exit(1)
	}

	output := uploaduser.OutputSuccess{
		Data: *result,
	}
	if err := json.NewEncoder(os.Stdout).Encode(output); err != nil {
		logger.Error("failed to encode success output", "error", err)
		os.Exit(1)
	}
}

func applyUploadUser(ctx context.Context, logger *slog.Logger, spec uploaduser.Spec, iamEndpoint string) (*uploaduser.Result, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(getEnvOrDefault("AWS_REGION", "us-east-1")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	iamClient := iam.NewFromConfig(cfg, func(o *iam.Options) {
		if iamEndpoint != "" {
			o.BaseEndpoint = aws.String(iamEndpoint)
		}
	})

	logger.Info("applying upload user configuration",
		"user", spec.UserName,
		"bucket", spec.Bucket,
		"prefix", spec.Prefix,
		"endpoint", iamEndpoint,
	)

	result, err := uploaduser.Apply(ctx, iamClient, spec)
	if err != nil {
		logger.Error("failed to apply upload user", "error", err)
		return nil, err
	}

	if result.SecretAccessKey != nil {
		logger.Info("upload user created with new access key",
			"hint", "set "+netlogoncourier.EnvPrefix+"S3_ACCESS_KEY_ID and "+netlogoncourier.EnvPrefix+"S3_SECRET_ACCESS_KEY")
	} else {
		logger.Info("upload user already exists with existing access key")
	}

	return result, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
