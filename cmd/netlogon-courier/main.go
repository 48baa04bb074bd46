package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/scality/netlogon-courier/pkg/directory"
	"github.com/scality/netlogon-courier/pkg/netlogoncourier"
	"github.com/scality/netlogon-courier/pkg/share"
	"github.com/scality/netlogon-courier/pkg/util"
)

func main() {
	os.Exit(run())
}

func seconds(varName string) time.Duration {
	return time.Duration(netlogoncourier.ConfigSpec.GetInt(varName)) * time.Second
}

// buildCollectorConfig creates collector config from ConfigSpec
func buildCollectorConfig(logger *slog.Logger, location *time.Location) netlogoncourier.Config {
	spec := netlogoncourier.ConfigSpec
	return netlogoncourier.Config{
		Logger:              logger,
		ExportPath:          spec.GetString("export.path"),
		Days:                spec.GetInt("export.days"),
		LogMaxLines:         spec.GetInt("collector.log-max-lines"),
		LogPath:             spec.GetString("collector.log-path"),
		Location:            location,
		NumWorkers:          spec.GetInt("collector.num-workers"),
		HostTimeout:         seconds("collector.host-timeout-seconds"),
		MaxHostsPerSecond:   spec.GetFloat64("collector.max-hosts-per-second"),
		MaxRetries:          spec.GetInt("retry.max-retries"),
		InitialBackoff:      seconds("retry.initial-backoff-seconds"),
		MaxBackoff:          seconds("retry.max-backoff-seconds"),
		BackoffJitterFactor: spec.GetFloat64("retry.backoff-jitter-factor"),
		S3Enabled:           spec.GetBool("s3.enabled"),
		S3Endpoint:          spec.GetString("s3.endpoint"),
		S3Region:            spec.GetString("s3.region"),
		S3Bucket:            spec.GetString("s3.bucket"),
		S3Prefix:            spec.GetString("s3.prefix"),
		S3AccessKeyID:       spec.GetString("s3.access-key-id"),
		S3SecretAccessKey:   spec.GetString("s3.secret-access-key"),
		S3MaxRetryAttempts:  spec.GetInt("s3.max-retry-attempts"),
		S3MaxBackoffDelay:   seconds("s3.max-backoff-delay-seconds"),
		ClickHouseEnabled:   spec.GetBool("clickhouse.enabled"),
		ClickHouseHosts:     spec.GetStringSlice("clickhouse.url"),
		ClickHouseUsername:  spec.GetString("clickhouse.username"),
		ClickHousePassword:  spec.GetString("clickhouse.password"),
		ClickHouseDatabase:  spec.GetString("clickhouse.database"),
		ClickHouseTimeout:   seconds("clickhouse.timeout-seconds"),
	}
}

// buildDirectory returns the static host list when one is configured,
// the Active Directory forest otherwise
func buildDirectory(ctx context.Context, logger *slog.Logger) (directory.Directory, func() error, error) {
	spec := netlogoncourier.ConfigSpec

	if hosts := spec.GetStringSlice("collector.hosts"); len(hosts) > 0 {
		logger.Info("using configured host list", "nHosts", len(hosts))
		return directory.NewStaticDirectory(hosts), func() error { return nil }, nil
	}

	dir, err := directory.OpenLDAPDirectory(ctx, directory.LDAPConfig{
		URL:          spec.GetString("ldap.url"),
		BindDN:       spec.GetString("ldap.bind-dn"),
		BindPassword: spec.GetString("ldap.bind-password"),
		StartTLS:     spec.GetBool("ldap.start-tls"),
		SkipVerify:   spec.GetBool("ldap.skip-verify"),
		Timeout:      seconds("ldap.timeout-seconds"),
		PageSize:     uint32(max(spec.GetInt("ldap.page-size"), 0)), //nolint:gosec // bounded below
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return dir, dir.Close, nil
}

func buildOpener(logger *slog.Logger) (share.Opener, error) {
	spec := netlogoncourier.ConfigSpec

	if spec.GetString("share.mode") == netlogoncourier.ShareModeLocal {
		return share.NewLocalOpener(spec.GetString("share.local-root-template"))
	}

	return share.NewSMBOpener(share.SMBConfig{
		Username: spec.GetString("smb.username"),
		Password: spec.GetString("smb.password"),
		Domain:   spec.GetString("smb.domain"),
		Share:    spec.GetString("smb.share"),
		Port:     spec.GetInt("smb.port"),
		Logger:   logger,
	})
}

// waitForCompletion waits for the run to finish. A shutdown signal cancels
// the run, which then exports what it collected within shutdownTimeout.
func waitForCompletion(cancel context.CancelFunc, logger *slog.Logger,
	errChan <-chan error, signalsChan <-chan os.Signal, shutdownTimeout time.Duration) int {
	select {
	case sig := <-signalsChan:
		logger.Info("signal received", "signal", sig)
		cancel()

		shutdownTimer := time.NewTimer(shutdownTimeout)
		defer shutdownTimer.Stop()

		select {
		case <-shutdownTimer.C:
			logger.Warn("shutdown timeout exceeded, forcing exit")
			return 1
		case err := <-errChan:
			logger.Warn("collection interrupted", "error", err)
			return 1
		}

	case err := <-errChan:
		if err != nil {
			logger.Error("collection failed", "error", err,
				"enumerationFailed", errors.Is(err, netlogoncourier.ErrEnumeration),
				"exportFailed", errors.Is(err, netlogoncourier.ErrExport))
			return 1
		}
	}

	return 0
}

func run() int {
	// Add command-line flags
	netlogoncourier.ConfigSpec.AddFlag(pflag.CommandLine, "export-path", "export.path")
	netlogoncourier.ConfigSpec.AddFlag(pflag.CommandLine, "days", "export.days")
	netlogoncourier.ConfigSpec.AddFlag(pflag.CommandLine, "log-max-lines", "collector.log-max-lines")
	netlogoncourier.ConfigSpec.AddFlag(pflag.CommandLine, "hosts", "collector.hosts")
	netlogoncourier.ConfigSpec.AddFlag(pflag.CommandLine, "log-level", "log-level")

	configFileFlag := pflag.String("config-file", "", "Path to configuration file")
	pflag.Parse()

	// Load configuration
	configFile := *configFileFlag
	if configFile == "" {
		configFile = os.Getenv(netlogoncourier.EnvPrefix + "CONFIG_FILE")
	}

	err := netlogoncourier.ConfigSpec.LoadConfiguration(configFile, "export.", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		pflag.Usage()
		return 2
	}

	// Validate configuration
	err = netlogoncourier.ValidateConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation error: %v\n", err)
		return 2
	}

	// Set up logger
	logLevel := util.ParseLogLevel(netlogoncourier.ConfigSpec.GetString("log-level"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Validated above
	location, _ := netlogoncourier.LoadLocation(netlogoncourier.ConfigSpec.GetString("collector.timezone"))
	shutdownTimeout := seconds("shutdown-timeout-seconds")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalsChan := make(chan os.Signal, 1)
	signal.Notify(signalsChan, unix.SIGINT, unix.SIGTERM)

	// Start metrics server
	metricsServer, err := util.StartMetricsServerIfEnabled(
		netlogoncourier.ConfigSpec, "metrics-server", nil, logger)
	if err != nil {
		logger.Error("failed to start metrics server", "error", err)
		return 1
	}
	if metricsServer != nil {
		defer func() {
			if closeErr := metricsServer.Close(); closeErr != nil {
				logger.Error("failed to close metrics server", "error", closeErr)
			}
		}()
	}

	dir, closeDirectory, err := buildDirectory(ctx, logger)
	if err != nil {
		logger.Error("failed to open directory", "error", err)
		return 1
	}
	defer func() {
		if closeErr := closeDirectory(); closeErr != nil {
			logger.Error("failed to close directory", "error", closeErr)
		}
	}()

	opener, err := buildOpener(logger)
	if err != nil {
		logger.Error("failed to create share opener", "error", err)
		return 1
	}

	collectorCfg := buildCollectorConfig(logger, location)
	collectorCfg.Metrics = netlogoncourier.NewMetrics()
	collectorCfg.Directory = dir
	collectorCfg.Opener = opener

	collector, err := netlogoncourier.NewCollector(ctx, collectorCfg)
	if err != nil {
		logger.Error("failed to create collector", "error", err)
		return 1
	}
	defer func() {
		if closeErr := collector.Close(); closeErr != nil {
			logger.Error("failed to close collector", "error", closeErr)
		}
	}()

	// Start collection in goroutine
	errChan := make(chan error, 1)
	go func() {
		report, runErr := collector.Run(ctx)
		if report != nil && report.Path != "" {
			logger.Info("report written",
				"path", report.Path,
				"nRows", len(report.Rows),
				"collected", report.Count(netlogoncourier.HostCollected),
				"skipped", report.Count(netlogoncourier.HostSkipped),
				"failedHosts", report.FailedHosts())
		}
		errChan <- runErr
	}()

	exitCode := waitForCompletion(cancel, logger, errChan, signalsChan, shutdownTimeout)

	if exitCode == 0 {
		logger.Info("netlogon-courier finished")
	}
	return exitCode
}
