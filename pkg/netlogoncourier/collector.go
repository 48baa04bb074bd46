package netlogoncourier

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/scality/netlogon-courier/pkg/clickhouse"
	"github.com/scality/netlogon-courier/pkg/directory"
	"github.com/scality/netlogon-courier/pkg/netlogon"
	"github.com/scality/netlogon-courier/pkg/s3"
	"github.com/scality/netlogon-courier/pkg/share"
)

const (
	// DefaultLogPath is the NETLOGON debug log relative to the admin share
	DefaultLogPath = `debug\netlogon.log`
	// DefaultLogMaxLines reads the 250 most recent lines
	DefaultLogMaxLines = -250

	defaultHostTimeout    = 2 * time.Minute
	defaultSinkTimeout    = time.Minute
	defaultInitialBackoff = time.Second

	// backoffMultiplier is the exponential backoff multiplier for retry attempts
	backoffMultiplier = 2.0
)

var (
	// ErrEnumeration marks a run aborted because hosts could not be listed
	ErrEnumeration = errors.New("host enumeration failed")
	// ErrAllHostsFailed marks a run where no host could be read
	ErrAllHostsFailed = errors.New("all hosts failed")
	// ErrExport marks a run whose CSV report could not be written
	ErrExport = errors.New("report export failed")
	// ErrPublish marks a run where at least one sink rejected the report
	ErrPublish = errors.New("report publication failed")
)

// applyJitter applies symmetric jitter to a duration.
//
// With jitterFactor=0.2 and duration=10s, the result ranges from 8s to 12s.
// Returns the original duration if jitterFactor is 0 or negative.
func applyJitter(duration time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return duration
	}

	//nolint:gosec // Using non-cryptographic random for jitter is acceptable
	multiplier := 1.0 + (rand.Float64()*2.0-1.0)*jitterFactor
	return time.Duration(float64(duration) * multiplier)
}

// Config holds collector configuration
//
//nolint:govet // Field alignment is less important than readability for config structs
type Config struct {
	Logger  *slog.Logger
	Metrics *Metrics

	Directory directory.Directory
	Opener    share.Opener

	// ExportPath is the existing directory receiving the CSV report
	ExportPath string
	// Days is the recency window; records older than now - Days are dropped
	Days int
	// LogMaxLines is the number of lines read per log (negative: from the end)
	LogMaxLines int
	// LogPath is the log location relative to the share root
	LogPath string
	// Location is the time zone of log timestamps
	Location *time.Location

	// NumWorkers is the number of hosts read in parallel
	NumWorkers int
	// HostTimeout bounds the time spent on one host, retries included
	HostTimeout time.Duration
	// MaxHostsPerSecond paces new host connections (0 means unlimited)
	MaxHostsPerSecond float64

	// MaxRetries is the maximum number of retries of a host read
	MaxRetries int
	// InitialBackoff is the initial backoff duration for retry attempts
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration for retry attempts
	MaxBackoff time.Duration
	// BackoffJitterFactor is the jitter factor for backoff (0.0 to 1.0)
	BackoffJitterFactor float64

	// SinkTimeout bounds each report publication
	SinkTimeout time.Duration

	S3Enabled          bool
	S3Endpoint         string
	S3Region           string
	S3Bucket           string
	S3Prefix           string
	S3AccessKeyID      string
	S3SecretAccessKey  string
	S3MaxRetryAttempts int
	S3MaxBackoffDelay  time.Duration

	ClickHouseEnabled  bool
	ClickHouseHosts    []string
	ClickHouseUsername string
	ClickHousePassword string
	ClickHouseDatabase string
	ClickHouseTimeout  time.Duration

	// S3Uploader is an optional S3 uploader for testing (if nil, one will be created)
	S3Uploader s3.UploaderInterface
	// Sinks are additional report sinks
	Sinks []Sink

	// Now returns the current time (time.Now when nil)
	Now func() time.Time
}

// Collector reads NETLOGON logs from every domain controller and exports
// the client addresses reported without a site
type Collector struct {
	directory directory.Directory
	opener    share.Opener
	sinks     []Sink
	chSink    *ClickHouseSink
	limiter   *rate.Limiter
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time

	exportPath          string
	days                int
	logMaxLines         int
	logPath             string
	location            *time.Location
	numWorkers          int
	hostTimeout         time.Duration
	maxRetries          int
	initialBackoff      time.Duration
	maxBackoff          time.Duration
	backoffJitterFactor float64
	sinkTimeout         time.Duration
}

// NewCollector creates a collector and the sinks enabled in cfg
func NewCollector(ctx context.Context, cfg Config) (*Collector, error) {
	if cfg.Directory == nil {
		return nil, fmt.Errorf("a directory is required")
	}
	if cfg.Opener == nil {
		return nil, fmt.Errorf("a share opener is required")
	}
	if cfg.ExportPath == "" {
		return nil, fmt.Errorf("an export path is required")
	}

	c := &Collector{
		directory:           cfg.Directory,
		opener:              cfg.Opener,
		metrics:             cfg.Metrics,
		logger:              cfg.Logger,
		now:                 cfg.Now,
		exportPath:          cfg.ExportPath,
		days:                cfg.Days,
		logMaxLines:         cfg.LogMaxLines,
		logPath:             cfg.LogPath,
		location:            cfg.Location,
		numWorkers:          cfg.NumWorkers,
		hostTimeout:         cfg.HostTimeout,
		maxRetries:          cfg.MaxRetries,
		initialBackoff:      cfg.InitialBackoff,
		maxBackoff:          cfg.MaxBackoff,
		backoffJitterFactor: cfg.BackoffJitterFactor,
		sinkTimeout:         cfg.SinkTimeout,
	}

	// Apply defaults for callers that don't use the config system
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = NewMetricsWithRegistry(prometheus.NewRegistry())
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.days <= 0 {
		c.days = 1
	}
	if c.logMaxLines == 0 {
		c.logMaxLines = DefaultLogMaxLines
	}
	if c.logPath == "" {
		c.logPath = DefaultLogPath
	}
	if c.location == nil {
		c.location = time.Local
	}
	if c.numWorkers < 1 {
		c.numWorkers = 1
	}
	if c.hostTimeout <= 0 {
		c.hostTimeout = defaultHostTimeout
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = defaultInitialBackoff
	}
	if c.maxBackoff < c.initialBackoff {
		c.maxBackoff = c.initialBackoff
	}
	if c.sinkTimeout <= 0 {
		c.sinkTimeout = defaultSinkTimeout
	}
	if cfg.MaxHostsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxHostsPerSecond), 1)
	}

	if cfg.S3Enabled {
		uploader := cfg.S3Uploader
		if uploader == nil {
			s3Client, err := s3.NewClient(ctx, s3.Config{
				Endpoint:         cfg.S3Endpoint,
				Region:           cfg.S3Region,
				AccessKeyID:      cfg.S3AccessKeyID,
				SecretAccessKey:  cfg.S3SecretAccessKey,
				MaxRetryAttempts: cfg.S3MaxRetryAttempts,
				MaxBackoffDelay:  cfg.S3MaxBackoffDelay,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create S3 client: %w", err)
			}
			uploader = s3.NewUploader(s3Client)
		}
		c.sinks = append(c.sinks, NewS3Sink(uploader, cfg.S3Bucket, cfg.S3Prefix))
	}

	if cfg.ClickHouseEnabled {
		chClient, err := clickhouse.NewClient(ctx, clickhouse.Config{
			Hosts:          cfg.ClickHouseHosts,
			Username:       cfg.ClickHouseUsername,
			Password:       cfg.ClickHousePassword,
			Database:       cfg.ClickHouseDatabase,
			Timeout:        cfg.ClickHouseTimeout,
			MaxRetries:     c.maxRetries,
			InitialBackoff: c.initialBackoff,
			MaxBackoff:     c.maxBackoff,
			Logger:         c.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
		}
		chSink, err := NewClickHouseSink(ctx, chClient)
		if err != nil {
			_ = chClient.Close()
			return nil, fmt.Errorf("failed to prepare ClickHouse sink: %w", err)
		}
		c.chSink = chSink
		c.sinks = append(c.sinks, chSink)
	}

	c.sinks = append(c.sinks, cfg.Sinks...)

	return c, nil
}

// Close releases sink connections
func (c *Collector) Close() error {
	if c.chSink != nil {
		return c.chSink.Close()
	}
	return nil
}

// Run enumerates domain controllers, collects their recent NO_CLIENT_SITE
// records and exports the deduplicated report.
//
// The report is exported on the way out whatever happened before, including
// cancellation, with whatever was collected. The run fails when enumeration
// fails, when every host fails, when the context is cancelled, or when the
// export or a sink fails.
func (c *Collector) Run(ctx context.Context) (report *Report, err error) {
	now := c.now()
	report = &Report{
		GeneratedAt: now,
		Cutoff:      now.AddDate(0, 0, -c.days),
	}

	c.logger.Info("collection starting",
		"cutoff", report.Cutoff,
		"logMaxLines", c.logMaxLines,
		"numWorkers", c.numWorkers)

	defer func() {
		if exportErr := c.export(ctx, report); exportErr != nil {
			err = errors.Join(err, exportErr)
		}
	}()

	hosts, err := c.enumerateHosts(ctx)
	if err != nil {
		return report, err
	}

	report.Hosts = c.collectHosts(ctx, hosts, report.Cutoff, now)

	return report, c.runError(ctx, report)
}

func (c *Collector) enumerateHosts(ctx context.Context) ([]string, error) {
	start := time.Now()
	hosts, err := directory.EnumerateHosts(ctx, c.directory)
	c.metrics.Hosts.EnumerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Error("host enumeration failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrEnumeration, err)
	}

	c.logger.Info("host enumeration completed", "nHosts", len(hosts))
	return hosts, nil
}

// collectHosts reads every host with at most numWorkers in flight.
// Results are stored by host index so aggregation follows enumeration order.
func (c *Collector) collectHosts(ctx context.Context, hosts []string, cutoff, now time.Time) []HostResult {
	results := make([]HostResult, len(hosts))
	if len(hosts) == 0 {
		c.logger.Warn("no domain controllers found")
		return results
	}

	parser := netlogon.NewParser(now, c.location)

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.numWorkers)

	for i, host := range hosts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = HostResult{Host: host, Status: HostFailed, Err: ctx.Err()}
				c.metrics.Hosts.Processed.WithLabelValues(statusFailed).Inc()
				return
			}

			results[i] = c.collectHost(ctx, parser, host, cutoff)
		}()
	}

	wg.Wait()

	var collected, skipped, nRecords int
	var failedHosts []string
	for _, result := range results {
		switch result.Status {
		case HostCollected:
			collected++
			nRecords += len(result.Records)
		case HostSkipped:
			skipped++
		case HostFailed:
			failedHosts = append(failedHosts, result.Host)
		}
	}

	if len(failedHosts) > 0 {
		c.logger.Warn("host collection completed",
			"totalHosts", len(hosts),
			"collected", collected,
			"skipped", skipped,
			"failed", len(failedHosts),
			"failedHosts", failedHosts,
			"nRecords", nRecords)
	} else {
		c.logger.Info("host collection completed",
			"totalHosts", len(hosts),
			"collected", collected,
			"skipped", skipped,
			"failed", 0,
			"nRecords", nRecords)
	}

	return results
}

func (c *Collector) collectHost(ctx context.Context, parser *netlogon.Parser, host string, cutoff time.Time) HostResult {
	start := time.Now()
	logger := c.logger.With("host", host)

	hostCtx, cancel := context.WithTimeout(ctx, c.hostTimeout)
	defer cancel()

	var result HostResult
	err := c.retryWithBackoff(hostCtx, func() error {
		var err error
		result, err = c.readHost(hostCtx, parser, host, cutoff, logger)
		return err
	}, func(err error) bool {
		return !IsPermanentError(err)
	}, "log read", logger)

	duration := time.Since(start)
	c.metrics.Hosts.Duration.Observe(duration.Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Error("host exceeded timeout", "timeout", c.hostTimeout, "error", err)
		} else {
			logger.Error("host collection failed", "error", err)
		}
		c.metrics.Hosts.Processed.WithLabelValues(statusFailed).Inc()
		return HostResult{Host: host, Status: HostFailed, Err: err, Duration: duration}
	}

	result.Duration = duration
	c.metrics.Hosts.Processed.WithLabelValues(string(result.Status)).Inc()
	c.metrics.Hosts.RecordsCollected.Add(float64(len(result.Records)))
	c.metrics.Hosts.LinesMalformed.Add(float64(result.Malformed))

	return result
}

// readHost makes one attempt at reading host's log
func (c *Collector) readHost(ctx context.Context, parser *netlogon.Parser, host string,
	cutoff time.Time, logger *slog.Logger) (HostResult, error) {
	result := HostResult{Host: host}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return result, err
		}
	}

	f, err := c.opener.Open(ctx, host, c.logPath)
	if err != nil {
		return result, fmt.Errorf("failed to open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return result, fmt.Errorf("failed to stat log: %w", err)
	}

	if !info.ModTime().After(cutoff) {
		logger.Info("log not modified since cutoff, skipping host",
			"modTime", info.ModTime(),
			"cutoff", cutoff)
		result.Status = HostSkipped
		return result, nil
	}

	lines, err := netlogon.ReadTail(f, info.Size(), c.logMaxLines)
	if err != nil {
		return result, fmt.Errorf("failed to read log: %w", err)
	}

	scan := parser.ScanRecent(lines, cutoff)
	for i := range scan.Records {
		scan.Records[i].Host = host
	}

	if len(scan.Malformed) > 0 {
		logger.Warn("skipped malformed log lines",
			"nMalformed", len(scan.Malformed),
			"firstError", scan.Malformed[0].Error())
	}

	logger.Debug("read log",
		"nLines", len(lines),
		"nRecords", len(scan.Records),
		"reachedCutoff", scan.Stopped)

	result.Status = HostCollected
	result.Records = scan.Records
	result.Malformed = len(scan.Malformed)
	return result, nil
}

func (c *Collector) runError(ctx context.Context, report *Report) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("collection interrupted: %w", err)
	}

	failed := report.Count(HostFailed)
	if failed > 0 && failed == len(report.Hosts) {
		return fmt.Errorf("%w: %d of %d hosts", ErrAllHostsFailed, failed, len(report.Hosts))
	}
	return nil
}

// export deduplicates the collected records, writes the CSV report and
// hands it to the sinks
func (c *Collector) export(ctx context.Context, report *Report) error {
	report.Rows = Dedupe(report.Records())
	c.metrics.Report.Rows.Set(float64(len(report.Rows)))

	content, err := EncodeCSV(report.Rows)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}

	path, err := WriteReport(c.exportPath, report.GeneratedAt, content)
	if err != nil {
		c.logger.Error("failed to export report", "exportPath", c.exportPath, "error", err)
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	report.Path = path

	c.logger.Info("report exported",
		"path", path,
		"nRows", len(report.Rows),
		"nRecords", len(report.Records()))

	return c.publish(ctx, report, content)
}

func (c *Collector) publish(ctx context.Context, report *Report, content []byte) error {
	if len(c.sinks) == 0 {
		return nil
	}

	// Sinks still run after an interrupted collection
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sinkTimeout)
	defer cancel()

	var errs []error
	for _, sink := range c.sinks {
		if err := sink.Publish(publishCtx, report, content); err != nil {
			c.metrics.Report.SinkFailures.WithLabelValues(sink.Name()).Inc()
			c.logger.Error("failed to publish report", "sink", sink.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		c.logger.Info("report published", "sink", sink.Name(), "nRows", len(report.Rows))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPublish, errors.Join(errs...))
	}
	return nil
}

// retryWithBackoff executes an operation with exponential backoff retry logic
func (c *Collector) retryWithBackoff(
	ctx context.Context,
	operation func() error,
	shouldRetry func(error) bool,
	operationName string,
	logger *slog.Logger,
) error {
	var lastErr error
	backoff := c.initialBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			actualBackoff := applyJitter(backoff, c.backoffJitterFactor)

			logger.Info(fmt.Sprintf("retrying %s after backoff", operationName),
				"attempt", attempt,
				"backoffSeconds", actualBackoff.Seconds())

			select {
			case <-time.After(actualBackoff):
			case <-ctx.Done():
				return fmt.Errorf("%s interrupted after %d attempts: %w", operationName, attempt, errors.Join(ctx.Err(), lastErr))
			}

			backoff = time.Duration(float64(backoff) * backoffMultiplier)
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				logger.Info(fmt.Sprintf("%s succeeded", operationName), "attempt", attempt)
			}
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s interrupted: %w", operationName, errors.Join(ctxErr, err))
		}

		if shouldRetry != nil && !shouldRetry(err) {
			logger.Error(fmt.Sprintf("permanent error, not retrying %s", operationName), "error", err)
			return fmt.Errorf("permanent error in %s: %w", operationName, err)
		}

		lastErr = err

		logger.Warn(fmt.Sprintf("transient error, will retry %s", operationName),
			"attempt", attempt,
			"error", err)
	}

	return fmt.Errorf("max retries (%d) exceeded for %s: %w", c.maxRetries, operationName, lastErr)
}

// IsPermanentError determines if a host error is permanent or transient
//
// Permanent errors are configuration or permission issues that won't be fixed by retrying:
// - missing log file, share or host name
// - rejected credentials
// - insufficient permissions on the share or file
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return true
	}

	// SMB response errors carry NT status text rather than typed errors
	errStr := strings.ToLower(err.Error())
	permanentPatterns := []string{
		"access denied",
		"status_access_denied",
		"logon is invalid",
		"status_logon_failure",
		"status_account_disabled",
		"status_account_locked_out",
		"status_password_expired",
		"network name not found",
		"status_bad_network_name",
		"object name is not found",
		"status_object_name_not_found",
		"status_object_path_not_found",
		"no such host",
	}

	for _, pattern := range permanentPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
