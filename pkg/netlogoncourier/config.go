package netlogoncourier

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/scality/netlogon-courier/pkg/share"
)

const (
	// MaxDays bounds the recency window
	MaxDays = 31

	ShareModeSMB   = "smb"
	ShareModeLocal = "local"
)

// ValidateConfig performs additional validation beyond required field checks
func ValidateConfig() error {
	logLevel := ConfigSpec.GetString("log-level")
	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true}
	if !validLevels[logLevel] {
		return fmt.Errorf("invalid log-level: %s (must be error|warn|info|debug)", logLevel)
	}

	exportPath := ConfigSpec.GetString("export.path")
	if exportPath == "" {
		return fmt.Errorf("export.path is required")
	}
	info, err := os.Stat(exportPath)
	if err != nil {
		return fmt.Errorf("export.path %s: %w", exportPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("export.path %s is not a directory", exportPath)
	}

	days := ConfigSpec.GetInt("export.days")
	if days < 1 || days > MaxDays {
		return fmt.Errorf("export.days must be between 1 and %d, got %d", MaxDays, days)
	}

	if ConfigSpec.GetInt("collector.log-max-lines") == 0 {
		return fmt.Errorf("collector.log-max-lines must not be zero")
	}

	if ConfigSpec.GetString("collector.log-path") == "" {
		return fmt.Errorf("collector.log-path must not be empty")
	}

	numWorkers := ConfigSpec.GetInt("collector.num-workers")
	if numWorkers < 1 {
		return fmt.Errorf("collector.num-workers must be positive, got %d", numWorkers)
	}

	hostTimeout := ConfigSpec.GetInt("collector.host-timeout-seconds")
	if hostTimeout <= 0 {
		return fmt.Errorf("collector.host-timeout-seconds must be positive, got %d", hostTimeout)
	}

	if rate := ConfigSpec.GetFloat64("collector.max-hosts-per-second"); rate < 0 {
		return fmt.Errorf("collector.max-hosts-per-second must not be negative, got %g", rate)
	}

	if timeout := ConfigSpec.GetInt("shutdown-timeout-seconds"); timeout <= 0 {
		return fmt.Errorf("shutdown-timeout-seconds must be positive, got %d", timeout)
	}

	if _, err := LoadLocation(ConfigSpec.GetString("collector.timezone")); err != nil {
		return fmt.Errorf("invalid collector.timezone: %w", err)
	}

	if err := validateRetryConfig(); err != nil {
		return err
	}

	switch mode := ConfigSpec.GetString("share.mode"); mode {
	case ShareModeSMB:
		if err := ConfigSpec.CheckRequired("smb.username"); err != nil {
			return err
		}
	case ShareModeLocal:
		template := ConfigSpec.GetString("share.local-root-template")
		if !strings.Contains(template, share.HostPlaceholder) {
			return fmt.Errorf("share.local-root-template must contain %s, got %q", share.HostPlaceholder, template)
		}
	default:
		return fmt.Errorf("invalid share.mode: %s (must be %s|%s)", mode, ShareModeSMB, ShareModeLocal)
	}

	if len(ConfigSpec.GetStringSlice("collector.hosts")) == 0 {
		if err := ConfigSpec.CheckRequired("ldap.url"); err != nil {
			return fmt.Errorf("%w: set ldap.url or collector.hosts", err)
		}
	}

	if ConfigSpec.GetBool("clickhouse.enabled") {
		if err := ConfigSpec.CheckRequired("clickhouse."); err != nil {
			return err
		}
	}

	if ConfigSpec.GetBool("s3.enabled") {
		if err := ConfigSpec.CheckRequired("s3."); err != nil {
			return err
		}
	}

	return nil
}

func validateRetryConfig() error {
	maxRetries := ConfigSpec.GetInt("retry.max-retries")
	if maxRetries < 0 {
		return fmt.Errorf("retry.max-retries must not be negative, got %d", maxRetries)
	}

	initialBackoff := ConfigSpec.GetInt("retry.initial-backoff-seconds")
	if initialBackoff <= 0 {
		return fmt.Errorf("retry.initial-backoff-seconds must be positive, got %d", initialBackoff)
	}

	maxBackoff := ConfigSpec.GetInt("retry.max-backoff-seconds")
	if maxBackoff < initialBackoff {
		return fmt.Errorf("retry.max-backoff-seconds (%d) must be >= retry.initial-backoff-seconds (%d)",
			maxBackoff, initialBackoff)
	}

	jitter := ConfigSpec.GetFloat64("retry.backoff-jitter-factor")
	if jitter < 0 || jitter > 1 {
		return fmt.Errorf("retry.backoff-jitter-factor must be between 0.0 and 1.0, got %g", jitter)
	}

	return nil
}

// LoadLocation resolves a configured time zone; "Local" and "" mean the
// collector's own zone
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
