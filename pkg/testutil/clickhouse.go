package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/scality/netlogon-courier/pkg/clickhouse"
)

// ClickHouseURLEnvVar points tests at a ClickHouse server; tests needing
// one are skipped when it is unset
const ClickHouseURLEnvVar = "NETLOGON_COURIER_CLICKHOUSE_URL"

// TestDatabaseName keeps test data away from the production database
const TestDatabaseName = "netlogon_test"

// ClickHouseTestHelper provides utilities for testing with ClickHouse
type ClickHouseTestHelper struct {
	Client *clickhouse.Client
}

// ClickHouseAvailable reports whether a test server is configured
func ClickHouseAvailable() bool {
	return os.Getenv(ClickHouseURLEnvVar) != ""
}

// NewClickHouseTestHelper connects to the configured test server
func NewClickHouseTestHelper(ctx context.Context) (*ClickHouseTestHelper, error) {
	url := os.Getenv(ClickHouseURLEnvVar)
	if url == "" {
		return nil, fmt.Errorf("%s is not set", ClickHouseURLEnvVar)
	}

	client, err := clickhouse.NewClient(ctx, clickhouse.Config{
		Hosts:    []string{url},
		Username: "default",
		Database: TestDatabaseName,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test ClickHouse: %w", err)
	}

	return &ClickHouseTestHelper{Client: client}, nil
}

// CountRecords returns the number of rows stored for an IP address
func (h *ClickHouseTestHelper) CountRecords(ctx context.Context, ipAddress string) (uint64, error) {
	query := fmt.Sprintf("SELECT count() FROM %s.%s WHERE ipAddress = ?",
		h.Client.Database(), clickhouse.TableNoClientSiteRecords)

	var count uint64
	if err := h.Client.QueryRow(ctx, query, ipAddress).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Close drops the test table and closes the connection
func (h *ClickHouseTestHelper) Close() error {
	if h.Client == nil {
		return nil
	}
	_ = h.Client.DropSchema(context.Background())
	return h.Client.Close()
}
