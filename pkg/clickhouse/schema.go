package clickhouse

import (
	"context"
	"fmt"
)

// EnsureSchema creates the database and the records table when missing
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.database)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", c.database, err)
	}

	tableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s
		(
			reportDate   Date,
			generatedAt  DateTime,
			eventTime    DateTime,
			host         LowCardinality(String),
			client       String,
			userName     String,
			domain       LowCardinality(String),
			error        LowCardinality(String),
			ipAddress    String
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(reportDate)
		ORDER BY (reportDate, ipAddress)
	`, c.database, TableNoClientSiteRecords)
	if err := c.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", TableNoClientSiteRecords, err)
	}

	return nil
}

// DropSchema drops the records table
func (c *Client) DropSchema(ctx context.Context) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", c.database, TableNoClientSiteRecords)
	if err := c.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", TableNoClientSiteRecords, err)
	}
	return nil
}

// InsertQuery is the batch insert statement for the records table
func (c *Client) InsertQuery() string {
	return fmt.Sprintf(
		"INSERT INTO %s.%s (reportDate, generatedAt, eventTime, host, client, userName, domain, error, ipAddress)",
		c.database, TableNoClientSiteRecords)
}
