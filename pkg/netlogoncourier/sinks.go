package netlogoncourier

import (
	"context"
	"fmt"
	"path"

	"github.com/scality/netlogon-courier/pkg/clickhouse"
	"github.com/scality/netlogon-courier/pkg/s3"
)

// Sink publishes a written report somewhere beyond the export directory
type Sink interface {
	Name() string
	Publish(ctx context.Context, report *Report, content []byte) error
}

// S3Sink uploads the CSV report to a bucket
type S3Sink struct {
	uploader s3.UploaderInterface
	bucket   string
	prefix   string
}

// NewS3Sink creates a sink uploading under bucket/prefix
func NewS3Sink(uploader s3.UploaderInterface, bucket, prefix string) *S3Sink {
	return &S3Sink{uploader: uploader, bucket: bucket, prefix: prefix}
}

// Name implements Sink
func (s *S3Sink) Name() string { return "s3" }

// Key returns the object key of a report
func (s *S3Sink) Key(report *Report) string {
	name := ReportFileName(report.GeneratedAt)
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Publish implements Sink
func (s *S3Sink) Publish(ctx context.Context, report *Report, content []byte) error {
	return s.uploader.Upload(ctx, s.bucket, s.Key(report), content)
}

// ClickHouseSink inserts report rows into the records table
type ClickHouseSink struct {
	client *clickhouse.Client
}

// NewClickHouseSink creates the records table if needed and returns a sink
// writing to it
func NewClickHouseSink(ctx context.Context, client *clickhouse.Client) (*ClickHouseSink, error) {
	if err := client.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return &ClickHouseSink{client: client}, nil
}

// Name implements Sink
func (s *ClickHouseSink) Name() string { return "clickhouse" }

// Publish implements Sink
func (s *ClickHouseSink) Publish(ctx context.Context, report *Report, _ []byte) error {
	if len(report.Rows) == 0 {
		return nil
	}

	batch, err := s.client.PrepareBatch(ctx, s.client.InsertQuery())
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range report.Rows {
		err := batch.Append(
			report.GeneratedAt,
			report.GeneratedAt,
			row.Date,
			row.Host,
			row.Client,
			row.User,
			row.Domain,
			row.Error,
			row.IPAddress,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append row for %s: %w", row.IPAddress, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch of %d rows: %w", len(report.Rows), err)
	}
	return nil
}

// Close closes the ClickHouse connection
func (s *ClickHouseSink) Close() error {
	return s.client.Close()
}
