package e2e_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scality/netlogon-courier/pkg/directory"
	"github.com/scality/netlogon-courier/pkg/netlogoncourier"
	"github.com/scality/netlogon-courier/pkg/share"
)

const (
	// bucketOperationMaxRetries is the number of retries after the initial attempt for bucket operations
	bucketOperationMaxRetries = 4
	// bucketOperationInitialDelay is the initial delay for exponential backoff
	bucketOperationInitialDelay = 100 * time.Millisecond
	// bucketOperationMaxDelay is the maximum delay between retries
	bucketOperationMaxDelay = 2 * time.Second
)

// E2ETestContext holds the test context for an E2E test: a directory tree
// standing in for the mounted admin shares of each domain controller, and
// an export directory
type E2ETestContext struct {
	TestName  string
	Now       time.Time
	ShareRoot string
	ExportDir string
	Hosts     []string
	Bucket    string
}

// ReportRow is one parsed line of the CSV report
type ReportRow struct {
	Date      string
	Client    string
	User      string
	Domain    string
	Error     string
	IPAddress string
}

func setupE2ETest(testName string) *E2ETestContext {
	root := GinkgoT().TempDir()
	exportDir := filepath.Join(root, "export")
	Expect(os.Mkdir(exportDir, 0o750)).To(Succeed())

	return &E2ETestContext{
		TestName:  testName,
		Now:       time.Now().Truncate(time.Second),
		ShareRoot: filepath.Join(root, "shares"),
		ExportDir: exportDir,
	}
}

// NoClientSiteLine formats a NETLOGON NO_CLIENT_SITE line logged at t
func NoClientSiteLine(t time.Time, client, ip string) string {
	return fmt.Sprintf("%s [1560] %s CORP NO_CLIENT_SITE: svc-%s %s",
		t.Format("01/02 15:04:05"), client, strings.ToLower(client), ip)
}

// WriteHostLog writes host's netlogon.log and sets its modification time
func (ctx *E2ETestContext) WriteHostLog(host string, modTime time.Time, lines ...string) {
	dir := filepath.Join(ctx.ShareRoot, host, "debug")
	Expect(os.MkdirAll(dir, 0o750)).To(Succeed())

	path := filepath.Join(dir, "netlogon.log")
	// NETLOGON writes CRLF line endings
	content := strings.Join(lines, "\r\n") + "\r\n"
	Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
	Expect(os.Chtimes(path, modTime, modTime)).To(Succeed())

	ctx.Hosts = append(ctx.Hosts, host)
}

// AddUnreachableHost lists a host without a share directory
func (ctx *E2ETestContext) AddUnreachableHost(host string) {
	ctx.Hosts = append(ctx.Hosts, host)
}

// CollectorConfig returns a collector config reading ctx's shares
func (ctx *E2ETestContext) CollectorConfig(days int) netlogoncourier.Config {
	opener, err := share.NewLocalOpener(filepath.Join(ctx.ShareRoot, share.HostPlaceholder))
	Expect(err).NotTo(HaveOccurred())

	now := ctx.Now
	return netlogoncourier.Config{
		Logger:         slog.New(slog.NewJSONHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Metrics:        netlogoncourier.NewMetricsWithRegistry(nil),
		Directory:      directory.NewStaticDirectory(ctx.Hosts),
		Opener:         opener,
		ExportPath:     ctx.ExportDir,
		Days:           days,
		LogMaxLines:    netlogoncourier.DefaultLogMaxLines,
		Location:       time.Local,
		NumWorkers:     4,
		MaxRetries:     1,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Now:            func() time.Time { return now },
	}
}

// RunCollector runs one collection with cfg
func RunCollector(cfg netlogoncourier.Config) (*netlogoncourier.Report, error) {
	collector, err := netlogoncourier.NewCollector(context.Background(), cfg)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = collector.Close() }()

	return collector.Run(context.Background())
}

// ParseReport parses CSV report content, checking its header
func ParseReport(content []byte) []ReportRow {
	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	Expect(err).NotTo(HaveOccurred())
	Expect(records).NotTo(BeEmpty())
	Expect(records[0]).To(Equal(netlogoncourier.ReportHeader))

	rows := make([]ReportRow, 0, len(records)-1)
	for _, fields := range records[1:] {
		Expect(fields).To(HaveLen(6))
		rows = append(rows, ReportRow{
			Date:      fields[0],
			Client:    fields[1],
			User:      fields[2],
			Domain:    fields[3],
			Error:     fields[4],
			IPAddress: fields[5],
		})
	}
	return rows
}

// ReadReport reads and parses the report exported by ctx's run
func (ctx *E2ETestContext) ReadReport() []ReportRow {
	content, err := os.ReadFile(filepath.Join(ctx.ExportDir, netlogoncourier.ReportFileName(ctx.Now)))
	Expect(err).NotTo(HaveOccurred())
	return ParseReport(content)
}

// withBucketRetry retries a bucket operation with exponential backoff
func withBucketRetry(operation func() error) error {
	var err error
	delay := bucketOperationInitialDelay

	for attempt := 0; attempt <= bucketOperationMaxRetries; attempt++ {
		if err = operation(); err == nil {
			return nil
		}
		time.Sleep(delay)
		delay *= 2
		if delay > bucketOperationMaxDelay {
			delay = bucketOperationMaxDelay
		}
	}
	return err
}

// CreateBucket creates a uniquely named bucket removed at the end of the test
func (ctx *E2ETestContext) CreateBucket(client *s3.Client) {
	ctx.Bucket = fmt.Sprintf("e2e-%s-%d", ctx.TestName, time.Now().UnixNano())

	err := withBucketRetry(func() error {
		_, err := client.CreateBucket(context.Background(), &s3.CreateBucketInput{
			Bucket: aws.String(ctx.Bucket),
		})
		return err
	})
	Expect(err).NotTo(HaveOccurred())

	DeferCleanup(func() {
		Expect(emptyBucket(client, ctx.Bucket)).To(Succeed())
		Expect(withBucketRetry(func() error {
			_, err := client.DeleteBucket(context.Background(), &s3.DeleteBucketInput{
				Bucket: aws.String(ctx.Bucket),
			})
			return err
		})).To(Succeed())
	})
}

// emptyBucket deletes all objects in a bucket
func emptyBucket(client *s3.Client, bucket string) error {
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return err
		}

		if len(page.Contents) == 0 {
			continue
		}

		var objectIds []types.ObjectIdentifier
		for _, obj := range page.Contents {
			objectIds = append(objectIds, types.ObjectIdentifier{
				Key: obj.Key,
			})
		}

		_, err = client.DeleteObjects(context.Background(), &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{
				Objects: objectIds,
			},
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// downloadObject downloads an object from S3
func downloadObject(client *s3.Client, bucket, key string) ([]byte, error) {
	result, err := client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = result.Body.Close() }()

	return io.ReadAll(result.Body)
}
