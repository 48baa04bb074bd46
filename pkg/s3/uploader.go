package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ContentTypeCSV is the content type of uploaded reports
const ContentTypeCSV = "text/csv"

// UploaderInterface uploads an object to a bucket
type UploaderInterface interface {
	Upload(ctx context.Context, bucket, key string, content []byte) error
}

// Uploader uploads reports to S3
type Uploader struct {
	client      *Client
	contentType string
}

// NewUploader creates an uploader storing objects as CSV
func NewUploader(client *Client) *Uploader {
	return &Uploader{client: client, contentType: ContentTypeCSV}
}

// Upload puts content under bucket/key.
// Retries are handled by the SDK client based on its retry configuration.
func (u *Uploader) Upload(ctx context.Context, bucket, key string, content []byte) error {
	_, err := u.client.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(u.contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: bucket=%s, key=%s: %w", bucket, key, err)
	}

	return nil
}
