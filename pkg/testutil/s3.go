package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/scality/netlogon-courier/pkg/s3"
)

// UploadedObject is an object received by a RecordingUploader
type UploadedObject struct {
	Bucket  string
	Key     string
	Content []byte
}

// RecordingUploader keeps uploaded objects in memory. When Err is set every
// upload fails with it.
type RecordingUploader struct {
	Err error

	mu           sync.Mutex
	objects      []UploadedObject
	uploadCount  atomic.Int64
	failureCount atomic.Int64
}

var _ s3.UploaderInterface = (*RecordingUploader)(nil)

// Upload records the object or returns Err
func (u *RecordingUploader) Upload(ctx context.Context, bucket, key string, content []byte) error {
	u.uploadCount.Add(1)
	if u.Err != nil {
		u.failureCount.Add(1)
		return u.Err
	}
	if err := ctx.Err(); err != nil {
		u.failureCount.Add(1)
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects = append(u.objects, UploadedObject{
		Bucket:  bucket,
		Key:     key,
		Content: append([]byte(nil), content...),
	})
	return nil
}

// Objects returns the successfully uploaded objects in upload order
func (u *RecordingUploader) Objects() []UploadedObject {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]UploadedObject(nil), u.objects...)
}

// GetUploadCount returns the total number of upload attempts
func (u *RecordingUploader) GetUploadCount() int64 {
	return u.uploadCount.Load()
}

// GetFailureCount returns the number of failed uploads
func (u *RecordingUploader) GetFailureCount() int64 {
	return u.failureCount.Load()
}
