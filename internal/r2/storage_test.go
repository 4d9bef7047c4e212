package r2

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu       sync.Mutex
	puts     []s3.PutObjectInput
	failures int
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, *input)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient upload error")
	}
	return &manager.UploadOutput{}, nil
}

type fakeGetter struct {
	body        string
	contentType string
	err         error
}

func (f *fakeGetter) GetObject(ctx context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(f.body)),
		ContentType: aws.String(f.contentType),
	}, nil
}

func newTestStorage(up uploader, get objectGetter) *Storage {
	s := &Storage{
		Bucket:         "test-bucket",
		Workers:        2,
		QueueSize:      4,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		uploader:       up,
		getter:         get,
	}
	s.start()
	return s
}

func TestPutDeliversKeyAndContentType(t *testing.T) {
	up := &fakeUploader{}
	s := newTestStorage(up, nil)
	defer s.Close()

	err := s.Put(context.Background(), "optimized/a.jpeg", "image/jpeg", []byte("payload"))
	require.NoError(t, err)

	up.mu.Lock()
	defer up.mu.Unlock()
	require.Len(t, up.puts, 1)
	assert.Equal(t, "test-bucket", *up.puts[0].Bucket)
	assert.Equal(t, "optimized/a.jpeg", *up.puts[0].Key)
	assert.Equal(t, "image/jpeg", *up.puts[0].ContentType)
}

func TestPutRetriesTransientFailures(t *testing.T) {
	up := &fakeUploader{failures: 2}
	s := newTestStorage(up, nil)
	defer s.Close()

	err := s.Put(context.Background(), "k", "image/png", []byte("x"))
	require.NoError(t, err)

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Len(t, up.puts, 3, "two failures then one success")
}

func TestPutGivesUpAfterMaxRetries(t *testing.T) {
	up := &fakeUploader{failures: 10}
	s := newTestStorage(up, nil)
	defer s.Close()

	err := s.Put(context.Background(), "k", "image/png", []byte("x"))
	assert.Error(t, err)
}

func TestPutQueueFull(t *testing.T) {
	block := make(chan struct{})
	up := &blockingUploader{release: block}
	s := &Storage{
		Bucket:         "b",
		Workers:        1,
		QueueSize:      1,
		MaxRetries:     0,
		RetryBaseDelay: time.Millisecond,
		uploader:       up,
	}
	s.start()
	defer func() {
		close(block)
		s.Close()
	}()

	// saturate the worker, then the queue
	go s.Put(context.Background(), "busy", "t", nil)
	require.Eventually(t, func() bool {
		up.mu.Lock()
		defer up.mu.Unlock()
		return up.started
	}, time.Second, time.Millisecond)
	go s.Put(context.Background(), "queued", "t", nil)
	require.Eventually(t, func() bool { return len(s.queue) == 1 }, time.Second, time.Millisecond)

	err := s.Put(context.Background(), "overflow", "t", nil)
	assert.ErrorIs(t, err, ErrQueueFull)
}

type blockingUploader struct {
	mu      sync.Mutex
	started bool
	release chan struct{}
}

func (b *blockingUploader) Upload(ctx context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()
	<-b.release
	return &manager.UploadOutput{}, nil
}

func TestDownload(t *testing.T) {
	s := newTestStorage(&fakeUploader{}, &fakeGetter{body: "image bytes", contentType: "image/webp"})
	defer s.Close()

	data, contentType, err := s.Download(context.Background(), "optimized/x.webp")
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))
	assert.Equal(t, "image/webp", contentType)
}

func TestDownloadError(t *testing.T) {
	s := newTestStorage(&fakeUploader{}, &fakeGetter{err: errors.New("no such key")})
	defer s.Close()

	_, _, err := s.Download(context.Background(), "missing")
	assert.ErrorContains(t, err, "missing")
}
