package r2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrQueueFull = errors.New("upload queue is full")

// Config identifies the R2 bucket and credentials.
type Config struct {
	AccountID  string
	BucketName string
	AccessKey  string
	SecretKey  string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type objectGetter interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type uploadReq struct {
	ctx         context.Context
	key         string
	contentType string
	payload     []byte

	reply chan error
}

// Storage is an R2-backed blob sink. Puts flow through a bounded queue
// serviced by a fixed set of workers; each attempt retries with jittered
// backoff before reporting back to the caller.
type Storage struct {
	Bucket string
	Region string // "auto" for R2

	Workers        int
	QueueSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration

	queue chan uploadReq
	wg    sync.WaitGroup

	uploader uploader
	getter   objectGetter
}

func NewStorage(cfg Config) (*Storage, error) {
	s := &Storage{
		Bucket:         cfg.BucketName,
		Region:         "auto",
		Workers:        8,
		QueueSize:      1000,
		MaxRetries:     3,
		RetryBaseDelay: 300 * time.Millisecond,
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
		awsconfig.WithRegion(s.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
		o.UsePathStyle = true
	})
	s.uploader = manager.NewUploader(client)
	s.getter = client

	s.start()
	log.Println("[r2] client and upload workers initialized")
	return s, nil
}

func (s *Storage) start() {
	s.queue = make(chan uploadReq, s.QueueSize)
	for i := 0; i < s.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Close waits for all queued uploads to be processed.
func (s *Storage) Close() {
	close(s.queue)
	s.wg.Wait()
}

// Put stores payload under key and blocks until the upload settles or ctx
// expires. When the queue is at capacity it fails fast with ErrQueueFull so
// the caller can surface the failure instead of stalling completion fan-out.
func (s *Storage) Put(ctx context.Context, key, contentType string, payload []byte) error {
	req := uploadReq{
		ctx:         ctx,
		key:         key,
		contentType: contentType,
		payload:     payload,
		reply:       make(chan error, 1),
	}
	select {
	case s.queue <- req:
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Storage) worker() {
	defer s.wg.Done()
	for req := range s.queue {
		var err error
		attempt := 0

		for {
			attempt++
			_, err = s.uploader.Upload(req.ctx, &s3.PutObjectInput{
				Bucket:      aws.String(s.Bucket),
				Key:         aws.String(req.key),
				Body:        bytes.NewReader(req.payload),
				ContentType: aws.String(req.contentType),
			})
			if err == nil {
				break
			}

			// retry?
			if attempt > s.MaxRetries {
				break
			}

			backoff := s.backoffDelay(attempt)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-req.ctx.Done():
				timer.Stop()
			}
			if req.ctx != nil && req.ctx.Err() != nil {
				err = req.ctx.Err()
				break
			}
		}

		if err != nil {
			log.Printf("[r2] upload of %q failed after %d attempts: %v", req.key, attempt, err)
		}
		req.reply <- err
	}
}

func (s *Storage) backoffDelay(attempt int) time.Duration {
	delay := s.RetryBaseDelay << (attempt - 1)
	jitter := time.Duration(int64(delay) / 10)
	return delay - (jitter / 2) + time.Duration(rand.Int63n(int64(jitter)+1))
}

// Download fetches the object at key and returns its bytes and content type.
func (s *Storage) Download(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.getter.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %q: %w", key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, "", fmt.Errorf("failed to read body for %q: %w", key, err)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return buf.Bytes(), contentType, nil
}
