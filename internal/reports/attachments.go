package reports

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

// AttachmentStore persists report files.
type AttachmentStore interface {
	Put(ctx context.Context, key string, upload Upload) error
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner issues download URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error)
}

// PresignedRequest mirrors the fields of the SDK's presigned request that callers need.
type PresignedRequest struct {
	URL string
}

// S3Store keeps attachments in one bucket.
type S3Store struct {
	bucket    string
	client    S3API
	presigner Presigner
	ttl       time.Duration
	logger    *logging.Logger
}

// NewS3Store creates an attachment store for bucket. URLs expire after ttl.
func NewS3Store(client S3API, presigner Presigner, bucket string, ttl time.Duration, logger *logging.Logger) *S3Store {
	if client == nil || bucket == "" {
		panic("reports: s3 client and bucket required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3Store{bucket: bucket, client: client, presigner: presigner, ttl: ttl, logger: logger}
}

func (s *S3Store) Put(ctx context.Context, key string, upload Upload) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        upload.Body,
		ContentType: aws.String(contentTypeOrDefault(upload.ContentType)),
	}
	if upload.Size > 0 {
		input.ContentLength = aws.Int64(upload.Size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("reports: s3 put %s: %w", key, err)
	}
	s.logger.Debug("stored report attachment", "s3_key", key, "size", upload.Size)
	return nil
}

func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	if s.presigner == nil {
		return "", fmt.Errorf("reports: presigner not configured")
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("reports: presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("reports: s3 delete %s: %w", key, err)
	}
	return nil
}

// S3Presigner adapts *s3.PresignClient to Presigner.
type S3Presigner struct {
	Client *s3.PresignClient
}

func (p S3Presigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error) {
	req, err := p.Client.PresignGetObject(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}
	return &PresignedRequest{URL: req.URL}, nil
}

// MemoryStore keeps attachments in process for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func (m *MemoryStore) Put(ctx context.Context, key string, upload Upload) error {
	data, err := io.ReadAll(upload.Body)
	if err != nil {
		return fmt.Errorf("reports: read upload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *MemoryStore) URL(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("reports: attachment %s not found", key)
	}
	return "memory://" + key, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Object returns a stored attachment's bytes.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// attachmentKey places a file under the submission day with a unique prefix.
func attachmentKey(now time.Time, filename string) string {
	name := unsafeFilename.ReplaceAllString(path.Base(strings.ReplaceAll(filename, `\`, "/")), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "attachment"
	}
	return fmt.Sprintf("reports/%d/%02d/%02d/%s-%s", now.Year(), now.Month(), now.Day(), uuid.NewString(), name)
}

func contentTypeOrDefault(ct string) string {
	if strings.TrimSpace(ct) == "" {
		return "application/octet-stream"
	}
	return ct
}

var (
	_ AttachmentStore = (*S3Store)(nil)
	_ AttachmentStore = (*MemoryStore)(nil)
)
