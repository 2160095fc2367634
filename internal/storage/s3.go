package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jzydn/jay-clips-archive/internal/config"
)

// s3API is the subset of the S3 client used by S3Store.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store keeps blobs in an S3-compatible bucket.
type S3Store struct {
	client   s3API
	uploader uploader
	bucket   string
	prefix   string
	now      func() time.Time
}

// NewS3Store configures a client and uploader targeting the provided object store.
func NewS3Store(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	up := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return newS3Store(client, up, cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(client s3API, up uploader, bucket, prefix string) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{client: client, uploader: up, bucket: bucket, prefix: prefix, now: time.Now}
}

// Save uploads r under a freshly generated key and returns the storage path.
func (s *S3Store) Save(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	if err := ValidateMedia(filename, contentType); err != nil {
		return "", err
	}

	name := newBlobPath(s.now(), filename)
	if err := s.upload(ctx, name, r); err != nil {
		return "", err
	}
	return name, nil
}

// Put uploads r at storagePath, replacing any existing object.
func (s *S3Store) Put(ctx context.Context, storagePath string, r io.Reader) error {
	if err := ValidateMedia(storagePath, ContentType(storagePath)); err != nil {
		return err
	}
	cleaned, err := cleanStoragePath(storagePath)
	if err != nil {
		return err
	}
	return s.upload(ctx, cleaned, r)
}

func (s *S3Store) upload(ctx context.Context, name string, r io.Reader) error {
	key := s.prefix + name
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(ContentType(name)),
	})
	if err != nil {
		return fmt.Errorf("s3 storage upload %s: %w", key, err)
	}
	return nil
}

// Open stats the object and returns a reader that fetches byte ranges lazily.
func (s *S3Store) Open(ctx context.Context, storagePath string) (*Blob, error) {
	cleaned, err := cleanStoragePath(storagePath)
	if err != nil {
		return nil, err
	}
	key := s.prefix + cleaned

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 storage head %s: %w", key, err)
	}

	return &Blob{
		Body: &s3Object{
			ctx:    ctx,
			client: s.client,
			bucket: s.bucket,
			key:    key,
			size:   aws.ToInt64(head.ContentLength),
		},
		Name:    path.Base(cleaned),
		Size:    aws.ToInt64(head.ContentLength),
		ModTime: aws.ToTime(head.LastModified),
	}, nil
}

// Delete removes the object. S3 deletes of missing keys succeed.
func (s *S3Store) Delete(ctx context.Context, storagePath string) error {
	cleaned, err := cleanStoragePath(storagePath)
	if err != nil {
		return err
	}
	key := s.prefix + cleaned

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil && !isS3NotFound(err) {
		return fmt.Errorf("s3 storage delete %s: %w", key, err)
	}
	return nil
}

// Walk lists every object under the configured prefix.
func (s *S3Store) Walk(ctx context.Context, fn WalkFunc) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 storage list: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			err := fn(BlobInfo{
				Path:    strings.TrimPrefix(key, s.prefix),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func isS3NotFound(err error) bool {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

// s3Object is an io.ReadSeekCloser over a remote object. Seeking only moves
// the offset; the next Read issues a GetObject for bytes from that offset.
type s3Object struct {
	ctx    context.Context
	client s3API
	bucket string
	key    string
	size   int64

	mu     sync.Mutex
	offset int64
	body   io.ReadCloser
}

func (o *s3Object) Read(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.offset >= o.size {
		return 0, io.EOF
	}

	if o.body == nil {
		out, err := o.client.GetObject(o.ctx, &s3.GetObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(o.key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-", o.offset)),
		})
		if err != nil {
			if isS3NotFound(err) {
				return 0, ErrNotFound
			}
			return 0, fmt.Errorf("s3 storage get %s: %w", o.key, err)
		}
		o.body = out.Body
	}

	n, err := o.body.Read(p)
	o.offset += int64(n)
	return n, err
}

func (o *s3Object) Seek(offset int64, whence int) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = o.offset + offset
	case io.SeekEnd:
		abs = o.size + offset
	default:
		return 0, fmt.Errorf("s3 storage seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("s3 storage seek: negative position %d", abs)
	}

	if abs != o.offset && o.body != nil {
		_ = o.body.Close()
		o.body = nil
	}
	o.offset = abs
	return abs, nil
}

func (o *s3Object) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.body == nil {
		return nil
	}
	err := o.body.Close()
	o.body = nil
	return err
}
