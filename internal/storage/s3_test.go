package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	ranges  []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(input.Key)] = fakeObject{
		data:        data,
		contentType: aws.ToString(input.ContentType),
		modified:    time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
	}
	return &manager.UploadOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	rng := aws.ToString(in.Range)
	f.ranges = append(f.ranges, rng)

	var start int
	if _, err := fmt.Sscanf(rng, "bytes=%d-", &start); err != nil {
		return nil, fmt.Errorf("unexpected range %q", rng)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data[start:]))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for key, obj := range f.objects {
		if !strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			continue
		}
		out.Contents = append(out.Contents, s3types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func TestS3StoreSaveAndRangedRead(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3Store(fake, fake, "clips", "/archive/")

	p, err := store.Save(ctx, "round.webm", "video/webm", strings.NewReader("abcdefghij"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(p, "videos/") {
		t.Fatalf("expected storage path without prefix, got %q", p)
	}
	obj, ok := fake.objects["archive/"+p]
	if !ok {
		t.Fatalf("expected object under prefixed key")
	}
	if obj.contentType != "video/webm" {
		t.Fatalf("expected content type video/webm, got %q", obj.contentType)
	}

	blob, err := store.Open(ctx, p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer blob.Body.Close()

	if blob.Size != 10 {
		t.Fatalf("expected size 10, got %d", blob.Size)
	}
	if len(fake.ranges) != 0 {
		t.Fatalf("expected no GetObject before first read, got %v", fake.ranges)
	}

	if end, err := blob.Body.Seek(0, io.SeekEnd); err != nil || end != 10 {
		t.Fatalf("seek end: %d %v", end, err)
	}
	if _, err := blob.Body.Seek(6, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}

	buf := make([]byte, 2)
	if _, err := io.ReadFull(blob.Body, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "gh" {
		t.Fatalf("unexpected bytes %q", buf)
	}

	rest, err := io.ReadAll(blob.Body)
	if err != nil {
		t.Fatalf("read rest: %v", err)
	}
	if string(rest) != "ij" {
		t.Fatalf("unexpected remaining bytes %q", rest)
	}

	if len(fake.ranges) != 1 || fake.ranges[0] != "bytes=6-" {
		t.Fatalf("expected a single ranged fetch from offset 6, got %v", fake.ranges)
	}
}

func TestS3StoreMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3Store(fake, fake, "clips", "")

	if _, err := store.Open(ctx, "videos/missing.mp4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Open(ctx, "../escape.mp4"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}

	p, err := store.Save(ctx, "clip.mp4", "video/mp4", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, p); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, p); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
	if _, ok := fake.objects[p]; ok {
		t.Fatalf("expected object removed")
	}
}

func TestS3StoreRejectsUnsupportedMedia(t *testing.T) {
	fake := newFakeS3()
	store := newS3Store(fake, fake, "clips", "")

	if _, err := store.Save(context.Background(), "clip.exe", "application/octet-stream", strings.NewReader("x")); !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("expected ErrUnsupportedMediaType, got %v", err)
	}
	if len(fake.objects) != 0 {
		t.Fatalf("expected nothing uploaded")
	}
}

func TestS3StoreWalk(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3Store(fake, fake, "clips", "archive")

	p, err := store.Save(ctx, "clip.mkv", "video/x-matroska", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	fake.objects["elsewhere/other.mp4"] = fakeObject{data: []byte("x")}

	var seen []BlobInfo
	if err := store.Walk(ctx, func(info BlobInfo) error {
		seen = append(seen, info)
		return nil
	}); err != nil {
		t.Fatalf("walk: %v", err)
	}

	if len(seen) != 1 || seen[0].Path != p || seen[0].Size != 4 {
		t.Fatalf("unexpected walk result: %+v", seen)
	}
}

func TestS3StorePutAtPath(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3Store(fake, fake, "clips", "archive")

	if err := store.Put(ctx, "videos/seed-clip.webm", strings.NewReader("seed")); err != nil {
		t.Fatalf("put: %v", err)
	}

	obj, ok := fake.objects["archive/videos/seed-clip.webm"]
	if !ok {
		t.Fatal("expected object under the prefixed key")
	}
	if string(obj.data) != "seed" || obj.contentType != "video/webm" {
		t.Fatalf("unexpected object %+v", obj)
	}

	if err := store.Put(ctx, "/videos/abs.mp4", strings.NewReader("x")); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}
