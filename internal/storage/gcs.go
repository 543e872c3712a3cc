package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// GCSStore persists assets in a Google Cloud Storage bucket. Credentials
// come from the ambient environment.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSStore connects to the bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Bucket returns the configured bucket name.
func (s *GCSStore) Bucket() string {
	return s.bucket
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// UploadBytes writes data to the bucket and returns a time-limited signed
// URL, falling back to the public object URL when signing is not available
// for the active credentials.
func (s *GCSStore) UploadBytes(ctx context.Context, key string, data []byte) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentTypeForKey(key)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("storage: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: gcs close: %w", err)
	}

	signed, err := s.client.Bucket(s.bucket).SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(time.Hour),
	})
	if err != nil {
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key), nil
	}
	return signed, nil
}

// DownloadToLocal fetches a gs:// or storage.googleapis.com reference into
// a temporary file the caller must remove.
func (s *GCSStore) DownloadToLocal(ctx context.Context, remoteRef string) (string, error) {
	bucket, object, err := parseObjectRef(remoteRef)
	if err != nil {
		return "", err
	}

	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("storage: gcs read %s: %w", remoteRef, err)
	}
	defer r.Close()

	name := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(object))
	path := filepath.Join(os.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("storage: create temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("storage: gcs download: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// parseObjectRef understands gs://bucket/object and
// https://storage.googleapis.com/bucket/object references.
func parseObjectRef(ref string) (bucket, object string, err error) {
	if rest, ok := strings.CutPrefix(ref, "gs://"); ok {
		bucket, object, ok = strings.Cut(rest, "/")
		if !ok || bucket == "" || object == "" {
			return "", "", fmt.Errorf("storage: malformed gs reference %q", ref)
		}
		return bucket, object, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("storage: parse reference %q: %w", ref, err)
	}
	path := strings.TrimLeft(u.Path, "/")
	switch {
	case u.Host == "storage.googleapis.com":
		bucket, object, ok := strings.Cut(path, "/")
		if !ok || bucket == "" || object == "" {
			return "", "", fmt.Errorf("storage: malformed object URL %q", ref)
		}
		return bucket, object, nil
	case strings.HasSuffix(u.Host, ".storage.googleapis.com"):
		bucket = strings.TrimSuffix(u.Host, ".storage.googleapis.com")
		if bucket == "" || path == "" {
			return "", "", fmt.Errorf("storage: malformed object URL %q", ref)
		}
		return bucket, path, nil
	}
	return "", "", fmt.Errorf("storage: unsupported reference %q", ref)
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".mp4":
		return "video/mp4"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

var _ Store = (*GCSStore)(nil)
