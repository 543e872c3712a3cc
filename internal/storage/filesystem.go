package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStore persists assets onto the local filesystem and fetches remote
// inputs over plain HTTP. It is intended for development and test
// environments where an object storage service is not available.
type FileStore struct {
	basePath string
	baseURL  string
	client   *http.Client
}

// NewFileStore initializes a FileStore rooted at basePath. Uploaded keys
// resolve to baseURL/<key>.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	return s.basePath
}

// UploadBytes persists data at the given relative key and returns the
// public URL. Keys are cleaned to prevent directory traversal.
func (s *FileStore) UploadBytes(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return s.baseURL + "/" + cleanKey, nil
}

// DownloadToLocal materializes a remote reference as a temporary file and
// returns its path; the caller removes it when done. http(s) references are
// fetched over the network, anything else is resolved against the store
// root.
func (s *FileStore) DownloadToLocal(ctx context.Context, remoteRef string) (string, error) {
	if strings.HasPrefix(remoteRef, "http://") || strings.HasPrefix(remoteRef, "https://") {
		return s.downloadHTTP(ctx, remoteRef)
	}

	cleanKey, err := sanitizeKey(remoteRef)
	if err != nil {
		return "", err
	}
	src := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("storage: read local object: %w", err)
	}
	return writeTemp(cleanKey, data)
}

func (s *FileStore) downloadHTTP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("storage: build download request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("storage: download: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("storage: download body: %w", err)
	}
	return writeTemp(url, data)
}

// writeTemp places data in the OS temp dir under a collision-free name.
func writeTemp(ref string, data []byte) (string, error) {
	name := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(strings.TrimRight(ref, "/")))
	path := filepath.Join(os.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write temp file: %w", err)
	}
	return path, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ Store = (*FileStore)(nil)
