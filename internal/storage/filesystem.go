package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists objects onto the local filesystem. It is intended for
// development and test environments where an object storage service is not
// available. Tags and metadata are written to a "<key>.meta.json" sidecar.
type FileStore struct {
	basePath   string
	publicBase string
	httpClient *http.Client
}

// NewFileStore initializes a FileStore rooted at basePath whose objects are
// served under publicBase.
func NewFileStore(basePath, publicBase string, httpClient *http.Client) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	publicBase = strings.TrimRight(strings.TrimSpace(publicBase), "/")
	if publicBase == "" {
		publicBase = "file://" + filepath.ToSlash(basePath)
	}
	return &FileStore{basePath: basePath, publicBase: publicBase, httpClient: httpClient}, nil
}

// Upload copies the input into the store at in.Key.
func (s *FileStore) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	var data []byte
	switch {
	case len(in.Data) > 0:
		data = in.Data
	case in.Path != "":
		b, err := os.ReadFile(in.Path)
		if err != nil {
			return nil, fmt.Errorf("storage: read source: %w", err)
		}
		data = b
	case in.URL != "":
		body, _, _, err := fetchRemote(ctx, s.httpClient, in.URL)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		if data, err = io.ReadAll(body); err != nil {
			return nil, fmt.Errorf("storage: read source: %w", err)
		}
	default:
		return nil, errNoSource
	}

	key, err := s.Write(ctx, in.Key, data)
	if err != nil {
		return nil, err
	}
	if len(in.Tags) > 0 || len(in.Metadata) > 0 {
		sidecar, _ := json.Marshal(map[string]any{"tags": in.Tags, "metadata": in.Metadata})
		if _, err := s.Write(ctx, key+".meta.json", sidecar); err != nil {
			return nil, err
		}
	}
	return &UploadResult{PublicID: key, SecureURL: s.publicBase + "/" + key, Size: int64(len(data))}, nil
}

func (s *FileStore) KeyFromURL(rawURL string) (string, bool) {
	return keyUnderBase(s.publicBase, rawURL)
}

func (s *FileStore) URLForKey(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", ErrObjectNotFound
	}
	info, err := os.Stat(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", ErrObjectNotFound
	case err != nil:
		return "", fmt.Errorf("storage: stat %s: %w", cleanKey, err)
	case !info.Mode().IsRegular():
		return "", ErrObjectNotFound
	}
	return s.publicBase + "/" + cleanKey, nil
}

// Write persists the provided bytes at the given relative key and returns the
// canonicalized storage key. Keys are cleaned to prevent directory traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
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
	return cleanKey, nil
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
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ Uploader = (*FileStore)(nil)
