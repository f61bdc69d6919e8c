// Package storage uploads job inputs and artifacts to durable storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Folders used for durable object keys.
const (
	FolderInputs  = "inputs"
	FolderOutputs = "outputs"
)

// UploadInput describes one upload. Exactly one of URL, Path or Data is the source.
type UploadInput struct {
	URL         string
	Path        string
	Data        []byte
	Key         string
	ContentType string
	Tags        map[string]string
	Metadata    map[string]string
}

// UploadResult identifies the stored object.
type UploadResult struct {
	PublicID  string
	SecureURL string
	Size      int64
}

// Uploader is the durable storage contract.
type Uploader interface {
	Upload(ctx context.Context, in UploadInput) (*UploadResult, error)
	// KeyFromURL returns the object key when rawURL is hosted by this store.
	KeyFromURL(rawURL string) (string, bool)
	// URLForKey returns the public URL of an existing object, or
	// ErrObjectNotFound.
	URLForKey(ctx context.Context, key string) (string, error)
}

// ObjectKey builds "{folder}/{userID}/{name}".
func ObjectKey(folder, userID, name string) string {
	return path.Join(folder, sanitizeSegment(userID), name)
}

// ExtensionFor picks a file extension from a content type or source URL.
func ExtensionFor(contentType, source string) string {
	if ext := path.Ext(stripQuery(source)); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	}
	return ".bin"
}

// ContentTypeFor guesses a MIME type from a key extension.
func ContentTypeFor(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// IsVideo reports whether a key or URL names a video container.
func IsVideo(ref string) bool {
	switch strings.ToLower(path.Ext(stripQuery(ref))) {
	case ".mp4", ".mov", ".webm", ".mkv":
		return true
	}
	return false
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "anonymous"
	}
	return s
}

func stripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// keyUnderBase returns the key of rawURL relative to base.
func keyUnderBase(base, rawURL string) (string, bool) {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return "", false
	}
	candidate := stripQuery(strings.TrimSpace(rawURL))
	if !strings.HasPrefix(candidate, base+"/") {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(candidate, base+"/"))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

var errNoSource = errors.New("storage: upload source is required")

// ErrObjectNotFound reports a key that names no stored object.
var ErrObjectNotFound = errors.New("storage: object not found")

// fetchRemote opens rawURL for streaming into the store.
func fetchRemote(ctx context.Context, client *http.Client, rawURL string) (io.ReadCloser, int64, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, 0, "", fmt.Errorf("storage: invalid source url: %s", rawURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("storage: build download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("storage: download source: %w", err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, 0, "", fmt.Errorf("storage: download status %d", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, resp.Header.Get("Content-Type"), nil
}
