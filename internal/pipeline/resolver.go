package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"mediagen/internal/domain"
	"mediagen/internal/storage"
)

// Input is a user-supplied source: a URL, a durable reference or raw bytes.
type Input struct {
	URL string
	// Ref is a durable storage URL or object key returned by an earlier upload.
	Ref         string
	Data        []byte
	Filename    string
	ContentType string
}

// Empty reports whether no source was supplied.
func (in Input) Empty() bool {
	return strings.TrimSpace(in.URL) == "" && strings.TrimSpace(in.Ref) == "" && len(in.Data) == 0
}

// Resolver turns user sources into durable URLs the provider can fetch.
type Resolver struct {
	store storage.Uploader
}

func NewResolver(store storage.Uploader) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns a durable URL for in. URLs already hosted by the store are
// returned unchanged and object keys resolve to their public URL; foreign
// URLs and raw bytes are uploaded under {folder}/{userID}.
func (r *Resolver) Resolve(ctx context.Context, in Input, userID, folder string) (string, error) {
	if in.Empty() {
		return "", domain.ErrMissingSource
	}
	rawURL := strings.TrimSpace(in.URL)
	if len(in.Data) == 0 {
		if rawURL == "" {
			rawURL = strings.TrimSpace(in.Ref)
			if !isRemoteURL(rawURL) {
				return r.resolveKey(ctx, rawURL)
			}
		}
		if _, ok := r.store.KeyFromURL(rawURL); ok {
			return rawURL, nil
		}
		if !isRemoteURL(rawURL) {
			return "", fmt.Errorf("%w: source url must be http or https", domain.ErrInvalidRequest)
		}
	}

	upload := storage.UploadInput{
		Tags: map[string]string{
			"type": tagTypeFor(folder),
			"user": userID,
		},
		Metadata: map[string]string{"userId": userID},
	}
	var ext string
	if len(in.Data) > 0 {
		ct := in.ContentType
		if ct == "" || ct == "application/octet-stream" {
			ct = http.DetectContentType(in.Data)
		}
		upload.Data = in.Data
		upload.ContentType = ct
		ext = storage.ExtensionFor(ct, in.Filename)
	} else {
		upload.URL = rawURL
		ext = storage.ExtensionFor(in.ContentType, rawURL)
	}
	upload.Key = storage.ObjectKey(folder, userID, uuid.NewString()+ext)

	res, err := r.store.Upload(ctx, upload)
	if err != nil {
		return "", fmt.Errorf("resolve source: %w", err)
	}
	return res.SecureURL, nil
}

func (r *Resolver) resolveKey(ctx context.Context, key string) (string, error) {
	ref, err := r.store.URLForKey(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return "", fmt.Errorf("%w: unknown sourceRef %q", domain.ErrInvalidRequest, key)
	}
	if err != nil {
		return "", fmt.Errorf("resolve source: %w", err)
	}
	return ref, nil
}

func isRemoteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func tagTypeFor(folder string) string {
	if folder == storage.FolderOutputs {
		return "output"
	}
	return "input"
}
