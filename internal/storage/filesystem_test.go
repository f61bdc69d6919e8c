package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "plain", key: "outputs/u1/job.mp4", want: "outputs/u1/job.mp4"},
		{name: "leading slash", key: "/outputs/u1/job.mp4", want: "outputs/u1/job.mp4"},
		{name: "backslashes", key: `outputs\u1\job.mp4`, want: "outputs/u1/job.mp4"},
		{name: "dot segments collapse", key: "outputs/./u1/../u2/x.png", want: "outputs/u2/x.png"},
		{name: "traversal", key: "../etc/passwd", wantErr: true},
		{name: "empty", key: "  ", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sanitizeKey(tc.key)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("sanitizeKey(%q) expected error, got %q", tc.key, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("sanitizeKey(%q) error: %v", tc.key, err)
			}
			if got != tc.want {
				t.Fatalf("sanitizeKey(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}

func TestFileStoreUploadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := NewFileStore(dir, "https://cdn.example.com/media", srv.Client())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	res, err := store.Upload(context.Background(), UploadInput{
		URL:      srv.URL + "/generated/out.png",
		Key:      ObjectKey(FolderOutputs, "user-1", "job-1.png"),
		Tags:     map[string]string{"type": "output", "user": "user-1"},
		Metadata: map[string]string{"jobId": "job-1"},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.PublicID != "outputs/user-1/job-1.png" {
		t.Fatalf("PublicID = %q", res.PublicID)
	}
	if res.SecureURL != "https://cdn.example.com/media/outputs/user-1/job-1.png" {
		t.Fatalf("SecureURL = %q", res.SecureURL)
	}
	data, err := os.ReadFile(filepath.Join(dir, "outputs", "user-1", "job-1.png"))
	if err != nil || len(data) != 4 {
		t.Fatalf("stored data = %v, err = %v", data, err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "outputs", "user-1", "job-1.png.meta.json"))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	var sidecar struct {
		Tags map[string]string `json:"tags"`
	}
	if err := json.Unmarshal(raw, &sidecar); err != nil {
		t.Fatalf("decode sidecar: %v", err)
	}
	if sidecar.Tags["type"] != "output" {
		t.Fatalf("sidecar tags = %v", sidecar.Tags)
	}
}

func TestFileStoreUploadRequiresSource(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Upload(context.Background(), UploadInput{Key: "inputs/u/x.png"}); err == nil {
		t.Fatalf("expected error without a source")
	}
}

func TestKeyFromURL(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "https://cdn.example.com/media/", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{url: "https://cdn.example.com/media/inputs/u1/a%20b.png?v=2", want: "inputs/u1/a b.png", wantOK: true},
		{url: "https://cdn.example.com/other/inputs/u1/a.png"},
		{url: "https://provider.example/tmp/a.png"},
		{url: "https://cdn.example.com/media/"},
	}
	for _, tc := range tests {
		got, ok := store.KeyFromURL(tc.url)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("KeyFromURL(%q) = %q, %v; want %q, %v", tc.url, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestFileStoreURLForKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "https://cdn.example.com/media", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Upload(context.Background(), UploadInput{Key: "inputs/u1/a.png", Data: []byte("png")}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	got, err := store.URLForKey(context.Background(), "/inputs/u1/a.png")
	if err != nil || got != "https://cdn.example.com/media/inputs/u1/a.png" {
		t.Fatalf("URLForKey = %q, %v", got, err)
	}
	for _, key := range []string{"inputs/u1/missing.png", "inputs/u1", "../escape.png"} {
		if _, err := store.URLForKey(context.Background(), key); !errors.Is(err, ErrObjectNotFound) {
			t.Fatalf("URLForKey(%q) err = %v, want ErrObjectNotFound", key, err)
		}
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType, source, want string
	}{
		{"", "https://p.example/out.MP4?sig=1", ".mp4"},
		{"image/jpeg", "https://p.example/download", ".jpg"},
		{"video/mp4; codecs=avc1", "", ".mp4"},
		{"", "", ".bin"},
	}
	for _, tc := range tests {
		if got := ExtensionFor(tc.contentType, tc.source); got != tc.want {
			t.Fatalf("ExtensionFor(%q, %q) = %q, want %q", tc.contentType, tc.source, got, tc.want)
		}
	}
}
