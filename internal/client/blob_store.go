package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"google.golang.org/api/option"

	"github.com/pesio-ai/be-procurement/internal/service"
)

// objectKey builds a collision-free, URL-safe key for an uploaded file:
// <folder>/<yyyymmdd-hhmmss>-<rand>-<slugged name><ext>
func objectKey(folder, filename string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(path.Ext(base))
	name := strings.Trim(truncateSlug(slug.Make(strings.TrimSuffix(base, path.Ext(base)))), "-")
	if name == "" {
		name = "document"
	}
	if len(ext) > 10 || strings.ContainsAny(ext, " /") {
		ext = ""
	}
	return fmt.Sprintf("%s/%s-%s-%s%s",
		strings.Trim(folder, "/"), now.UTC().Format("20060102-150405"), uuid.NewString()[:8], name, ext)
}

// maxSlugLen keeps object keys well inside the blob id column.
const maxSlugLen = 100

// truncateSlug shortens a slug, which is always ASCII.
func truncateSlug(s string) string {
	if len(s) > maxSlugLen {
		return s[:maxSlugLen]
	}
	return s
}

// ── Local filesystem ─────────────────────────────────────────────────────────

// LocalBlobStore keeps uploads on the local filesystem. Used in development
// and single-node deployments.
type LocalBlobStore struct {
	dir     string
	baseURL string
	now     func() time.Time
}

// NewLocalBlobStore creates the upload directory if needed.
func NewLocalBlobStore(dir, baseURL string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if baseURL == "" {
		baseURL = "/uploads"
	}
	return &LocalBlobStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/"), now: time.Now}, nil
}

// Upload writes the file under folder and returns its URL and key.
func (s *LocalBlobStore) Upload(ctx context.Context, folder string, file service.FileUpload) (*service.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := objectKey(folder, file.Filename, s.now())
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload folder: %w", err)
	}
	if err := os.WriteFile(dst, file.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	return &service.StoredFile{URL: s.baseURL + "/" + key, ID: key}, nil
}

// Delete removes a previously uploaded file. Missing files are not an error.
func (s *LocalBlobStore) Delete(ctx context.Context, id string) error {
	p, err := s.resolve(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// resolve maps a key to a path inside dir, refusing traversal.
func (s *LocalBlobStore) resolve(id string) (string, error) {
	clean := path.Clean("/" + id)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob id %q", id)
	}
	return filepath.Join(s.dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// ── Google Cloud Storage ─────────────────────────────────────────────────────

// GCSBlobStore keeps uploads in a Cloud Storage bucket.
type GCSBlobStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
	now     func() time.Time
}

// NewGCSBlobStore opens a Cloud Storage client. An empty credentialsFile
// uses application default credentials.
func NewGCSBlobStore(ctx context.Context, bucket, credentialsFile, baseURL string) (*GCSBlobStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + bucket
	}

	return &GCSBlobStore{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// Upload streams the file into the bucket.
func (s *GCSBlobStore) Upload(ctx context.Context, folder string, file service.FileUpload) (*service.StoredFile, error) {
	key := objectKey(folder, file.Filename, s.now())

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = file.ContentType
	if _, err := w.Write(file.Data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize object %s: %w", key, err)
	}

	return &service.StoredFile{URL: s.baseURL + "/" + key, ID: key}, nil
}

// Delete removes an object. Missing objects are not an error.
func (s *GCSBlobStore) Delete(ctx context.Context, id string) error {
	err := s.client.Bucket(s.bucket).Object(id).Delete(ctx)
	if err != nil && !stderrors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", id, err)
	}
	return nil
}

// Close releases the storage client.
func (s *GCSBlobStore) Close() error {
	return s.client.Close()
}
