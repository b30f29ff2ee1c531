// Package archive keeps raw message bodies that failed extraction so they can
// be replayed once an extractor is fixed.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/mailledger/internal/domain"
	"google.golang.org/api/option"
)

// Archiver stores and retrieves raw message bodies.
type Archiver interface {
	// Put stores body for messageID and returns its URI.
	Put(ctx context.Context, messageID, body string) (string, error)

	// Fetch returns the body stored at uri.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// ParseURI splits gs://bucket/object into its bucket and object name.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("ParseURI: invalid GCS URI %q: %w", uri, domain.ErrInvalidArgument)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("ParseURI: no object path in %q: %w", uri, domain.ErrInvalidArgument)
	}
	return parts[0], parts[1], nil
}

// ObjectName returns the object path a body for messageID is stored under at t.
func ObjectName(messageID string, t time.Time) string {
	return path.Join("mismatches", t.UTC().Format("2006/01/02"), messageID+".txt")
}

// GCSArchiver stores bodies in a Cloud Storage bucket.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	owned  bool
	now    func() time.Time
}

// NewGCSArchiver creates an archiver with its own storage client.
func NewGCSArchiver(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSArchiver: create storage client: %w", err)
	}
	a := NewGCSArchiverWithClient(client, bucket)
	a.owned = true
	return a, nil
}

// NewGCSArchiverWithClient creates an archiver on a shared client.
func NewGCSArchiverWithClient(client *storage.Client, bucket string) *GCSArchiver {
	return &GCSArchiver{client: client, bucket: bucket, now: time.Now}
}

// Close closes the storage client when the archiver created it.
func (a *GCSArchiver) Close() error {
	if a.owned {
		return a.client.Close()
	}
	return nil
}

// Put implements Archiver.
func (a *GCSArchiver) Put(ctx context.Context, messageID, body string) (string, error) {
	if messageID == "" {
		return "", fmt.Errorf("Put: message id is required: %w", domain.ErrInvalidArgument)
	}
	name := ObjectName(messageID, a.now())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "text/plain; charset=utf-8"
	if _, err := io.WriteString(w, body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Put: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Put: finalize %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, name), nil
}

// Fetch implements Archiver.
func (a *GCSArchiver) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	r, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: open %s: %w", uri, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Fetch: read %s: %w", uri, err)
	}
	return data, nil
}

// Ensure GCSArchiver implements Archiver interface.
var _ Archiver = (*GCSArchiver)(nil)
