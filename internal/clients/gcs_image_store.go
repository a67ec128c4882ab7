package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPublicHost = "https://storage.googleapis.com/"

// GCSImageStore keeps label photos in a Google Cloud Storage bucket under
// records/<owner>/<record><ext>.
type GCSImageStore struct {
	client *storage.Client
	bucket string
}

// NewGCSImageStore prefers application default credentials. credentialsJSON,
// when set, overrides them.
func NewGCSImageStore(ctx context.Context, bucket, credentialsJSON string) (*GCSImageStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("GCS_BUCKET is required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSImageStore{client: client, bucket: bucket}, nil
}

func (g *GCSImageStore) Close() error { return g.client.Close() }

func objectName(ownerID, recordID, localPath string) string {
	ext := strings.ToLower(filepath.Ext(localPath))
	if ext == "" {
		ext = ".jpg"
	}
	owner := ownerID
	if owner == "" {
		owner = "anonymous"
	}
	return "records/" + owner + "/" + recordID + ext
}

// Upload copies the photo at localPath into the bucket and returns its
// public URL.
func (g *GCSImageStore) Upload(ctx context.Context, ownerID, recordID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open image %s: %w", localPath, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read image %s: %w", localPath, err)
	}
	contentType := http.DetectContentType(head[:n])
	if contentType != "image/jpeg" && contentType != "image/png" {
		return "", fmt.Errorf("unsupported image type: %s", contentType)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind image %s: %w", localPath, err)
	}

	name := objectName(ownerID, recordID, localPath)
	wc := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	wc.ContentType = contentType
	wc.Metadata = map[string]string{"record-id": recordID}
	if _, err := io.Copy(wc, f); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("gcs write %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", name, err)
	}
	return gcsPublicHost + g.bucket + "/" + name, nil
}

// Delete removes the object behind url. URLs outside the bucket are ignored.
func (g *GCSImageStore) Delete(ctx context.Context, url string) error {
	prefix := gcsPublicHost + g.bucket + "/"
	if !strings.HasPrefix(url, prefix) {
		return nil
	}
	err := g.client.Bucket(g.bucket).Object(strings.TrimPrefix(url, prefix)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("gcs delete: %w", err)
	}
	return nil
}
