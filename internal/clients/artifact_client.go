/**
 * Artifact Client for the SIRIM capture worker
 *
 * Uploads label photos to permanent storage via the FileProcess artifact API
 * so that synced records carry a shareable image URL instead of a
 * device-local path.
 *
 * Upload Flow:
 * 1. Capture stores the photo on local disk and records its path
 * 2. Sync push reads the file and calls /fileprocess/api/files/upload
 * 3. API stores the file and returns an artifact ID and download URL
 * 4. The download URL is written to the remote record's image_url
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/logging"
)

const sourceService = "sirim-worker"

// ArtifactClient handles communication with the FileProcess API for artifact storage
type ArtifactClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ArtifactUploadResponse represents the response from uploading an artifact
type ArtifactUploadResponse struct {
	Success  bool `json:"success"`
	Artifact struct {
		ID             string `json:"id"`
		Filename       string `json:"filename"`
		FileSize       int64  `json:"file_size"`
		MimeType       string `json:"mime_type"`
		StorageBackend string `json:"storage_backend"`
		DownloadURL    string `json:"download_url"`
	} `json:"artifact,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewArtifactClient creates a new artifact client
func NewArtifactClient(baseURL string) *ArtifactClient {
	return &ArtifactClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.NewLogger("ArtifactClient"),
	}
}

// HealthCheck verifies the FileProcess API is available
func (c *ArtifactClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("artifact service health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("artifact service health check returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Upload stores the photo at localPath and returns its download URL
func (c *ArtifactClient) Upload(ctx context.Context, ownerID, recordID, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", localPath, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image %s is empty", localPath)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", recordID+filepath.Ext(localPath))
	if err != nil {
		return "", fmt.Errorf("failed to create form file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write file data to form: %w", err)
	}
	fields := map[string]string{
		"source_service": sourceService,
		"source_id":      recordID,
		"ttl_days":       "36500",
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return "", fmt.Errorf("failed to write %s field: %w", k, err)
		}
	}
	metadataJSON, err := json.Marshal(map[string]string{"ownerId": ownerID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata to JSON: %w", err)
	}
	if err := writer.WriteField("metadata", string(metadataJSON)); err != nil {
		return "", fmt.Errorf("failed to write metadata field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fileprocess/api/files/upload", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request to artifact storage failed after %v: %w", time.Since(startTime), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("artifact upload failed with HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result ArtifactUploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse artifact upload response: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("artifact upload returned success=false: %s", result.Error)
	}
	if result.Artifact.DownloadURL == "" {
		return "", fmt.Errorf("artifact upload succeeded but returned empty download URL")
	}

	c.logger.Info("Label image uploaded",
		"record_id", recordID,
		"artifact_id", result.Artifact.ID,
		"storage", result.Artifact.StorageBackend,
		"duration", time.Since(startTime).String())
	return result.Artifact.DownloadURL, nil
}

// Delete removes the artifact behind url. The artifact id is the last path
// segment of its download URL; URLs from other hosts are ignored.
func (c *ArtifactClient) Delete(ctx context.Context, url string) error {
	if !strings.HasPrefix(url, c.baseURL+"/") {
		return nil
	}
	id := url[strings.LastIndex(url, "/")+1:]
	if i := strings.IndexByte(id, '?'); i >= 0 {
		id = id[:i]
	}
	if id == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/fileprocess/api/files/"+id, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete artifact request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete artifact returned HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
