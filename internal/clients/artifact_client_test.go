package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestArtifactClient_Upload(t *testing.T) {
	var gotSourceID, gotFilename string
	var gotBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fileprocess/api/files/upload" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotSourceID = r.FormValue("source_id")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotFilename = hdr.Filename
		gotBytes, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"artifact":{"id":"a1","download_url":"https://files.example/a1"}}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "label.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	url, err := NewArtifactClient(srv.URL).Upload(context.Background(), "u1", "rec-1", path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://files.example/a1" {
		t.Fatalf("url = %q", url)
	}
	if gotSourceID != "rec-1" || gotFilename != "rec-1.jpg" || string(gotBytes) != "jpeg-bytes" {
		t.Fatalf("unexpected form: source_id=%q filename=%q body=%q", gotSourceID, gotFilename, gotBytes)
	}
}

func TestArtifactClient_UploadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewArtifactClient(srv.URL)
	if _, err := c.Upload(context.Background(), "u1", "rec-1", filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "label.jpg")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Upload(context.Background(), "u1", "rec-1", path); err == nil {
		t.Fatalf("expected error for HTTP 500")
	}
}

func TestArtifactClient_DeleteIgnoresForeignURLs(t *testing.T) {
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted = r.URL.Path
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewArtifactClient(srv.URL)
	if err := c.Delete(context.Background(), "https://elsewhere.example/x"); err != nil {
		t.Fatalf("delete foreign: %v", err)
	}
	if deleted != "" {
		t.Fatalf("foreign URL triggered a delete of %q", deleted)
	}
	if err := c.Delete(context.Background(), srv.URL+"/fileprocess/api/files/a1?sig=x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != "/fileprocess/api/files/a1" {
		t.Fatalf("deleted path = %q", deleted)
	}
}

func TestObjectName(t *testing.T) {
	if got := objectName("u1", "r1", "/tmp/a.PNG"); got != "records/u1/r1.png" {
		t.Fatalf("objectName = %q", got)
	}
	if got := objectName("", "r1", "/tmp/a"); got != "records/anonymous/r1.jpg" {
		t.Fatalf("objectName = %q", got)
	}
}
