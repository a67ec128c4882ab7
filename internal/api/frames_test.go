package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adverant/nexus/sirim-worker/internal/processor"
	"github.com/adverant/nexus/sirim-worker/internal/storage"
	"github.com/adverant/nexus/sirim-worker/internal/syncer"
	"github.com/gin-gonic/gin"
)

type echoRecognizer struct{}

// Recognize reads the serial number straight from the image bytes
func (echoRecognizer) Recognize(ctx context.Context, image []byte) ([]processor.TextBlock, error) {
	return []processor.TextBlock{{
		Text:             string(image),
		BoundingBox:      processor.BoundingBox{Right: 100, Bottom: 20},
		TokenConfidences: []float64{0.8},
	}}, nil
}

func newFrameRouter(t *testing.T) (*gin.Engine, *processor.FrameProcessor) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	proc, err := processor.NewLabelProcessor(&processor.ProcessorConfig{Recognizer: echoRecognizer{}})
	if err != nil {
		t.Fatal(err)
	}
	frames := processor.NewFrameProcessor(proc)
	t.Cleanup(frames.Close)

	coord, err := syncer.NewCoordinator(&syncer.CoordinatorConfig{Store: store})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRouter(Config{Processor: proc, Frames: frames, Records: coord, Store: store})
	if err != nil {
		t.Fatal(err)
	}
	return r, frames
}

func TestCaptureImage(t *testing.T) {
	r, _ := newFrameRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/captures/image", bytes.NewBufferString("TA7654321")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var res processor.ScoredResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Fields == nil || res.Fields.SerialNo == nil || *res.Fields.SerialNo != "TA7654321" {
		t.Fatalf("result = %+v", res)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/captures/image", bytes.NewBuffer(nil)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d", w.Code)
	}
}

func TestFrames_SubmitAndFetchResult(t *testing.T) {
	r, _ := newFrameRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/frames", bytes.NewBufferString("TA1111111")))
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/frames/result?waitMs=5000", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("result status = %d", w.Code)
	}
	var res processor.ScoredResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Fields == nil || res.Fields.SerialNo == nil || *res.Fields.SerialNo != "TA1111111" {
		t.Fatalf("result = %+v", res)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/frames/result", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("drained result status = %d", w.Code)
	}
}
