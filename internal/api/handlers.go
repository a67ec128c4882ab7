package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/adverant/nexus/sirim-worker/internal/errors"
	"github.com/adverant/nexus/sirim-worker/internal/export"
	"github.com/adverant/nexus/sirim-worker/internal/processor"
	"github.com/adverant/nexus/sirim-worker/internal/storage"
	"github.com/gin-gonic/gin"
)

type captureRequest struct {
	Blocks []processor.TextBlock `json:"blocks" binding:"required"`
}

type createRecordRequest struct {
	OwnerID    string             `json:"ownerId" binding:"required"`
	Fields     processor.FieldSet `json:"fields"`
	Confidence *float64           `json:"confidence" binding:"omitempty,gte=0,lte=1"`
	ImagePath  *string            `json:"imagePath"`
}

type updateRecordRequest struct {
	Fields     processor.FieldSet `json:"fields"`
	Confidence *float64           `json:"confidence" binding:"omitempty,gte=0,lte=1"`
	ImagePath  *string            `json:"imagePath"`
}

type syncRequest struct {
	OwnerID string `json:"ownerId" form:"ownerId"`
}

type recordResponse struct {
	Record     storage.Record              `json:"record"`
	Validation processor.ValidationOutcome `json:"validation"`
}

// fail answers with the single user-facing message for err
func (s *server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := http.StatusInternalServerError
	var opErr *errors.OperationError
	switch {
	case errors.Is(err, errors.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.As(err, &opErr) && opErr.Code == errors.ErrorInvalidRecord:
		status = http.StatusBadRequest
	case errors.As(err, &opErr) && opErr.Code == errors.ErrorRecognitionFailed:
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrNoConnection):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": errors.UserMessage(err)})
}

func (s *server) badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{"error": "The request is invalid. Please check the submitted fields."})
}

func (s *server) capture(c *gin.Context) {
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	result := s.cfg.Processor.ProcessBlocks(c.Request.Context(), req.Blocks)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": result.ErrorMessage})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *server) createRecord(c *gin.Context) {
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	outcome := s.cfg.Processor.Validate(req.Fields)
	confidence := outcome.Confidence
	if req.Confidence != nil {
		confidence = *req.Confidence
	}

	rec := storage.NewRecord(req.OwnerID, req.Fields, confidence, outcome, req.ImagePath, s.now())
	if err := s.cfg.Records.SaveRecord(c.Request.Context(), rec); err != nil {
		s.fail(c, err)
		return
	}
	stored, err := s.cfg.Store.Get(c.Request.Context(), rec.ID)
	if err != nil {
		stored = rec
	}
	c.JSON(http.StatusCreated, recordResponse{Record: stored, Validation: outcome})
}

func (s *server) listRecords(c *gin.Context) {
	owner := c.Query("ownerId")
	if owner == "" {
		s.badRequest(c, fmt.Errorf("ownerId is required"))
		return
	}
	records, err := s.cfg.Store.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		s.fail(c, errors.NewLocalStoreError("", "list", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *server) updateRecord(c *gin.Context) {
	var req updateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	existing, err := s.cfg.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	outcome := s.cfg.Processor.Validate(req.Fields)
	existing.FieldSet = req.Fields
	existing.ValidationStatus = storage.StatusFor(outcome)
	if req.Confidence != nil {
		existing.Confidence = *req.Confidence
	}
	if req.ImagePath != nil {
		existing.ImageRef = req.ImagePath
	}

	updated, err := s.cfg.Records.UpdateRecord(c.Request.Context(), existing)
	if err != nil {
		s.fail(c, err)
		return
	}
	if stored, gerr := s.cfg.Store.Get(c.Request.Context(), updated.ID); gerr == nil {
		updated = stored
	}
	c.JSON(http.StatusOK, recordResponse{Record: updated, Validation: outcome})
}

func (s *server) deleteRecord(c *gin.Context) {
	existing, err := s.cfg.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.cfg.Records.DeleteRecord(c.Request.Context(), existing); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) exportRecords(c *gin.Context) {
	owner := c.Query("ownerId")
	if owner == "" {
		s.badRequest(c, fmt.Errorf("ownerId is required"))
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	if format != "csv" && format != "xlsx" {
		s.badRequest(c, fmt.Errorf("unsupported export format %q", format))
		return
	}

	records, err := s.cfg.Store.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		s.fail(c, errors.NewLocalStoreError("", "list", err))
		return
	}

	var buf bytes.Buffer
	contentType := "text/csv; charset=utf-8"
	if format == "xlsx" {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = export.WriteXLSX(&buf, records, s.cfg.ExportLocation)
	} else {
		err = export.WriteCSV(&buf, records, s.cfg.ExportLocation)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	filename := fmt.Sprintf("sirim_records_%s.%s", s.now().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *server) triggerSync(c *gin.Context) {
	if s.cfg.Trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sync is not configured on this worker."})
		return
	}
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err)
			return
		}
	}
	if req.OwnerID == "" {
		req.OwnerID = c.Query("ownerId")
	}
	if err := s.cfg.Trigger.TriggerNow(c.Request.Context(), req.OwnerID); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sync could not be scheduled. Please try again later."})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}
