package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// maxImageBytes bounds a posted photo or frame
const maxImageBytes = 16 << 20

func readImage(c *gin.Context) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body")
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return data, nil
}

// captureImage recognizes and scores one photo synchronously
func (s *server) captureImage(c *gin.Context) {
	data, err := readImage(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	result := s.cfg.Processor.Process(c.Request.Context(), data)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": result.ErrorMessage})
		return
	}
	c.JSON(http.StatusOK, result)
}

// submitFrame hands a preview frame to the frame processor. Work on any
// earlier frame is abandoned.
func (s *server) submitFrame(c *gin.Context) {
	if s.cfg.Frames == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Live capture is not enabled on this worker."})
		return
	}
	data, err := readImage(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	// Processing outlives the request
	s.cfg.Frames.Submit(context.Background(), data)
	c.JSON(http.StatusAccepted, gin.H{"status": "processing"})
}

// frameResult returns the latest frame result, waiting up to waitMs
func (s *server) frameResult(c *gin.Context) {
	if s.cfg.Frames == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Live capture is not enabled on this worker."})
		return
	}
	wait := time.Duration(0)
	if v := c.Query("waitMs"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 || ms > 30000 {
			s.badRequest(c, fmt.Errorf("waitMs must be between 0 and 30000"))
			return
		}
		wait = time.Duration(ms) * time.Millisecond
	}

	select {
	case res := <-s.cfg.Frames.Results():
		c.JSON(http.StatusOK, res)
		return
	default:
	}
	if wait == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case res := <-s.cfg.Frames.Results():
		c.JSON(http.StatusOK, res)
	case <-timer.C:
		c.Status(http.StatusNoContent)
	case <-c.Request.Context().Done():
		c.Status(http.StatusNoContent)
	}
}
