package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error types for the SIRIM capture worker
 *
 * Local durability failures always surface to the caller. Remote and
 * network failures are counted and logged, and the record stays unsynced.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Capture pipeline errors
	ErrorRecognitionFailed ErrorCode = "RECOGNITION_FAILED"

	// Local store errors
	ErrorLocalStoreFailed ErrorCode = "LOCAL_STORE_FAILED"
	ErrorRecordNotFound   ErrorCode = "RECORD_NOT_FOUND"
	ErrorInvalidRecord    ErrorCode = "INVALID_RECORD"

	// Remote / network errors
	ErrorNoConnection      ErrorCode = "NO_CONNECTION"
	ErrorRemoteCallFailed  ErrorCode = "REMOTE_CALL_FAILED"
	ErrorImageUploadFailed ErrorCode = "IMAGE_UPLOAD_FAILED"
)

var (
	// ErrNoConnection is returned when the connectivity probe reports offline.
	ErrNoConnection = stderrors.New("no connection to remote store")
	// ErrRecordNotFound is returned by the local store for unknown ids.
	ErrRecordNotFound = stderrors.New("record not found")
	// ErrRemoteNotFound is returned by the remote store when an update
	// targets a record it does not hold.
	ErrRemoteNotFound = stderrors.New("record not found in remote store")
)

// OperationError represents a structured failure of a record operation
type OperationError struct {
	Code      ErrorCode
	Message   string
	RecordID  string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *OperationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewLocalStoreError(recordID string, op string, cause error) *OperationError {
	return &OperationError{
		Code:      ErrorLocalStoreFailed,
		Message:   fmt.Sprintf("Local %s failed", op),
		RecordID:  recordID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": op,
		},
		Cause: cause,
	}
}

func NewRemoteCallError(recordID string, op string, cause error) *OperationError {
	return &OperationError{
		Code:      ErrorRemoteCallFailed,
		Message:   fmt.Sprintf("Remote %s failed", op),
		RecordID:  recordID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": op,
		},
		Cause: cause,
	}
}

func NewRecognitionError(cause error) *OperationError {
	return &OperationError{
		Code:      ErrorRecognitionFailed,
		Message:   "Text recognition failed",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewImageUploadError(recordID string, path string, cause error) *OperationError {
	return &OperationError{
		Code:      ErrorImageUploadFailed,
		Message:   "Failed to upload label image",
		RecordID:  recordID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"image_path": path,
		},
		Cause: cause,
	}
}

func NewInvalidRecordError(recordID string, reason string) *OperationError {
	return &OperationError{
		Code:      ErrorInvalidRecord,
		Message:   reason,
		RecordID:  recordID,
		Timestamp: time.Now(),
	}
}

// ToMap converts error to map for event payloads
func (e *OperationError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.RecordID != "" {
		result["record_id"] = e.RecordID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// UserMessage renders err as a single human-readable sentence. Internal
// detail never leaks into the message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case Is(err, ErrNoConnection):
		return "No connection. Changes are saved on this device and will sync later."
	case Is(err, ErrRecordNotFound):
		return "The record could not be found."
	}

	var opErr *OperationError
	if As(err, &opErr) {
		switch opErr.Code {
		case ErrorLocalStoreFailed:
			return "The record could not be saved on this device."
		case ErrorRecognitionFailed:
			return "The label could not be read. Please try again."
		case ErrorInvalidRecord:
			return "The record is incomplete: " + opErr.Message + "."
		case ErrorRemoteCallFailed, ErrorImageUploadFailed:
			return "The remote operation failed. Please try again later."
		}
	}
	return "Something went wrong. Please try again."
}
