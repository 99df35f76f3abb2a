package domain

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrDataAccess     = "DATA_ACCESS_ERROR"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrCircuitOpen      = errors.New("fact store circuit breaker is open")
	ErrInvalidPatientID = errors.New("patient id must not be blank")
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// DataAccessError reports that clinical facts could not be read from the
// store. It is the only error that aborts a graph build.
type DataAccessError struct {
	EntityType EntityType
	PatientID  string
	Err        error
}

func (e *DataAccessError) Error() string {
	if e.EntityType == "" {
		return fmt.Sprintf("data access failed for patient %s: %v", e.PatientID, e.Err)
	}
	return fmt.Sprintf("loading %s facts for patient %s: %v", e.EntityType, e.PatientID, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// NewDataAccessError wraps err as a DataAccessError. An error that already
// is one is returned unchanged.
func NewDataAccessError(entityType EntityType, patientID string, err error) error {
	var dae *DataAccessError
	if errors.As(err, &dae) {
		return err
	}
	return &DataAccessError{EntityType: entityType, PatientID: patientID, Err: err}
}

// IsDataAccessError reports whether err is or wraps a DataAccessError.
func IsDataAccessError(err error) bool {
	var dae *DataAccessError
	return errors.As(err, &dae)
}
