package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared across services and the HTTP layer.
const (
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodeInternal               = "INTERNAL_ERROR"
	CodeAssessmentFailed       = "ASSESSMENT_FAILED"
	CodeNoResourcesAvailable   = "NO_RESOURCES_AVAILABLE"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewAssessmentError indicates the NLU capability was unavailable or returned
// no usable category. Intake recovers from it locally; it is never fatal.
func NewAssessmentError(message string, err error) error {
	return &DomainError{
		Code:       CodeAssessmentFailed,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewNoResourcesAvailable indicates zero eligible units for an incident.
// The incident stays queued for retry when the resource pool changes.
func NewNoResourcesAvailable(incidentID string) error {
	return &DomainError{
		Code:       CodeNoResourcesAvailable,
		Message:    "no eligible resource units available",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"incident_id": incidentID},
	}
}

// NewInvalidStateTransition rejects a state change that the transition graph
// does not allow. No state is mutated when this is returned.
func NewInvalidStateTransition(entity, from, to string) error {
	return &DomainError{
		Code:       CodeInvalidStateTransition,
		Message:    fmt.Sprintf("invalid %s transition %s -> %s", entity, from, to),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "from": from, "to": to},
	}
}

// HasCode reports whether err is a DomainError carrying the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

func IsAssessmentError(err error) bool {
	return HasCode(err, CodeAssessmentFailed)
}

func IsNoResourcesAvailable(err error) bool {
	return HasCode(err, CodeNoResourcesAvailable)
}

func IsInvalidStateTransition(err error) bool {
	return HasCode(err, CodeInvalidStateTransition)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
