package fhir

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds raised by search translation and resource reads. Use errors.Is
// against these to classify an error returned from the search or DAO layer.
var (
	ErrUnsupportedQuery = errors.New("unsupported query")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidValue     = errors.New("invalid value")
	ErrNotFound         = errors.New("resource not found")
	ErrGone             = errors.New("resource gone")
)

// Error carries a kind plus the search parameter (if any) that caused it.
type Error struct {
	Kind    error
	Param   string
	Message string
}

func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (parameter %q)", e.Kind, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// UnsupportedQueryError reports an AND combination where only OR is legal.
func UnsupportedQueryError(param, format string, args ...interface{}) error {
	return &Error{Kind: ErrUnsupportedQuery, Param: param, Message: fmt.Sprintf(format, args...)}
}

// InvalidRequestError reports conflicting modifiers on one parameter.
func InvalidRequestError(param, format string, args ...interface{}) error {
	return &Error{Kind: ErrInvalidRequest, Param: param, Message: fmt.Sprintf(format, args...)}
}

// InvalidValueError reports a token that cannot be read as its declared type.
func InvalidValueError(param, format string, args ...interface{}) error {
	return &Error{Kind: ErrInvalidValue, Param: param, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(resourceType, id string) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s/%s not found", resourceType, id)}
}

func GoneError(resourceType, id, deletedAt string) error {
	return &Error{Kind: ErrGone, Message: fmt.Sprintf("%s/%s was deleted at %s", resourceType, id, deletedAt)}
}

// OutcomeForError maps an error to the HTTP status and OperationOutcome the
// REST layer should answer with. Unclassified errors become 500s.
func OutcomeForError(err error) (int, *OperationOutcome) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, err.Error())
	case errors.Is(err, ErrGone):
		return http.StatusGone, NewOperationOutcome(IssueSeverityError, IssueTypeDeleted, err.Error())
	case errors.Is(err, ErrUnsupportedQuery):
		return http.StatusBadRequest, NewOperationOutcome(IssueSeverityError, IssueTypeNotSupported, err.Error())
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, err.Error())
	case errors.Is(err, ErrInvalidValue):
		return http.StatusBadRequest, NewOperationOutcome(IssueSeverityError, IssueTypeValue, err.Error())
	default:
		return http.StatusInternalServerError, InternalErrorOutcome(err.Error())
	}
}
