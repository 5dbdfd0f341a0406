package fhir

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestError_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"unsupported", UnsupportedQueryError("_id", "multiple AND groups"), ErrUnsupportedQuery},
		{"invalid request", InvalidRequestError("gender", "conflicting :missing"), ErrInvalidRequest},
		{"invalid value", InvalidValueError("birthdate", "bad date %q", "x"), ErrInvalidValue},
		{"not found", NotFoundError("Patient", "9"), ErrNotFound},
		{"gone", GoneError("Patient", "9", "2024-01-01T00:00:00Z"), ErrGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.kind) {
				t.Errorf("expected %v to match kind %v", tt.err, tt.kind)
			}
			wrapped := fmt.Errorf("search: %w", tt.err)
			if !errors.Is(wrapped, tt.kind) {
				t.Error("expected kind to survive wrapping")
			}
			var fe *Error
			if !errors.As(wrapped, &fe) {
				t.Fatal("expected *Error in chain")
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	err := InvalidValueError("birthdate", "bad date %q", "someday")
	if !strings.Contains(err.Error(), `parameter "birthdate"`) {
		t.Errorf("expected parameter name in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), `bad date "someday"`) {
		t.Errorf("expected formatted message, got %q", err.Error())
	}

	err = NotFoundError("Patient", "9")
	if err.Error() != "resource not found: Patient/9 not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestOutcomeForError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", NotFoundError("Patient", "1"), http.StatusNotFound, IssueTypeNotFound},
		{"gone", GoneError("Patient", "1", "now"), http.StatusGone, IssueTypeDeleted},
		{"unsupported", UnsupportedQueryError("_id", "x"), http.StatusBadRequest, IssueTypeNotSupported},
		{"invalid request", InvalidRequestError("a", "x"), http.StatusBadRequest, IssueTypeInvalid},
		{"invalid value", InvalidValueError("a", "x"), http.StatusBadRequest, IssueTypeValue},
		{"wrapped", fmt.Errorf("read: %w", NotFoundError("Encounter", "2")), http.StatusNotFound, IssueTypeNotFound},
		{"other", errors.New("connection refused"), http.StatusInternalServerError, IssueTypeException},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, oo := OutcomeForError(tt.err)
			if status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, status)
			}
			if oo.ResourceType != "OperationOutcome" {
				t.Errorf("expected OperationOutcome, got %s", oo.ResourceType)
			}
			if len(oo.Issue) != 1 || oo.Issue[0].Code != tt.code {
				t.Errorf("expected issue code %s, got %+v", tt.code, oo.Issue)
			}
			if oo.Issue[0].Diagnostics != tt.err.Error() {
				t.Errorf("expected diagnostics %q, got %q", tt.err.Error(), oo.Issue[0].Diagnostics)
			}
		})
	}
}
