package errors

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New("test error")
	if err == nil {
		t.Fatal("New() returned nil")
	}

	if !strings.Contains(err.Error(), "test error") {
		t.Errorf("Expected error message to contain 'test error', got: %s", err.Error())
	}

	if err.Location() == "" {
		t.Error("Location should not be empty")
	}
}

func TestWrap(t *testing.T) {
	baseErr := errors.New("base error")
	err := Wrap(baseErr, "wrapped")

	if err == nil {
		t.Fatal("Wrap() returned nil")
	}

	if !strings.Contains(err.Error(), "wrapped") {
		t.Errorf("Expected error message to contain 'wrapped', got: %s", err.Error())
	}

	if !strings.Contains(err.Error(), "base error") {
		t.Errorf("Expected error message to contain 'base error', got: %s", err.Error())
	}

	// Test unwrapping
	unwrapped := errors.Unwrap(err)
	if unwrapped != baseErr {
		t.Errorf("Unwrap() returned wrong error: %v", unwrapped)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWithField(t *testing.T) {
	err := New("test error").WithField("key", "value")

	fields := err.GetFields()
	if len(fields) != 1 {
		t.Fatalf("Expected 1 field, got %d", len(fields))
	}

	if fields["key"] != "value" {
		t.Errorf("Expected field['key'] = 'value', got: %v", fields["key"])
	}
}

func TestWithFieldDoesNotMutate(t *testing.T) {
	base := New("test error")
	extended := base.WithField("session_id", "abc")

	if len(base.GetFields()) != 0 {
		t.Error("WithField must not mutate the original error")
	}
	if extended.GetFields()["session_id"] != "abc" {
		t.Error("WithField must set the field on the copy")
	}
}

func TestWithFields(t *testing.T) {
	fields := map[string]interface{}{
		"key1": "value1",
		"key2": 123,
	}

	err := New("test error").WithFields(fields)

	errFields := err.GetFields()
	if len(errFields) != 2 {
		t.Fatalf("Expected 2 fields, got %d", len(errFields))
	}

	if errFields["key1"] != "value1" {
		t.Errorf("Expected field['key1'] = 'value1', got: %v", errFields["key1"])
	}

	if errFields["key2"] != 123 {
		t.Errorf("Expected field['key2'] = 123, got: %v", errFields["key2"])
	}
}

func TestWithCode(t *testing.T) {
	err := New("test error").WithCode("TEST_CODE")

	if err.GetCode() != "TEST_CODE" {
		t.Errorf("Expected code 'TEST_CODE', got: %s", err.GetCode())
	}
}

func TestErrorIs(t *testing.T) {
	invalidErr := NewInvalidInput("bad request")
	if !errors.Is(invalidErr, ErrInvalidInput) {
		t.Error("errors.Is() should return true for ErrInvalidInput")
	}

	// Test with wrapped errors
	wrapped := Wrap(ErrProviderFailure, "completion request failed")
	if !errors.Is(wrapped, ErrProviderFailure) {
		t.Error("errors.Is() should return true for wrapped ErrProviderFailure")
	}
}

func TestErrorAs(t *testing.T) {
	err := New("test error").WithCode("TEST_CODE")

	var structErr *Error
	if !errors.As(err, &structErr) {
		t.Error("errors.As() should successfully cast to *Error")
	}

	if structErr.GetCode() != "TEST_CODE" {
		t.Errorf("Expected code 'TEST_CODE', got: %s", structErr.GetCode())
	}
}

func TestConstructors(t *testing.T) {
	testCases := []struct {
		name     string
		err      *Error
		sentinel error
		code     string
	}{
		{"InvalidInput", NewInvalidInput("bad request"), ErrInvalidInput, "INVALID_INPUT"},
		{"PermissionDenied", NewPermissionDenied("not allowed"), ErrPermissionDenied, "PERMISSION_DENIED"},
		{"InternalError", NewInternalError("broken"), ErrInternalError, "INTERNAL_ERROR"},
		{"ProviderFailure", NewProviderFailure("openai"), ErrProviderFailure, "PROVIDER_FAILURE"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.sentinel) {
				t.Errorf("Expected error to match its sentinel")
			}
			if tc.err.GetCode() != tc.code {
				t.Errorf("Expected code %q, got: %s", tc.code, tc.err.GetCode())
			}
		})
	}
}

func TestNewProviderFailureRecordsProvider(t *testing.T) {
	err := NewProviderFailure("anthropic")
	if err.GetFields()["provider"] != "anthropic" {
		t.Errorf("Expected provider field 'anthropic', got: %v", err.GetFields()["provider"])
	}
}

func TestHelperFunctions(t *testing.T) {
	// Test IsErrorType through wrapping
	wrapped := Wrap(NewInvalidInput("bad mode"), "request rejected")
	if !IsErrorType(wrapped, ErrInvalidInput) {
		t.Error("IsErrorType() should return true for wrapped ErrInvalidInput")
	}
	if IsErrorType(wrapped, ErrPermissionDenied) {
		t.Error("IsErrorType() should return false for an unrelated sentinel")
	}

	// Test GetErrorCode
	codeErr := New("test error").WithCode("TEST_CODE")
	if GetErrorCode(codeErr) != "TEST_CODE" {
		t.Errorf("GetErrorCode() should return 'TEST_CODE', got: %s", GetErrorCode(codeErr))
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Error("GetErrorCode() should return empty for a plain error")
	}

	// Test GetErrorFields
	fieldsErr := New("test error").WithField("key", "value")
	fields := GetErrorFields(fieldsErr)
	if fields == nil || fields["key"] != "value" {
		t.Error("GetErrorFields() should return the error fields")
	}
	if GetErrorFields(errors.New("plain")) != nil {
		t.Error("GetErrorFields() should return nil for a plain error")
	}
}

func TestAsJSON(t *testing.T) {
	err := NewInvalidInput("bad input", map[string]interface{}{"field": "transcript"})

	payload := err.AsJSON()

	if payload["code"] != "INVALID_INPUT" {
		t.Errorf("Expected code 'INVALID_INPUT', got: %v", payload["code"])
	}
	if !strings.Contains(payload["message"].(string), "bad input") {
		t.Errorf("Expected message to contain 'bad input', got: %v", payload["message"])
	}
	context, ok := payload["context"].(map[string]interface{})
	if !ok || context["field"] != "transcript" {
		t.Error("Expected context to carry the error fields")
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid input sentinel", ErrInvalidInput, 400},
		{"permission denied sentinel", ErrPermissionDenied, 403},
		{"empty transcript sentinel", ErrEmptyTranscript, 400},
		{"no provider sentinel", ErrNoProviderAvailable, 503},
		{"wrapped sentinel", Wrap(ErrInvalidInput, "validation failed"), 400},
		{"deeply wrapped sentinel", Wrap(Wrap(ErrPermissionDenied, "inner"), "outer"), 403},
		{"unmapped error", errors.New("mystery"), 500},
		{"nil error", nil, 500},
	}

	for _, tc := range testCases {
		if got := HTTPStatusFromError(tc.err); got != tc.expected {
			t.Errorf("%s: expected status %d, got %d", tc.name, tc.expected, got)
		}
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NewInvalidInput("bad transcript"))

	if rec.Code != 400 {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("Response body is not valid JSON: %v", err)
	}
	if payload["code"] != "INVALID_INPUT" {
		t.Errorf("Expected code 'INVALID_INPUT', got: %v", payload["code"])
	}

	rec = httptest.NewRecorder()
	WriteError(rec, errors.New("plain failure"))
	if rec.Code != 500 {
		t.Errorf("Expected status 500 for an unmapped error, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	WriteError(rec, nil)
	if rec.Code != 500 {
		t.Errorf("Expected status 500 for a nil error, got %d", rec.Code)
	}
}
