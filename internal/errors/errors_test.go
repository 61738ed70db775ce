package errors

import (
	"errors"
	"testing"
	"time"
)

func TestSyncError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := NewSyncError(ErrorTypeTransientIO, "upsert_file", "/path/to/file", underlying)

	if err.Type != ErrorTypeTransientIO {
		t.Errorf("Expected Type to be ErrorTypeTransientIO, got %v", err.Type)
	}
	if err.Path != "/path/to/file" {
		t.Errorf("Expected Path to be '/path/to/file', got %s", err.Path)
	}
	if err.Operation != "upsert_file" {
		t.Errorf("Expected Operation to be 'upsert_file', got %s", err.Operation)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	expectedMsg := "transient_io upsert_file failed for /path/to/file: underlying error"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestGraphParseError(t *testing.T) {
	underlying := errors.New("syntax error")
	err := NewGraphParseError("/path/to/file.py", underlying)

	if err.Path != "/path/to/file.py" {
		t.Errorf("Expected Path to be '/path/to/file.py', got %s", err.Path)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	expectedMsg := "parse failed for /path/to/file.py: syntax error"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestInvariantError(t *testing.T) {
	err := NewInvariantError("I2", "edge endpoint missing from store")

	expectedMsg := "invariant I2 violated: edge endpoint missing from store"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestConfigError(t *testing.T) {
	underlying := errors.New("invalid value")
	err := NewConfigError("rename_window_seconds", "-1", underlying)

	if err.Field != "rename_window_seconds" {
		t.Errorf("Expected Field to be 'rename_window_seconds', got %s", err.Field)
	}
	if err.Value != "-1" {
		t.Errorf("Expected Value to be '-1', got %s", err.Value)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	expectedMsg := `config error for field rename_window_seconds (value "-1"): invalid value`
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestMultiError(t *testing.T) {
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")
	err3 := errors.New("error 3")

	multiErr := NewMultiError([]error{err1, err2, err3})
	if len(multiErr.Errors) != 3 {
		t.Errorf("Expected 3 errors, got %d", len(multiErr.Errors))
	}

	errMsg := multiErr.Error()
	if len(errMsg) < 10 || errMsg[:10] != "3 errors: " {
		t.Errorf("Expected message to start with '3 errors: ', got %q", errMsg)
	}

	singleErr := NewMultiError([]error{err1})
	if singleErr.Error() != "error 1" {
		t.Errorf("Expected 'error 1', got %q", singleErr.Error())
	}

	if NewMultiError([]error{}) != nil {
		t.Errorf("Expected nil MultiError for no errors")
	}

	nilFiltered := NewMultiError([]error{err1, nil, err2, nil})
	if len(nilFiltered.Errors) != 2 {
		t.Errorf("Expected 2 errors after filtering nil, got %d", len(nilFiltered.Errors))
	}

	unwrapped := multiErr.Unwrap()
	if len(unwrapped) != 3 {
		t.Errorf("Expected 3 unwrapped errors, got %d", len(unwrapped))
	}
}

func TestTimestamp(t *testing.T) {
	err := NewSyncError(ErrorTypeParse, "parse", "/x", errors.New("test"))
	if err.Timestamp.IsZero() {
		t.Errorf("Expected non-zero timestamp")
	}

	now := time.Now()
	if err.Timestamp.After(now) || now.Sub(err.Timestamp) > time.Second {
		t.Errorf("Timestamp seems incorrect: %v", err.Timestamp)
	}
}
