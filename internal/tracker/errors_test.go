package tracker

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransientError(t *testing.T) {
	base := errors.New("connection refused")
	terr := &TransientError{Op: "GET /api/v1/families", Err: base}

	if !errors.Is(terr, base) {
		t.Error("TransientError does not unwrap to its cause")
	}

	wrapped := fmt.Errorf("sync failed: %w", terr)
	if !IsTransient(wrapped) {
		t.Error("IsTransient() = false for a wrapped TransientError")
	}
	if IsTransient(base) {
		t.Error("IsTransient() = true for a plain error")
	}
	if IsTransient(nil) {
		t.Error("IsTransient(nil) = true")
	}
}

func TestErrNotFound(t *testing.T) {
	wrapped := fmt.Errorf("variant abc: %w", ErrNotFound)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped ErrNotFound not detected by errors.Is")
	}
	if IsTransient(wrapped) {
		t.Error("ErrNotFound classified as transient")
	}
}
