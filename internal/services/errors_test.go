package services_test

import (
	"errors"
	"strings"
	"testing"

	"fieldsync/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("disk full")
	err := services.Wrap(services.ErrStorage, "queue", "add", "persist submission", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"could not save locally", "queue", "add", "persist submission"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestIsUserFacing(t *testing.T) {
	if !services.IsUserFacing(services.Wrap(services.ErrValidation, "mutation", "validate", "client required", nil)) {
		t.Fatal("validation errors should be user facing")
	}
	if services.IsUserFacing(services.Wrap(services.ErrTransient, "submit", "post", "", errors.New("reset"))) {
		t.Fatal("transient errors should not be user facing")
	}
}
