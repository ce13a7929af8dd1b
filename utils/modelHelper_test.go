package utils

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestFirstError_MissBecomesSentinel(t *testing.T) {
	if got := firstError(gorm.ErrRecordNotFound); !errors.Is(got, ErrorRecordNotFound) {
		t.Fatalf("record miss mapped to %v, want ErrorRecordNotFound", got)
	}
	wrapped := fmt.Errorf("fetch travel: %w", gorm.ErrRecordNotFound)
	if got := firstError(wrapped); !errors.Is(got, ErrorRecordNotFound) {
		t.Fatalf("wrapped miss mapped to %v, want ErrorRecordNotFound", got)
	}
}

func TestFirstError_RealFailuresPassThrough(t *testing.T) {
	dbDown := errors.New("dial tcp: connection refused")
	got := firstError(dbDown)
	if errors.Is(got, ErrorRecordNotFound) {
		t.Fatalf("transient failure surfaced as a record miss")
	}
	if got != dbDown {
		t.Fatalf("transient failure rewritten: %v", got)
	}
}
