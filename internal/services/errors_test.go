package services

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesMarker(t *testing.T) {
	base := fmt.Errorf("exit status 1")
	err := Wrap(ErrExtraction, "downloading", "run engine", "engine exited", base)

	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("marker lost: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "processing", "", "", errors.New("boom"))
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient marker: %v", err)
	}
}

func TestFailureCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"validation", Wrap(ErrValidation, "", "submit", "bad url", nil), CodeValidation},
		{"configuration", Wrap(ErrConfiguration, "", "", "missing binary", nil), CodeValidation},
		{"auth", Wrap(ErrAuthRequired, "downloading", "", "sign in required", nil), CodeAuthRequired},
		{"extraction", Wrap(ErrExtraction, "downloading", "", "", errors.New("exit 1")), CodeExtraction},
		{"external tool", Wrap(ErrExternalTool, "", "spawn", "", errors.New("not found")), CodeExtraction},
		{"transcode", Wrap(ErrTranscode, "processing", "trim", "", errors.New("exit 1")), CodeTranscode},
		{"not found", Wrap(ErrNotFound, "", "lookup", "no such job", nil), CodeNotFound},
		{"timeout", Wrap(ErrTimeout, "downloading", "", "deadline", nil), CodeTimeout},
		{"unknown", errors.New("mystery"), CodeInternal},
	}
	for _, tc := range cases {
		if got := FailureCode(tc.err); got != tc.want {
			t.Errorf("%s: FailureCode = %q, want %q", tc.name, got, tc.want)
		}
	}
}
