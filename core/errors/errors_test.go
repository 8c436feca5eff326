package errors

import (
	stderrors "errors"
	"testing"
)

func TestSentinelUnwrapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not found", NewNotFound("archive member", "x.bin"), ErrNotFound},
		{"validation", NewValidation("schema filter", "bad regex"), ErrInvalidInput},
		{"io wraps its cause", NewIO("read", "/tmp/x", ErrNotFound), ErrNotFound},
		{"parse", NewParse("siard", "/tmp/m.xml", "no root"), ErrInvalidInput},
		{"unsupported", NewUnsupported("type", "no mapping"), ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !Is(tt.err, tt.sentinel) {
				t.Errorf("Is(%v, sentinel) = false", tt.err)
			}
			if tt.err.Error() == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestWrapPreservesChain(t *testing.T) {
	base := NewNotFound("archive member", "x.bin")
	wrapped := Wrap(base, "resolving path")
	if !Is(wrapped, ErrNotFound) {
		t.Error("Wrap broke the sentinel chain")
	}

	var nf *NotFoundError
	if !As(wrapped, &nf) {
		t.Fatal("As failed to recover typed error")
	}
	if nf.ID != "x.bin" {
		t.Errorf("ID = %q, want x.bin", nf.ID)
	}

	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) must return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) must return nil")
	}
}

func TestWrapfFormatting(t *testing.T) {
	err := Wrapf(stderrors.New("inner"), "outer %s", "context")
	want := "outer context: inner"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
