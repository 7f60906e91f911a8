package errors_test

import (
	"testing"

	"github.com/guoquans/lilyproject/errors"
)

func TestIsMatchesCodeThroughWrap(t *testing.T) {
	err := errors.New(errors.CodeCorruptEncoding, "bad terminator")
	wrapped := errors.Wrap(err, "decoding row")
	if !errors.Is(wrapped, errors.CodeCorruptEncoding) {
		t.Fatal("expected wrapped error to still carry its original code")
	}
	if errors.Is(wrapped, errors.CodeIoError) {
		t.Fatal("expected wrapped error not to match an unrelated code")
	}
}

func TestNewfFormatsMessage(t *testing.T) {
	err := errors.Newf(errors.CodeCorruptEncoding, "expected %d bytes, got %d", 16, 4)
	if err.Error() != "expected 16 bytes, got 4" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestWrapPreservesMessage(t *testing.T) {
	err := errors.Wrap(errors.New(errors.CodeIoError, "disk full"), "writing entry")
	if err.Error() != "writing entry: disk full" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
