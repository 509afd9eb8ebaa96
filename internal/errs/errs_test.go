package errs_test

import (
	"errors"
	"testing"

	"github.com/elefante-mem/elefante/internal/errs"
)

func TestIsAndKindOf(t *testing.T) {
	base := errors.New("boom")
	wrapped := errs.New(errs.LockUnavailable, "lock", base)

	if !errs.Is(wrapped, errs.LockUnavailable) {
		t.Error("Is(LockUnavailable) = false, want true")
	}
	if errs.Is(wrapped, errs.InvalidInput) {
		t.Error("Is(InvalidInput) = true, want false")
	}

	kind, ok := errs.KindOf(wrapped)
	if !ok || kind != errs.LockUnavailable {
		t.Errorf("KindOf = (%v, %v), want (%v, true)", kind, ok, errs.LockUnavailable)
	}

	if !errors.Is(wrapped, base) {
		t.Error("errors.Is should see through the wrapper to base")
	}
}

func TestNew_NilPassthrough(t *testing.T) {
	if err := errs.New(errs.InvalidInput, "x", nil); err != nil {
		t.Errorf("New(nil) = %v, want nil", err)
	}
}

func TestKindOf_UnknownError(t *testing.T) {
	if _, ok := errs.KindOf(errors.New("plain")); ok {
		t.Error("KindOf(plain error) = true, want false")
	}
}
