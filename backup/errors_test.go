package backup

import (
	"errors"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindIO:           "io",
		KindTruncated:    "truncated",
		KindInvalidFrame: "invalid-frame",
		KindAuthFailed:   "auth-failed",
		KindCrypto:       "crypto",
		KindSQL:          "sql",
		KindNotFound:     "not-found",
		Kind(99):         "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk is full")
	err := wrap(KindIO, cause, "writing frame")

	berr, ok := err.(*Error)
	if !ok {
		t.Fatalf("got %T, want *Error", err)
	}
	if berr.Kind != KindIO {
		t.Fatalf("got kind %v, want KindIO", berr.Kind)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestWrapWithNilCauseStillReportsKind(t *testing.T) {
	err := wrap(KindNotFound, nil, "attachment 7/3 not announced")
	if berr := err.(*Error); berr.Kind != KindNotFound {
		t.Fatalf("got kind %v, want KindNotFound", berr.Kind)
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty error string")
	}
}
