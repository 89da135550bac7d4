package errcode

import (
	"errors"
	"testing"
)

func TestKindOfKnownCodes(t *testing.T) {
	cases := map[Code]Kind{
		Timeout:          KindTransient,
		DeviceMissing:    KindPersistent,
		SchemaViolation:  KindConfig,
		InterlockMaxHigh: KindSafety,
		StorageCorrupt:   KindFatal,
	}
	for code, want := range cases {
		if got := KindOf(code); got != want {
			t.Errorf("KindOf(%s) = %s, want %s", code, got, want)
		}
	}
}

func TestKindOfUnknownDefaultsTransient(t *testing.T) {
	if got := KindOf(Code("made_up")); got != KindTransient {
		t.Fatalf("expected unknown code to default to transient, got %s", got)
	}
}

func TestFaultUnwrapAndCode(t *testing.T) {
	cause := errors.New("dout stuck high")
	f := New("cs1237.readSample", Timeout, cause)

	if !errors.Is(f, f) {
		t.Fatal("fault should equal itself")
	}
	if errors.Unwrap(f) != cause {
		t.Fatalf("unwrap mismatch: %v", errors.Unwrap(f))
	}
	if Of(f) != Timeout {
		t.Fatalf("Of(f) = %s, want %s", Of(f), Timeout)
	}
	if !IsKind(f, KindTransient) {
		t.Fatal("expected transient kind")
	}
}

func TestOfNilAndPlainError(t *testing.T) {
	if Of(nil) != OK {
		t.Fatal("Of(nil) should be OK")
	}
	if Of(errors.New("boom")) != Unspecified {
		t.Fatal("Of(plain error) should be Unspecified")
	}
}
