package mathx

import "testing"

func TestClamp(t *testing.T) {
	if got := Clamp(5.0, 0.0, 10.0); got != 5.0 {
		t.Fatalf("got %v", got)
	}
	if got := Clamp(-5.0, 0.0, 10.0); got != 0.0 {
		t.Fatalf("got %v", got)
	}
	if got := Clamp(15.0, 0.0, 10.0); got != 10.0 {
		t.Fatalf("got %v", got)
	}
	// swapped bounds
	if got := Clamp(5, 10, 0); got != 5 {
		t.Fatalf("got %v", got)
	}
}

func TestBetween(t *testing.T) {
	if !Between(5, 0, 10) {
		t.Fatal("expected 5 to be between 0 and 10")
	}
	if Between(-1, 0, 10) {
		t.Fatal("expected -1 to not be between 0 and 10")
	}
}

func TestAbs(t *testing.T) {
	if Abs(-8388608) != 8388608 {
		t.Fatal("abs mismatch")
	}
	if Abs(3) != 3 {
		t.Fatal("abs mismatch")
	}
}
