package util

import "testing"

func TestGetEnvString(t *testing.T) {
	t.Setenv("LOOM_TEST_STRING", "value")
	if got := GetEnvString("LOOM_TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
	if got := GetEnvString("LOOM_TEST_STRING_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("LOOM_TEST_INT", "42")
	if got := GetEnvInt("LOOM_TEST_INT", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}

	t.Setenv("LOOM_TEST_INT", "not a number")
	if got := GetEnvInt("LOOM_TEST_INT", 7); got != 7 {
		t.Fatalf("expected default on parse failure, got %d", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("LOOM_TEST_FLOAT", "0.75")
	if got := GetEnvFloat("LOOM_TEST_FLOAT", 0.5); got != 0.75 {
		t.Fatalf("expected 0.75, got %v", got)
	}
	if got := GetEnvFloat("LOOM_TEST_FLOAT_MISSING", 0.5); got != 0.5 {
		t.Fatalf("expected default, got %v", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("LOOM_TEST_BOOL", "true")
	if !GetEnvBool("LOOM_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}

	t.Setenv("LOOM_TEST_BOOL", "yes")
	if GetEnvBool("LOOM_TEST_BOOL", false) {
		t.Fatalf("expected default for non-boolean value")
	}
}
