package policy_test

import (
	"net/http"
	"os"
	"testing"

	"github.com/n9te9/federation-router/federation/policy"
)

func TestCompile_Empty(t *testing.T) {
	e, err := policy.Compile("")
	if err != nil {
		t.Fatalf("Compile(\"\") error: %v", err)
	}
	v, err := e(policy.Input{})
	if err != nil || v != "" {
		t.Errorf("empty expr = %q, %v; want \"\", nil", v, err)
	}
}

func TestCompile_Always(t *testing.T) {
	e, err := policy.Compile("always:dry-run")
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	v, err := e(policy.Input{})
	if err != nil || v != "dry-run" {
		t.Errorf("always expr = %q, %v; want \"dry-run\", nil", v, err)
	}
}

func TestCompile_Header(t *testing.T) {
	e, err := policy.Compile("header:x-hive-expose-query-plan")
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	h := http.Header{}
	h.Set("x-hive-expose-query-plan", "true")
	v, err := e(policy.Input{Header: h})
	if err != nil || v != "true" {
		t.Errorf("header expr = %q, %v; want \"true\", nil", v, err)
	}
}

func TestCompile_Env(t *testing.T) {
	os.Setenv("POLICY_TEST_VAR", "enabled")
	defer os.Unsetenv("POLICY_TEST_VAR")

	e, err := policy.Compile("env:POLICY_TEST_VAR")
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	v, err := e(policy.Input{})
	if err != nil || v != "enabled" {
		t.Errorf("env expr = %q, %v; want \"enabled\", nil", v, err)
	}
}

func TestCompile_UnknownBuiltin(t *testing.T) {
	if _, err := policy.Compile("bogus:x"); err == nil {
		t.Fatal("expected error for unknown builtin")
	}
}

func TestCompile_MissingSeparator(t *testing.T) {
	if _, err := policy.Compile("nosepchar"); err == nil {
		t.Fatal("expected error for expression missing a \":\" separator")
	}
}

func TestBool(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"always:true", true},
		{"always:1", true},
		{"always:false", false},
		{"always:", false},
		{"", false},
	}

	for _, c := range cases {
		fn, err := policy.Bool(c.expr)
		if err != nil {
			t.Fatalf("Bool(%q) error: %v", c.expr, err)
		}
		got, err := fn(policy.Input{})
		if err != nil {
			t.Fatalf("Bool(%q) eval error: %v", c.expr, err)
		}
		if got != c.want {
			t.Errorf("Bool(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}
