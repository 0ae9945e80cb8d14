package config

import "testing"

func TestResolve(t *testing.T) {
	t.Setenv("PF_TEST_KEY", "from-env")

	if got := Resolve("from-flag", "PF_TEST_KEY", "fallback"); got != "from-flag" {
		t.Fatalf("flag should win: %q", got)
	}
	if got := Resolve("", "PF_TEST_KEY", "fallback"); got != "from-env" {
		t.Fatalf("env should win over default: %q", got)
	}
	if got := Resolve("", "PF_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("default expected: %q", got)
	}
}

func TestValidateBaseURL(t *testing.T) {
	valid := []string{"http://localhost:8080", "https://api.plateful.app"}
	for _, u := range valid {
		if err := ValidateBaseURL(u); err != nil {
			t.Fatalf("ValidateBaseURL(%q): %v", u, err)
		}
	}

	invalid := []string{"", "ftp://host", "http://", "::bad::"}
	for _, u := range invalid {
		if err := ValidateBaseURL(u); err == nil {
			t.Fatalf("ValidateBaseURL(%q): expected error", u)
		}
	}
}
