package security

import (
	"testing"
)

func TestFilterEnvAllowlist(t *testing.T) {
	t.Setenv("WARDEN_TEST_VISIBLE", "yes")
	t.Setenv("WARDEN_TEST_HIDDEN", "no")

	got := FilterEnv([]string{"WARDEN_TEST_VISIBLE", "WARDEN_TEST_ABSENT"})
	if got["WARDEN_TEST_VISIBLE"] != "yes" {
		t.Errorf("visible var missing: %v", got)
	}
	if _, ok := got["WARDEN_TEST_HIDDEN"]; ok {
		t.Error("non-allowlisted var leaked")
	}
	if _, ok := got["WARDEN_TEST_ABSENT"]; ok {
		t.Error("absent var present")
	}
}

func TestFilterEnvDeniesSensitiveEvenWhenAllowlisted(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-something")
	t.Setenv("DATABASE_URL", "postgres://secret")

	got := FilterEnv([]string{"OPENAI_API_KEY", "DATABASE_URL"})
	if len(got) != 0 {
		t.Errorf("sensitive vars leaked: %v", got)
	}
}

func TestFilterEnvEmptyAllowlist(t *testing.T) {
	t.Parallel()

	if got := FilterEnv(nil); len(got) != 0 {
		t.Errorf("empty allowlist returned %v", got)
	}
}

func TestIsSensitiveEnvVar(t *testing.T) {
	t.Parallel()

	sensitive := []string{"OPENAI_API_KEY", "anthropic_key", "AWS_SECRET_ACCESS_KEY", "GH_TOKEN", "db_password"}
	for _, name := range sensitive {
		if !IsSensitiveEnvVar(name) {
			t.Errorf("%s not flagged", name)
		}
	}

	benign := []string{"DB_PORT", "DATABASE_HOST", "HOME", "PATH", "LANG"}
	for _, name := range benign {
		if IsSensitiveEnvVar(name) {
			t.Errorf("%s over-blocked", name)
		}
	}
}
