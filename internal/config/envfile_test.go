package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyEnvFile(t *testing.T) {
	content := `# service overrides
AZSVC_SUBSCRIPTION_ID="sub-from-file"
export AZSVC_POLL_INTERVAL=2s
AZSVC_LOG_LEVEL='debug'
AZSVC_ENDPOINT=
OTHER_TOOL_TOKEN=secret
not a variable
`
	path := filepath.Join(t.TempDir(), EnvFile)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	// Already set in the environment, so the file must not override it.
	t.Setenv("AZSVC_LOG_LEVEL", "warn")
	// Registered with t.Setenv so they are restored after the test.
	t.Setenv("AZSVC_SUBSCRIPTION_ID", "")
	os.Unsetenv("AZSVC_SUBSCRIPTION_ID")
	t.Setenv("AZSVC_POLL_INTERVAL", "")
	os.Unsetenv("AZSVC_POLL_INTERVAL")

	set, err := ApplyEnvFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 2 {
		t.Errorf("set %v, want 2 variables", set)
	}

	tests := map[string]string{
		"AZSVC_SUBSCRIPTION_ID": "sub-from-file",
		"AZSVC_POLL_INTERVAL":   "2s",
		"AZSVC_LOG_LEVEL":       "warn",
	}
	for k, want := range tests {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if _, ok := os.LookupEnv("OTHER_TOOL_TOKEN"); ok {
		t.Error("OTHER_TOOL_TOKEN should not be exported")
	}
}

func TestApplyEnvFile_Missing(t *testing.T) {
	set, err := ApplyEnvFile(filepath.Join(t.TempDir(), "nope.env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("set %v from a missing file", set)
	}
}
