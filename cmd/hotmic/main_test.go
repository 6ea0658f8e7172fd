package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HOTMIC_CONFIG",
		"HOTMIC_ENDPOINT_THRESHOLD",
		"HOTMIC_ENDPOINT_SILENCE_MS",
		"HOTMIC_HTTP_ADDR",
		"HOTMIC_DIRECTIVES_URL",
		"LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigCommandPrintsDefaults(t *testing.T) {
	clearEnv(t)

	out, err := execute(t, "config")
	if err != nil {
		t.Fatalf("config command failed: %v", err)
	}
	for _, want := range []string{"threshold: 5", "silenceMs: 2000", "inputFormat: pulse", "chunkSize: 3200"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestConfigCommandUsesFlagAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "hotmic.yaml")
	if err := os.WriteFile(path, []byte("endpoint:\n  threshold: 12\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("HOTMIC_ENDPOINT_SILENCE_MS", "750")

	out, err := execute(t, "--config", path, "config")
	if err != nil {
		t.Fatalf("config command failed: %v", err)
	}
	if !strings.Contains(out, "threshold: 12") || !strings.Contains(out, "silenceMs: 750") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestConfigCommandRejectsInvalidFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("endpoint:\n  threshold: -2\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := execute(t, "--config", path, "config"); err == nil {
		t.Fatalf("expected invalid config error")
	}
}

func TestRunQuitsFromConsole(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOTMIC_HTTP_ADDR", "127.0.0.1:0")

	configPath = ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader("q\n"))
	root.SetArgs([]string{"run"})
	if err := root.Execute(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out.String(), "Press q to quit") {
		t.Fatalf("expected console help in output:\n%s", out.String())
	}
}
