package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hotmic/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HOTMIC_CONFIG",
		"HOTMIC_ENDPOINT_THRESHOLD",
		"HOTMIC_ENDPOINT_SILENCE_MS",
		"HOTMIC_DIRECTIVES_URL",
		"HOTMIC_HTTP_ADDR",
		"LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestBuildSuccess(t *testing.T) {
	clearEnv(t)

	services, err := Build(Options{In: strings.NewReader("")})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil || services.Link == nil || services.Config == nil {
		t.Fatalf("expected controller, link and config holder")
	}
	if services.Console == nil {
		t.Fatalf("expected console when input is provided")
	}
	if services.HTTP == nil || services.HTTP.Addr != config.DefaultHTTPAddr {
		t.Fatalf("expected HTTP server on default addr")
	}
}

func TestBuildHeadless(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "hotmic.yaml")
	if err := os.WriteFile(path, []byte("endpoint:\n  threshold: 9\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	services, err := Build(Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Console != nil {
		t.Fatalf("expected no console without input")
	}
	if services.Config.Get().Endpoint.Threshold != 9 {
		t.Fatalf("expected file threshold, got %d", services.Config.Get().Endpoint.Threshold)
	}
}

func TestBuildFailsOnInvalidConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("endpoint:\n  silenceMs: -5\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := Build(Options{ConfigPath: path}); err == nil {
		t.Fatalf("expected build error due to invalid config")
	}
}

func TestControllerConfigMapping(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Endpoint.Threshold = 7
	cfg.Endpoint.Silence = 1500 * time.Millisecond
	cfg.Audio.ChunkSize = 1600

	got := ControllerConfig(cfg)
	if got.Endpoint.Threshold != 7 || got.Endpoint.Silence != 1500*time.Millisecond {
		t.Fatalf("unexpected endpoint mapping: %+v", got.Endpoint)
	}
	if got.Audio.ChunkSize != 1600 || got.Audio.SampleRate != 16000 {
		t.Fatalf("unexpected audio mapping: %+v", got.Audio)
	}
	if got.ExpectSpeechTimeout != config.DefaultExpectSpeechTimeout {
		t.Fatalf("unexpected expect-speech timeout: %s", got.ExpectSpeechTimeout)
	}
}
