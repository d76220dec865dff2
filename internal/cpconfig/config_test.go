package cpconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultHasSaneValues(t *testing.T) {
	cfg := Default()
	if cfg.Server.HTTPPort != 8080 {
		t.Fatalf("HTTPPort = %d, want 8080", cfg.Server.HTTPPort)
	}
	if cfg.Container.AgentPort != 8000 {
		t.Fatalf("AgentPort = %d, want 8000", cfg.Container.AgentPort)
	}
	if cfg.Provisioner.CloneDepth != 1 {
		t.Fatalf("CloneDepth = %d, want 1", cfg.Provisioner.CloneDepth)
	}
}

func TestLoadFromFileExpandsEnvAndOverridesDefaults(t *testing.T) {
	os.Setenv("RCTL_TEST_IMAGE", "my-agent:v2")
	defer os.Unsetenv("RCTL_TEST_IMAGE")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "server:\n  http_port: 9090\ncontainer:\n  image: \"${RCTL_TEST_IMAGE}\"\n  agent_port: 8100\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Fatalf("HTTPPort = %d, want 9090", cfg.Server.HTTPPort)
	}
	if cfg.Container.Image != "my-agent:v2" {
		t.Fatalf("Image = %q, want expanded env value", cfg.Container.Image)
	}
	if cfg.Container.AgentPort != 8100 {
		t.Fatalf("AgentPort = %d, want 8100", cfg.Container.AgentPort)
	}
	// Fields absent from the file keep Default()'s values.
	if cfg.Provisioner.CloneDepth != 1 {
		t.Fatalf("CloneDepth = %d, want default 1", cfg.Provisioner.CloneDepth)
	}
}

func TestLoadFromFileMissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  http_port: 1111\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("server:\n  http_port: 2222\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case cfg := <-w.Changes:
		if cfg.Server.HTTPPort != 2222 {
			t.Fatalf("HTTPPort = %d, want 2222", cfg.Server.HTTPPort)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
