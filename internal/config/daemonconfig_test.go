package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
active_model: fast
models:
  fast:
    provider: anthropic
    model: claude-test
    api_key_env: ANTHROPIC_API_KEY
  slow:
    provider: openai
    model: gpt-test
    api_key_env: OPENAI_API_KEY
settings:
  auto_approve_tools: true
  max_turns: 10
  idle_timeout: 5m
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDaemonConfig_ParsesModelsAndSettings(t *testing.T) {
	cfg, err := LoadDaemonConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}

	if cfg.ActiveModelName() != "fast" {
		t.Fatalf("ActiveModelName = %q, want fast", cfg.ActiveModelName())
	}
	profile, err := cfg.GetModel("slow")
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if profile.Provider != "openai" || profile.Model != "gpt-test" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	settings := cfg.SnapshotSettings()
	if !settings.AutoApproveTools || settings.MaxTurns != 10 || settings.IdleTimeout != 5*time.Minute {
		t.Fatalf("unexpected settings: %+v", settings)
	}
}

func TestLoadDaemonConfig_MissingModelIsAnError(t *testing.T) {
	cfg, err := LoadDaemonConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}
	if _, err := cfg.GetModel("nonexistent"); err == nil {
		t.Fatal("expected an error for an unknown model nickname")
	}
}

func TestLoadDaemonConfig_RejectsUnknownFields(t *testing.T) {
	if _, err := LoadDaemonConfig(writeConfig(t, sampleConfig+"\nbogus_field: true\n")); err == nil {
		t.Fatal("expected an error for an unknown top-level field")
	}
}

func TestLoadDaemonConfig_AppliesDefaultSettings(t *testing.T) {
	cfg, err := LoadDaemonConfig(writeConfig(t, "models: {}\n"))
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}
	if got, want := cfg.SnapshotSettings(), DefaultDaemonSettings(); got != want {
		t.Fatalf("settings = %+v, want defaults %+v", got, want)
	}
}

func TestLoadDaemonConfig_ExpandsEnvVars(t *testing.T) {
	t.Setenv("NEUROMANCE_TEST_MODEL", "claude-env")
	path := writeConfig(t, `
models:
  fast:
    provider: anthropic
    model: ${NEUROMANCE_TEST_MODEL}
    api_key_env: ANTHROPIC_API_KEY
`)
	cfg, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}
	profile, err := cfg.GetModel("fast")
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if profile.Model != "claude-env" {
		t.Fatalf("Model = %q, want expanded env value", profile.Model)
	}
}

func TestReload_SwapsModelsAndSettingsInPlace(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}

	if err := os.WriteFile(path, []byte(`
active_model: slow
models:
  slow:
    provider: openai
    model: gpt-test
    api_key_env: OPENAI_API_KEY
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := cfg.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if cfg.ActiveModelName() != "slow" {
		t.Fatalf("ActiveModelName after reload = %q, want slow", cfg.ActiveModelName())
	}
	if _, err := cfg.GetModel("fast"); err == nil {
		t.Fatal("expected the fast model to be gone after reload")
	}
}

func TestReload_WithoutBackingFileFails(t *testing.T) {
	cfg, err := parseDaemonConfig([]byte("models: {}\n"))
	if err != nil {
		t.Fatalf("parseDaemonConfig: %v", err)
	}
	if err := cfg.Reload(); err == nil {
		t.Fatal("expected an error reloading a config with no backing file")
	}
}

func TestDefaultDaemonConfigPath_PrefersXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg-home")
	if got, want := DefaultDaemonConfigPath(), filepath.Join("/xdg-home", "neuromance", "config.yaml"); got != want {
		t.Fatalf("DefaultDaemonConfigPath = %q, want %q", got, want)
	}
}

func TestDaemonConfigJSONSchema_ProducesValidJSON(t *testing.T) {
	data, err := DaemonConfigJSONSchema()
	if err != nil {
		t.Fatalf("DaemonConfigJSONSchema: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty schema JSON")
	}
}
