package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
app:
  timezone: Europe/Moscow
crawler:
  request_interval_ms: 500
  platforms:
    - id: weibo
      name: Weibo
    - id: zhihu
report:
  mode: current
  rank_threshold: 3
weight:
  rank_weight: 1
storage:
  backend: local
  formats:
    txt: false
  local:
    data_dir: /tmp/news
    retention_days: 14
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML), MapEnv(nil))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.App.Timezone != "Europe/Moscow" {
		t.Errorf("Timezone = %q, want Europe/Moscow", cfg.App.Timezone)
	}
	if cfg.Report.Mode != "current" || cfg.Report.RankThreshold != 3 {
		t.Errorf("Report = %+v", cfg.Report)
	}
	if cfg.Weight.RankWeight != 1 || cfg.Weight.FrequencyWeight != 0.3 {
		t.Errorf("Weight = %+v, want rank=1 freq=0.3", cfg.Weight)
	}
	if Bool(cfg.Storage.Formats.TXT) {
		t.Errorf("TXT = true, want false from file")
	}
	if !Bool(cfg.Crawler.Enabled) {
		t.Errorf("Crawler.Enabled = false, want default true")
	}
	if len(cfg.Crawler.Platforms) != 2 {
		t.Errorf("Platforms = %v", cfg.Crawler.Platforms)
	}
	if cfg.Storage.Local.RetentionDays != 14 || cfg.Storage.Pull.Days != 7 {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	env := MapEnv(map[string]string{
		"REPORT_MODE":          "incremental",
		"STORAGE_BACKEND":      "REMOTE",
		"S3_BUCKET_NAME":       "news",
		"S3_ACCESS_KEY_ID":     "key",
		"S3_SECRET_ACCESS_KEY": "secret",
		"S3_ENDPOINT_URL":      "https://s3.example.com",
		"STORAGE_TXT_ENABLED":  "true",
		"TIMEZONE":             "",
	})
	cfg, err := Load(writeConfig(t, sampleYAML), env)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Report.Mode != "incremental" {
		t.Errorf("Mode = %q, want incremental", cfg.Report.Mode)
	}
	if cfg.Storage.Backend != "remote" {
		t.Errorf("Backend = %q, want remote", cfg.Storage.Backend)
	}
	if !Bool(cfg.Storage.Formats.TXT) {
		t.Errorf("TXT = false, want env override true")
	}
	if cfg.App.Timezone != "Europe/Moscow" {
		t.Errorf("empty env must not override, got %q", cfg.App.Timezone)
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Load("", MapEnv(map[string]string{"CONFIG_PATH": path}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Local.DataDir != "/tmp/news" {
		t.Errorf("DataDir = %q", cfg.Storage.Local.DataDir)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "bad mode", yaml: "report:\n  mode: weekly\n"},
		{name: "bad backend", yaml: "storage:\n  backend: ftp\n"},
		{name: "remote without credentials", yaml: "storage:\n  backend: remote\n"},
		{name: "bad timezone", yaml: "app:\n  timezone: Mars/Olympus\n"},
		{name: "bad window", yaml: "notification:\n  push_window:\n    enabled: true\n    start: \"25:00\"\n"},
		{name: "inverted window", yaml: "notification:\n  push_window:\n    enabled: true\n    start: \"20:00\"\n    end: \"08:00\"\n"},
		{name: "bad env int", yaml: "", env: map[string]string{"RANK_THRESHOLD": "five"}},
		{name: "bad env bool", yaml: "", env: map[string]string{"PULL_ENABLED": "maybe"}},
		{name: "feed without url", yaml: "crawler:\n  rss:\n    feeds:\n      - id: hn\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml), MapEnv(tt.env))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Load() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), MapEnv(nil))
	if err == nil {
		t.Fatal("Load() error = nil, want read error")
	}
}

func TestOverride(t *testing.T) {
	env := "env"
	if got := override(&env, "file", "def"); got != "env" {
		t.Errorf("override(env) = %q", got)
	}
	if got := override(nil, "file", "def"); got != "file" {
		t.Errorf("override(file) = %q", got)
	}
	if got := override(nil, "", "def"); got != "def" {
		t.Errorf("override(def) = %q", got)
	}

	off := false
	on := true
	if got := overrideFlag(nil, &off, &on); *got {
		t.Errorf("overrideFlag must keep explicit false from file")
	}
	if got := overrideFlag(&on, &off, nil); !*got {
		t.Errorf("overrideFlag must prefer env")
	}
	if got := overrideFlag(nil, nil, &on); !*got {
		t.Errorf("overrideFlag must fall back to default")
	}
}
