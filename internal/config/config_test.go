package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ligustah/batchdl/internal/task"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Threads != 4 {
		t.Errorf("expected default threads 4, got %d", cfg.Threads)
	}
	if !cfg.Resume {
		t.Error("expected resume to default to true")
	}
	if cfg.Retries != 3 {
		t.Errorf("expected default retries 3, got %d", cfg.Retries)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("expected default timeout 60s, got %v", cfg.Timeout)
	}
	if cfg.Retry.Backoff != time.Second {
		t.Errorf("expected default retry backoff 1s, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 30*time.Second {
		t.Errorf("expected default retry max backoff 30s, got %v", cfg.Retry.MaxBackoff)
	}
	if cfg.Checkpoint.Interval != 2*time.Second || cfg.Checkpoint.Bytes != 8*1024*1024 {
		t.Errorf("unexpected checkpoint defaults: %+v", cfg.Checkpoint)
	}
	if cfg.LinkFile != "links.txt" || cfg.OutputDir != "./downloads" {
		t.Errorf("unexpected path defaults: %q, %q", cfg.LinkFile, cfg.OutputDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
link_file: /data/links.tsv
output_dir: /data/out
mode: range
start: 2
end: 5
threads: 8
resume: false
retries: 0
timeout: 15s
state_url: mem://
progress: true
sort: true
proxy: proxy.local:3128
checkpoint:
  interval: 500ms
  bytes: 1MB
retry:
  backoff: 2s
  max_backoff: 1m
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.LinkFile != "/data/links.tsv" || cfg.OutputDir != "/data/out" {
		t.Errorf("unexpected paths: %q, %q", cfg.LinkFile, cfg.OutputDir)
	}
	if cfg.Mode != "range" || cfg.Start != 2 || cfg.End != 5 {
		t.Errorf("unexpected selection: %s %d-%d", cfg.Mode, cfg.Start, cfg.End)
	}
	if cfg.Threads != 8 {
		t.Errorf("expected threads 8, got %d", cfg.Threads)
	}
	if cfg.Resume {
		t.Error("expected resume false")
	}
	if cfg.Retries != 0 {
		t.Errorf("expected explicit retries 0, got %d", cfg.Retries)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("expected timeout 15s, got %v", cfg.Timeout)
	}
	if cfg.StateURL != "mem://" || !cfg.Progress || !cfg.Sort {
		t.Errorf("unexpected flags: %+v", cfg)
	}
	if cfg.Checkpoint.Interval != 500*time.Millisecond || cfg.Checkpoint.Bytes != 1024*1024 {
		t.Errorf("unexpected checkpoint: %+v", cfg.Checkpoint)
	}
	if cfg.Retry.Backoff != 2*time.Second || cfg.Retry.MaxBackoff != time.Minute {
		t.Errorf("unexpected retry: %+v", cfg.Retry)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromYAMLKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("threads: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Threads != 2 {
		t.Errorf("expected threads 2, got %d", cfg.Threads)
	}
	if !cfg.Resume || cfg.Retries != 3 || cfg.Timeout != 60*time.Second {
		t.Errorf("defaults not preserved: %+v", cfg)
	}
}

func TestLoadFromYAMLInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "threads: [1"},
		{"bad duration", "timeout: soon"},
		{"bad size", "checkpoint:\n  bytes: lots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFromFile(configPath); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BATCHDL_LINK_FILE", "env-links.txt")
	t.Setenv("BATCHDL_THREADS", "12")
	t.Setenv("BATCHDL_RESUME", "false")
	t.Setenv("BATCHDL_MODE", "single")
	t.Setenv("BATCHDL_FILE", "a.bin")
	t.Setenv("BATCHDL_TIMEOUT", "5s")
	t.Setenv("BATCHDL_CHECKPOINT_BYTES", "64KB")
	t.Setenv("BATCHDL_RETRY_MAX_BACKOFF", "10s")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.LinkFile != "env-links.txt" {
		t.Errorf("expected link file from env, got %q", cfg.LinkFile)
	}
	if cfg.Threads != 12 {
		t.Errorf("expected threads 12, got %d", cfg.Threads)
	}
	if cfg.Resume {
		t.Error("expected resume false from env")
	}
	if cfg.Mode != "single" || cfg.File != "a.bin" {
		t.Errorf("unexpected selection %q %q", cfg.Mode, cfg.File)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Timeout)
	}
	if cfg.Checkpoint.Bytes != 64*1024 {
		t.Errorf("expected 64KB checkpoint, got %d", cfg.Checkpoint.Bytes)
	}
	if cfg.Retry.MaxBackoff != 10*time.Second {
		t.Errorf("expected max backoff 10s, got %v", cfg.Retry.MaxBackoff)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"BATCHDL_THREADS", "many"},
		{"BATCHDL_RESUME", "maybe"},
		{"BATCHDL_TIMEOUT", "5"},
		{"BATCHDL_CHECKPOINT_BYTES", "big"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := Default()
			if err := cfg.LoadFromEnv(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "BATCHDL_THREADS=7\nBATCHDL_OUTPUT_DIR=from-dotenv\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	// Variables already in the environment win over the file.
	t.Setenv("BATCHDL_OUTPUT_DIR", "from-env")
	// Registered so t restores the environment after the test.
	t.Setenv("BATCHDL_THREADS", "")
	os.Unsetenv("BATCHDL_THREADS")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Threads != 7 {
		t.Errorf("expected threads 7 from .env, got %d", cfg.Threads)
	}
	if cfg.OutputDir != "from-env" {
		t.Errorf("expected environment to win, got %q", cfg.OutputDir)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no link file", func(c *Config) { c.LinkFile = "" }},
		{"no output dir", func(c *Config) { c.OutputDir = "" }},
		{"zero threads", func(c *Config) { c.Threads = 0 }},
		{"negative retries", func(c *Config) { c.Retries = -1 }},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }},
		{"unknown mode", func(c *Config) { c.Mode = "some" }},
		{"single without file", func(c *Config) { c.Mode = "single" }},
		{"range without bounds", func(c *Config) { c.Mode = "range" }},
		{"range without end", func(c *Config) { c.Mode = "range"; c.Start = 0 }},
		{"inverted range", func(c *Config) { c.Mode = "range"; c.Start = 5; c.End = 2 }},
		{"bad proxy", func(c *Config) { c.Proxy = "http://host:notaport" }},
		{"zero checkpoint bytes", func(c *Config) { c.Checkpoint.Bytes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestValidateRangeFromZero(t *testing.T) {
	cfg := Default()
	cfg.Mode = "range"
	cfg.Start = 0
	cfg.End = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("start=0 end=0 should be valid, got %v", err)
	}
}

func TestLoadFromFileRangeFromZero(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("mode: range\nstart: 0\nend: 1\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Start != 0 || cfg.End != 1 {
		t.Errorf("expected range 0-1, got %d-%d", cfg.Start, cfg.End)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestSelectionPicksTasks(t *testing.T) {
	tasks := []task.Task{
		{Name: "a.bin", URL: "http://example.com/a.bin"},
		{Name: "b.bin", URL: "http://example.com/b.bin"},
		{Name: "c.bin", URL: "http://example.com/c.bin"},
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   []string
	}{
		{"all", func(c *Config) {}, []string{"a.bin", "b.bin", "c.bin"}},
		{"single", func(c *Config) { c.Mode = "single"; c.File = "b.bin" }, []string{"b.bin"}},
		{"range from zero", func(c *Config) { c.Mode = "range"; c.Start = 0; c.End = 1 }, []string{"a.bin", "b.bin"}},
		{"range last entry", func(c *Config) { c.Mode = "range"; c.Start = 2; c.End = 2 }, []string{"c.bin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			sel, err := cfg.Selection()
			if err != nil {
				t.Fatalf("Selection: %v", err)
			}
			got, err := task.Select(tasks, sel)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			var names []string
			for _, tk := range got {
				names = append(names, tk.Name)
			}
			if strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("selected %v, want %v", names, tt.want)
			}
		})
	}
}

func TestSelectionAndPolicy(t *testing.T) {
	cfg := Default()
	cfg.Mode = "Range"
	cfg.Start = 2
	cfg.End = 3
	cfg.Retries = 5

	sel, err := cfg.Selection()
	if err != nil {
		t.Fatalf("Selection: %v", err)
	}
	if sel.Mode != task.ModeRange || sel.Start != 2 || sel.End != 3 {
		t.Errorf("unexpected selection: %+v", sel)
	}

	p := cfg.Policy()
	if p.Retries != 5 || p.Backoff != time.Second || p.MaxBackoff != 30*time.Second {
		t.Errorf("unexpected policy: %+v", p)
	}
}

func TestHTTPOptions(t *testing.T) {
	cfg := Default()
	cfg.Timeout = 3 * time.Second
	cfg.Proxy = "socks5://127.0.0.1"

	opts, err := cfg.HTTPOptions()
	if err != nil {
		t.Fatalf("HTTPOptions: %v", err)
	}
	if opts.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %v", opts.Timeout)
	}
	if opts.Proxy == nil || opts.Proxy.String() != "socks5://127.0.0.1:1080" {
		t.Errorf("unexpected proxy: %v", opts.Proxy)
	}
}
