package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" || cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Pages.IdleTTL != 30*time.Minute || cfg.Pages.SweepInterval != time.Minute {
		t.Fatalf("unexpected page defaults %+v", cfg.Pages)
	}
	if cfg.Labels.Current != "In progress" {
		t.Fatalf("unexpected labels %+v", cfg.Labels)
	}
	if !strings.Contains(cfg.Journal.DSN, "mode=memory") {
		t.Fatalf("journal should be memory-resident by default, got %s", cfg.Journal.DSN)
	}
}

func TestFromYAMLAppliesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  addr: 0.0.0.0:9000\n  base_path: api\npages:\n  idle_ttl: 2h\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("addr not read: %s", cfg.Server.Addr)
	}
	if cfg.Server.BasePath != "/api" {
		t.Fatalf("base path not normalized: %s", cfg.Server.BasePath)
	}
	if cfg.Pages.IdleTTL != 2*time.Hour {
		t.Fatalf("idle ttl not read: %s", cfg.Pages.IdleTTL)
	}
	if cfg.Log.Level != "info" || cfg.Labels.New != "New" {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Log, cfg.Labels)
	}
}

func TestFromTOML(t *testing.T) {
	data := `
[server]
addr = "127.0.0.1:7000"

[log]
level = "debug"
format = "json"

[labels]
new = "Todo"

[[webhooks]]
url = "https://hooks.example.com/board"
events = ["task.added", "task.deleted"]
`
	cfg, err := FromTOML([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7000" || cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Labels.New != "Todo" || cfg.Labels.Archived != "Archived" {
		t.Fatalf("unexpected labels %+v", cfg.Labels)
	}
	if len(cfg.Webhooks) != 1 || len(cfg.Webhooks[0].Events) != 2 {
		t.Fatalf("unexpected webhooks %+v", cfg.Webhooks)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"level":    "log:\n  level: loud\n",
		"format":   "log:\n  format: xml\n",
		"webhook":  "webhooks:\n  - url: ftp://example.com\n",
		"no url":   "webhooks:\n  - events: [task.added]\n",
		"ttl":      "pages:\n  idle_ttl: 1ms\n",
		"sweep":    "pages:\n  idle_ttl: 1m\n  sweep_interval: 2m\n",
		"label":    "labels:\n  new: " + strings.Repeat("x", 80) + "\n",
		"max open": "pages:\n  max_open: -1\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "taskboard.yml")
	if err := os.WriteFile(yml, []byte("log:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(yml)
	if err != nil || cfg.Log.Level != "warn" {
		t.Fatalf("load yaml: %v %+v", err, cfg)
	}
	tml := filepath.Join(dir, "taskboard.toml")
	if err := os.WriteFile(tml, []byte("[log]\nlevel = \"error\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(tml)
	if err != nil || cfg.Log.Level != "error" {
		t.Fatalf("load toml: %v %+v", err, cfg)
	}
	if _, err := Load(filepath.Join(dir, "missing.yml")); err == nil {
		t.Fatalf("expected missing file error")
	}
	cfg, err = LoadOptional(filepath.Join(dir, "missing.yml"))
	if err != nil || cfg.Server.Addr == "" {
		t.Fatalf("load optional: %v", err)
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("generated default invalid: %v", err)
	}
	out, err := cfg.YAML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "idle_ttl: 30m0s") {
		t.Fatalf("expected rendered duration, got:\n%s", out)
	}
}
