package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.MaxUploadBytes != 10*1024*1024 {
		t.Fatalf("max_upload_bytes = %d", c.MaxUploadBytes)
	}
	if c.OverlapPolicy != OverlapIgnore || c.ListenAddr != "127.0.0.1:8537" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.OutlierThreshold != 3.5 || c.MinCorrelation != 0.6 {
		t.Fatalf("thresholds = %+v", c)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "max_upload_bytes: 2048\noverlap_policy: Restart\nlog_format: json\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DROPSIGHT_LOG_FORMAT", "text")
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.MaxUploadBytes != 2048 || c.OverlapPolicy != OverlapRestart {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.LogFormat != "text" {
		t.Fatalf("env should override file: %q", c.LogFormat)
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DROPSIGHT_MIN_CORRELATION=0.8\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("DROPSIGHT_MIN_CORRELATION") })
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.MinCorrelation != 0.8 {
		t.Fatalf("min_correlation = %v", c.MinCorrelation)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	chdir(t, t.TempDir())
	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("overlap_policy: sometimes\nmax_upload_bytes: -1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(p)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "overlap_policy") || !strings.Contains(err.Error(), "max_upload_bytes") {
		t.Fatalf("error should list both problems: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	chdir(t, t.TempDir())
	p := filepath.Join(t.TempDir(), "nested", "config.yaml")
	c := &Global{MaxUploadBytes: 4096, ListenAddr: "127.0.0.1:9000", OverlapPolicy: OverlapRestart, LogLevel: "debug", LogFormat: "text", MinCorrelation: 0.7}
	if err := Save(c, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	back, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if back.MaxUploadBytes != 4096 || back.ListenAddr != "127.0.0.1:9000" || back.MinCorrelation != 0.7 {
		t.Fatalf("round trip = %+v", back)
	}
}
