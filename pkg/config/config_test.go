package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sampleConfig struct {
	Addr    string        `envconfig:"ADDR" default:":8080"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
	Name    string        `envconfig:"NAME"`
}

func TestNewReadsEnvFileWithoutOverridingProcessEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	body := "CFGTEST_ADDR=:9999\nCFGTEST_TIMEOUT=2s\nCFGTEST_NAME=from-file\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("CFGTEST_NAME", "from-env")
	t.Cleanup(func() {
		os.Unsetenv("CFGTEST_ADDR")
		os.Unsetenv("CFGTEST_TIMEOUT")
		SetEnvFile("")
	})

	SetEnvFile(path)
	conf, err := New[sampleConfig]("CFGTEST")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf.Addr != ":9999" || conf.Timeout != 2*time.Second {
		t.Fatalf("file values not applied: %+v", conf)
	}
	if conf.Name != "from-env" {
		t.Fatalf("process env should win, got %q", conf.Name)
	}
}

func TestNewMissingExplicitFileFails(t *testing.T) {
	t.Cleanup(func() { SetEnvFile("") })

	SetEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	if _, err := New[sampleConfig]("CFGMISSING"); err == nil {
		t.Fatal("expected error for missing env file")
	}
}

func TestNewDefaults(t *testing.T) {
	t.Setenv(EnvFileVar, "")
	conf, err := New[sampleConfig]("CFGDEFAULT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf.Addr != ":8080" || conf.Timeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", conf)
	}
}
