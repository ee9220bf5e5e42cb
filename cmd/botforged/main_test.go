package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"botforge/internal/pipeline"
)

func TestStageName(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{pipeline.ErrBuildf("x"), "assembling"},
		{pipeline.ErrTrainingf("x"), "training"},
		{pipeline.ErrLaunch("x", nil), "launching"},
		{errors.New("other"), "unknown"},
	}
	for _, c := range cases {
		if got := stageName(c.err); got != c.want {
			t.Fatalf("stageName(%v)=%q want %q", c.err, got, c.want)
		}
	}
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("port: 5000\ndata_dir: from-file\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fl := &flagSet{configPath: path, port: 5005, dataDir: "from-flag", engineKind: "stub"}
	cfg, err := fl.loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":5005" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if cfg.DataDir != "from-flag" {
		t.Fatalf("data dir=%q", cfg.DataDir)
	}
	if cfg.Engine != "stub" {
		t.Fatalf("engine=%q", cfg.Engine)
	}
}

func TestLoadConfigSkipTraining(t *testing.T) {
	fl := &flagSet{skipTrain: true}
	cfg, err := fl.loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TrainEnabled() {
		t.Fatal("skip-training must disable the training stage")
	}
	if cfg.BuildSpec().Train {
		t.Fatal("build spec must carry train=false")
	}
}

func TestLoadConfigEnvAddr(t *testing.T) {
	t.Setenv("BOTFORGE_ADDR", ":9999")
	fl := &flagSet{}
	cfg, err := fl.loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
}

func TestNewEngineUnknown(t *testing.T) {
	fl := &flagSet{engineKind: "warp-drive"}
	cfg, err := fl.loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := newEngine(cfg, newLogger(false)); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}
