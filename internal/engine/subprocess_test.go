package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"botforge/internal/training"
)

// fakeEngineScript handles the `train` subcommand the way the real engine
// CLI does: it writes a model file under --out.
const fakeEngineScript = `#!/bin/sh
cmd="$1"; shift
case "$cmd" in
train)
  out=""
  while [ $# -gt 0 ]; do
    if [ "$1" = "--out" ]; then out="$2"; shift; fi
    shift
  done
  [ -n "$out" ] || exit 1
  printf 'model-bytes' > "$out/model.tar.gz"
  ;;
*)
  exit 1
  ;;
esac
`

func writeFakeEngine(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-engine")
	if err := os.WriteFile(path, []byte(fakeEngineScript), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestNewSubprocessEmptyCommand(t *testing.T) {
	if _, err := NewSubprocess(SubprocessConfig{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestSubprocessTrain(t *testing.T) {
	s, err := NewSubprocess(SubprocessConfig{
		Command: []string{writeFakeEngine(t)},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	out := t.TempDir()
	art, err := s.Train(context.Background(), stubData(), out)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if art.Empty() || art.SizeBytes == 0 {
		t.Fatalf("artifact: %+v", art)
	}
	if filepath.Dir(art.Path) != out {
		t.Fatalf("artifact outside out dir: %s", art.Path)
	}
}

func TestSubprocessTrainRejectsInvalidData(t *testing.T) {
	s, err := NewSubprocess(SubprocessConfig{
		Command: []string{writeFakeEngine(t)},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()
	if _, err := s.Train(context.Background(), training.Data{}, t.TempDir()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSubprocessInferWithoutServe(t *testing.T) {
	s, err := NewSubprocess(SubprocessConfig{
		Command: []string{writeFakeEngine(t)},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()
	if _, err := s.Infer(context.Background(), Artifact{}, "a", "hi"); err == nil {
		t.Fatal("expected error before Serve")
	}
}

func TestSubprocessCloseIdempotent(t *testing.T) {
	s, err := NewSubprocess(SubprocessConfig{
		Command: []string{writeFakeEngine(t)},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
