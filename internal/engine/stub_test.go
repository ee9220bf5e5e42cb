package engine

import (
	"context"
	"os"
	"testing"

	"botforge/internal/training"
)

func stubData() training.Data {
	return training.Data{
		Domain: training.Domain{
			Intents: []string{"greet"},
			Responses: map[string][]training.ResponseVariant{
				"utter_greet": {{Text: "Hello!"}},
			},
		},
		NLU: []training.IntentExamples{{Intent: "greet", Examples: "- hi\n- hello"}},
	}
}

func TestStubTrainProducesArtifact(t *testing.T) {
	s := NewStub()
	dir := t.TempDir()
	art, err := s.Train(context.Background(), stubData(), dir)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if art.Empty() || art.SizeBytes == 0 {
		t.Fatalf("artifact: %+v", art)
	}
	if _, err := os.Stat(art.Path); err != nil {
		t.Fatalf("artifact file: %v", err)
	}
	if art.Fingerprint == "" {
		t.Fatal("fingerprint unset")
	}
}

func TestStubTrainRejectsInvalidData(t *testing.T) {
	s := NewStub()
	if _, err := s.Train(context.Background(), training.Data{}, t.TempDir()); err == nil {
		t.Fatal("expected validation error for empty data")
	}
}

func TestStubTrainFailToggle(t *testing.T) {
	s := NewStub()
	s.FailTrain = true
	if _, err := s.Train(context.Background(), stubData(), t.TempDir()); err == nil {
		t.Fatal("expected forced training failure")
	}
}

func TestStubInferAnswersKnownUtterance(t *testing.T) {
	s := NewStub()
	art, err := s.Train(context.Background(), stubData(), t.TempDir())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	msgs, err := s.Infer(context.Background(), art, "alice", "hi")
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "Hello!" || msgs[0].RecipientID != "alice" {
		t.Fatalf("msgs=%+v", msgs)
	}
}

func TestStubInferUnknownUtterance(t *testing.T) {
	s := NewStub()
	art, err := s.Train(context.Background(), stubData(), t.TempDir())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	msgs, err := s.Infer(context.Background(), art, "alice", "quantum flux")
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no reply, got %+v", msgs)
	}
}

func TestStubInferRequiresArtifact(t *testing.T) {
	s := NewStub()
	if _, err := s.Infer(context.Background(), Artifact{}, "a", "hi"); err == nil {
		t.Fatal("expected error for empty artifact")
	}
}
