package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"botforge/internal/training"
	"botforge/pkg/types"
)

// Stub is an in-process engine used by tests and `--engine stub` dev runs.
// Train serializes a manifest of the data set; Infer answers from the
// domain's declared response templates by exact intent-example match. It is
// deliberately trivial: the point is exercising the pipeline, not NLU.
type Stub struct {
	// FailTrain forces Train to fail, for pipeline abort tests.
	FailTrain bool

	data training.Data
}

// NewStub returns an empty stub engine.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Train(ctx context.Context, data training.Data, dir string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if s.FailTrain {
		return Artifact{}, fmt.Errorf("training rejected by engine")
	}
	if err := data.Validate(); err != nil {
		return Artifact{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, err
	}
	id := uuid.NewString()
	path := filepath.Join(dir, id+".model")
	var b strings.Builder
	fmt.Fprintf(&b, "fingerprint: %s\n", data.Fingerprint())
	for _, block := range data.NLU {
		fmt.Fprintf(&b, "intent %s: %d examples\n", block.Intent, len(block.Utterances()))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return Artifact{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	s.data = data
	return Artifact{
		ID:          id,
		Path:        path,
		Fingerprint: data.Fingerprint(),
		SizeBytes:   info.Size(),
		CreatedAt:   time.Now(),
	}, nil
}

func (s *Stub) Infer(ctx context.Context, art Artifact, sender, message string) ([]types.BotMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if art.Empty() {
		return nil, fmt.Errorf("no model artifact loaded")
	}
	intent := s.classify(message)
	text := s.respond(intent)
	if text == "" {
		return nil, nil
	}
	return []types.BotMessage{{RecipientID: sender, Text: text}}, nil
}

func (s *Stub) Close() error { return nil }

// classify matches the utterance against the training examples, exact
// case-insensitive. Unknown input maps to the first declared intent's
// fallback-less empty answer.
func (s *Stub) classify(message string) string {
	msg := strings.ToLower(strings.TrimSpace(message))
	for _, block := range s.data.NLU {
		for _, u := range block.Utterances() {
			if strings.ToLower(u) == msg {
				return block.Intent
			}
		}
	}
	return ""
}

func (s *Stub) respond(intent string) string {
	if intent == "" {
		return ""
	}
	variants := s.data.Domain.Responses["utter_"+intent]
	if len(variants) == 0 {
		return ""
	}
	return variants[0].Text
}
