// Package engine defines the boundary to the external conversational engine.
// Intent classification and dialogue management live entirely behind this
// interface; nothing in this repository reimplements them.
package engine

import (
	"context"
	"time"

	"botforge/internal/training"
	"botforge/pkg/types"
)

// Artifact is the opaque compiled output of a training run. It is regenerated
// on every build and immutable afterwards; request handlers only ever read it.
type Artifact struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Empty reports whether the artifact is missing, i.e. training never ran.
func (a Artifact) Empty() bool { return a.ID == "" && a.Path == "" }

// Engine is the opaque capability interface to the conversational engine:
// train compiles declarative data into an artifact, infer answers one
// utterance against it.
type Engine interface {
	// Train compiles data into an artifact rooted under dir. It must either
	// return a non-empty artifact or an error, never both.
	Train(ctx context.Context, data training.Data, dir string) (Artifact, error)

	// Infer routes one utterance through the dialogue engine and returns the
	// bot's replies in order. An engine that requires an artifact returns an
	// error when given an empty one.
	Infer(ctx context.Context, art Artifact, sender, message string) ([]types.BotMessage, error)

	// Close releases engine resources (subprocesses, connections).
	Close() error
}
