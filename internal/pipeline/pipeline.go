// Package pipeline sequences one build-deploy attempt:
//
//	PENDING → ASSEMBLING → (TRAINING →)? LAUNCHING → SERVING
//
// Any stage moves to FAILED on error. FAILED is terminal: no retry, no
// rollback, no partial service. Stages run strictly one after another.
package pipeline

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"botforge/internal/assemble"
	"botforge/internal/credentials"
	"botforge/internal/engine"
	"botforge/internal/training"
	"botforge/pkg/types"
)

// State represents the lifecycle state of one attempt.
type State string

const (
	StatePending    State = "pending"
	StateAssembling State = "assembling"
	StateTraining   State = "training"
	StateLaunching  State = "launching"
	StateServing    State = "serving"
	StateFailed     State = "failed"
)

// Options carries everything one attempt needs. The BuildSpec is cloned at
// construction; later mutation by the caller does not affect a running
// attempt.
type Options struct {
	Spec        types.BuildSpec
	DataDir     string
	WorkDir     string
	Engine      engine.Engine
	Credentials credentials.Channels
	Publisher   EventPublisher
	Logger      zerolog.Logger
	// MaxConcurrent bounds in-flight chat requests; a config value, never
	// computed. <=0 falls back to defaultMaxConcurrent.
	MaxConcurrent int
}

const defaultMaxConcurrent = 16

// Pipeline is one build-deploy attempt plus the serving-time request path.
type Pipeline struct {
	opts      Options
	spec      types.BuildSpec
	attemptID string
	pub       EventPublisher
	log       zerolog.Logger
	sem       chan struct{}

	mu        sync.RWMutex
	state     State
	err       string
	image     assemble.Image
	artifact  engine.Artifact
	startTime time.Time
}

// New constructs a pending attempt with a fresh attempt id.
func New(opts Options) *Pipeline {
	pub := opts.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	maxc := opts.MaxConcurrent
	if maxc <= 0 {
		maxc = defaultMaxConcurrent
	}
	return &Pipeline{
		opts:      opts,
		spec:      opts.Spec.Clone(),
		attemptID: uuid.NewString(),
		pub:       pub,
		log:       opts.Logger,
		sem:       make(chan struct{}, maxc),
		state:     StatePending,
		startTime: time.Now(),
	}
}

// AttemptID returns the id assigned to this attempt.
func (p *Pipeline) AttemptID() string { return p.attemptID }

// State returns the current lifecycle state.
func (p *Pipeline) CurrentState() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Artifact returns the trained model artifact, zero until training succeeded.
func (p *Pipeline) Artifact() engine.Artifact {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.artifact
}

// Image returns the assembled image, zero until assembly succeeded.
func (p *Pipeline) Image() assemble.Image {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.image
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.pub.Publish(Event{Name: "state", AttemptID: p.attemptID, Fields: map[string]any{"state": string(s)}})
	p.log.Info().Str("attempt", p.attemptID).Str("state", string(s)).Msg("pipeline state")
}

// fail records err, moves to FAILED and returns err for propagation.
func (p *Pipeline) fail(err error) error {
	p.mu.Lock()
	p.state = StateFailed
	p.err = err.Error()
	p.mu.Unlock()
	p.pub.Publish(Event{Name: "failed", AttemptID: p.attemptID, Fields: map[string]any{"error": err.Error()}})
	p.log.Error().Str("attempt", p.attemptID).Err(err).Msg("pipeline failed")
	return err
}

// Build runs Image Assembly and, when the spec asks for it, Training. It
// must be called exactly once, from state PENDING.
func (p *Pipeline) Build(ctx context.Context) error {
	attemptsTotal.Inc()

	p.setState(StateAssembling)
	start := time.Now()
	img, err := assemble.Run(p.spec, p.opts.WorkDir, p.attemptID)
	observeStage("assemble", start, err)
	if err != nil {
		return p.fail(ErrBuild("image assembly", err))
	}
	p.mu.Lock()
	p.image = img
	p.mu.Unlock()
	p.log.Info().Str("attempt", p.attemptID).Str("root", img.Root).
		Int("deps", len(img.Manifest.Dependencies)).Msg("image assembled")

	if !p.spec.Train {
		return nil
	}

	p.setState(StateTraining)
	start = time.Now()
	art, err := p.train(ctx)
	observeStage("train", start, err)
	if err != nil {
		return p.fail(err)
	}
	p.mu.Lock()
	p.artifact = art
	p.mu.Unlock()
	p.log.Info().Str("attempt", p.attemptID).Str("artifact", art.ID).
		Str("fingerprint", art.Fingerprint).Int64("bytes", art.SizeBytes).Msg("model trained")
	return nil
}

func (p *Pipeline) train(ctx context.Context) (engine.Artifact, error) {
	data, err := training.Load(p.opts.DataDir)
	if err != nil {
		return engine.Artifact{}, ErrTraining("load training data", err)
	}
	if err := data.Validate(); err != nil {
		return engine.Artifact{}, ErrTraining("validate training data", err)
	}
	modelDir := filepath.Join(p.Image().Root, "models")
	art, err := p.opts.Engine.Train(ctx, data, modelDir)
	if err != nil {
		return engine.Artifact{}, ErrTraining("engine training", err)
	}
	if art.Empty() || art.SizeBytes == 0 {
		return engine.Artifact{}, ErrTrainingf("engine returned an empty artifact")
	}
	return art, nil
}

// servable is implemented by engines that run their own child process and
// need to be started before requests flow (the subprocess engine).
type servable interface {
	Serve(ctx context.Context, art engine.Artifact) error
}

// Launch binds addr and transitions to SERVING. Binding an already-bound
// port is a Launch Error; no fallback port is ever chosen. The returned
// listener is handed to the HTTP server by the caller.
func (p *Pipeline) Launch(ctx context.Context, addr string) (net.Listener, error) {
	p.setState(StateLaunching)
	start := time.Now()
	ln, err := p.launch(ctx, addr)
	observeStage("launch", start, err)
	if err != nil {
		return nil, p.fail(err)
	}
	p.setState(StateServing)
	return ln, nil
}

func (p *Pipeline) launch(ctx context.Context, addr string) (net.Listener, error) {
	if p.spec.Train && p.Artifact().Empty() {
		return nil, ErrLaunch("model artifact missing", nil)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ErrLaunch("port already bound: "+addr, err)
	}
	if s, ok := p.opts.Engine.(servable); ok {
		if err := s.Serve(ctx, p.Artifact()); err != nil {
			_ = ln.Close()
			return nil, ErrLaunch("start engine process", err)
		}
	}
	if enabled := p.opts.Credentials.Enabled(); len(enabled) > 0 {
		p.log.Info().Strs("channels", enabled).Msg("messaging channels enabled")
	} else {
		p.log.Info().Msg("no channel credentials, external channels disabled")
	}
	return ln, nil
}

// Run is the whole attempt: Build then Launch.
func (p *Pipeline) Run(ctx context.Context, addr string) (net.Listener, error) {
	if err := p.Build(ctx); err != nil {
		return nil, err
	}
	return p.Launch(ctx, addr)
}

// Chat routes one utterance to the engine. Only valid in SERVING; admission
// is a fixed-size semaphore sized by MaxConcurrent.
func (p *Pipeline) Chat(ctx context.Context, req types.ChatRequest) ([]types.BotMessage, error) {
	p.mu.RLock()
	state := p.state
	art := p.artifact
	p.mu.RUnlock()
	if state != StateServing {
		return nil, notServingError{state: state}
	}
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	default:
		return nil, tooBusyError{}
	}
	return p.opts.Engine.Infer(ctx, art, req.Sender, req.Message)
}

// Ready reports whether the service reached SERVING.
func (p *Pipeline) Ready() bool {
	return p.CurrentState() == StateServing
}

// Status returns a read-only projection for the status endpoint.
func (p *Pipeline) Status() types.StatusResponse {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return types.StatusResponse{
		State:       string(p.state),
		AttemptID:   p.attemptID,
		Error:       p.err,
		ArtifactID:  p.artifact.ID,
		Fingerprint: p.artifact.Fingerprint,
		UptimeSec:   int64(time.Since(p.startTime).Seconds()),
	}
}
