package types

// Dependency is one entry of a Dependency Set: a package name pinned to a
// version constraint. Pinned=false marks a version bundled by the base image
// rather than requested explicitly.
type Dependency struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	Version string `json:"version" yaml:"version" toml:"version"`
	Pinned  bool   `json:"pinned,omitempty" yaml:"pinned,omitempty" toml:"pinned,omitempty"`
}

// CopyEntry maps a source path in the repository snapshot to a destination
// inside the image root.
type CopyEntry struct {
	Src string `json:"src" yaml:"src" toml:"src"`
	Dst string `json:"dst" yaml:"dst" toml:"dst"`
}

// BuildSpec is the full set of instructions for one deployment attempt.
// It is immutable once a pipeline run starts; the pipeline works on a copy.
type BuildSpec struct {
	BaseImage    string       `json:"base_image" yaml:"base_image" toml:"base_image"`
	Dependencies []Dependency `json:"dependencies" yaml:"dependencies" toml:"dependencies"`
	CopySet      []CopyEntry  `json:"copy_set" yaml:"copy_set" toml:"copy_set"`
	// BuildUser runs install-time steps (elevated); RunUser runs the service
	// (restricted). Defaults: root / bot.
	BuildUser string `json:"build_user,omitempty" yaml:"build_user,omitempty" toml:"build_user,omitempty"`
	RunUser   string `json:"run_user,omitempty" yaml:"run_user,omitempty" toml:"run_user,omitempty"`
	// Train enables the training stage between assembly and launch.
	Train bool `json:"train" yaml:"train" toml:"train"`
}

// Clone returns a deep copy so the running pipeline never shares slices with
// the caller's spec.
func (s BuildSpec) Clone() BuildSpec {
	out := s
	out.Dependencies = append([]Dependency(nil), s.Dependencies...)
	out.CopySet = append([]CopyEntry(nil), s.CopySet...)
	return out
}

// ChatRequest is the inbound payload of the REST channel webhook.
type ChatRequest struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// BotMessage is one reply emitted by the conversational engine. The REST
// channel returns a JSON array of these.
type BotMessage struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text,omitempty"`
	Image       string `json:"image,omitempty"`
}

// StatusResponse is a read-only projection of the pipeline state.
type StatusResponse struct {
	State       string `json:"state"`
	AttemptID   string `json:"attempt_id,omitempty"`
	Error       string `json:"error,omitempty"`
	ArtifactID  string `json:"artifact_id,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	UptimeSec   int64  `json:"uptime_sec"`
}
