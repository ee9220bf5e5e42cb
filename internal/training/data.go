package training

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// The on-disk layout follows the external engine's convention:
//
//	<dir>/domain.yml        intents, responses
//	<dir>/data/nlu.yml      example utterances per intent
//	<dir>/data/stories.yml  conversation flows
//	<dir>/data/rules.yml    business rules
//
// The schema is owned by the engine; only the subset needed for pre-training
// validation is modeled here, unknown fields pass through untouched.

// Domain declares the conversational surface: intents and response templates.
type Domain struct {
	Version   string                       `yaml:"version,omitempty"`
	Intents   []string                     `yaml:"intents"`
	Entities  []string                     `yaml:"entities,omitempty"`
	Responses map[string][]ResponseVariant `yaml:"responses,omitempty"`
}

// ResponseVariant is one alternative text for a response template.
type ResponseVariant struct {
	Text string `yaml:"text"`
}

// IntentExamples groups the example utterances declared for one intent.
// Examples arrive as a literal block of "- utterance" lines.
type IntentExamples struct {
	Intent   string `yaml:"intent"`
	Examples string `yaml:"examples"`
}

// Utterances splits the literal example block into individual utterances.
func (ie IntentExamples) Utterances() []string {
	var out []string
	for _, line := range strings.Split(ie.Examples, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		if line != "" && line != "-" {
			out = append(out, line)
		}
	}
	return out
}

// Step is one turn in a story or rule: either an intent or an action.
type Step struct {
	Intent string `yaml:"intent,omitempty"`
	Action string `yaml:"action,omitempty"`
}

// Story is a conversation flow used for dialogue training.
type Story struct {
	Story string `yaml:"story"`
	Steps []Step `yaml:"steps"`
}

// Rule is a business rule: a short flow that always applies.
type Rule struct {
	Rule  string `yaml:"rule"`
	Steps []Step `yaml:"steps"`
}

// Data is the complete Declarative Training Data set for one build.
type Data struct {
	Domain  Domain
	NLU     []IntentExamples
	Stories []Story
	Rules   []Rule
}

type nluFile struct {
	Version string           `yaml:"version,omitempty"`
	NLU     []IntentExamples `yaml:"nlu"`
}

type storiesFile struct {
	Version string  `yaml:"version,omitempty"`
	Stories []Story `yaml:"stories"`
}

type rulesFile struct {
	Version string `yaml:"version,omitempty"`
	Rules   []Rule `yaml:"rules"`
}

// Load reads a training data directory. domain.yml and data/nlu.yml are
// required; stories and rules are optional.
func Load(dir string) (Data, error) {
	var d Data
	if err := readYAML(filepath.Join(dir, "domain.yml"), &d.Domain); err != nil {
		return d, fmt.Errorf("domain: %w", err)
	}
	var nf nluFile
	if err := readYAML(filepath.Join(dir, "data", "nlu.yml"), &nf); err != nil {
		return d, fmt.Errorf("nlu: %w", err)
	}
	d.NLU = nf.NLU
	var sf storiesFile
	if err := readYAML(filepath.Join(dir, "data", "stories.yml"), &sf); err != nil {
		if !os.IsNotExist(err) {
			return d, fmt.Errorf("stories: %w", err)
		}
	}
	d.Stories = sf.Stories
	var rf rulesFile
	if err := readYAML(filepath.Join(dir, "data", "rules.yml"), &rf); err != nil {
		if !os.IsNotExist(err) {
			return d, fmt.Errorf("rules: %w", err)
		}
	}
	d.Rules = rf.Rules
	return d, nil
}

func readYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

// Validate checks internal consistency before anything is handed to the
// engine: at least one intent must exist, every NLU block must carry at least
// one utterance, and every intent referenced anywhere must be declared in the
// domain. The engine re-validates on its own terms; this pass exists so a
// broken data set fails the build before training starts.
func (d Data) Validate() error {
	if len(d.Domain.Intents) == 0 {
		return fmt.Errorf("no intents declared in domain")
	}
	declared := make(map[string]bool, len(d.Domain.Intents))
	for _, it := range d.Domain.Intents {
		declared[it] = true
	}
	if len(d.NLU) == 0 {
		return fmt.Errorf("no training examples present")
	}
	for _, block := range d.NLU {
		if !declared[block.Intent] {
			return fmt.Errorf("nlu examples reference undeclared intent %q", block.Intent)
		}
		if len(block.Utterances()) == 0 {
			return fmt.Errorf("intent %q has no example utterances", block.Intent)
		}
	}
	for _, st := range d.Stories {
		for _, step := range st.Steps {
			if step.Intent != "" && !declared[step.Intent] {
				return fmt.Errorf("story %q references undeclared intent %q", st.Story, step.Intent)
			}
		}
	}
	for _, r := range d.Rules {
		for _, step := range r.Steps {
			if step.Intent != "" && !declared[step.Intent] {
				return fmt.Errorf("rule %q references undeclared intent %q", r.Rule, step.Intent)
			}
		}
	}
	return nil
}

// Fingerprint returns a stable content hash of the data set, used to tag the
// resulting artifact.
func (d Data) Fingerprint() string {
	h := fnv.New64a()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	for _, it := range d.Domain.Intents {
		write(it)
	}
	for _, block := range d.NLU {
		write(block.Intent)
		for _, u := range block.Utterances() {
			write(u)
		}
	}
	for _, st := range d.Stories {
		write(st.Story)
	}
	for _, r := range d.Rules {
		write(r.Rule)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
