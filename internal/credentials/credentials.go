// Package credentials loads the messaging-channel credentials file. A missing
// file is not an error: it just means no external channels are enabled.
package credentials

import (
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Channels maps channel name (e.g. "twilio", "telegram") to its secrets.
type Channels map[string]map[string]string

// Load reads a credentials YAML file. A missing file yields an empty, valid
// channel set; a malformed file is an error.
func Load(path string) (Channels, error) {
	if path == "" {
		return Channels{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Channels{}, nil
		}
		return nil, err
	}
	var ch Channels
	if err := yaml.Unmarshal(b, &ch); err != nil {
		return nil, err
	}
	if ch == nil {
		ch = Channels{}
	}
	return ch, nil
}

// Enabled lists the channel names that carry at least one secret, sorted.
func (c Channels) Enabled() []string {
	var out []string
	for name, secrets := range c {
		if len(secrets) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
