// Package assemble implements the Image Assembly stage: it materializes a
// filesystem image from a BuildSpec — base layer, resolved dependency set,
// overlaid copy set. No side effects outside the image root.
package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"botforge/internal/common/fsutil"
	"botforge/pkg/types"
)

// baseImageBundles records dependencies known to ship inside a base runtime
// image. Explicit pins in the BuildSpec always override these; see Resolve.
var baseImageBundles = map[string][]types.Dependency{
	"rasa/rasa:3.6.4":     {{Name: "rasa", Version: "3.6.4"}},
	"rasa/rasa:3.6.2":     {{Name: "rasa", Version: "3.6.2"}},
	"rasa/rasa-sdk:3.6.2": {{Name: "rasa-sdk", Version: "3.6.2"}},
	"python:3.10-slim":    nil,
	"python:3.9-slim":     nil,
}

// ResolvedDependency is one installed package with its provenance recorded.
type ResolvedDependency struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// Origin is "pin" for explicitly requested versions, "base" for versions
	// bundled by the base image.
	Origin string `yaml:"origin"`
}

// Manifest describes the assembled image. It is written into the image root
// and read back by tests and the status endpoint.
type Manifest struct {
	BaseImage    string               `yaml:"base_image"`
	BuildUser    string               `yaml:"build_user"`
	RunUser      string               `yaml:"run_user"`
	Dependencies []ResolvedDependency `yaml:"dependencies"`
	CreatedAt    time.Time            `yaml:"created_at"`
}

// Image is the product of a successful assembly: a staging root plus its
// manifest.
type Image struct {
	Root     string
	Manifest Manifest
}

// ManifestName is the manifest file written at the image root.
const ManifestName = "manifest.yml"

// Resolve merges the base image's bundled dependencies with the spec's
// explicit pins into one consistent set. Policy: an explicit pin always wins
// over a base-bundled version of the same package; two explicit pins
// disagreeing on a version are an error. Returned set is sorted by name.
func Resolve(spec types.BuildSpec) ([]ResolvedDependency, error) {
	byName := map[string]ResolvedDependency{}
	for _, d := range baseImageBundles[spec.BaseImage] {
		byName[d.Name] = ResolvedDependency{Name: d.Name, Version: d.Version, Origin: "base"}
	}
	for _, d := range spec.Dependencies {
		if d.Name == "" {
			return nil, fmt.Errorf("dependency with empty name")
		}
		if prev, ok := byName[d.Name]; ok && prev.Origin == "pin" && prev.Version != d.Version {
			return nil, fmt.Errorf("conflicting pins for %s: %s vs %s", d.Name, prev.Version, d.Version)
		}
		byName[d.Name] = ResolvedDependency{Name: d.Name, Version: d.Version, Origin: "pin"}
	}
	out := make([]ResolvedDependency, 0, len(byName))
	for _, d := range byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Run assembles the image under workDir. On any failure the partial image
// root is removed so a failed build leaves no image behind.
func Run(spec types.BuildSpec, workDir, attemptID string) (Image, error) {
	deps, err := Resolve(spec)
	if err != nil {
		return Image{}, err
	}
	root := filepath.Join(workDir, "image-"+attemptID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Image{}, err
	}
	img, err := populate(spec, deps, root)
	if err != nil {
		_ = os.RemoveAll(root)
		return Image{}, err
	}
	return img, nil
}

func populate(spec types.BuildSpec, deps []ResolvedDependency, root string) (Image, error) {
	// Overlay the copy set. Every source must exist in the snapshot.
	for _, ce := range spec.CopySet {
		src, err := fsutil.ExpandHome(ce.Src)
		if err != nil {
			return Image{}, err
		}
		if !fsutil.PathExists(src) {
			return Image{}, fmt.Errorf("copy source does not exist: %s", ce.Src)
		}
		dst := filepath.Join(root, filepath.Clean("/"+ce.Dst))
		if err := fsutil.CopyTree(src, dst); err != nil {
			return Image{}, fmt.Errorf("copy %s: %w", ce.Src, err)
		}
	}
	m := Manifest{
		BaseImage:    spec.BaseImage,
		BuildUser:    spec.BuildUser,
		RunUser:      spec.RunUser,
		Dependencies: deps,
		CreatedAt:    time.Now(),
	}
	b, err := yaml.Marshal(m)
	if err != nil {
		return Image{}, err
	}
	if err := os.WriteFile(filepath.Join(root, ManifestName), b, 0o644); err != nil {
		return Image{}, err
	}
	return Image{Root: root, Manifest: m}, nil
}

// LoadManifest reads the manifest back from an image root.
func LoadManifest(root string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(filepath.Join(root, ManifestName))
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, err
	}
	return m, nil
}
