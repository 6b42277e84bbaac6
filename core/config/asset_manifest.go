package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"dario.cat/mergo"
	"github.com/aether-sd/aether/pkg/downloader"
	"github.com/aether-sd/aether/pkg/utils"
	"gopkg.in/yaml.v3"
)

//go:embed asset_manifest.yaml
var embeddedAssetManifest []byte

// AssetEntry is one fetchable file and its ordered download candidates.
type AssetEntry struct {
	Name         string                 `yaml:"name,omitempty"`
	Description  string                 `yaml:"description,omitempty"`
	Filename     string                 `yaml:"filename,omitempty"`
	Kind         AssetKind              `yaml:"kind,omitempty"`
	ManualSource string                 `yaml:"manual_source,omitempty"`
	MinSize      int64                  `yaml:"min_size,omitempty"`
	Candidates   []downloader.Candidate `yaml:"candidates,omitempty"`
}

type AssetManifest struct {
	Defaults AssetEntry   `yaml:"defaults,omitempty"`
	Assets   []AssetEntry `yaml:"assets"`
}

// LoadAssetManifest returns the built-in manifest, with the entries of the
// file at overridePath merged on top when it is set. Override entries
// replace the non-empty fields of the built-in entry with the same name and
// new names are appended, falling back to the built-in defaults.
func LoadAssetManifest(overridePath string) (*AssetManifest, error) {
	m, err := parseAssetManifest(embeddedAssetManifest)
	if err == nil {
		err = m.validate()
	}
	if err != nil {
		return nil, fmt.Errorf("built-in asset manifest: %w", err)
	}
	if overridePath == "" {
		return m, nil
	}

	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read asset manifest %q: %w", overridePath, err)
	}
	override, err := parseAssetManifest(data)
	if err != nil {
		return nil, fmt.Errorf("asset manifest %q: %w", overridePath, err)
	}

	for _, o := range override.Assets {
		existing := m.index(o.Name)
		if existing < 0 {
			if err := mergo.Merge(&o, m.Defaults); err != nil {
				return nil, fmt.Errorf("cannot merge asset %q: %w", o.Name, err)
			}
			m.Assets = append(m.Assets, o)
			continue
		}
		if err := mergo.Merge(&m.Assets[existing], o, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("cannot merge asset %q: %w", o.Name, err)
		}
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("asset manifest %q: %w", overridePath, err)
	}
	return m, nil
}

func parseAssetManifest(data []byte) (*AssetManifest, error) {
	m := &AssetManifest{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	for i := range m.Assets {
		if err := mergo.Merge(&m.Assets[i], m.Defaults); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// validate also names entries without a filename after the file their
// first candidate points to.
func (m *AssetManifest) validate() error {
	for i := range m.Assets {
		a := &m.Assets[i]
		if a.Filename == "" && len(a.Candidates) > 0 {
			name, err := a.Candidates[0].FilenameFromUrl()
			if err != nil {
				return fmt.Errorf("asset %q: %w", a.Name, err)
			}
			a.Filename = name
		}
		if err := a.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e AssetEntry) validate() error {
	if e.Name == "" {
		return errors.New("asset without a name")
	}
	if e.Filename == "" {
		return fmt.Errorf("asset %q: filename is required", e.Name)
	}
	if filepath.IsAbs(e.Filename) || filepath.Base(e.Filename) != e.Filename {
		return fmt.Errorf("asset %q: filename %q must be a bare file name", e.Name, e.Filename)
	}
	if len(e.Candidates) == 0 {
		return fmt.Errorf("asset %q: no candidates", e.Name)
	}
	switch e.Kind {
	case "", AssetDiffusionModel, AssetVAE, AssetTextEncoder:
	default:
		return fmt.Errorf("asset %q: unknown kind %q", e.Name, e.Kind)
	}
	return nil
}

func (m *AssetManifest) index(name string) int {
	for i, a := range m.Assets {
		if a.Name == name {
			return i
		}
	}
	return -1
}

func (m *AssetManifest) Get(name string) (AssetEntry, bool) {
	i := m.index(name)
	if i < 0 {
		return AssetEntry{}, false
	}
	return m.Assets[i], true
}

func (m *AssetManifest) Names() []string {
	names := make([]string, 0, len(m.Assets))
	for _, a := range m.Assets {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

// Destination is where the entry lands inside dir.
func (e AssetEntry) Destination(dir string) (string, error) {
	if err := utils.VerifyPath(e.Filename, dir); err != nil {
		return "", fmt.Errorf("asset %q: %w", e.Name, err)
	}
	return filepath.Join(dir, e.Filename), nil
}

func (e AssetEntry) FetchRequest(dest string) downloader.FetchRequest {
	minSize := e.MinSize
	if minSize <= 0 {
		minSize = downloader.DefaultMinValidSize
	}
	return downloader.FetchRequest{
		Candidates:   e.Candidates,
		Destination:  dest,
		MinValidSize: minSize,
		ManualSource: e.ManualSource,
	}
}

// AssetDestination is where the entry is written for this configuration.
// An entry of a kind the engine loads lands on the configured path of that
// kind, so a renamed VAE is fetched under the name generations look for.
func (o *ApplicationConfig) AssetDestination(e AssetEntry) (string, error) {
	if e.Kind != "" {
		for _, a := range o.RequiredAssets() {
			if a.Kind == e.Kind {
				return a.Path, nil
			}
		}
	}
	return e.Destination(o.ModelDir)
}
