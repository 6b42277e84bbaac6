package config

import (
	"os"
)

type AssetKind string

const (
	AssetExecutable     AssetKind = "executable"
	AssetDiffusionModel AssetKind = "model"
	AssetVAE            AssetKind = "VAE"
	AssetTextEncoder    AssetKind = "text encoder"
)

// Asset is one local file a generation depends on. Optional assets change
// the command line when present but never block a generation.
type Asset struct {
	Kind     AssetKind `json:"kind"`
	Path     string    `json:"path"`
	Optional bool      `json:"optional,omitempty"`
}

// Exists is evaluated on every call; nothing is cached between requests.
func (a Asset) Exists() bool {
	info, err := os.Stat(a.Path)
	return err == nil && !info.IsDir()
}

func (o *ApplicationConfig) RequiredAssets() []Asset {
	return []Asset{
		{Kind: AssetExecutable, Path: o.BinaryPath},
		{Kind: AssetDiffusionModel, Path: o.DiffusionModelPath()},
		{Kind: AssetVAE, Path: o.VAEPath()},
		{Kind: AssetTextEncoder, Path: o.TextEncoderPath(), Optional: true},
	}
}

// MissingAssets returns every non-optional asset that is not on disk, in
// declaration order.
func MissingAssets(assets []Asset) []Asset {
	var missing []Asset
	for _, a := range assets {
		if a.Optional {
			continue
		}
		if !a.Exists() {
			missing = append(missing, a)
		}
	}
	return missing
}
