package config

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultModelFile  = "z_image_turbo-Q4_K_M.gguf"
	DefaultVAEFile    = "ae.safetensors"
	DefaultLLMFile    = "Qwen3-4B-Q4_K_M.gguf"
	DefaultOutputDir  = "output"
	DefaultBinaryPath = "stable-diffusion.cpp/build/bin/sd"

	DefaultGenerationTimeout   = 10 * time.Minute
	DefaultParallelGenerations = 1
	DefaultAddress             = "0.0.0.0:7860"
)

type ApplicationConfig struct {
	Context context.Context

	// BaseDir anchors every relative default below.
	BaseDir string

	BinaryPath string
	ModelDir   string
	ModelFile  string
	VAEFile    string
	LLMFile    string
	OutputDir  string
	WorkDir    string

	GenerationTimeout   time.Duration
	ParallelGenerations int

	Address        string
	UploadLimitMB  int
	Debug          bool
	OpaqueErrors   bool
	DisableMetrics bool
	DisableWebUI   bool

	AssetManifestFile string
}

type AppOption func(*ApplicationConfig)

func NewApplicationConfig(o ...AppOption) *ApplicationConfig {
	opt := &ApplicationConfig{
		Context:             context.Background(),
		BaseDir:             DefaultBaseDir(),
		ModelFile:           DefaultModelFile,
		VAEFile:             DefaultVAEFile,
		LLMFile:             DefaultLLMFile,
		GenerationTimeout:   DefaultGenerationTimeout,
		ParallelGenerations: DefaultParallelGenerations,
		Address:             DefaultAddress,
		UploadLimitMB:       1,
	}
	for _, oo := range o {
		oo(opt)
	}
	opt.applyDefaults()
	return opt
}

func (o *ApplicationConfig) applyDefaults() {
	if o.BinaryPath == "" {
		o.BinaryPath = filepath.Join(o.BaseDir, DefaultBinaryPath)
	}
	if o.ModelDir == "" {
		o.ModelDir = o.BaseDir
	}
	if o.OutputDir == "" {
		o.OutputDir = filepath.Join(o.BaseDir, DefaultOutputDir)
	}
	if o.WorkDir == "" {
		o.WorkDir = o.BaseDir
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = DefaultGenerationTimeout
	}
	if o.ParallelGenerations < 1 {
		o.ParallelGenerations = DefaultParallelGenerations
	}
}

// DefaultBaseDir is the directory holding the running executable, or the
// working directory when that cannot be determined.
func DefaultBaseDir() string {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func WithContext(ctx context.Context) AppOption {
	return func(o *ApplicationConfig) {
		o.Context = ctx
	}
}

func WithBaseDir(dir string) AppOption {
	return func(o *ApplicationConfig) {
		if dir != "" {
			o.BaseDir = dir
		}
	}
}

func WithBinaryPath(path string) AppOption {
	return func(o *ApplicationConfig) {
		o.BinaryPath = path
	}
}

func WithModelDir(dir string) AppOption {
	return func(o *ApplicationConfig) {
		o.ModelDir = dir
	}
}

// WithModelFiles overrides the diffusion model, VAE and text encoder file
// names. Empty values keep the current name.
func WithModelFiles(model, vae, llm string) AppOption {
	return func(o *ApplicationConfig) {
		if model != "" {
			o.ModelFile = model
		}
		if vae != "" {
			o.VAEFile = vae
		}
		if llm != "" {
			o.LLMFile = llm
		}
	}
}

func WithOutputDir(dir string) AppOption {
	return func(o *ApplicationConfig) {
		o.OutputDir = dir
	}
}

func WithWorkDir(dir string) AppOption {
	return func(o *ApplicationConfig) {
		o.WorkDir = dir
	}
}

func WithGenerationTimeout(d time.Duration) AppOption {
	return func(o *ApplicationConfig) {
		o.GenerationTimeout = d
	}
}

func WithParallelGenerations(n int) AppOption {
	return func(o *ApplicationConfig) {
		o.ParallelGenerations = n
	}
}

func WithAddress(addr string) AppOption {
	return func(o *ApplicationConfig) {
		o.Address = addr
	}
}

func WithUploadLimitMB(limit int) AppOption {
	return func(o *ApplicationConfig) {
		o.UploadLimitMB = limit
	}
}

func WithDebug(debug bool) AppOption {
	return func(o *ApplicationConfig) {
		o.Debug = debug
	}
}

func WithAssetManifestFile(path string) AppOption {
	return func(o *ApplicationConfig) {
		o.AssetManifestFile = path
	}
}

var EnableOpaqueErrors = func(o *ApplicationConfig) {
	o.OpaqueErrors = true
}

var DisableMetricsEndpoint AppOption = func(o *ApplicationConfig) {
	o.DisableMetrics = true
}

var DisableWebUI = func(o *ApplicationConfig) {
	o.DisableWebUI = true
}

// DiffusionModelPath, VAEPath and TextEncoderPath join the configured file
// names onto ModelDir unless they are already absolute.
func (o *ApplicationConfig) DiffusionModelPath() string {
	return o.modelFilePath(o.ModelFile)
}

func (o *ApplicationConfig) VAEPath() string {
	return o.modelFilePath(o.VAEFile)
}

func (o *ApplicationConfig) TextEncoderPath() string {
	return o.modelFilePath(o.LLMFile)
}

func (o *ApplicationConfig) modelFilePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.ModelDir, name)
}
