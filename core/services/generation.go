package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aether-sd/aether/core/backend"
	"github.com/aether-sd/aether/core/config"
	"github.com/aether-sd/aether/core/schema"
	"github.com/mudler/xlog"
	"golang.org/x/sync/semaphore"
)

// MaxDisplaySeed is the upper bound of the seed shown to the user when the
// engine picks its own.
const MaxDisplaySeed int64 = 1<<31 - 1

// ResolvedSeed separates what the engine receives from what the user sees.
// They differ only in the random branch.
type ResolvedSeed struct {
	Argument int64
	Display  int64
	Random   bool
}

// ResolveSeed applies the seed policy: an explicit non-negative seed is used
// as-is; random mode or a negative seed sends the engine the random sentinel
// and reports an independent draw from [0, MaxDisplaySeed].
func ResolveSeed(req schema.GenerationRequest, draw func() int64) ResolvedSeed {
	if req.RandomSeed || req.Seed < 0 {
		return ResolvedSeed{Argument: backend.RandomSeed, Display: draw(), Random: true}
	}
	return ResolvedSeed{Argument: req.Seed, Display: req.Seed}
}

func drawDisplaySeed() int64 {
	return rand.Int64N(MaxDisplaySeed + 1)
}

type GenerationService struct {
	appConfig *config.ApplicationConfig
	metrics   *MetricsService
	gate      *semaphore.Weighted

	drawSeed func() int64
	now      func() time.Time
}

// NewGenerationService builds the orchestrator. metrics may be nil.
func NewGenerationService(appConfig *config.ApplicationConfig, metrics *MetricsService) *GenerationService {
	return &GenerationService{
		appConfig: appConfig,
		metrics:   metrics,
		gate:      semaphore.NewWeighted(int64(appConfig.ParallelGenerations)),
		drawSeed:  drawDisplaySeed,
		now:       time.Now,
	}
}

// MissingAssets checks the filesystem on every call.
func (s *GenerationService) MissingAssets() []config.Asset {
	return config.MissingAssets(s.appConfig.RequiredAssets())
}

// Generate runs one generation end to end and never returns an error: every
// failure is folded into the result message. ctx only covers the wait for a
// free slot. A started engine is stopped by the generation timeout or by the
// application context, never by the client going away.
func (s *GenerationService) Generate(ctx context.Context, req schema.GenerationRequest) schema.GenerationResult {
	start := time.Now()
	result := s.generate(ctx, req)
	if s.metrics != nil {
		s.metrics.ObserveGeneration(result.Error, time.Since(start))
	}
	return result
}

func (s *GenerationService) generate(ctx context.Context, req schema.GenerationRequest) schema.GenerationResult {
	if missing := s.MissingAssets(); len(missing) > 0 {
		return failure(schema.ErrorKindMissingAsset, "Error: missing required files:\n"+FormatAssets(missing))
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return failure(schema.ErrorKindInvalidInput, "Error: please enter a prompt")
	}

	resolution, err := config.LookupResolution(req.ResolutionCategory, req.Resolution)
	if err != nil {
		return failure(schema.ErrorKindInvalidInput, "Error: "+err.Error())
	}

	if req.Steps < config.MinSteps || req.Steps > config.MaxSteps {
		return failure(schema.ErrorKindInvalidInput,
			fmt.Sprintf("Error: steps must be between %d and %d, got %d", config.MinSteps, config.MaxSteps, req.Steps))
	}

	seed := ResolveSeed(req, s.drawSeed)

	outputDir, err := filepath.Abs(s.appConfig.OutputDir)
	if err != nil {
		return failure(schema.ErrorKindSubprocessFailure, "Error: "+err.Error())
	}
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return failure(schema.ErrorKindSubprocessFailure, fmt.Sprintf("Error: cannot create output directory: %v", err))
	}

	imageReq := backend.ImageRequest{
		Binary:         s.appConfig.BinaryPath,
		DiffusionModel: s.appConfig.DiffusionModelPath(),
		VAE:            s.appConfig.VAEPath(),
		Prompt:         prompt,
		Width:          resolution.Width,
		Height:         resolution.Height,
		Steps:          req.Steps,
		Seed:           seed.Argument,
		Output:         filepath.Join(outputDir, backend.OutputFilename(s.now())),
		WorkDir:        s.appConfig.WorkDir,
	}
	if textEncoder := s.appConfig.TextEncoderPath(); fileExists(textEncoder) {
		imageReq.TextEncoder = textEncoder
	}

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return failure(schema.ErrorKindSubprocessFailure, "Error: request cancelled while waiting for a running generation")
	}
	defer s.gate.Release(1)

	if s.metrics != nil {
		s.metrics.GenerationStarted()
		defer s.metrics.GenerationFinished()
	}

	xlog.Info("Generating image", "resolution", resolution.Label, "steps", req.Steps, "seed", seed.Argument, "output", imageReq.Output)

	res, err := backend.RunImageGeneration(s.engineContext(), imageReq, s.appConfig.GenerationTimeout)
	switch {
	case errors.Is(err, backend.ErrGenerationTimeout):
		return failure(schema.ErrorKindTimeout,
			fmt.Sprintf("Error: generation timed out (exceeded %s)", s.appConfig.GenerationTimeout))
	case err != nil:
		xlog.Error("Image generation could not run", "error", err)
		return failure(schema.ErrorKindSubprocessFailure, "Error: "+err.Error())
	}

	// The exit code is not trusted; only the file on disk counts.
	if !fileExists(imageReq.Output) {
		detail := res.Stderr
		if detail == "" {
			detail = res.Stdout
		}
		xlog.Warn("Image generation produced no output", "exitCode", res.ExitCode, "output", imageReq.Output)
		return failure(schema.ErrorKindSubprocessFailure, "Generation failed:\n"+detail)
	}

	xlog.Info("Image generated", "output", imageReq.Output, "duration", res.Duration)

	message := fmt.Sprintf("Generation succeeded!\nSeed used: %d", seed.Display)
	if seed.Random {
		message += " (random, informational only)"
	}
	display := seed.Display
	return schema.GenerationResult{
		ImagePath:  imageReq.Output,
		Message:    message,
		Seed:       &display,
		SeedRandom: seed.Random,
	}
}

func (s *GenerationService) engineContext() context.Context {
	if s.appConfig.Context != nil {
		return s.appConfig.Context
	}
	return context.Background()
}

func failure(kind schema.ErrorKind, message string) schema.GenerationResult {
	return schema.GenerationResult{Message: message, Error: kind}
}

// FormatAssets renders one "<kind>: <path>" line per asset.
func FormatAssets(assets []config.Asset) string {
	lines := make([]string, 0, len(assets))
	for _, a := range assets {
		lines = append(lines, fmt.Sprintf("%s: %s", a.Kind, a.Path))
	}
	return strings.Join(lines, "\n")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
