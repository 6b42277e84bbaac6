package application

import (
	"fmt"
	"os"

	"github.com/aether-sd/aether/core/config"
	"github.com/aether-sd/aether/core/services"
	"github.com/aether-sd/aether/internal"
	"github.com/mudler/xlog"
)

func New(opts ...config.AppOption) (*Application, error) {
	options := config.NewApplicationConfig(opts...)
	application := newApplication(options)

	xlog.Info("Starting AETHER", "version", internal.PrintableVersion(), "baseDir", options.BaseDir)
	xlog.Debug("Engine configuration",
		"binary", options.BinaryPath,
		"model", options.DiffusionModelPath(),
		"vae", options.VAEPath(),
		"llm", options.TextEncoderPath(),
		"workDir", options.WorkDir,
		"timeout", options.GenerationTimeout,
		"parallel", options.ParallelGenerations)

	if options.OutputDir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	if err := os.MkdirAll(options.OutputDir, 0750); err != nil {
		return nil, fmt.Errorf("unable to create output directory: %w", err)
	}

	if !options.DisableMetrics {
		metricsService, err := services.NewMetricsService()
		if err != nil {
			return nil, fmt.Errorf("unable to start metrics: %w", err)
		}
		application.metricsService = metricsService
	}

	application.generationService = services.NewGenerationService(options, application.metricsService)

	// Missing files are reported, not fatal: they may be fetched while the
	// server is running.
	if missing := application.generationService.MissingAssets(); len(missing) > 0 {
		xlog.Warn("Required files are missing, generation will fail until they are in place",
			"missing", services.FormatAssets(missing))
		fetchHints(options, missing)
	}

	return application, nil
}

// fetchHints points at the fetch command for every missing asset the
// manifest knows how to download.
func fetchHints(options *config.ApplicationConfig, missing []config.Asset) {
	manifest, err := config.LoadAssetManifest(options.AssetManifestFile)
	if err != nil {
		xlog.Warn("Cannot load the asset manifest", "error", err)
		return
	}
	for _, a := range missing {
		for _, name := range manifest.Names() {
			entry, _ := manifest.Get(name)
			if dest, err := options.AssetDestination(entry); err == nil && dest == a.Path {
				xlog.Info("Missing file can be downloaded", "file", a.Path, "command", "aether fetch "+name)
				break
			}
		}
	}
}
