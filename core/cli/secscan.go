package cli

import (
	"context"
	"errors"

	cliContext "github.com/aether-sd/aether/core/cli/context"
	"github.com/aether-sd/aether/core/config"
	"github.com/aether-sd/aether/pkg/downloader"
	"github.com/mudler/xlog"
)

type SecScanCLI struct {
	AssetManifest string   `env:"AETHER_ASSET_MANIFEST" type:"path" help:"YAML file merged on top of the built-in asset manifest" group:"storage"`
	ToScan        []string `arg:"" optional:"" help:"Asset names to scan, every asset when empty"`
}

func (sscli *SecScanCLI) Run(ctx *cliContext.Context) error {
	xlog.Info("AETHER Security Scanner - This is BEST EFFORT functionality! Currently limited to huggingface repositories!")

	manifest, err := config.LoadAssetManifest(sscli.AssetManifest)
	if err != nil {
		return err
	}

	names := sscli.ToScan
	if len(names) == 0 {
		names = manifest.Names()
	}

	var scanErr error
	for _, name := range names {
		entry, ok := manifest.Get(name)
		if !ok {
			xlog.Warn("unknown asset, skipping", "asset", name)
			continue
		}
		for _, c := range entry.Candidates {
			xlog.Info("scanning candidate", "asset", name, "candidate", c.String())
			scanResults, err := downloader.HuggingFaceScan(context.Background(), nil, c)
			switch {
			case err == nil, errors.Is(err, downloader.ErrNonHuggingFaceFile):
			case errors.Is(err, downloader.ErrUnsafeFilesFound):
				xlog.Error("! WARNING ! A known-vulnerable file is included in this repo!", "asset", name, "candidate", c.String(),
					"clamAV", scanResults.ClamAVInfectedFiles, "pickles", scanResults.DangerousPickles)
				scanErr = errors.Join(scanErr, err)
			default:
				xlog.Warn("scan unavailable", "candidate", c.String(), "error", err)
			}
		}
	}
	if scanErr != nil {
		return scanErr
	}
	xlog.Info("No security warnings were detected for the configured assets. Please note that this is a BEST EFFORT tool, and all issues may not be detected.")
	return nil
}
