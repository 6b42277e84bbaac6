package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	cliContext "github.com/aether-sd/aether/core/cli/context"
	"github.com/aether-sd/aether/core/config"
	"github.com/aether-sd/aether/pkg/downloader"
	"github.com/aether-sd/aether/pkg/utils"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mudler/xlog"
	"github.com/schollz/progressbar/v3"
)

type FetchCMD struct {
	Asset string `arg:"" optional:"" default:"vae" help:"Name of the asset to download, as listed by --list"`

	EngineFlags `embed:""`

	AssetManifest          string        `env:"AETHER_ASSET_MANIFEST" type:"path" help:"YAML file merged on top of the built-in asset manifest" group:"storage"`
	List                   bool          `help:"List the assets the manifest knows about and exit"`
	Force                  bool          `help:"Download even if a valid file is already in place"`
	Retries                int           `default:"3" help:"Retries of a transient failure against the same mirror" group:"download"`
	TransferTimeout        time.Duration `default:"300s" help:"Time limit of a single transfer" group:"download"`
	CandidateTimeout       time.Duration `default:"320s" help:"Time limit of all attempts against one mirror" group:"download"`
	DisablePredownloadScan bool          `env:"AETHER_DISABLE_PREDOWNLOAD_SCAN" default:"false" help:"If true, disables the best-effort hub security scan before downloading" group:"hardening"`
	NoProgress             bool          `env:"NO_PROGRESS" help:"Log progress periodically instead of drawing a progress bar" group:"download"`
}

func (f *FetchCMD) Run(ctx *cliContext.Context) error {
	manifest, err := config.LoadAssetManifest(f.AssetManifest)
	if err != nil {
		return err
	}

	if f.List {
		for _, name := range manifest.Names() {
			entry, _ := manifest.Get(name)
			fmt.Printf(" - %s: %s (%s)\n", name, entry.Filename, entry.Description)
		}
		return nil
	}

	entry, ok := manifest.Get(f.Asset)
	if !ok {
		if suggestions := suggestAssets(manifest.Names(), f.Asset); len(suggestions) > 0 {
			return fmt.Errorf("unknown asset %q, did you mean: %s", f.Asset, strings.Join(suggestions, ", "))
		}
		return fmt.Errorf("unknown asset %q, available: %s", f.Asset, strings.Join(manifest.Names(), ", "))
	}

	appConfig := config.NewApplicationConfig(f.EngineFlags.options()...)
	dest, err := appConfig.AssetDestination(entry)
	if err != nil {
		return err
	}
	if dest != filepath.Join(appConfig.ModelDir, entry.Filename) {
		xlog.Debug("Asset follows the configured file name", "asset", entry.Name, "filename", entry.Filename, "destination", dest)
	}
	req := entry.FetchRequest(dest)

	status, restart := f.progress(entry.Name)
	fetcher := downloader.NewFetcher(
		downloader.WithForce(f.Force),
		downloader.WithRetries(f.Retries),
		downloader.WithTransferTimeout(f.TransferTimeout),
		downloader.WithCandidateTimeout(f.CandidateTimeout),
		downloader.WithPredownloadScan(!f.DisablePredownloadScan),
		downloader.WithDownloadStatus(status),
		downloader.WithCandidateStart(restart),
	)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	xlog.Info("Fetching asset", "asset", entry.Name, "destination", req.Destination, "candidates", len(req.Candidates))
	path, err := fetcher.Fetch(signalCtx, req)
	if err != nil {
		var exhausted *downloader.ExhaustedError
		if errors.As(err, &exhausted) {
			// The manual instructions are meant for a human, print them as-is.
			fmt.Fprintln(os.Stderr, exhausted.Error())
		}
		return err
	}

	fmt.Printf("%s is ready at %s\n", entry.Name, path)
	return nil
}

// progress returns the transfer status callback and a restart hook that
// clears the ETA and bar position before each candidate.
func (f *FetchCMD) progress(name string) (downloader.StatusFunc, func(downloader.Candidate)) {
	if f.NoProgress {
		logger := utils.NewDownloadLogger(5 * time.Second)
		return logger.Display, func(downloader.Candidate) { logger.Reset() }
	}

	progressBar := progressbar.NewOptions(
		1000,
		progressbar.OptionSetDescription(fmt.Sprintf("downloading %s", name)),
		progressbar.OptionShowBytes(false),
		progressbar.OptionClearOnFinish(),
	)
	status := func(fileName string, current string, total string, percentage float64) {
		v := int(percentage * 10)
		if err := progressBar.Set(v); err != nil {
			xlog.Error("error while updating progress bar", "error", err, "filename", fileName, "value", v)
		}
	}
	restart := func(c downloader.Candidate) {
		progressBar.Reset()
		progressBar.Describe(fmt.Sprintf("downloading %s from %s", name, c.String()))
	}
	return status, restart
}

// suggestAssets returns the names the term fuzzily matches.
func suggestAssets(names []string, term string) []string {
	term = strings.ToLower(term)
	var matches []string
	for _, name := range names {
		lower := strings.ToLower(name)
		if fuzzy.Match(term, lower) || fuzzy.Match(lower, term) {
			matches = append(matches, name)
		}
	}
	return matches
}
