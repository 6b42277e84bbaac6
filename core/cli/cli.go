package cli

import (
	cliContext "github.com/aether-sd/aether/core/cli/context"
)

var CLI struct {
	cliContext.Context `embed:""`

	Run     RunCMD     `cmd:"" help:"Run the AETHER web UI and API, this is the default command if no other command is specified. Run 'aether run --help' for more information" default:"withargs"`
	Fetch   FetchCMD   `cmd:"" help:"Download a model asset (the VAE by default) trying each mirror in turn"`
	Check   CheckCMD   `cmd:"" help:"Report which of the files needed for generation are present"`
	SecScan SecScanCLI `cmd:"" name:"security-scan" help:"Best-effort scan of the asset repositories on the Hugging Face hub"`
}
