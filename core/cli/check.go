package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	cliContext "github.com/aether-sd/aether/core/cli/context"
	"github.com/aether-sd/aether/core/config"
	"github.com/aether-sd/aether/core/services"
	"github.com/charmbracelet/glamour"
	"github.com/mudler/xlog"
)

var ErrAssetsMissing = errors.New("required files are missing")

type CheckCMD struct {
	EngineFlags `embed:""`
}

func (c *CheckCMD) Run(ctx *cliContext.Context) error {
	appConfig := config.NewApplicationConfig(c.EngineFlags.options()...)
	assets := appConfig.RequiredAssets()

	printMarkdown(AssetReport(assets))

	if missing := config.MissingAssets(assets); len(missing) > 0 {
		xlog.Debug("Missing assets", "missing", services.FormatAssets(missing))
		return fmt.Errorf("%w, run 'aether fetch' for the VAE and place the others by hand", ErrAssetsMissing)
	}
	return nil
}

// AssetReport describes every asset as a Markdown table.
func AssetReport(assets []config.Asset) string {
	var b strings.Builder
	b.WriteString("# AETHER assets\n\n")
	b.WriteString("| File | Path | Status |\n|---|---|---|\n")
	for _, a := range assets {
		status := "present"
		switch {
		case a.Exists():
		case a.Optional:
			status = "absent (optional)"
		default:
			status = "**missing**"
		}
		fmt.Fprintf(&b, "| %s | `%s` | %s |\n", a.Kind, a.Path, status)
	}
	return b.String()
}

func printMarkdown(t string) {
	renderMode := "dark"
	if os.Getenv("COLOR") != "" {
		renderMode = os.Getenv("COLOR")
	}

	out, err := glamour.Render(t, renderMode)
	if err == nil && os.Getenv("NO_COLOR") == "" {
		fmt.Println(out)
	} else {
		fmt.Println(t)
	}
}
