package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/aether-sd/aether/core/application"
	cliContext "github.com/aether-sd/aether/core/cli/context"
	"github.com/aether-sd/aether/core/config"
	"github.com/aether-sd/aether/core/http"
	"github.com/aether-sd/aether/pkg/signals"
	"github.com/mudler/xlog"
)

// EngineFlags locate the engine binary and the files it loads. They are
// shared by every command that needs to know where the assets live.
type EngineFlags struct {
	BaseDir    string `env:"AETHER_BASE_DIR" type:"path" help:"Directory every relative default is resolved against (defaults to the executable's directory)" group:"storage"`
	BinaryPath string `env:"SD_CPP_BINARY_PATH" type:"path" help:"Path to the stable-diffusion.cpp sd executable (defaults to <base>/stable-diffusion.cpp/build/bin/sd)" group:"engine"`
	ModelPath  string `env:"MODEL_PATH" type:"path" help:"Directory holding the model files (defaults to <base>)" group:"storage"`
	ModelFile  string `env:"AETHER_MODEL_FILE" default:"${model_file}" help:"Diffusion model file name, or an absolute path" group:"storage"`
	VAEFile    string `env:"AETHER_VAE_FILE" default:"${vae_file}" help:"VAE file name, or an absolute path" group:"storage"`
	LLMFile    string `env:"AETHER_LLM_FILE" default:"${llm_file}" help:"Text encoder file name, or an absolute path. Optional" group:"storage"`
}

func (f EngineFlags) options() []config.AppOption {
	return []config.AppOption{
		config.WithBaseDir(f.BaseDir),
		config.WithBinaryPath(f.BinaryPath),
		config.WithModelDir(f.ModelPath),
		config.WithModelFiles(f.ModelFile, f.VAEFile, f.LLMFile),
	}
}

type RunCMD struct {
	EngineFlags `embed:""`

	OutputDir           string        `env:"AETHER_OUTPUT_DIR" type:"path" help:"Directory generated images are written to (defaults to <base>/output)" group:"storage"`
	WorkDir             string        `env:"AETHER_WORK_DIR" type:"path" help:"Working directory of the engine process (defaults to <base>)" group:"engine"`
	GenerationTimeout   time.Duration `env:"AETHER_GENERATION_TIMEOUT" default:"10m" help:"Wall-clock limit for a single generation" group:"engine"`
	ParallelGenerations int           `env:"AETHER_PARALLEL_GENERATIONS" default:"1" help:"How many engine processes may run at once" group:"engine"`
	AssetManifest       string        `env:"AETHER_ASSET_MANIFEST" type:"path" help:"YAML file merged on top of the built-in asset manifest" group:"storage"`

	Address                string `env:"AETHER_ADDRESS,ADDRESS" help:"Bind address for the server, overrides --port" group:"api"`
	Port                   int    `env:"PORT" default:"7860" help:"Port to listen on, on all interfaces" group:"api"`
	UploadLimit            int    `env:"AETHER_UPLOAD_LIMIT,UPLOAD_LIMIT" default:"1" help:"Request body limit in MB" group:"api"`
	DisableWebUI           bool   `env:"AETHER_DISABLE_WEBUI,DISABLE_WEBUI" default:"false" help:"Only expose the JSON API, without the web interface" group:"api"`
	DisableMetricsEndpoint bool   `env:"AETHER_DISABLE_METRICS_ENDPOINT,DISABLE_METRICS_ENDPOINT" default:"false" help:"Disable the /metrics endpoint" group:"api"`
	OpaqueErrors           bool   `env:"AETHER_OPAQUE_ERRORS" default:"false" help:"If true, error responses of the HTTP layer are replaced with blank 500 errors" group:"hardening"`
}

// ListenAddress is Address when set, otherwise every interface on Port.
func (r *RunCMD) ListenAddress() string {
	if r.Address != "" {
		return r.Address
	}
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(r.Port))
}

func (r *RunCMD) appOptions(ctx *cliContext.Context, appCtx context.Context) []config.AppOption {
	opts := append(r.EngineFlags.options(),
		config.WithContext(appCtx),
		config.WithOutputDir(r.OutputDir),
		config.WithWorkDir(r.WorkDir),
		config.WithGenerationTimeout(r.GenerationTimeout),
		config.WithParallelGenerations(r.ParallelGenerations),
		config.WithAddress(r.ListenAddress()),
		config.WithUploadLimitMB(r.UploadLimit),
		config.WithAssetManifestFile(r.AssetManifest),
		config.WithDebug(ctx.Debug || (ctx.LogLevel != nil && *ctx.LogLevel == "debug")),
	)

	if r.DisableWebUI {
		opts = append(opts, config.DisableWebUI)
	}
	if r.DisableMetricsEndpoint {
		opts = append(opts, config.DisableMetricsEndpoint)
	}
	if r.OpaqueErrors {
		opts = append(opts, config.EnableOpaqueErrors)
	}
	return opts
}

func (r *RunCMD) Run(ctx *cliContext.Context) error {
	// Cancelled on shutdown, which also stops a running engine.
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.New(r.appOptions(ctx, appCtx)...)
	if err != nil {
		return fmt.Errorf("failed basic startup tasks with error %w", err)
	}

	appHTTP, err := http.API(app)
	if err != nil {
		xlog.Error("error during HTTP App construction", "error", err)
		return err
	}

	address := app.ApplicationConfig().Address
	xlog.Info("AETHER is started and running", "address", address)

	signals.RegisterGracefulTerminationHandler(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := appHTTP.Shutdown(shutdownCtx); err != nil {
			xlog.Error("error while shutting down the HTTP server", "error", err)
		}
		if err := app.Shutdown(shutdownCtx); err != nil {
			xlog.Error("error while shutting down the application", "error", err)
		}
	})

	if err := appHTTP.Start(address); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		return err
	}
	return nil
}
