package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/xlog"
)

// CFGScale is fixed for the turbo model, which is distilled for guidance 1.
const CFGScale = "1.0"

// RandomSeed asks the engine to pick its own seed.
const RandomSeed int64 = -1

// WaitDelay bounds how long we wait for the engine's output pipes to close
// once it has been killed.
var WaitDelay = 5 * time.Second

var ErrGenerationTimeout = errors.New("image generation timed out")

// ImageRequest is everything needed to run the engine once.
type ImageRequest struct {
	Binary         string
	DiffusionModel string
	VAE            string
	// TextEncoder is optional; --llm is only passed when it is set.
	TextEncoder string
	Prompt      string
	Width       int
	Height      int
	Steps       int
	Seed        int64
	Output      string
	WorkDir     string
}

type ImageResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// BuildImageArgs returns the engine arguments, without the binary itself.
func BuildImageArgs(r ImageRequest) []string {
	args := []string{
		"--diffusion-model", r.DiffusionModel,
		"--vae", r.VAE,
		"-p", r.Prompt,
		"--cfg-scale", CFGScale,
		"-H", strconv.Itoa(r.Height),
		"-W", strconv.Itoa(r.Width),
		"--steps", strconv.Itoa(r.Steps),
		"-o", r.Output,
		"-s", strconv.FormatInt(r.Seed, 10),
		"--diffusion-fa",
	}
	if r.TextEncoder != "" {
		args = append(args, "--llm", r.TextEncoder)
	}
	return args
}

// OutputFilename names a result image. The random suffix keeps submissions
// within the same second apart.
func OutputFilename(now time.Time) string {
	return fmt.Sprintf("output_%d_%s.png", now.Unix(), uuid.New().String()[:8])
}

// RunImageGeneration is a variable so tests can swap the engine out.
var RunImageGeneration = runImageGeneration

// runImageGeneration runs the engine synchronously. A non-zero exit is not
// an error here: the caller decides success from the output file. It
// returns ErrGenerationTimeout when the timeout fired, and any other error
// only when the process could not be started.
func runImageGeneration(ctx context.Context, r ImageRequest, timeout time.Duration) (*ImageResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Binary, BuildImageArgs(r)...)
	cmd.Dir = r.WorkDir
	cmd.Env = os.Environ()
	cmd.WaitDelay = WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	xlog.Debug("Running image generation", "binary", r.Binary, "args", cmd.Args[1:], "dir", r.WorkDir)

	start := time.Now()
	err := cmd.Run()
	result := &ImageResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		xlog.Warn("Image generation timed out", "timeout", timeout, "output", r.Output)
		return result, fmt.Errorf("%w after %s", ErrGenerationTimeout, timeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || errors.Is(err, exec.ErrWaitDelay) {
			xlog.Debug("Image generation exited", "exitCode", result.ExitCode, "duration", result.Duration)
			return result, nil
		}
		if cmd.ProcessState == nil {
			return nil, fmt.Errorf("failed to start %s: %w", r.Binary, err)
		}
		return result, err
	}

	xlog.Debug("Image generation exited", "exitCode", result.ExitCode, "duration", result.Duration)
	return result, nil
}
