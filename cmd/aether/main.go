package main

import (
	"os"
	"path/filepath"

	"github.com/aether-sd/aether/core/cli"
	"github.com/aether-sd/aether/core/config"
	"github.com/aether-sd/aether/internal"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
)

func main() {
	var err error

	// Initialize xlog at a level of INFO, we will set the desired level after we parse the CLI options
	xlog.SetLogger(xlog.NewLogger(xlog.LogLevel("info"), "text"))

	// handle loading environment variables from .env files
	envFiles := []string{".env", "aether.env"}
	homeDir, err := os.UserHomeDir()
	if err == nil {
		envFiles = append(envFiles, filepath.Join(homeDir, "aether.env"), filepath.Join(homeDir, ".config/aether.env"))
	}
	envFiles = append(envFiles, "/etc/aether.env")

	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			xlog.Debug("env file found, loading environment variables from file", "envFile", envFile)
			err = godotenv.Load(envFile)
			if err != nil {
				xlog.Error("failed to load environment variables from file", "error", err, "envFile", envFile)
				continue
			}
		}
	}

	ctx := kong.Parse(&cli.CLI,
		kong.Description(
			`  AETHER is a local text-to-image web UI for the Z-Image Turbo model, driving the stable-diffusion.cpp sd executable.

Run 'aether fetch' to download the VAE and 'aether check' to see which files are still missing.

Version: ${version}
`,
		),
		kong.UsageOnError(),
		kong.Vars{
			"model_file": config.DefaultModelFile,
			"vae_file":   config.DefaultVAEFile,
			"llm_file":   config.DefaultLLMFile,
			"version":    internal.PrintableVersion(),
		},
	)

	// Configure the logging level before we run the application
	// This is here to preserve the existing --debug flag functionality
	logLevel := "info"
	if cli.CLI.Debug && cli.CLI.LogLevel == nil {
		logLevel = "debug"
		cli.CLI.LogLevel = &logLevel
	}

	if cli.CLI.LogLevel == nil {
		cli.CLI.LogLevel = &logLevel
	}

	xlog.SetLogger(xlog.NewLogger(xlog.LogLevel(*cli.CLI.LogLevel), *cli.CLI.LogFormat))

	err = ctx.Run(&cli.CLI.Context)
	if err != nil {
		xlog.Fatal("Error running the application", "error", err)
	}
}
