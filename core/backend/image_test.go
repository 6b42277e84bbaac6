package backend_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/aether-sd/aether/core/backend"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func writeScript(dir, name, body string) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755)).To(Succeed())
	return path
}

var _ = Describe("BuildImageArgs", func() {
	req := ImageRequest{
		Binary:         "/opt/sd",
		DiffusionModel: "/models/z_image_turbo-Q4_K_M.gguf",
		VAE:            "/models/ae.safetensors",
		Prompt:         "a red fox",
		Width:          1024,
		Height:         512,
		Steps:          8,
		Seed:           42,
		Output:         "/out/output_1.png",
	}

	It("emits the engine flags in order", func() {
		Expect(BuildImageArgs(req)).To(Equal([]string{
			"--diffusion-model", "/models/z_image_turbo-Q4_K_M.gguf",
			"--vae", "/models/ae.safetensors",
			"-p", "a red fox",
			"--cfg-scale", "1.0",
			"-H", "512",
			"-W", "1024",
			"--steps", "8",
			"-o", "/out/output_1.png",
			"-s", "42",
			"--diffusion-fa",
		}))
	})

	It("appends the text encoder last when present", func() {
		withLLM := req
		withLLM.TextEncoder = "/models/Qwen3-4B-Q4_K_M.gguf"
		args := BuildImageArgs(withLLM)
		Expect(args[len(args)-2:]).To(Equal([]string{"--llm", "/models/Qwen3-4B-Q4_K_M.gguf"}))
		Expect(BuildImageArgs(req)).ToNot(ContainElement("--llm"))
	})

	It("passes the random seed sentinel through", func() {
		random := req
		random.Seed = RandomSeed
		Expect(BuildImageArgs(random)).To(ContainElements("-s", "-1"))
	})
})

var _ = Describe("OutputFilename", func() {
	It("is timestamped and unique within a second", func() {
		now := time.Unix(1700000000, 0)
		a, b := OutputFilename(now), OutputFilename(now)
		Expect(a).To(MatchRegexp(`^output_1700000000_[0-9a-f]{8}\.png$`))
		Expect(a).ToNot(Equal(b))
	})
})

var _ = Describe("RunImageGeneration", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "aether-backend")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	request := func(binary string) ImageRequest {
		return ImageRequest{
			Binary:         binary,
			DiffusionModel: "model.gguf",
			VAE:            "ae.safetensors",
			Prompt:         "a red fox",
			Width:          512,
			Height:         512,
			Steps:          8,
			Seed:           42,
			Output:         filepath.Join(tempDir, "out.png"),
			WorkDir:        tempDir,
		}
	}

	It("runs in the working directory and keeps the streams apart", func() {
		bin := writeScript(tempDir, "sd", `echo "$@" > args.txt
pwd
echo "warming up" >&2
`)
		res, err := RunImageGeneration(context.Background(), request(bin), time.Minute)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.ExitCode).To(Equal(0))
		Expect(strings.TrimSpace(res.Stderr)).To(Equal("warming up"))

		resolved, err := filepath.EvalSymlinks(tempDir)
		Expect(err).ToNot(HaveOccurred())
		Expect(strings.TrimSpace(res.Stdout)).To(Equal(resolved))

		args, err := os.ReadFile(filepath.Join(tempDir, "args.txt"))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(args)).To(ContainSubstring("-p a red fox --cfg-scale 1.0"))
	})

	It("reports a non-zero exit without an error", func() {
		bin := writeScript(tempDir, "sd", `echo "out of memory" >&2
exit 3
`)
		res, err := RunImageGeneration(context.Background(), request(bin), time.Minute)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.ExitCode).To(Equal(3))
		Expect(res.Stderr).To(ContainSubstring("out of memory"))
	})

	It("kills the engine when the timeout fires", func() {
		bin := writeScript(tempDir, "sd", "exec sleep 30\n")

		start := time.Now()
		_, err := RunImageGeneration(context.Background(), request(bin), 200*time.Millisecond)
		Expect(errors.Is(err, ErrGenerationTimeout)).To(BeTrue())
		Expect(time.Since(start)).To(BeNumerically("<", 10*time.Second))
	})

	It("returns no result when the binary cannot be started", func() {
		res, err := RunImageGeneration(context.Background(), request(filepath.Join(tempDir, "missing")), time.Minute)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, ErrGenerationTimeout)).To(BeFalse())
		Expect(res).To(BeNil())
	})
})
