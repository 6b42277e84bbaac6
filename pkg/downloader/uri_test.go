package downloader_test

import (
	. "github.com/aether-sd/aether/pkg/downloader"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Candidate", func() {
	Context("ResolveURL", func() {
		It("builds a hub resolve url from the triple", func() {
			c := Candidate{Source: "huggingface.co", Repository: "Comfy-Org/z_image_turbo", Path: "vae/ae.safetensors"}
			Expect(c.ResolveURL()).To(Equal("https://huggingface.co/Comfy-Org/z_image_turbo/resolve/main/vae/ae.safetensors"))
		})
		It("defaults the source to the hub", func() {
			c := Candidate{Repository: "black-forest-labs/FLUX.1-dev", Path: "ae.safetensors"}
			Expect(c.ResolveURL()).To(Equal("https://huggingface.co/black-forest-labs/FLUX.1-dev/resolve/main/ae.safetensors"))
		})
		It("honours a revision and a mirror host", func() {
			c := Candidate{Source: "https://hf-mirror.com/", Repository: "/Tongyi-MAI/Z-Image-Turbo/", Path: "/vae/ae.safetensors", Revision: "v1"}
			Expect(c.ResolveURL()).To(Equal("https://hf-mirror.com/Tongyi-MAI/Z-Image-Turbo/resolve/v1/vae/ae.safetensors"))
		})
		It("prefers an explicit url", func() {
			c := Candidate{URL: "http://example.com/ae.safetensors", Repository: "ignored/repo", Path: "x"}
			Expect(c.ResolveURL()).To(Equal("http://example.com/ae.safetensors"))
			Expect(c.String()).To(Equal("http://example.com/ae.safetensors"))
		})
	})

	Context("FilenameFromUrl", func() {
		It("returns the last path element", func() {
			c := Candidate{Repository: "Comfy-Org/z_image_turbo", Path: "vae/ae.safetensors"}
			name, err := c.FilenameFromUrl()
			Expect(err).ToNot(HaveOccurred())
			Expect(name).To(Equal("ae.safetensors"))
		})
	})

	Context("LooksLikeURL", func() {
		It("accepts hub triples and http urls", func() {
			Expect(Candidate{Repository: "a/b", Path: "c"}.LooksLikeURL()).To(BeTrue())
			Expect(Candidate{URL: "http://x/y"}.LooksLikeURL()).To(BeTrue())
		})
		It("rejects other schemes", func() {
			Expect(Candidate{URL: "ftp://x/y"}.LooksLikeURL()).To(BeFalse())
		})
	})
})
