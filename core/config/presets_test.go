package config_test

import (
	. "github.com/aether-sd/aether/core/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Resolution presets", func() {
	It("orders categories and choices as displayed", func() {
		names := []string{}
		for _, c := range ResolutionPresets {
			names = append(names, c.Name)
			Expect(c.Choices).To(HaveLen(3))
		}
		Expect(names).To(Equal([]string{"1024", "512", "768"}))

		def, ok := DefaultResolution(DefaultResolutionCategory)
		Expect(ok).To(BeTrue())
		Expect(def).To(Equal(Resolution{Label: "1024x1024 (1:1)", Width: 1024, Height: 1024}))
	})

	It("maps labels to width and height", func() {
		r, err := LookupResolution("768", "384x768 (1:2)")
		Expect(err).ToNot(HaveOccurred())
		Expect(r.Width).To(Equal(384))
		Expect(r.Height).To(Equal(768))

		r, err = LookupResolution("512", "512x256 (2:1)")
		Expect(err).ToNot(HaveOccurred())
		Expect(r.Width).To(Equal(512))
		Expect(r.Height).To(Equal(256))
	})

	It("rejects unknown categories and foreign choices", func() {
		_, err := LookupResolution("2048", "2048x2048 (1:1)")
		Expect(err).To(MatchError(ContainSubstring("unknown resolution category")))

		_, err = LookupResolution("1024", "768x768 (1:1)")
		Expect(err).To(MatchError(ContainSubstring("not available")))
	})
})

var _ = Describe("Example prompts", func() {
	It("returns an empty prompt out of range", func() {
		Expect(ExamplePrompts).To(HaveLen(7))
		Expect(ExamplePrompt(0)).To(Equal(ExamplePrompts[0]))
		Expect(ExamplePrompt(6)).To(Equal(ExamplePrompts[6]))
		Expect(ExamplePrompt(7)).To(BeEmpty())
		Expect(ExamplePrompt(-1)).To(BeEmpty())
	})
})
