package config

import (
	"fmt"
)

const (
	DefaultResolutionCategory = "1024"
	DefaultSteps              = 8
	MinSteps                  = 1
	MaxSteps                  = 50
	DefaultSeed               = 42
)

type Resolution struct {
	Label  string `json:"label"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ResolutionCategory struct {
	Name    string       `json:"name"`
	Choices []Resolution `json:"choices"`
}

// ResolutionPresets lists the categories in the order the UI shows them.
// The first choice of each category is its default.
var ResolutionPresets = []ResolutionCategory{
	{
		Name: "1024",
		Choices: []Resolution{
			{Label: "1024x1024 (1:1)", Width: 1024, Height: 1024},
			{Label: "1024x512 (2:1)", Width: 1024, Height: 512},
			{Label: "512x1024 (1:2)", Width: 512, Height: 1024},
		},
	},
	{
		Name: "512",
		Choices: []Resolution{
			{Label: "512x512 (1:1)", Width: 512, Height: 512},
			{Label: "512x256 (2:1)", Width: 512, Height: 256},
			{Label: "256x512 (1:2)", Width: 256, Height: 512},
		},
	},
	{
		Name: "768",
		Choices: []Resolution{
			{Label: "768x768 (1:1)", Width: 768, Height: 768},
			{Label: "768x384 (2:1)", Width: 768, Height: 384},
			{Label: "384x768 (1:2)", Width: 384, Height: 768},
		},
	},
}

func ResolutionChoices(category string) ([]Resolution, bool) {
	for _, c := range ResolutionPresets {
		if c.Name == category {
			return c.Choices, true
		}
	}
	return nil, false
}

// DefaultResolution returns the first choice of a category.
func DefaultResolution(category string) (Resolution, bool) {
	choices, ok := ResolutionChoices(category)
	if !ok || len(choices) == 0 {
		return Resolution{}, false
	}
	return choices[0], true
}

func LookupResolution(category, label string) (Resolution, error) {
	choices, ok := ResolutionChoices(category)
	if !ok {
		return Resolution{}, fmt.Errorf("unknown resolution category %q", category)
	}
	for _, r := range choices {
		if r.Label == label {
			return r, nil
		}
	}
	return Resolution{}, fmt.Errorf("resolution %q is not available in category %q", label, category)
}

// ExamplePrompts are shown as one-click fillers under the prompt box.
var ExamplePrompts = []string{
	"一位男士和他的贵宾犬穿着装备参加警戒秀,室内灯光,背景中有观众。",
	"芭芭拉感的暗调人像,一位优雅的中国美女在黑暗的房间里。一束强光透过遮光板,在她身上形成戏剧性的光影效果。",
	"一张中景手机自拍照片拍摄了一位留着长黑发的年轻东亚女子在灯光明亮的电梯内对着镜子自拍。",
	"身着红色汉服的中国年轻女子,汉服上的刺绣精美绝伦。",
	"一幅竖幅数字插画,描绘了一幅宁静而庄严的景象,充满细节和层次感。",
	"一张虚构的英语电影《回忆之味》(The Taste of Memory)的电影海报。场景设置在一个质感的背景中,充满电影感。",
	"一张方形构图的特色照片,主体是一片巨大的、鲜绿色的植物叶片,并上面有文字,设置在一个简洁的白色背景中。",
}

// FeaturedExamples is how many examples are shown without expanding the
// rest.
const FeaturedExamples = 3

// ExamplePrompt returns the example at index, or "" when out of range.
func ExamplePrompt(index int) string {
	if index < 0 || index >= len(ExamplePrompts) {
		return ""
	}
	return ExamplePrompts[index]
}
