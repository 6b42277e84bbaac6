package schema

// ErrorKind classifies why a generation produced no image.
type ErrorKind string

const (
	ErrorKindMissingAsset      ErrorKind = "missing_asset"
	ErrorKindInvalidInput      ErrorKind = "invalid_input"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindSubprocessFailure ErrorKind = "subprocess_failure"
)

// GenerationRequest is the form (or JSON body) submitted to generate one
// image.
type GenerationRequest struct {
	Prompt             string `json:"prompt" form:"prompt"`
	ResolutionCategory string `json:"resolution_category" form:"resolution_category"`
	Resolution         string `json:"resolution" form:"resolution"`
	Seed               int64  `json:"seed" form:"seed"`
	RandomSeed         bool   `json:"random_seed" form:"random_seed"`
	Steps              int    `json:"steps" form:"steps"`
}

// GenerationResult is either a success (ImagePath set) or a failure (Error
// set), never both. Seed is only reported on success.
type GenerationResult struct {
	ImagePath string `json:"-"`
	ImageURL  string `json:"image_url,omitempty"`
	Message   string `json:"message"`
	Seed      *int64 `json:"seed,omitempty"`
	// SeedRandom marks Seed as informational: the engine drew its own seed.
	SeedRandom bool      `json:"seed_random,omitempty"`
	Error      ErrorKind `json:"error,omitempty"`
}

func (r GenerationResult) Succeeded() bool {
	return r.ImagePath != "" && r.Error == ""
}
