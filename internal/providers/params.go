package providers

import "slices"

// Params is the provider-independent parameter set accepted by every
// adapter. Each adapter reads the fields its model understands and maps
// them onto the provider's wire format.
type Params struct {
	Prompt       string   `json:"prompt"`
	AspectRatio  string   `json:"aspectRatio,omitempty"`
	Size         string   `json:"size,omitempty"`
	OutputFormat string   `json:"outputFormat,omitempty"`
	Resolution   string   `json:"resolution,omitempty"`
	ImageURLs    []string `json:"imageUrls,omitempty"`
	VideoURL     string   `json:"videoUrl,omitempty"`
	MaskURL      string   `json:"maskUrl,omitempty"`

	// Midjourney
	TaskType string `json:"taskType,omitempty"`
	Version  string `json:"version,omitempty"`
	Speed    string `json:"speed,omitempty"`

	// GPT-4o image
	NVariants int `json:"nVariants,omitempty"`

	// Video
	GenerationType  string `json:"generationType,omitempty"`
	NFrames         string `json:"nFrames,omitempty"`
	Duration        int    `json:"duration,omitempty"`
	Quality         string `json:"quality,omitempty"`
	RemoveWatermark *bool  `json:"removeWatermark,omitempty"`

	// Music
	CustomMode   bool   `json:"customMode,omitempty"`
	Instrumental bool   `json:"instrumental,omitempty"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
}

func oneOf(field, value string, allowed ...string) error {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return invalidf("%s %q is not supported (allowed: %v)", field, value, allowed)
}

func firstImage(p Params) string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
