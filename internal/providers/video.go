package providers

import (
	"context"
	"strconv"
	"strings"

	"github.com/genforge/backend/internal/models"
)

// Veo generation types.
const (
	VeoText2Video      = "TEXT_2_VIDEO"
	VeoImage2Video     = "IMAGE_2_VIDEO"
	VeoFirstAndLast    = "FIRST_AND_LAST_FRAMES_2_VIDEO"
	VeoReference2Video = "REFERENCE_2_VIDEO"
)

var (
	veoAspects    = []string{"16:9", "9:16", "Auto"}
	runwayAspects = []string{"16:9", "9:16", "1:1", "4:3", "3:4"}
)

func videoAdapters(c *Client) []*Adapter {
	return []*Adapter{
		sora(c, "sora-2-text-to-video", "Sora 2"),
		sora(c, "sora-2-image-to-video", "Sora 2 Image to Video"),
		sora(c, "sora-2-pro-text-to-video", "Sora 2 Pro"),
		sora(c, "sora-2-pro-image-to-video", "Sora 2 Pro Image to Video"),
		veo(c, "veo-3.1-fast", "Veo 3.1 Fast"),
		veo(c, "veo-3.1-start-end-frame", "Veo 3.1 Start/End Frame"),
		veo(c, "veo-3.1-reference", "Veo 3.1 Reference"),
		runway(c),
		wan(c, "wan/2-5-text-to-video", "Wan 2.5 Text to Video"),
		wan(c, "wan/2-5-image-to-video", "Wan 2.5 Image to Video"),
		{
			ModelID: "luma-modify", Name: "Luma Modify", Kind: models.KindVideo,
			Shape: ShapeSuccessFlag, StatusPath: "/api/v1/modify/record-info", client: c,
			cost: flatCost(100),
			validate: func(p Params) error {
				if p.VideoURL == "" {
					return invalidf("videoUrl is required for luma-modify")
				}
				return nil
			},
			submit: func(ctx context.Context, c *Client, p Params) (string, error) {
				body := map[string]any{"prompt": p.Prompt, "videoUrl": p.VideoURL}
				setIf(body, "callBackUrl", c.CallbackURL)
				return c.submitTask(ctx, "/api/v1/modify/generate", body)
			},
		},
	}
}

// --- Sora 2 ---

// soraVariant picks the concrete upstream model from image presence and the
// pro tier of the requested model.
func soraVariant(modelID string, p Params) string {
	tier := "sora-2"
	if strings.Contains(modelID, "pro") {
		tier = "sora-2-pro"
	}
	if len(p.ImageURLs) > 0 {
		return tier + "-image-to-video"
	}
	return tier + "-text-to-video"
}

func sora(c *Client, modelID, name string) *Adapter {
	pro := strings.Contains(modelID, "pro")
	return &Adapter{
		ModelID: modelID, Name: name, Kind: models.KindVideo,
		Shape: ShapeJobState, StatusPath: jobsStatusPath, client: c,
		cost: func(p Params) int {
			long := p.NFrames == "15"
			switch {
			case pro && p.Size == "High" && long:
				return 450
			case pro && p.Size == "High":
				return 300
			case pro && long:
				return 225
			case pro:
				return 150
			case long:
				return 120
			default:
				return 80
			}
		},
		validate: func(p Params) error {
			if len(p.ImageURLs) > 1 {
				return invalidf("sora accepts at most one input image")
			}
			if p.Size == "High" && !pro {
				return invalidf("size High is only available for sora-2-pro")
			}
			if err := oneOf("aspectRatio", p.AspectRatio, "portrait", "landscape"); err != nil {
				return err
			}
			if err := oneOf("nFrames", p.NFrames, "10", "15"); err != nil {
				return err
			}
			return oneOf("size", p.Size, "Standard", "High")
		},
		submit: func(ctx context.Context, c *Client, p Params) (string, error) {
			removeWatermark := true
			if p.RemoveWatermark != nil {
				removeWatermark = *p.RemoveWatermark
			}
			input := map[string]any{
				"prompt":           p.Prompt,
				"aspect_ratio":     orDefault(p.AspectRatio, "landscape"),
				"n_frames":         orDefault(p.NFrames, "10"),
				"remove_watermark": removeWatermark,
			}
			if len(p.ImageURLs) > 0 {
				input["image_urls"] = p.ImageURLs
			}
			if pro {
				input["size"] = orDefault(p.Size, "Standard")
			}
			return c.submitTask(ctx, jobsCreatePath, jobRequest{Model: soraVariant(modelID, p), CallBackURL: c.CallbackURL, Input: input})
		},
	}
}

// --- Veo 3.1 ---

// veoGenerationType returns the generation type for a request. Dedicated
// models force theirs; otherwise an explicit type wins, then the image count
// decides.
func veoGenerationType(modelID string, p Params) string {
	switch modelID {
	case "veo-3.1-start-end-frame":
		return VeoFirstAndLast
	case "veo-3.1-reference":
		return VeoReference2Video
	}
	if p.GenerationType != "" {
		return p.GenerationType
	}
	switch n := len(p.ImageURLs); {
	case n == 0:
		return VeoText2Video
	case n == 1:
		return VeoImage2Video
	case n == 2:
		return VeoFirstAndLast
	default:
		return VeoReference2Video
	}
}

func veo(c *Client, modelID, name string) *Adapter {
	return &Adapter{
		ModelID: modelID, Name: name, Kind: models.KindVideo,
		Shape: ShapeSuccessFlag, StatusPath: "/api/v1/veo/record-info", client: c,
		cost: func(p Params) int {
			if veoGenerationType(modelID, p) == VeoReference2Video {
				return 100
			}
			return 80
		},
		validate: func(p Params) error {
			if err := oneOf("aspectRatio", p.AspectRatio, veoAspects...); err != nil {
				return err
			}
			n := len(p.ImageURLs)
			switch gt := veoGenerationType(modelID, p); gt {
			case VeoText2Video:
				if n != 0 {
					return invalidf("%s does not accept input images", gt)
				}
			case VeoImage2Video:
				if n != 1 {
					return invalidf("%s requires exactly 1 image, got %d", gt, n)
				}
			case VeoFirstAndLast:
				if n != 2 {
					return invalidf("%s requires exactly 2 images (first and last frame), got %d", gt, n)
				}
			case VeoReference2Video:
				if n < 1 || n > 4 {
					return invalidf("%s requires 1 to 4 reference images, got %d", gt, n)
				}
				if p.AspectRatio != "" && p.AspectRatio != "16:9" {
					return invalidf("%s only supports aspect ratio 16:9", gt)
				}
			default:
				return invalidf("unknown generationType %q", gt)
			}
			return nil
		},
		submit: func(ctx context.Context, c *Client, p Params) (string, error) {
			gt := veoGenerationType(modelID, p)
			aspect := orDefault(p.AspectRatio, "16:9")
			body := map[string]any{
				"prompt":         p.Prompt,
				"model":          "veo3_fast",
				"aspectRatio":    aspect,
				"generationType": gt,
			}
			if len(p.ImageURLs) > 0 {
				body["imageUrls"] = p.ImageURLs
			}
			setIf(body, "callBackUrl", c.CallbackURL)
			return c.submitTask(ctx, "/api/v1/veo/generate", body)
		},
	}
}

// --- Runway ---

func runway(c *Client) *Adapter {
	return &Adapter{
		ModelID: "runway", Name: "Runway Gen-3", Kind: models.KindVideo,
		Shape: ShapeRunway, StatusPath: "/api/v1/runway/record-detail", client: c,
		cost: func(p Params) int {
			switch {
			case p.Duration == 10:
				return 80
			case p.Quality == "1080p":
				return 60
			default:
				return 40
			}
		},
		validate: func(p Params) error {
			if len(p.ImageURLs) > 1 {
				return invalidf("runway accepts at most one input image")
			}
			switch p.Duration {
			case 0, 5, 10:
			default:
				return invalidf("duration must be 5 or 10, got %d", p.Duration)
			}
			if err := oneOf("quality", p.Quality, "720p", "1080p"); err != nil {
				return err
			}
			if p.Quality == "1080p" && p.Duration == 10 {
				return invalidf("1080p is only available for 5 second videos")
			}
			return oneOf("aspectRatio", p.AspectRatio, runwayAspects...)
		},
		submit: func(ctx context.Context, c *Client, p Params) (string, error) {
			duration := p.Duration
			if duration == 0 {
				duration = 5
			}
			body := map[string]any{
				"prompt":   p.Prompt,
				"duration": duration,
				"quality":  orDefault(p.Quality, "720p"),
			}
			setIf(body, "aspectRatio", p.AspectRatio)
			setIf(body, "imageUrl", firstImage(p))
			setIf(body, "callBackUrl", c.CallbackURL)
			return c.submitTask(ctx, "/api/v1/runway/generate", body)
		},
	}
}

// --- Wan 2.5 ---

func wan(c *Client, modelID, name string) *Adapter {
	imageToVideo := strings.Contains(modelID, "image-to-video")
	return &Adapter{
		ModelID: modelID, Name: name, Kind: models.KindVideo,
		Shape: ShapeJobState, StatusPath: jobsStatusPath, client: c,
		cost: func(p Params) int {
			credits := 60
			if p.Duration == 10 {
				credits = 120
			}
			if p.Resolution == "1080p" {
				credits = credits * 3 / 2
			}
			return credits
		},
		validate: func(p Params) error {
			if imageToVideo && len(p.ImageURLs) != 1 {
				return invalidf("%s requires exactly 1 image, got %d", modelID, len(p.ImageURLs))
			}
			if !imageToVideo && len(p.ImageURLs) > 0 {
				return invalidf("%s does not accept input images", modelID)
			}
			switch p.Duration {
			case 0, 5, 10:
			default:
				return invalidf("duration must be 5 or 10, got %d", p.Duration)
			}
			return oneOf("resolution", p.Resolution, "720p", "1080p")
		},
		submit: func(ctx context.Context, c *Client, p Params) (string, error) {
			duration := p.Duration
			if duration == 0 {
				duration = 5
			}
			input := map[string]any{
				"prompt":     p.Prompt,
				"duration":   strconv.Itoa(duration),
				"resolution": orDefault(p.Resolution, "720p"),
			}
			setIf(input, "image_url", firstImage(p))
			return c.submitTask(ctx, jobsCreatePath, jobRequest{Model: modelID, CallBackURL: c.CallbackURL, Input: input})
		},
	}
}
