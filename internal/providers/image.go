package providers

import (
	"context"

	"github.com/genforge/backend/internal/models"
)

const (
	jobsCreatePath = "/api/v1/jobs/createTask"
	jobsStatusPath = "/api/v1/jobs/recordInfo"
)

var (
	nanoBananaAspects = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9", "auto"}
	zImageAspects     = []string{"1:1", "4:3", "3:4", "16:9", "9:16"}
	fluxAspects       = []string{"21:9", "16:9", "4:3", "1:1", "3:4", "9:16", "16:21"}
	mjAspects         = []string{"1:2", "9:16", "2:3", "3:4", "5:6", "6:5", "4:3", "3:2", "16:9", "2:1", "1:1"}
	mjTaskTypes       = []string{"mj_txt2img", "mj_img2img", "mj_video", "mj_style_reference", "mj_omni_reference"}
	mjVersions        = []string{"7", "6.1", "6", "5.2", "niji6"}
	mjSpeeds          = []string{"relaxed", "fast", "turbo"}
	gpt4oSizes        = []string{"1:1", "3:2", "2:3"}
)

type jobRequest struct {
	Model       string         `json:"model"`
	CallBackURL string         `json:"callBackUrl,omitempty"`
	Input       map[string]any `json:"input"`
}

func flatCost(credits int) func(Params) int {
	return func(Params) int { return credits }
}

func imageAdapters(c *Client) []*Adapter {
	return []*Adapter{
		nanoBanana(c, "google/nano-banana", "Nano Banana", 5),
		nanoBanana(c, "google/nano-banana-edit", "Nano Banana Edit", 8),
		nanoBanana(c, "nano-banana-pro", "Nano Banana Pro", 15),
		{
			ModelID: "z-image", Name: "Z-Image", Kind: models.KindImage,
			Shape: ShapeJobState, StatusPath: jobsStatusPath, client: c,
			cost: flatCost(8),
			validate: func(p Params) error {
				if len(p.ImageURLs) > 0 {
					return invalidf("z-image does not accept input images")
				}
				return oneOf("aspectRatio", p.AspectRatio, zImageAspects...)
			},
			submit: func(ctx context.Context, c *Client, p Params) (string, error) {
				return c.submitTask(ctx, jobsCreatePath, jobRequest{
					Model: "z-image",
					Input: map[string]any{"prompt": p.Prompt, "aspect_ratio": orDefault(p.AspectRatio, "1:1")},
				})
			},
		},
		{
			ModelID: "midjourney", Name: "Midjourney", Kind: models.KindImage,
			Shape: ShapeMidjourney, StatusPath: "/api/v1/mj/record-info", client: c,
			cost:     flatCost(15),
			validate: validateMidjourney,
			submit: func(ctx context.Context, c *Client, p Params) (string, error) {
				body := map[string]any{
					"taskType": orDefault(p.TaskType, "mj_txt2img"),
					"prompt":   p.Prompt,
				}
				setIf(body, "aspectRatio", p.AspectRatio)
				setIf(body, "version", p.Version)
				setIf(body, "speed", p.Speed)
				setIf(body, "callBackUrl", c.CallbackURL)
				if len(p.ImageURLs) > 0 {
					body["fileUrls"] = p.ImageURLs
				}
				return c.submitTask(ctx, "/api/v1/mj/generate", body)
			},
		},
		fluxKontext(c, "flux-kontext-pro", "Flux Kontext Pro", 10),
		fluxKontext(c, "flux-kontext-max", "Flux Kontext Max", 15),
		{
			ModelID: "gpt4o-image", Name: "GPT-4o Image", Kind: models.KindImage,
			Shape: ShapeSuccessFlag, StatusPath: "/api/v1/gpt4o-image/record-info", client: c,
			cost:     flatCost(10),
			validate: validateGPT4o,
			submit: func(ctx context.Context, c *Client, p Params) (string, error) {
				body := map[string]any{"prompt": p.Prompt, "size": orDefault(p.Size, "1:1")}
				if p.NVariants > 0 {
					body["nVariants"] = p.NVariants
				}
				if len(p.ImageURLs) > 0 {
					body["filesUrl"] = p.ImageURLs
				}
				setIf(body, "maskUrl", p.MaskURL)
				setIf(body, "callBackUrl", c.CallbackURL)
				return c.submitTask(ctx, "/api/v1/gpt4o-image/generate", body)
			},
		},
	}
}

func nanoBanana(c *Client, modelID, name string, credits int) *Adapter {
	isEdit := modelID == "google/nano-banana-edit"
	isPro := modelID == "nano-banana-pro"
	return &Adapter{
		ModelID: modelID, Name: name, Kind: models.KindImage,
		Shape: ShapeJobState, StatusPath: jobsStatusPath, client: c,
		cost: flatCost(credits),
		validate: func(p Params) error {
			switch {
			case isEdit && len(p.ImageURLs) == 0:
				return invalidf("%s requires at least one input image", modelID)
			case !isEdit && !isPro && len(p.ImageURLs) > 0:
				return invalidf("%s does not accept input images", modelID)
			case !isPro && p.Resolution != "":
				return invalidf("resolution is only supported by nano-banana-pro")
			}
			if err := oneOf("aspectRatio", p.AspectRatio, nanoBananaAspects...); err != nil {
				return err
			}
			if err := oneOf("outputFormat", p.OutputFormat, "png", "jpg", "jpeg"); err != nil {
				return err
			}
			return oneOf("resolution", p.Resolution, "1K", "2K", "4K")
		},
		submit: func(ctx context.Context, c *Client, p Params) (string, error) {
			input := map[string]any{"prompt": p.Prompt}
			format := p.OutputFormat
			if format == "jpeg" {
				format = "jpg"
			}
			setIf(input, "output_format", format)
			if isPro {
				setIf(input, "aspect_ratio", p.AspectRatio)
				setIf(input, "resolution", p.Resolution)
				if len(p.ImageURLs) > 0 {
					input["image_input"] = p.ImageURLs
				}
			} else {
				setIf(input, "image_size", p.AspectRatio)
				if len(p.ImageURLs) > 0 {
					input["image_urls"] = p.ImageURLs
				}
			}
			return c.submitTask(ctx, jobsCreatePath, jobRequest{Model: modelID, CallBackURL: c.CallbackURL, Input: input})
		},
	}
}

func fluxKontext(c *Client, modelID, name string, credits int) *Adapter {
	return &Adapter{
		ModelID: modelID, Name: name, Kind: models.KindImage,
		Shape: ShapeSuccessFlag, StatusPath: "/api/v1/flux/kontext/record-info", client: c,
		cost: flatCost(credits),
		validate: func(p Params) error {
			if len(p.ImageURLs) > 1 {
				return invalidf("%s accepts at most one input image", modelID)
			}
			if err := oneOf("aspectRatio", p.AspectRatio, fluxAspects...); err != nil {
				return err
			}
			return oneOf("outputFormat", p.OutputFormat, "png", "jpg", "jpeg")
		},
		submit: func(ctx context.Context, c *Client, p Params) (string, error) {
			body := map[string]any{"prompt": p.Prompt, "model": modelID}
			format := p.OutputFormat
			if format == "jpg" {
				format = "jpeg"
			}
			setIf(body, "outputFormat", format)
			setIf(body, "aspectRatio", p.AspectRatio)
			setIf(body, "inputImage", firstImage(p))
			setIf(body, "callBackUrl", c.CallbackURL)
			return c.submitTask(ctx, "/api/v1/flux/kontext/generate", body)
		},
	}
}

func validateMidjourney(p Params) error {
	if err := oneOf("taskType", p.TaskType, mjTaskTypes...); err != nil {
		return err
	}
	switch p.TaskType {
	case "mj_img2img", "mj_style_reference", "mj_omni_reference":
		if len(p.ImageURLs) == 0 {
			return invalidf("taskType %s requires at least one input image", p.TaskType)
		}
	}
	if err := oneOf("aspectRatio", p.AspectRatio, mjAspects...); err != nil {
		return err
	}
	if err := oneOf("version", p.Version, mjVersions...); err != nil {
		return err
	}
	return oneOf("speed", p.Speed, mjSpeeds...)
}

func validateGPT4o(p Params) error {
	if len(p.ImageURLs) > 5 {
		return invalidf("gpt4o-image accepts at most 5 input images, got %d", len(p.ImageURLs))
	}
	if p.MaskURL != "" && len(p.ImageURLs) == 0 {
		return invalidf("maskUrl requires an input image")
	}
	switch p.NVariants {
	case 0, 1, 2, 4:
	default:
		return invalidf("nVariants must be 1, 2 or 4, got %d", p.NVariants)
	}
	return oneOf("size", p.Size, gpt4oSizes...)
}

func setIf(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
