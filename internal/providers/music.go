package providers

import (
	"context"

	"github.com/genforge/backend/internal/models"
)

func musicAdapters(c *Client) []*Adapter {
	return []*Adapter{
		suno(c, "V3_5", "Suno V3.5", 15),
		suno(c, "V4", "Suno V4", 20),
		suno(c, "V4_5", "Suno V4.5", 25),
		suno(c, "V4_5_Plus", "Suno V4.5 Plus", 30),
		suno(c, "V5", "Suno V5", 35),
	}
}

func suno(c *Client, version, name string, credits int) *Adapter {
	return &Adapter{
		ModelID: version, Name: name, Kind: models.KindMusic,
		Shape: ShapeSuno, StatusPath: "/api/v1/generate/record-info", client: c,
		cost: flatCost(credits),
		validate: func(p Params) error {
			if p.CustomMode && (p.Style == "" || p.Title == "") {
				return invalidf("custom mode requires both style and title")
			}
			return nil
		},
		submit: func(ctx context.Context, c *Client, p Params) (string, error) {
			body := map[string]any{
				"model":        version,
				"prompt":       p.Prompt,
				"customMode":   p.CustomMode,
				"instrumental": p.Instrumental,
			}
			if p.CustomMode {
				body["style"] = p.Style
				body["title"] = p.Title
			}
			setIf(body, "callBackUrl", c.CallbackURL)
			return c.submitTask(ctx, "/api/v1/generate", body)
		},
	}
}
