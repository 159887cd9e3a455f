package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/genforge/backend/internal/models"
)

func testRegistry(t *testing.T) (*Registry, *fakeUpstream) {
	t.Helper()
	f := &fakeUpstream{response: `{"code":200,"msg":"success","data":{"taskId":"task-1"}}`}
	c := newTestClient(t, f, time.Second)
	return NewKieRegistry(c), f
}

func boolPtr(b bool) *bool { return &b }

// ---------------------------------------------------------------------------
// 1. Resolution and catalog
// ---------------------------------------------------------------------------

func TestRegistry_Resolve(t *testing.T) {
	reg, _ := testRegistry(t)

	a, err := reg.Resolve("veo-3.1-fast")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.Kind != models.KindVideo {
		t.Errorf("kind: got %s", a.Kind)
	}
	if _, err := reg.Resolve("dall-e-9"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
}

func TestRegistry_Models(t *testing.T) {
	reg, _ := testRegistry(t)
	byKind := map[models.Kind]int{}
	credits := map[string]int{}
	for _, m := range reg.Models() {
		byKind[m.Kind]++
		credits[m.ID] = m.BaseCredits
	}
	if byKind[models.KindImage] != 8 || byKind[models.KindVideo] != 11 || byKind[models.KindMusic] != 5 {
		t.Errorf("catalog sizes: %v", byKind)
	}
	for id, want := range map[string]int{
		"google/nano-banana": 5, "google/nano-banana-edit": 8, "nano-banana-pro": 15, "z-image": 8,
		"midjourney": 15, "flux-kontext-pro": 10, "flux-kontext-max": 15, "gpt4o-image": 10,
		"V3_5": 15, "V4": 20, "V4_5": 25, "V4_5_Plus": 30, "V5": 35,
		"sora-2-text-to-video": 80, "veo-3.1-reference": 100, "luma-modify": 100,
	} {
		if credits[id] != want {
			t.Errorf("%s base credits: got %d, want %d", id, credits[id], want)
		}
	}
}

// ---------------------------------------------------------------------------
// 2. Validation rules
// ---------------------------------------------------------------------------

func TestAdapter_Validate(t *testing.T) {
	reg, _ := testRegistry(t)
	img := []string{"https://cdn/1.png"}
	imgs := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = "https://cdn/x.png"
		}
		return out
	}

	tests := []struct {
		name    string
		model   string
		params  Params
		wantErr bool
	}{
		{"empty prompt", "google/nano-banana", Params{}, true},
		{"nano banana text", "google/nano-banana", Params{Prompt: "cat", AspectRatio: "16:9"}, false},
		{"nano banana with image", "google/nano-banana", Params{Prompt: "cat", ImageURLs: img}, true},
		{"nano banana bad aspect", "google/nano-banana", Params{Prompt: "cat", AspectRatio: "7:3"}, true},
		{"nano banana resolution", "google/nano-banana", Params{Prompt: "cat", Resolution: "2K"}, true},
		{"edit without image", "google/nano-banana-edit", Params{Prompt: "cat"}, true},
		{"edit with image", "google/nano-banana-edit", Params{Prompt: "cat", ImageURLs: img}, false},
		{"pro resolution", "nano-banana-pro", Params{Prompt: "cat", Resolution: "4K"}, false},
		{"z-image with image", "z-image", Params{Prompt: "cat", ImageURLs: img}, true},
		{"mj img2img without image", "midjourney", Params{Prompt: "cat", TaskType: "mj_img2img"}, true},
		{"mj omni with image", "midjourney", Params{Prompt: "cat", TaskType: "mj_omni_reference", ImageURLs: img}, false},
		{"mj bad version", "midjourney", Params{Prompt: "cat", Version: "4"}, true},
		{"flux two images", "flux-kontext-pro", Params{Prompt: "cat", ImageURLs: imgs(2)}, true},
		{"flux one image", "flux-kontext-max", Params{Prompt: "cat", ImageURLs: img}, false},
		{"gpt4o six images", "gpt4o-image", Params{Prompt: "cat", ImageURLs: imgs(6)}, true},
		{"gpt4o mask without image", "gpt4o-image", Params{Prompt: "cat", MaskURL: "https://cdn/m.png"}, true},
		{"gpt4o bad variants", "gpt4o-image", Params{Prompt: "cat", NVariants: 3}, true},
		{"gpt4o ok", "gpt4o-image", Params{Prompt: "cat", NVariants: 4, Size: "3:2"}, false},

		{"sora two images", "sora-2-image-to-video", Params{Prompt: "surf", ImageURLs: imgs(2)}, true},
		{"sora high non-pro", "sora-2-text-to-video", Params{Prompt: "surf", Size: "High"}, true},
		{"sora pro high", "sora-2-pro-text-to-video", Params{Prompt: "surf", Size: "High", NFrames: "15"}, false},
		{"sora bad frames", "sora-2-text-to-video", Params{Prompt: "surf", NFrames: "12"}, true},
		{"veo text", "veo-3.1-fast", Params{Prompt: "surf"}, false},
		{"veo start-end one image", "veo-3.1-start-end-frame", Params{Prompt: "surf", ImageURLs: img}, true},
		{"veo start-end two images", "veo-3.1-start-end-frame", Params{Prompt: "surf", ImageURLs: imgs(2)}, false},
		{"veo reference five images", "veo-3.1-reference", Params{Prompt: "surf", ImageURLs: imgs(5)}, true},
		{"veo reference portrait", "veo-3.1-reference", Params{Prompt: "surf", ImageURLs: imgs(3), AspectRatio: "9:16"}, true},
		{"veo reference landscape", "veo-3.1-reference", Params{Prompt: "surf", ImageURLs: imgs(3), AspectRatio: "16:9"}, false},
		{"veo explicit image2video two images", "veo-3.1-fast", Params{Prompt: "surf", GenerationType: VeoImage2Video, ImageURLs: imgs(2)}, true},
		{"runway 10s 1080p", "runway", Params{Prompt: "surf", Duration: 10, Quality: "1080p"}, true},
		{"runway 5s 1080p", "runway", Params{Prompt: "surf", Duration: 5, Quality: "1080p"}, false},
		{"runway 7s", "runway", Params{Prompt: "surf", Duration: 7}, true},
		{"wan i2v without image", "wan/2-5-image-to-video", Params{Prompt: "surf"}, true},
		{"wan t2v with image", "wan/2-5-text-to-video", Params{Prompt: "surf", ImageURLs: img}, true},
		{"luma without video", "luma-modify", Params{Prompt: "make it night"}, true},
		{"luma with video", "luma-modify", Params{Prompt: "make it night", VideoURL: "https://cdn/v.mp4"}, false},

		{"suno instrumental without prompt", "V4", Params{Instrumental: true}, false},
		{"suno custom without title", "V4", Params{Prompt: "lyrics", CustomMode: true, Style: "jazz"}, true},
		{"suno custom complete", "V5", Params{Prompt: "lyrics", CustomMode: true, Style: "jazz", Title: "Night"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := reg.Resolve(tc.model)
			if err != nil {
				t.Fatalf("Resolve(%s): %v", tc.model, err)
			}
			err = a.Validate(tc.params)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Fatalf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// 3. Pricing
// ---------------------------------------------------------------------------

func TestAdapter_VideoCost(t *testing.T) {
	reg, _ := testRegistry(t)
	img := []string{"https://cdn/1.png"}

	tests := []struct {
		model  string
		params Params
		want   int
	}{
		{"sora-2-text-to-video", Params{}, 80},
		{"sora-2-image-to-video", Params{NFrames: "15"}, 120},
		{"sora-2-pro-text-to-video", Params{Size: "Standard"}, 150},
		{"sora-2-pro-text-to-video", Params{Size: "Standard", NFrames: "15"}, 225},
		{"sora-2-pro-image-to-video", Params{Size: "High"}, 300},
		{"sora-2-pro-image-to-video", Params{Size: "High", NFrames: "15"}, 450},
		{"veo-3.1-fast", Params{ImageURLs: img}, 80},
		{"veo-3.1-start-end-frame", Params{}, 80},
		{"veo-3.1-reference", Params{}, 100},
		{"runway", Params{Duration: 5, Quality: "720p"}, 40},
		{"runway", Params{Duration: 5, Quality: "1080p"}, 60},
		{"runway", Params{Duration: 10}, 80},
		{"wan/2-5-text-to-video", Params{Duration: 5}, 60},
		{"wan/2-5-text-to-video", Params{Duration: 10}, 120},
		{"wan/2-5-image-to-video", Params{Duration: 5, Resolution: "1080p"}, 90},
		{"wan/2-5-image-to-video", Params{Duration: 10, Resolution: "1080p"}, 180},
		{"luma-modify", Params{}, 100},
	}
	for _, tc := range tests {
		a, err := reg.Resolve(tc.model)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tc.model, err)
		}
		if got := a.Cost(tc.params); got != tc.want {
			t.Errorf("%s %+v: got %d, want %d", tc.model, tc.params, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// 4. Wire formats
// ---------------------------------------------------------------------------

func TestAdapter_SubmitInvalidNeverCallsUpstream(t *testing.T) {
	reg, f := testRegistry(t)
	a, _ := reg.Resolve("veo-3.1-start-end-frame")

	_, err := a.Submit(context.Background(), Params{Prompt: "surf", ImageURLs: []string{"https://cdn/1.png"}})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if f.count() != 0 {
		t.Errorf("upstream called %d times for invalid params", f.count())
	}
}

func TestAdapter_SubmitSoraDefaults(t *testing.T) {
	reg, f := testRegistry(t)
	a, _ := reg.Resolve("sora-2-pro-text-to-video")

	id, err := a.Submit(context.Background(), Params{Prompt: "surf", ImageURLs: []string{"https://cdn/1.png"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "task-1" {
		t.Errorf("task id: got %q", id)
	}
	req := f.last(t)
	if req.Path != jobsCreatePath {
		t.Errorf("path: got %s", req.Path)
	}
	if req.Body["model"] != "sora-2-pro-image-to-video" {
		t.Errorf("model variant: got %v", req.Body["model"])
	}
	input, _ := req.Body["input"].(map[string]any)
	if input["aspect_ratio"] != "landscape" || input["n_frames"] != "10" || input["remove_watermark"] != true {
		t.Errorf("defaults not applied: %v", input)
	}
	if input["size"] != "Standard" {
		t.Errorf("pro size default: got %v", input["size"])
	}
}

func TestAdapter_SubmitSoraKeepsWatermarkWhenAsked(t *testing.T) {
	reg, f := testRegistry(t)
	a, _ := reg.Resolve("sora-2-text-to-video")

	if _, err := a.Submit(context.Background(), Params{Prompt: "surf", RemoveWatermark: boolPtr(false)}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	input, _ := f.last(t).Body["input"].(map[string]any)
	if input["remove_watermark"] != false {
		t.Errorf("remove_watermark: got %v", input["remove_watermark"])
	}
	if _, ok := input["size"]; ok {
		t.Error("non-pro sora must not send size")
	}
}

func TestAdapter_SubmitVeoDetectsGenerationType(t *testing.T) {
	reg, f := testRegistry(t)
	a, _ := reg.Resolve("veo-3.1-fast")

	if _, err := a.Submit(context.Background(), Params{Prompt: "surf", ImageURLs: []string{"https://a", "https://b"}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	req := f.last(t)
	if req.Path != "/api/v1/veo/generate" {
		t.Errorf("path: got %s", req.Path)
	}
	if req.Body["generationType"] != VeoFirstAndLast || req.Body["model"] != "veo3_fast" {
		t.Errorf("body: %v", req.Body)
	}
}

func TestAdapter_SubmitSunoForwardsCallback(t *testing.T) {
	f := &fakeUpstream{response: `{"code":200,"data":{"taskId":"music-1"}}`}
	c := newTestClient(t, f, time.Second)
	c.CallbackURL = "https://example.com/hooks/kie"
	a, _ := NewKieRegistry(c).Resolve("V4_5")

	if _, err := a.Submit(context.Background(), Params{Prompt: "lofi beat"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	body := f.last(t).Body
	if body["model"] != "V4_5" || body["callBackUrl"] != "https://example.com/hooks/kie" {
		t.Errorf("body: %v", body)
	}
	if _, ok := body["style"]; ok {
		t.Error("style must only be sent in custom mode")
	}
}

func TestAdapter_Check(t *testing.T) {
	f := &fakeUpstream{response: `{"code":200,"data":{"state":"success","resultJson":"{\"resultUrls\":[\"https://cdn/done.png\"]}"}}`}
	c := newTestClient(t, f, time.Second)
	a, _ := NewKieRegistry(c).Resolve("google/nano-banana")

	st, err := a.Check(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if st.State != models.TaskStateSuccess || len(st.ResultURLs) != 1 {
		t.Errorf("status: %+v", st)
	}
	req := f.last(t)
	if req.Path != jobsStatusPath || req.Query != "taskId=task-9" {
		t.Errorf("request: %s?%s", req.Path, req.Query)
	}
}
