package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/genforge/backend/internal/models"
)

// Adapter binds one provider model to its submit/poll/normalize triple.
// Adapters are immutable after construction and safe for concurrent use.
type Adapter struct {
	ModelID    string
	Name       string
	Kind       models.Kind
	Shape      Shape
	StatusPath string

	client   *Client
	validate func(Params) error
	cost     func(Params) int
	submit   func(ctx context.Context, c *Client, p Params) (string, error)
}

// Validate reports whether p is acceptable for this model. Violations wrap
// ErrInvalidArgument.
func (a *Adapter) Validate(p Params) error {
	if strings.TrimSpace(p.Prompt) == "" && !(a.Kind == models.KindMusic && p.Instrumental) {
		return invalidf("prompt is required")
	}
	if a.validate == nil {
		return nil
	}
	return a.validate(p)
}

// Cost is the credit price of one generation with p. It assumes p is valid.
func (a *Adapter) Cost(p Params) int {
	return a.cost(p)
}

// Submit validates p and creates the task upstream, returning the provider
// task id. An invalid p never reaches the network.
func (a *Adapter) Submit(ctx context.Context, p Params) (string, error) {
	if err := a.Validate(p); err != nil {
		return "", err
	}
	return a.submit(ctx, a.client, p)
}

// Poll fetches the raw provider status payload for taskID.
func (a *Adapter) Poll(ctx context.Context, taskID string) (json.RawMessage, error) {
	return a.client.recordInfo(ctx, a.StatusPath, taskID)
}

// Normalize maps a raw payload from Poll onto the common status model.
func (a *Adapter) Normalize(raw json.RawMessage) models.GenerationStatus {
	return Normalize(a.Shape, raw)
}

// Check polls once and normalizes the result.
func (a *Adapter) Check(ctx context.Context, taskID string) (models.GenerationStatus, error) {
	raw, err := a.Poll(ctx, taskID)
	if err != nil {
		return models.GenerationStatus{}, err
	}
	return a.Normalize(raw), nil
}

// ModelInfo is the public catalog entry for a model.
type ModelInfo struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        models.Kind `json:"kind"`
	BaseCredits int         `json:"baseCredits"`
}

// Registry maps provider model ids to adapters. It is built once at startup.
type Registry struct {
	adapters map[string]*Adapter
	order    []string
}

func NewRegistry(adapters ...*Adapter) *Registry {
	r := &Registry{adapters: make(map[string]*Adapter, len(adapters))}
	for _, a := range adapters {
		if _, dup := r.adapters[a.ModelID]; dup {
			panic("providers: duplicate model id " + a.ModelID)
		}
		r.adapters[a.ModelID] = a
		r.order = append(r.order, a.ModelID)
	}
	return r
}

// NewKieRegistry returns the full image, video and music catalog served
// through c.
func NewKieRegistry(c *Client) *Registry {
	var all []*Adapter
	all = append(all, imageAdapters(c)...)
	all = append(all, videoAdapters(c)...)
	all = append(all, musicAdapters(c)...)
	return NewRegistry(all...)
}

func (r *Registry) Resolve(modelID string) (*Adapter, error) {
	a, ok := r.adapters[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return a, nil
}

func (r *Registry) Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(r.order))
	for _, id := range r.order {
		a := r.adapters[id]
		out = append(out, ModelInfo{ID: a.ModelID, Name: a.Name, Kind: a.Kind, BaseCredits: a.Cost(Params{})})
	}
	return out
}
