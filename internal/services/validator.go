package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/genforge/backend/internal/models"
)

// ErrValidation can be used with errors.Is to detect schema failures.
var ErrValidation = errors.New("validation failed")

// Validator checks generation params (hard reject) and poll results (soft
// flag) against per-kind JSON schemas.
type Validator struct {
	inputSchemas  map[models.Kind]*jsonschema.Schema
	outputSchemas map[models.Kind]*jsonschema.Schema
}

// NewValidator compiles every *.json file at the root of fsys. Each file is
// named after a kind (image.v1.json) and carries input_schema and
// output_schema under "properties".
func NewValidator(fsys fs.FS) (*Validator, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	v := &Validator{
		inputSchemas:  make(map[models.Kind]*jsonschema.Schema),
		outputSchemas: make(map[models.Kind]*jsonschema.Schema),
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimSuffix(e.Name(), path.Ext(e.Name())), ".v1")
		kind := models.Kind(name)
		if !kind.Valid() {
			return nil, fmt.Errorf("%q: unknown kind %q", e.Name(), name)
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		var file struct {
			Properties struct {
				InputSchema  json.RawMessage `json:"input_schema"`
				OutputSchema json.RawMessage `json:"output_schema"`
			} `json:"properties"`
		}
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %q: %w", e.Name(), err)
		}
		if len(file.Properties.InputSchema) == 0 || len(file.Properties.OutputSchema) == 0 {
			return nil, fmt.Errorf("%q: missing input_schema or output_schema", e.Name())
		}
		v.inputSchemas[kind], err = jsonschema.CompileString("https://genforge.dev/schemas/"+name+".input", string(file.Properties.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("compile input schema %q: %w", name, err)
		}
		v.outputSchemas[kind], err = jsonschema.CompileString("https://genforge.dev/schemas/"+name+".output", string(file.Properties.OutputSchema))
		if err != nil {
			return nil, fmt.Errorf("compile output schema %q: %w", name, err)
		}
	}
	return v, nil
}

// ValidateParams rejects params that do not match the kind's input schema.
func (v *Validator) ValidateParams(kind models.Kind, params json.RawMessage) error {
	return validateAgainst(v.inputSchemas, kind, params)
}

// ValidateResult checks a poll result against the kind's output schema.
// Callers treat a failure as a flag to log, not a reason to reject.
func (v *Validator) ValidateResult(kind models.Kind, result *models.PollResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return validateAgainst(v.outputSchemas, kind, raw)
}

func validateAgainst(schemas map[models.Kind]*jsonschema.Schema, kind models.Kind, raw json.RawMessage) error {
	schema, ok := schemas[kind]
	if !ok {
		return fmt.Errorf("%w: no schema for kind %q", ErrValidation, kind)
	}
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
