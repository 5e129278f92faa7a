// Package validation checks request payloads against JSON schemas embedded in the binary.
package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/models"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://brokerline.dev/schemas/"

type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles every embedded schema. Schemas are keyed by file name without extension.
func New() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		if err := c.AddResource(schemaBaseURL+e.Name(), strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("add %q: %w", e.Name(), err)
		}
		names = append(names, e.Name())
	}
	schemas := make(map[string]*jsonschema.Schema, len(names))
	for _, n := range names {
		s, err := c.Compile(schemaBaseURL + n)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", n, err)
		}
		schemas[strings.TrimSuffix(n, ".json")] = s
	}
	return &Validator{schemas: schemas}, nil
}

// MustNew is New for program start-up and tests; the schemas are compiled into the binary.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateJSON validates raw against the named schema.
func (v *Validator) ValidateJSON(name string, raw []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", apperr.ErrValidation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

// ValidateVehicle checks the vehicle identifiers of an application.
func (v *Validator) ValidateVehicle(vehicle models.Vehicle) error {
	raw, err := json.Marshal(vehicle)
	if err != nil {
		return err
	}
	return v.ValidateJSON("vehicle", raw)
}
