package registry

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kaptinlin/jsonschema"

	"chatkit/internal/domain"
	"chatkit/internal/infra/config"
)

// ActionSchemas validates threads.custom_action payloads against JSON
// Schemas keyed by action type.
type ActionSchemas struct {
	schemas       map[string]*jsonschema.Schema
	rejectUnknown bool
}

// NewActionSchemas compiles every schema in cfg.
func NewActionSchemas(cfg config.ActionsConfig) (*ActionSchemas, error) {
	compiler := jsonschema.NewCompiler()
	a := &ActionSchemas{
		schemas:       make(map[string]*jsonschema.Schema, len(cfg.Schemas)),
		rejectUnknown: cfg.RejectUnknown,
	}
	for name, doc := range cfg.Schemas {
		s, err := compiler.Compile([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("compile action schema %q: %w", name, err)
		}
		a.schemas[name] = s
	}
	return a, nil
}

// Types returns the action types that have a schema, sorted.
func (a *ActionSchemas) Types() []string {
	out := make([]string, 0, len(a.schemas))
	for name := range a.schemas {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validate checks a.Payload against the schema for a.Type.
func (a *ActionSchemas) Validate(action domain.Action) error {
	s, ok := a.schemas[action.Type]
	if !ok {
		if a.rejectUnknown {
			return domain.NewDomainError("ActionSchemas.Validate", domain.ErrActionSchema,
				fmt.Sprintf("no schema for action %q", action.Type))
		}
		return nil
	}

	var payload any
	if len(action.Payload) > 0 {
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return domain.NewDomainError("ActionSchemas.Validate", domain.ErrActionSchema, err.Error())
		}
	}
	result := s.Validate(payload)
	if !result.IsValid() {
		return domain.NewDomainError("ActionSchemas.Validate", domain.ErrActionSchema,
			fmt.Sprintf("action %q: %s", action.Type, result.Error()))
	}
	return nil
}
