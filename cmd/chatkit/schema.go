package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"

	"chatkit/internal/domain"
	"chatkit/internal/usecase/registry"
)

func runSchema(args []string) error {
	a, err := parseArgs(args)
	if err != nil {
		return err
	}
	unions := domain.Unions()
	switch len(a.Positional) {
	case 0:
	case 1:
		unions = []domain.Union{domain.Union(a.Positional[0])}
	default:
		return fmt.Errorf("usage: chatkit schema [UNION]")
	}
	return writeSchemas(os.Stdout, unions)
}

// writeSchemas prints one schema, or an object of schemas keyed by union
// name when more than one is requested.
func writeSchemas(w io.Writer, unions []domain.Union) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(unions) == 1 {
		s, err := registry.JSONSchema(unions[0])
		if err != nil {
			return err
		}
		return enc.Encode(s)
	}

	out := make(map[domain.Union]*jsonschema.Schema, len(unions))
	for _, u := range unions {
		s, err := registry.JSONSchema(u)
		if err != nil {
			return fmt.Errorf("%s: %w", u, err)
		}
		out[u] = s
	}
	return enc.Encode(out)
}
