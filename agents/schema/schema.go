/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schema derives JSON schemas for tool payloads from Go types.
package schema

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// Generator reflects Go values into inline JSON schemas.
type Generator struct {
	r jsonschema.Reflector
}

// NewGenerator returns a Generator that inlines every definition and takes
// required fields from `jsonschema:"required"` tags.
func NewGenerator() *Generator {
	return &Generator{r: jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  true,
		DoNotReference:             true,
		Namer:                      qualifiedName,
	}}
}

// qualifiedName keys definitions by package path as well as type name.
// The reflector expands the root type by looking up its definition, so two
// types sharing a bare name would otherwise overwrite each other.
func qualifiedName(t reflect.Type) string {
	if t.Name() == "" || t.PkgPath() == "" {
		return t.Name()
	}
	return strings.NewReplacer("/", "_", ".", "_").Replace(t.PkgPath()) + "_" + t.Name()
}

// Reflect returns the schema for v.
func (g *Generator) Reflect(v any) *jsonschema.Schema {
	return g.r.Reflect(v)
}

// ReflectType returns the schema for T using a default Generator.
func ReflectType[T any]() *jsonschema.Schema {
	var zero T
	return NewGenerator().Reflect(&zero)
}

// ToMap renders s as the generic map form model SDKs accept.
func ToMap(s *jsonschema.Schema) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	// Every definition is inlined, so nothing refers to these.
	delete(out, "$defs")
	return out, nil
}
