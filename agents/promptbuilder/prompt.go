/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package promptbuilder assembles model prompts from templates with
// {{name}} placeholders.
//
// Templates must be string literals, so user input can never become
// template text. Dynamic values are bound as literals chosen by the
// developer or as structured data rendered to JSON, XML or YAML:
//
//	var system = promptbuilder.MustNewPrompt(`You are working on {{repository}}.
//	Tools available: {{tools}}`)
//
//	p, err := system.BindJSON("repository", repoURL)
//
// Each Bind call returns a new Prompt; the receiver is unchanged.
package promptbuilder

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"maps"
	"strings"

	"gopkg.in/yaml.v3"
)

// stringLiteral only accepts untyped string constants from callers outside
// this package.
type stringLiteral string

type segment struct {
	text        string
	placeholder bool
}

type renderer func() (string, error)

// Prompt is an immutable template plus the values bound so far.
type Prompt struct {
	segments []segment
	bound    map[string]renderer
}

// NewPrompt parses template. Placeholder names are letters, digits and
// underscores and may not start with a digit.
func NewPrompt(template stringLiteral) (*Prompt, error) {
	segs, err := parse(string(template))
	if err != nil {
		return nil, err
	}
	p := &Prompt{segments: segs, bound: map[string]renderer{}}
	for _, s := range segs {
		if s.placeholder {
			p.bound[s.text] = nil
		}
	}
	return p, nil
}

func parse(t string) ([]segment, error) {
	var segs []segment
	for {
		start := strings.Index(t, "{{")
		if start < 0 {
			if t != "" {
				segs = append(segs, segment{text: t})
			}
			return segs, nil
		}
		end := strings.Index(t[start+2:], "}}")
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder at %q", t[start:])
		}
		name := t[start+2 : start+2+end]
		if !validName(name) {
			return nil, fmt.Errorf("invalid placeholder name %q", name)
		}
		if start > 0 {
			segs = append(segs, segment{text: t[:start]})
		}
		segs = append(segs, segment{text: name, placeholder: true})
		t = t[start+2+end+2:]
	}
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Placeholders returns the set of placeholder names in the template.
func (p *Prompt) Placeholders() map[string]struct{} {
	out := make(map[string]struct{}, len(p.bound))
	for name := range p.bound {
		out[name] = struct{}{}
	}
	return out
}

func (p *Prompt) bind(name string, r renderer) (*Prompt, error) {
	current, ok := p.bound[name]
	if !ok {
		return nil, fmt.Errorf("no placeholder named %q", name)
	}
	if current != nil {
		return nil, fmt.Errorf("placeholder %q is already bound", name)
	}
	next := &Prompt{segments: p.segments, bound: maps.Clone(p.bound)}
	next.bound[name] = r
	return next, nil
}

// BindStringLiteral binds a developer-supplied literal.
func (p *Prompt) BindStringLiteral(name string, value stringLiteral) (*Prompt, error) {
	return p.bind(name, func() (string, error) { return string(value), nil })
}

// BindJSON binds data rendered as indented JSON.
func (p *Prompt) BindJSON(name string, data any) (*Prompt, error) {
	return p.bind(name, func() (string, error) {
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("rendering %q as JSON: %w", name, err)
		}
		return string(b), nil
	})
}

// BindXML binds data rendered as XML. Strings are wrapped in a <value>
// element so their content is escaped.
func (p *Prompt) BindXML(name string, data any) (*Prompt, error) {
	return p.bind(name, func() (string, error) {
		v := data
		if s, ok := data.(string); ok {
			v = struct {
				XMLName xml.Name `xml:"value"`
				Text    string   `xml:",chardata"`
			}{Text: s}
		}
		b, err := xml.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("rendering %q as XML: %w", name, err)
		}
		return string(b), nil
	})
}

// BindYAML binds data rendered as YAML.
func (p *Prompt) BindYAML(name string, data any) (*Prompt, error) {
	return p.bind(name, func() (string, error) {
		b, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("rendering %q as YAML: %w", name, err)
		}
		return strings.TrimSuffix(string(b), "\n"), nil
	})
}

// Build renders the prompt. Every placeholder must be bound.
func (p *Prompt) Build() (string, error) {
	values := make(map[string]string, len(p.bound))
	for name, r := range p.bound {
		if r == nil {
			return "", fmt.Errorf("placeholder %q is not bound", name)
		}
		v, err := r()
		if err != nil {
			return "", err
		}
		values[name] = v
	}

	var sb strings.Builder
	for _, s := range p.segments {
		if s.placeholder {
			sb.WriteString(values[s.text])
		} else {
			sb.WriteString(s.text)
		}
	}
	return sb.String(), nil
}

// Must panics if err is non-nil.
func Must(p *Prompt, err error) *Prompt {
	if err != nil {
		panic(err)
	}
	return p
}

// MustNewPrompt is Must(NewPrompt(template)).
func MustNewPrompt(template stringLiteral) *Prompt {
	return Must(NewPrompt(template))
}

// Bindable is implemented by requests that fill in a prompt's placeholders.
type Bindable interface {
	Bind(*Prompt) (*Prompt, error)
}

// Noop is a Bindable that leaves the prompt unchanged.
type Noop struct{}

// Bind implements Bindable.
func (Noop) Bind(p *Prompt) (*Prompt, error) { return p, nil }
