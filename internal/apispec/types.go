// Package apispec holds the interface definitions, dependency groups and
// environment profiles that drive case generation and replay.
package apispec

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parameter describes a single query, path or header parameter.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// BodyField describes one field of a request body, possibly nested.
type BodyField struct {
	Name        string      `json:"name"`
	Type        string      `json:"type,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Description string      `json:"description,omitempty"`
	Fields      []BodyField `json:"fields,omitempty"`
	Items       []BodyField `json:"items,omitempty"`
}

// RequestBody describes the body an interface accepts.
type RequestBody struct {
	ContentType string      `json:"content_type,omitempty"`
	Fields      []BodyField `json:"fields,omitempty"`
}

// ResponseSpec describes one documented response of an interface.
type ResponseSpec struct {
	HTTPCode    int    `json:"http_code"`
	MediaType   string `json:"media_type,omitempty"`
	Description string `json:"description,omitempty"`
	Body        any    `json:"body,omitempty"`
}

// APISpec is the canonical description of a single HTTP interface.
type APISpec struct {
	ID          string                 `json:"id,omitempty"`
	Method      string                 `json:"method"`
	Path        string                 `json:"path"`
	BaseURL     string                 `json:"base_url,omitempty"`
	Summary     string                 `json:"summary,omitempty"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string][]Parameter `json:"parameters,omitempty"`
	RequestBody *RequestBody           `json:"request_body,omitempty"`
	Responses   []ResponseSpec         `json:"responses,omitempty"`
}

// Render produces the prompt-facing document for an interface. The
// output is stable JSON so the model sees the same text for the same
// interface on every run.
func (s *APISpec) Render() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s %s", s.Method, s.Path)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Interface: %s %s\n", strings.ToUpper(s.Method), s.Path))
	if s.Summary != "" {
		b.WriteString("Summary: " + s.Summary + "\n")
	}
	b.WriteString("Definition:\n")
	b.Write(data)
	return b.String()
}

// ExtractionRule tells a generated case how to pull a value out of a
// dependency response and under which name to store it.
type ExtractionRule struct {
	SourceFieldPath string `json:"source_field_path"`
	TargetFieldName string `json:"target_field_name"`
	DependencyType  string `json:"dependency_type,omitempty"`
	TransformRule   string `json:"transform_rule,omitempty"`
	IsActive        bool   `json:"is_active"`
}

// DependencyGroup is the ordered set of upstream interfaces a target
// interface needs called first, plus the extraction rules between them.
type DependencyGroup struct {
	InterfaceID  string           `json:"interface_id"`
	Dependencies []APISpec        `json:"dependencies,omitempty"`
	Extractions  []ExtractionRule `json:"extractions,omitempty"`
}

// RenderDocs returns one prompt document per dependency, in call order,
// with the active extraction rules appended to the interface they read from.
func (g *DependencyGroup) RenderDocs() []string {
	docs := make([]string, 0, len(g.Dependencies))
	for _, dep := range g.Dependencies {
		doc := dep.Render()
		var rules []string
		for _, r := range g.Extractions {
			if !r.IsActive {
				continue
			}
			rules = append(rules, fmt.Sprintf("- extract %q as %q", r.SourceFieldPath, r.TargetFieldName))
		}
		if len(rules) > 0 {
			doc += "\nExtractions:\n" + strings.Join(rules, "\n")
		}
		docs = append(docs, doc)
	}
	return docs
}

// DatabaseConfig describes one database connection scripts may query.
type DatabaseConfig struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// EnvironmentProfile is a named execution environment: seed variables,
// reachable databases and the custom function library source.
type EnvironmentProfile struct {
	ID              string           `json:"id,omitempty"`
	Name            string           `json:"name"`
	Variables       map[string]any   `json:"variables,omitempty"`
	Databases       []DatabaseConfig `json:"databases,omitempty"`
	FunctionLibrary string           `json:"function_library,omitempty"`
}

// Snapshot returns a copy of the profile variables safe to mutate
// during a single case execution.
func (p *EnvironmentProfile) Snapshot() map[string]any {
	vars := make(map[string]any, len(p.Variables))
	for k, v := range p.Variables {
		vars[k] = v
	}
	return vars
}
