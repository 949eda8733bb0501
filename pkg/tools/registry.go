// Package tools holds the static catalog of remote capabilities the agent
// can invoke, and the HTTP invoker that executes them.
//
// The registry is closed: the three tools the content service exposes are
// known at compile time, each with a typed argument struct and a JSON schema
// that is emitted as data for the model. Arguments are validated against the
// schema before any network call.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Name identifies a tool in the registry.
type Name string

const (
	WebSearch          Name = "web_search"
	AnalyzeSEOKeywords Name = "analyze_seo_keywords"
	PublishArticle     Name = "publish_article"
)

// Definition describes one tool: its remote endpoint and the schema
// advertised to the model.
type Definition struct {
	Name        Name
	Description string
	Endpoint    string
	Schema      map[string]interface{}
}

// Args is the closed set of typed tool arguments.
type Args interface {
	toolName() Name
}

// WebSearchArgs are the arguments for web_search.
type WebSearchArgs struct {
	Query string `json:"query"`
}

func (WebSearchArgs) toolName() Name { return WebSearch }

// AnalyzeArgs are the arguments for analyze_seo_keywords.
type AnalyzeArgs struct {
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
}

func (AnalyzeArgs) toolName() Name { return AnalyzeSEOKeywords }

// PublishArgs are the arguments for publish_article.
type PublishArgs struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (PublishArgs) toolName() Name { return PublishArticle }

// Registry is the fixed tool catalog with compiled validation schemas.
type Registry struct {
	defs    []Definition
	byName  map[Name]*Definition
	schemas map[Name]*gojsonschema.Schema
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// NewRegistry builds the three-entry registry.
func NewRegistry() (*Registry, error) {
	defs := []Definition{
		{
			Name:        WebSearch,
			Description: "Search the web and return the top matching results with title, link and snippet.",
			Endpoint:    "/search",
			Schema: objectSchema(map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query.",
				},
			}, "query"),
		},
		{
			Name:        AnalyzeSEOKeywords,
			Description: "Analyze a text and compute the word count and density of each keyword as a percentage.",
			Endpoint:    "/analyze",
			Schema: objectSchema(map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "The full text to analyze.",
				},
				"keywords": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Keywords to measure density for.",
				},
			}, "text", "keywords"),
		},
		{
			Name:        PublishArticle,
			Description: "Publish an article with the given title and content, returning its public URL.",
			Endpoint:    "/publish",
			Schema: objectSchema(map[string]interface{}{
				"title": map[string]interface{}{
					"type":        "string",
					"description": "The article title.",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "The article body.",
				},
			}, "title", "content"),
		},
	}

	r := &Registry{
		defs:    defs,
		byName:  make(map[Name]*Definition, len(defs)),
		schemas: make(map[Name]*gojsonschema.Schema, len(defs)),
	}

	for i := range defs {
		def := &r.defs[i]
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Schema))
		if err != nil {
			return nil, fmt.Errorf("compiling schema for %s: %w", def.Name, err)
		}
		r.byName[def.Name] = def
		r.schemas[def.Name] = schema
	}

	return r, nil
}

// Definitions returns the catalog in registration order, for emission to
// the model as the tool descriptor set.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Lookup resolves a tool name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	def, ok := r.byName[Name(name)]
	return def, ok
}

// DecodeArgs validates raw model-supplied arguments against the tool's
// schema and decodes them into the tool's typed argument struct.
func (r *Registry) DecodeArgs(name string, raw map[string]interface{}) (Args, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	result, err := r.schemas[def.Name].Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validating arguments for %s: %w", name, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return nil, fmt.Errorf("invalid arguments for %s: %s", name, strings.Join(details, "; "))
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments for %s: %w", name, err)
	}

	var args Args
	switch def.Name {
	case WebSearch:
		args = &WebSearchArgs{}
	case AnalyzeSEOKeywords:
		args = &AnalyzeArgs{}
	case PublishArticle:
		args = &PublishArgs{}
	}

	if err := json.Unmarshal(data, args); err != nil {
		return nil, fmt.Errorf("decoding arguments for %s: %w", name, err)
	}

	return args, nil
}
