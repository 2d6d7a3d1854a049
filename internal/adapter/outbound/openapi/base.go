package openapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/i2y/protoswag/internal/adapter/outbound/github"
	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/methodconfig"
)

// BaseDocument is the user-supplied part of the generated document: method
// tags plus the global OpenAPI sections copied into the output.
type BaseDocument struct {
	// Methods holds the wildcard entry first, then the remaining methods in
	// document order.
	Methods         []domain.ConfigEntry
	Info            *openapi3.Info
	Servers         openapi3.Servers
	SecuritySchemes openapi3.SecuritySchemes
	Security        openapi3.SecurityRequirements
}

// LoadBaseDocument reads a YAML or JSON base document from a local path or a
// github:// URL.
func LoadBaseDocument(ctx context.Context, path string) (*BaseDocument, error) {
	data, err := github.ReadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read base document: %w", err)
	}
	base, err := ParseBaseDocument(data, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base document %s: %w", path, err)
	}
	return base, nil
}

// ParseBaseDocument parses a base document. source names the document in the
// configuration entries it yields.
func ParseBaseDocument(data []byte, source string) (*BaseDocument, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	base := &BaseDocument{}
	if len(root.Content) == 0 {
		return base, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping at the top level")
	}

	for i := 0; i+1 < len(top.Content); i += 2 {
		key, value := top.Content[i].Value, top.Content[i+1]
		var err error
		switch key {
		case "methods":
			base.Methods, err = methodEntries(value, source)
		case "info":
			err = decodeVia(value, &base.Info)
		case "servers":
			err = decodeVia(value, &base.Servers)
		case "securitySchemes":
			err = decodeVia(value, &base.SecuritySchemes)
		case "security":
			err = decodeVia(value, &base.Security)
		}
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", key, err)
		}
	}
	return base, nil
}

func methodEntries(node *yaml.Node, source string) ([]domain.ConfigEntry, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping of method names to tag lists")
	}
	var wildcard, rest []domain.ConfigEntry
	for i := 0; i+1 < len(node.Content); i += 2 {
		method := node.Content[i].Value
		tags, err := tagList(node.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", method, err)
		}
		entry := domain.ConfigEntry{Method: method, Tags: tags, Source: source + "#methods." + method}
		if method == domain.Wildcard {
			wildcard = append(wildcard, entry)
		} else {
			rest = append(rest, entry)
		}
	}
	return append(wildcard, rest...), nil
}

// tagList accepts a sequence of tags or one comma separated string. Sequence
// items are taken whole so a tag may carry a comma, as in an array default.
func tagList(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return methodconfig.SplitTags(node.Value), nil
	case yaml.SequenceNode:
		var tags []string
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("tags must be strings")
			}
			tags = append(tags, item.Value)
		}
		return tags, nil
	}
	return nil, fmt.Errorf("expected a tag list")
}

// decodeVia converts a YAML subtree into an openapi3 value through its JSON
// form, so the openapi3 unmarshalers (extensions, refs) apply.
func decodeVia(node *yaml.Node, target any) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
