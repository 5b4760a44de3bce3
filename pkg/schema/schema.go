// Package schema loads codex.schema.json and exposes it two ways: as a
// merge.StrategyResolver feeding x-merge-strategy annotations to the merge
// engine, and as a JSON Schema validator for fragment documents.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/codexweaver/codex/pkg/domain"
	"github.com/codexweaver/codex/pkg/manifest"
	"github.com/codexweaver/codex/pkg/merge"
)

// Schema wraps a loaded codex.schema.json document.
type Schema struct {
	doc      map[string]any
	compiled *jsonschema.Schema
}

// Load reads the workspace schema. A missing file returns
// domain.ErrSchemaUnavailable, which callers treat as "default strategy
// for every field", not as a failure.
func Load(root string) (*Schema, error) {
	path := filepath.Join(root, manifest.SchemaFile)
	data, err := os.ReadFile(path) // #nosec G304 -- fixed workspace-relative path
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSchemaUnavailable, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	return Parse(data)
}

// Parse builds a Schema from raw JSON bytes.
func Parse(data []byte) (*Schema, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	resource, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(manifest.SchemaFile, resource); err != nil {
		return nil, fmt.Errorf("registering schema: %w", err)
	}
	compiled, err := compiler.Compile(manifest.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}

	return &Schema{doc: doc, compiled: compiled}, nil
}

// Resolver returns a merge.StrategyResolver that walks the schema's
// properties tree along the field path and reads the x-merge-strategy
// annotation. Missing properties, missing annotations, or a malformed
// schema all resolve to replace. A nil Schema resolves everything to
// replace, so callers can pass through the SchemaUnavailable case.
func (s *Schema) Resolver() merge.StrategyResolver {
	if s == nil {
		return merge.DefaultResolver()
	}
	return merge.ResolverFunc(func(path []string) merge.Strategy {
		node := s.doc
		for _, segment := range path {
			properties, _ := node["properties"].(map[string]any)
			next, _ := properties[segment].(map[string]any)
			if next == nil {
				return merge.StrategyReplace
			}
			node = next
		}
		annotation, _ := node["x-merge-strategy"].(string)
		return merge.ParseStrategy(annotation)
	})
}

// ValidateFragment checks a fragment document against the schema and
// returns sorted, path-qualified error messages; empty means valid.
func (s *Schema) ValidateFragment(content merge.Document) ([]string, error) {
	// The fragment tree comes from YAML; round-trip through JSON so the
	// validator sees canonical JSON value types.
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encoding fragment for validation: %w", err)
	}
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding fragment for validation: %w", err)
	}

	err = s.compiled.Validate(value)
	if err == nil {
		return nil, nil
	}
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return nil, err
	}

	var messages []string
	collectCauses(validationErr, message.NewPrinter(language.English), &messages)
	sort.Strings(messages)
	return messages, nil
}

// collectCauses flattens the validation error tree into leaf messages,
// each prefixed with the instance path it applies to.
func collectCauses(err *jsonschema.ValidationError, printer *message.Printer, out *[]string) {
	if len(err.Causes) == 0 {
		location := "root"
		if len(err.InstanceLocation) > 0 {
			location = joinPath(err.InstanceLocation)
		}
		*out = append(*out, fmt.Sprintf("%s: %s", location, err.ErrorKind.LocalizedString(printer)))
		return
	}
	for _, cause := range err.Causes {
		collectCauses(cause, printer, out)
	}
}

func joinPath(segments []string) string {
	path := segments[0]
	for _, segment := range segments[1:] {
		path += "." + segment
	}
	return path
}
