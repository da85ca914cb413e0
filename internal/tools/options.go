package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

var schemaCompiler = jsonschema.NewCompiler()

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	if source == "" {
		source = `{"type": "object"}`
	}
	schema, err := schemaCompiler.Compile([]byte(source))
	if err != nil {
		return nil, fmt.Errorf("compile options schema for %s: %w", name, err)
	}
	return schema, nil
}

// validateOptions checks options against schema and returns a client-safe
// description of every violation.
func validateOptions(schema *jsonschema.Schema, options map[string]any) error {
	if options == nil {
		options = map[string]any{}
	}
	data, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("options are not valid JSON: %w", err)
	}

	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors))
	for keyword, evalErr := range result.Errors {
		details = append(details, fmt.Sprintf("%s: %s", keyword, evalErr.Error()))
	}
	sort.Strings(details)
	return fmt.Errorf("invalid options: %s", strings.Join(details, "; "))
}

const (
	noOptionsSchema = `{
		"type": "object",
		"additionalProperties": false
	}`

	splitSchema = `{
		"type": "object",
		"properties": {
			"span": {"type": "integer", "minimum": 1, "maximum": 10000}
		},
		"additionalProperties": false
	}`

	protectSchema = `{
		"type": "object",
		"properties": {
			"password": {"type": "string", "minLength": 1, "maxLength": 128},
			"ownerPassword": {"type": "string", "minLength": 1, "maxLength": 128}
		},
		"required": ["password"],
		"additionalProperties": false
	}`

	compressSchema = `{
		"type": "object",
		"properties": {
			"level": {"enum": ["screen", "ebook", "printer", "prepress"]}
		},
		"additionalProperties": false
	}`

	convertSchema = `{
		"type": "object",
		"properties": {
			"to": {"enum": ["pdf", "docx", "odt", "xlsx", "ods"]}
		},
		"additionalProperties": false
	}`
)
