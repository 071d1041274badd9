package admin

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"perpbot/internal/config"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type updateRequest struct {
	Param string `json:"param"`
	Value any    `json:"value"`
}

var (
	updateSchemaOnce sync.Once
	updateSchema     *jsonschema.Schema
	updateSchemaErr  error
)

var kindTypes = map[string]any{
	"bool":   []string{"boolean", "string", "integer"},
	"int":    []string{"integer", "string"},
	"float":  []string{"number", "string"},
	"string": "string",
	"list": map[string]any{"oneOf": []any{
		map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		map[string]any{"type": "string"},
	}},
}

// buildUpdateSchema 根据可设置参数生成 PUT /api/config 的请求体校验规则。
func buildUpdateSchema() map[string]any {
	names := config.ParamNames()
	rules := make([]any, 0, len(names))
	for _, name := range names {
		kind, _ := config.ParamKind(name)
		value := map[string]any{}
		switch t := kindTypes[kind].(type) {
		case map[string]any:
			value = t
		default:
			value["type"] = t
		}
		rules = append(rules, map[string]any{
			"if":   map[string]any{"properties": map[string]any{"param": map[string]any{"const": name}}},
			"then": map[string]any{"properties": map[string]any{"value": value}},
		})
	}
	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"required":             []string{"param", "value"},
		"additionalProperties": false,
		"properties": map[string]any{
			"param": map[string]any{"type": "string", "enum": names},
			"value": map[string]any{},
		},
		"allOf": rules,
	}
}

func compiledUpdateSchema() (*jsonschema.Schema, error) {
	updateSchemaOnce.Do(func() {
		raw, err := json.Marshal(buildUpdateSchema())
		if err != nil {
			updateSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config_update.json", strings.NewReader(string(raw))); err != nil {
			updateSchemaErr = err
			return
		}
		updateSchema, updateSchemaErr = compiler.Compile("config_update.json")
	})
	return updateSchema, updateSchemaErr
}

// decodeUpdate validates the body against the schema and decodes it.
func decodeUpdate(body []byte) (updateRequest, error) {
	schema, err := compiledUpdateSchema()
	if err != nil {
		return updateRequest{}, fmt.Errorf("schema compile failed: %w", err)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return updateRequest{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return updateRequest{}, err
	}
	var req updateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return updateRequest{}, err
	}
	return req, nil
}
