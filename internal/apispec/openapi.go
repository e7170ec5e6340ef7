package apispec

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caseforge/caseforge/internal/infra/logger"
)

var httpMethods = []string{"get", "post", "put", "patch", "delete", "head", "options"}

// ImportOpenAPI reads an OpenAPI 3.x or Swagger 2.0 document (JSON or
// YAML) and converts each operation into an APISpec.
func ImportOpenAPI(path string) ([]APISpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}

	var doc map[string]any
	if json.Valid(data) {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse JSON spec: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse YAML spec: %w", err)
		}
	}

	if _, ok := doc["openapi"]; !ok {
		if _, ok := doc["swagger"]; !ok {
			return nil, fmt.Errorf("unsupported document: no openapi or swagger version field")
		}
	}

	baseURL := firstServerURL(doc)
	paths, _ := doc["paths"].(map[string]any)
	var specs []APISpec
	for path, item := range paths {
		operations, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, method := range httpMethods {
			raw, ok := operations[method].(map[string]any)
			if !ok {
				continue
			}
			spec := parseOperation(method, path, baseURL, raw)
			specs = append(specs, spec)
		}
	}

	logger.Info("imported interface definitions",
		logger.String("path", path),
		logger.Int("count", len(specs)))
	return specs, nil
}

func firstServerURL(doc map[string]any) string {
	servers, ok := doc["servers"].([]any)
	if !ok || len(servers) == 0 {
		return ""
	}
	server, ok := servers[0].(map[string]any)
	if !ok {
		return ""
	}
	url, _ := server["url"].(string)
	return url
}

func parseOperation(method, path, baseURL string, raw map[string]any) APISpec {
	spec := APISpec{
		Method:  strings.ToUpper(method),
		Path:    path,
		BaseURL: baseURL,
	}
	spec.Summary, _ = raw["summary"].(string)
	spec.Description, _ = raw["description"].(string)
	if id, ok := raw["operationId"].(string); ok {
		spec.ID = id
	}

	if params, ok := raw["parameters"].([]any); ok {
		spec.Parameters = make(map[string][]Parameter)
		for _, p := range params {
			pm, ok := p.(map[string]any)
			if !ok {
				continue
			}
			location, _ := pm["in"].(string)
			if location == "" {
				location = "query"
			}
			param := Parameter{}
			param.Name, _ = pm["name"].(string)
			param.Required, _ = pm["required"].(bool)
			param.Description, _ = pm["description"].(string)
			param.Type = schemaType(pm["schema"])
			if param.Type == "" {
				param.Type, _ = pm["type"].(string)
			}
			spec.Parameters[location] = append(spec.Parameters[location], param)
		}
	}

	if body, ok := raw["requestBody"].(map[string]any); ok {
		spec.RequestBody = parseRequestBody(body)
	}

	if responses, ok := raw["responses"].(map[string]any); ok {
		for code, r := range responses {
			rm, ok := r.(map[string]any)
			if !ok {
				continue
			}
			resp := ResponseSpec{}
			fmt.Sscanf(code, "%d", &resp.HTTPCode)
			resp.Description, _ = rm["description"].(string)
			if content, ok := rm["content"].(map[string]any); ok {
				for mediaType, m := range content {
					resp.MediaType = mediaType
					if mm, ok := m.(map[string]any); ok {
						resp.Body = mm["schema"]
					}
					break
				}
			}
			spec.Responses = append(spec.Responses, resp)
		}
	}

	return spec
}

func parseRequestBody(body map[string]any) *RequestBody {
	content, ok := body["content"].(map[string]any)
	if !ok {
		return nil
	}
	for contentType, m := range content {
		mm, ok := m.(map[string]any)
		if !ok {
			continue
		}
		rb := &RequestBody{ContentType: contentType}
		if schema, ok := mm["schema"].(map[string]any); ok {
			rb.Fields = parseSchemaFields(schema)
		}
		return rb
	}
	return nil
}

func parseSchemaFields(schema map[string]any) []BodyField {
	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	required := map[string]bool{}
	if list, ok := schema["required"].([]any); ok {
		for _, r := range list {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	var fields []BodyField
	for name, p := range properties {
		pm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		field := BodyField{Name: name, Required: required[name]}
		field.Type, _ = pm["type"].(string)
		field.Description, _ = pm["description"].(string)
		switch field.Type {
		case "object":
			field.Fields = parseSchemaFields(pm)
		case "array":
			if items, ok := pm["items"].(map[string]any); ok {
				if t, _ := items["type"].(string); t == "object" {
					field.Items = parseSchemaFields(items)
				}
			}
		}
		fields = append(fields, field)
	}
	return fields
}

func schemaType(v any) string {
	schema, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	t, _ := schema["type"].(string)
	return t
}
