package pipeline

import (
	"fmt"
	"strings"

	"github.com/caseforge/caseforge/internal/apispec"
	"github.com/caseforge/caseforge/internal/llm/common"
	"github.com/caseforge/caseforge/internal/store"
)

const searchInterfacesToolName = "search_interfaces"

// maxSearchResults caps how many interface docs one search returns.
const maxSearchResults = 5

// searchInterfacesTool describes the knowledge lookup the generation
// model can call to look at interfaces beyond the target one.
func searchInterfacesTool() common.Tool {
	return common.Tool{
		Name:        searchInterfacesToolName,
		Description: "Search the stored API interfaces by keyword and get back their documentation. Useful for understanding endpoints the target interface depends on or interacts with.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Keyword matched against interface methods, paths, summaries and descriptions",
				},
			},
			"required": []string{"query"},
		},
	}
}

// searchInterfaces filters the stored interfaces by a case-insensitive
// keyword. An empty query returns the first interfaces as-is.
func searchInterfaces(s *store.Store, query string) ([]string, error) {
	specs, err := s.APISpecs()
	if err != nil {
		return nil, fmt.Errorf("load interfaces: %w", err)
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	var docs []string
	for _, spec := range specs {
		if needle != "" && !specMatches(spec, needle) {
			continue
		}
		docs = append(docs, spec.Render())
		if len(docs) == maxSearchResults {
			break
		}
	}
	return docs, nil
}

func specMatches(spec *apispec.APISpec, needle string) bool {
	for _, field := range []string{spec.Method, spec.Path, spec.Summary, spec.Description} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
