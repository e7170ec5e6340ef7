// Package replay executes generated test cases against live HTTP
// services: dependency chains, scripted setup/teardown, variable
// interpolation, assertions and extractions.
package replay

import "encoding/json"

// RequestBlock is one HTTP call description inside a case. Every string
// leaf may carry ${{name}} references resolved against the environment
// just before the call goes out.
type RequestBlock struct {
	InterfaceID    string         `json:"interface_id,omitempty"`
	Method         string         `json:"method"`
	URL            string         `json:"url"`
	BaseURL        string         `json:"base_url,omitempty"`
	Headers        map[string]any `json:"headers,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
	Body           any            `json:"body,omitempty"`
	Files          map[string]any `json:"files,omitempty"`
	SetupScript    string         `json:"setup_script,omitempty"`
	TeardownScript string         `json:"teardown_script,omitempty"`
}

// DependencyStep is one precondition call: its request plus the
// extraction rules that feed later steps.
type DependencyStep struct {
	Name    string       `json:"name"`
	Request RequestBlock `json:"request"`
	Extract [][2]string  `json:"extract,omitempty"`
}

// AssertionSpec is a single check against the main response.
type AssertionSpec struct {
	Type     string `json:"type"`
	Field    string `json:"field,omitempty"`
	Expected any    `json:"expected,omitempty"`
}

// Assertions groups the checks a case declares.
type Assertions struct {
	Response []AssertionSpec `json:"response,omitempty"`
}

// Case statuses as persisted by the platform.
const (
	CaseStatusPending  = "pending"
	CaseStatusReady    = "ready"
	CaseStatusDisabled = "disabled"
)

// RunnableCase is an executable test case: ordered preconditions, the
// main request and the assertions over its response.
type RunnableCase struct {
	ID              string           `json:"id,omitempty"`
	BaseCaseID      string           `json:"base_case_id,omitempty"`
	InterfaceID     string           `json:"interface_id,omitempty"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Interface       string           `json:"interface,omitempty"`
	Status          string           `json:"status,omitempty"`
	GenerationCount int              `json:"generation_count,omitempty"`
	Skip            bool             `json:"skip,omitempty"`
	Preconditions   []DependencyStep `json:"preconditions,omitempty"`
	Request         RequestBlock     `json:"request"`
	Assertions      Assertions       `json:"assertions"`
	TestData        []map[string]any `json:"test_data,omitempty"`
}

// Clone deep-copies the case through its JSON form so execution can
// mutate request blocks without touching the stored definition.
func (c *RunnableCase) Clone() *RunnableCase {
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var copied RunnableCase
	if err := json.Unmarshal(data, &copied); err != nil {
		fallback := *c
		return &fallback
	}
	return &copied
}

// Empty reports whether the case carries no executable content.
func (c *RunnableCase) Empty() bool {
	return c == nil || (c.Name == "" && c.Request.Method == "" && c.Request.URL == "" && len(c.Preconditions) == 0)
}
